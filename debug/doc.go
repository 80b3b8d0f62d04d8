// Package debug provides the per-client diagnostic event channel.
//
// Exchanges receive a DispatchFn at construction time; calling it
// stamps the event with a timestamp and a source tag identifying the
// emitting exchange and publishes it to the client's channel. Dispatch
// is synchronous and unbuffered: events for the same operation preserve
// emission order, observers that are not listening cost nothing, and no
// event is retained beyond the dispatch call.
//
// Event payload shapes form an open tagged union: packages register a
// tag together with a payload factory, and unregistered tags still flow
// through as plain values. Registration happens in init functions, the
// same way message payload types register themselves elsewhere in the
// ecosystem this design is drawn from.
package debug

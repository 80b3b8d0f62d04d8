// Package retry provides exponential backoff with jitter for the
// transport and retry exchanges. Blocking callers use Do; the retry
// exchange, which schedules re-dispatches asynchronously on the
// pipeline, uses DelayFor to compute the backoff for a given attempt.
package retry

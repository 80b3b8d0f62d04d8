// Package wsx implements the graphql-transport-ws subscription
// exchange. Subscriptions are multiplexed over one lazily dialed
// WebSocket connection; every other operation kind is forwarded, so the
// exchange composes ahead of an HTTP transport.
//
// A lost connection fails the active subscriptions with a transient
// network error and resets the exchange; the next subscription dispatch
// dials again. Composing a retry exchange upstream turns that failure
// mode into automatic resubscription.
package wsx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
)

// Option configures the subscription exchange.
type Option func(*options)

type options struct {
	url              string
	dialer           *websocket.Dialer
	connectionParams map[string]any
	ackTimeout       time.Duration
}

// WithURL sets the WebSocket endpoint. Required.
func WithURL(url string) Option {
	return func(o *options) { o.url = url }
}

// WithDialer overrides the WebSocket dialer, e.g. for TLS or proxy
// configuration.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithConnectionParams sets the connection_init payload, which servers
// typically use for authentication.
func WithConnectionParams(params map[string]any) Option {
	return func(o *options) { o.connectionParams = params }
}

// WithAckTimeout bounds the wait for the server's connection_ack.
// Defaults to 10 seconds.
func WithAckTimeout(timeout time.Duration) Option {
	return func(o *options) { o.ackTimeout = timeout }
}

// New creates the subscription exchange.
func New(opts ...Option) exchange.Named {
	o := &options{ackTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(o)
	}
	if o.dialer == nil {
		o.dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{"graphql-transport-ws"},
		}
	}

	return exchange.Named{Name: "subscriptions", Factory: func(in exchange.Input) exchange.IO {
		if in.Logger == nil {
			in.Logger = slog.Default()
		}
		x := &wsExchange{
			in:    in,
			opts:  o,
			subs:  make(map[string]gql.Operation),
			byKey: make(map[uint64]string),
		}

		return in.Pipe(exchange.Handler{
			OnOperation: x.onOperation,
			OnEnd:       x.shutdown,
		})
	}}
}

type wsExchange struct {
	in   exchange.Input
	opts *options

	writeMu sync.Mutex // serializes frame writes across goroutines

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	ready   bool
	closed  bool
	queued  []message
	subs    map[string]gql.Operation
	byKey   map[uint64]string
	emit    exchange.EmitFn
}

func (x *wsExchange) onOperation(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
	switch op.Kind {
	case gql.OperationSubscription:
		x.subscribe(op, emit)

	case gql.OperationTeardown:
		x.unsubscribe(op.Key)
		forward(op)

	default:
		forward(op)
	}
}

func (x *wsExchange) subscribe(op gql.Operation, emit exchange.EmitFn) {
	if x.opts.url == "" {
		emit(gql.ErrorResult(op, gql.NetworkErr(errors.WrapInvalid(
			errors.ErrMissingConfig, "wsx", "subscribe",
			"no WebSocket URL configured"))))
		return
	}

	msg, err := subscribeMessage(uuid.NewString(), op)
	if err != nil {
		emit(gql.ErrorResult(op, gql.NetworkErr(err)))
		return
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	x.emit = emit
	x.subs[msg.ID] = op
	x.byKey[op.Key] = msg.ID

	switch {
	case x.ready:
		conn := x.conn
		x.mu.Unlock()
		x.write(conn, msg)
	case x.conn == nil && !x.dialing:
		x.dialing = true
		x.queued = append(x.queued, msg)
		x.mu.Unlock()
		go x.connect()
	default:
		// Dialed but not yet acknowledged; flushed on ack.
		x.queued = append(x.queued, msg)
		x.mu.Unlock()
	}
}

func (x *wsExchange) unsubscribe(key uint64) {
	x.mu.Lock()
	id, active := x.byKey[key]
	if active {
		delete(x.byKey, key)
		delete(x.subs, id)
	}
	conn := x.conn
	ready := x.ready
	x.mu.Unlock()

	if active && ready && conn != nil {
		// Off the dispatch path: a slow socket must not stall teardown
		// propagation to later exchanges.
		go func() {
			msg, _ := newMessage(id, msgComplete, nil)
			x.write(conn, msg)
		}()
	}
}

func (x *wsExchange) connect() {
	conn, resp, err := x.opts.dialer.Dial(x.opts.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		x.failAll(errors.WrapTransient(err, "wsx", "connect", "WebSocket dial"))
		x.mu.Lock()
		x.dialing = false
		x.mu.Unlock()
		return
	}

	init, err := newMessage("", msgConnectionInit, x.opts.connectionParams)
	if err == nil {
		err = x.write(conn, init)
	}
	if err != nil {
		conn.Close()
		x.failAll(errors.WrapTransient(err, "wsx", "connect", "connection init"))
		x.mu.Lock()
		x.dialing = false
		x.mu.Unlock()
		return
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		conn.Close()
		return
	}
	x.conn = conn
	x.dialing = false
	x.mu.Unlock()

	group, ctx := errgroup.WithContext(context.Background())
	group.Go(func() error { return x.readLoop(conn) })
	group.Go(func() error { return x.watchAck(ctx, conn) })
	go func() { _ = group.Wait() }()

	x.in.Logger.Info("WebSocket connected", "url", x.opts.url)
}

// watchAck closes the connection if the server never acknowledges the
// init frame; the read loop then surfaces the failure.
func (x *wsExchange) watchAck(ctx context.Context, conn *websocket.Conn) error {
	timer := time.NewTimer(x.opts.ackTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	x.mu.Lock()
	acked := x.ready || x.conn != conn
	x.mu.Unlock()

	if !acked {
		conn.Close()
	}
	return nil
}

func (x *wsExchange) readLoop(conn *websocket.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			x.connectionLost(conn, err)
			return err
		}

		switch msg.Type {
		case msgConnectionAck:
			x.flushQueued(conn)

		case msgPing:
			pong, _ := newMessage("", msgPong, nil)
			x.write(conn, pong)

		case msgNext:
			x.mu.Lock()
			op, active := x.subs[msg.ID]
			emit := x.emit
			x.mu.Unlock()
			if !active {
				continue
			}
			result, err := nextResult(op, msg.Payload)
			if err != nil {
				result = gql.ErrorResult(op, gql.NetworkErr(err))
			}
			emit(result)

		case msgError:
			x.mu.Lock()
			op, active := x.subs[msg.ID]
			emit := x.emit
			if active {
				delete(x.subs, msg.ID)
				delete(x.byKey, op.Key)
			}
			x.mu.Unlock()
			if active {
				emit(errorResult(op, msg.Payload))
			}

		case msgComplete:
			x.mu.Lock()
			if op, active := x.subs[msg.ID]; active {
				delete(x.subs, msg.ID)
				delete(x.byKey, op.Key)
			}
			x.mu.Unlock()
		}
	}
}

func (x *wsExchange) flushQueued(conn *websocket.Conn) {
	x.mu.Lock()
	x.ready = true
	queued := x.queued
	x.queued = nil
	x.mu.Unlock()

	for _, msg := range queued {
		if err := x.write(conn, msg); err != nil {
			return
		}
	}
}

// connectionLost resets the exchange and fails active subscriptions
// with a transient error. Stale read loops of already replaced
// connections are ignored.
func (x *wsExchange) connectionLost(conn *websocket.Conn, cause error) {
	x.mu.Lock()
	if x.closed || x.conn != conn {
		x.mu.Unlock()
		return
	}
	x.conn = nil
	x.ready = false
	x.queued = nil
	x.mu.Unlock()

	conn.Close()
	x.in.Logger.Warn("WebSocket connection lost", "error", cause)
	x.failAll(errors.WrapTransient(
		errors.ErrConnectionLost, "wsx", "connectionLost", "read loop"))
}

// failAll emits a failure result for every active subscription and
// forgets them.
func (x *wsExchange) failAll(cause error) {
	x.mu.Lock()
	failed := make([]gql.Operation, 0, len(x.subs))
	for _, op := range x.subs {
		failed = append(failed, op)
	}
	x.subs = make(map[string]gql.Operation)
	x.byKey = make(map[uint64]string)
	emit := x.emit
	x.mu.Unlock()

	if emit == nil {
		return
	}
	combined := gql.NetworkErr(cause)
	for _, op := range failed {
		emit(gql.ErrorResult(op, combined))
	}
}

func (x *wsExchange) write(conn *websocket.Conn, msg message) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (x *wsExchange) shutdown() {
	x.mu.Lock()
	x.closed = true
	conn := x.conn
	x.conn = nil
	x.ready = false
	x.queued = nil
	x.subs = make(map[string]gql.Operation)
	x.byKey = make(map[uint64]string)
	x.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

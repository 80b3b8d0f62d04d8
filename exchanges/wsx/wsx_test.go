package wsx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

func testSubscription(t *testing.T) gql.Operation {
	t.Helper()
	req, err := gql.NewRequest(`subscription Ticks { tick }`, map[string]any{"rate": 1})
	require.NoError(t, err)
	return gql.NewOperation(gql.OperationSubscription, req, gql.OperationContext{})
}

type resultLog struct {
	mu      sync.Mutex
	results []gql.OperationResult
}

func (l *resultLog) add(r gql.OperationResult) {
	l.mu.Lock()
	l.results = append(l.results, r)
	l.mu.Unlock()
}

func (l *resultLog) snapshot() []gql.OperationResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gql.OperationResult(nil), l.results...)
}

func runExchange(t *testing.T, opts ...Option) (push func(gql.Operation), log *resultLog, sub *stream.Subscription) {
	t.Helper()
	io := New(opts...).Factory(exchange.Input{
		Forward:       exchange.Fallback(nil, nil),
		DispatchDebug: debug.NewChannel().ForSource("subscriptions"),
	})

	ops := stream.NewSubject[gql.Operation]()
	log = &resultLog{}
	s := io(ops.Source())(stream.Observer[gql.OperationResult]{Next: log.add})
	return ops.Next, log, s
}

// protocolServer speaks just enough graphql-transport-ws for the
// tests: it acknowledges init and answers every subscribe with the
// configured frames.
func protocolServer(t *testing.T, onSubscribe func(conn *websocket.Conn, id string)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case msgConnectionInit:
				conn.WriteJSON(message{Type: msgConnectionAck})
			case msgSubscribe:
				onSubscribe(conn, msg.ID)
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWS_SubscriptionReceivesPushedResults(t *testing.T) {
	srv := protocolServer(t, func(conn *websocket.Conn, id string) {
		conn.WriteJSON(message{ID: id, Type: msgNext,
			Payload: json.RawMessage(`{"data":{"tick":1}}`)})
		conn.WriteJSON(message{ID: id, Type: msgNext,
			Payload: json.RawMessage(`{"data":{"tick":2}}`)})
	})
	defer srv.Close()

	push, log, sub := runExchange(t, WithURL(wsURL(srv)))
	defer sub.Unsubscribe()

	push(testSubscription(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	results := log.snapshot()
	assert.JSONEq(t, `{"tick":1}`, string(results[0].Data))
	assert.JSONEq(t, `{"tick":2}`, string(results[1].Data))
	assert.Nil(t, results[0].Error)
}

func TestWS_ErrorFrameBecomesFailureResult(t *testing.T) {
	srv := protocolServer(t, func(conn *websocket.Conn, id string) {
		conn.WriteJSON(message{ID: id, Type: msgError,
			Payload: json.RawMessage(`[{"message":"unauthorized"}]`)})
	})
	defer srv.Close()

	push, log, sub := runExchange(t, WithURL(wsURL(srv)))
	defer sub.Unsubscribe()

	push(testSubscription(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	res := log.snapshot()[0]
	require.NotNil(t, res.Error)
	require.Len(t, res.Error.GraphQLErrors, 1)
	assert.Equal(t, "unauthorized", res.Error.GraphQLErrors[0].Message)
}

func TestWS_ConnectionLossFailsActiveSubscriptions(t *testing.T) {
	srv := protocolServer(t, func(conn *websocket.Conn, id string) {
		conn.Close()
	})
	defer srv.Close()

	push, log, sub := runExchange(t, WithURL(wsURL(srv)))
	defer sub.Unsubscribe()

	push(testSubscription(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	res := log.snapshot()[0]
	require.NotNil(t, res.Error)
	require.NotNil(t, res.Error.NetworkError)
	assert.True(t, errors.IsTransient(res.Error.NetworkError),
		"a lost connection must be retryable")
}

func TestWS_DialFailureFailsSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	push, log, sub := runExchange(t, WithURL(wsURL(srv)))
	defer sub.Unsubscribe()

	push(testSubscription(t))

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	res := log.snapshot()[0]
	require.NotNil(t, res.Error)
	assert.True(t, errors.IsTransient(res.Error.NetworkError))
}

func TestWS_MissingURLIsConfigurationError(t *testing.T) {
	push, log, sub := runExchange(t)
	defer sub.Unsubscribe()

	push(testSubscription(t))

	results := log.snapshot()
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Error)
	assert.ErrorIs(t, results[0].Error.NetworkError, errors.ErrMissingConfig)
}

func TestWS_QueriesForwarded(t *testing.T) {
	push, log, sub := runExchange(t, WithURL("ws://unused"))
	defer sub.Unsubscribe()

	req, err := gql.NewRequest(`{ todos { id } }`, nil)
	require.NoError(t, err)
	push(gql.NewOperation(gql.OperationQuery, req, gql.OperationContext{}))

	// Claimed by the fallback terminal, not the socket.
	results := log.snapshot()
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Error.NetworkError, errors.ErrNoTransport)
}

func TestSubscribeMessage_Framing(t *testing.T) {
	op := testSubscription(t)
	msg, err := subscribeMessage("sub-1", op)
	require.NoError(t, err)

	assert.Equal(t, "sub-1", msg.ID)
	assert.Equal(t, msgSubscribe, msg.Type)

	var payload subscribePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "Ticks", payload.OperationName)
	assert.Contains(t, payload.Query, "tick")
	assert.Equal(t, map[string]any{"rate": float64(1)}, payload.Variables)
}

func TestNextResult_DecodesDataAndErrors(t *testing.T) {
	op := testSubscription(t)

	res, err := nextResult(op, json.RawMessage(`{"data":{"tick":3}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tick":3}`, string(res.Data))
	assert.Nil(t, res.Error)

	res, err = nextResult(op, json.RawMessage(`{"errors":[{"message":"lagging"}]}`))
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, "lagging", res.Error.GraphQLErrors[0].Message)

	_, err = nextResult(op, json.RawMessage(`not json`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestErrorResult_MalformedFrameIsTransport(t *testing.T) {
	op := testSubscription(t)
	res := errorResult(op, json.RawMessage(`{}`))
	require.NotNil(t, res.Error)
	assert.ErrorIs(t, res.Error.NetworkError, errors.ErrSubscribeFailed)
}

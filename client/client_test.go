package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

const (
	todosQuery  = `query Todos { todos { __typename id } }`
	addTodo     = `mutation AddTodo { addTodo { __typename id } }`
	todosData   = `{"todos":[{"__typename":"Todo","id":"1"}]}`
	addTodoData = `{"addTodo":{"__typename":"Todo","id":"2"}}`
)

// gqlServer is a counting GraphQL stub.
type gqlServer struct {
	mu        sync.Mutex
	queries   int
	mutations int
	srv       *httptest.Server
}

func newGQLServer(t *testing.T) *gqlServer {
	t.Helper()
	s := &gqlServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		s.mu.Lock()
		defer s.mu.Unlock()
		if strings.HasPrefix(strings.TrimSpace(body.Query), "mutation") {
			s.mutations++
			w.Write([]byte(`{"data":` + addTodoData + `}`))
			return
		}
		s.queries++
		w.Write([]byte(`{"data":` + todosData + `}`))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *gqlServer) counts() (queries, mutations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.mutations
}

type resultLog struct {
	mu        sync.Mutex
	results   []gql.OperationResult
	completed bool
}

func (l *resultLog) observer() stream.Observer[gql.OperationResult] {
	return stream.Observer[gql.OperationResult]{
		Next: func(r gql.OperationResult) {
			l.mu.Lock()
			l.results = append(l.results, r)
			l.mu.Unlock()
		},
		Complete: func() {
			l.mu.Lock()
			l.completed = true
			l.mu.Unlock()
		},
	}
}

func (l *resultLog) snapshot() []gql.OperationResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gql.OperationResult(nil), l.results...)
}

func (l *resultLog) isCompleted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_DefaultChainRequiresURL(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.True(t, errors.IsInvalid(err))
}

func TestCreateRequest_KeyDeterminism(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	a, err := c.CreateRequest(todosQuery, map[string]any{"first": 10})
	require.NoError(t, err)
	b, err := c.CreateRequest(todosQuery, map[string]any{"first": 10})
	require.NoError(t, err)
	assert.Equal(t, a.Key, b.Key)

	different, err := c.CreateRequest(todosQuery, map[string]any{"first": 20})
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, different.Key)
}

func TestQuery_RoundTrip(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Query(testContext(t), todosQuery, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Error)
	assert.JSONEq(t, todosData, string(res.Data))

	queries, _ := server.counts()
	assert.Equal(t, 1, queries)
}

func TestQuery_CacheFirstServesRepeatFromCache(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	ctx := testContext(t)
	first, err := c.Query(ctx, todosQuery, nil)
	require.NoError(t, err)
	second, err := c.Query(ctx, todosQuery, nil)
	require.NoError(t, err)

	assert.JSONEq(t, string(first.Data), string(second.Data))
	queries, _ := server.counts()
	assert.Equal(t, 1, queries, "the repeat must be a cache hit")
}

func TestQuery_NetworkOnlyBypassesCache(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	ctx := testContext(t)
	for range 2 {
		_, err := c.Query(ctx, todosQuery, nil, gql.WithPolicy(gql.NetworkOnly))
		require.NoError(t, err)
	}

	queries, _ := server.counts()
	assert.Equal(t, 2, queries)
}

func TestQuery_CacheOnlyMissNeverReachesNetwork(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Query(testContext(t), todosQuery, nil, gql.WithPolicy(gql.CacheOnly))
	require.NoError(t, err)
	assert.False(t, res.HasData())
	assert.Nil(t, res.Error)

	queries, _ := server.counts()
	assert.Equal(t, 0, queries)
}

func TestExecuteQuery_CacheAndNetworkEmitsStaleThenFresh(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	// Prime the document cache.
	_, err = c.Query(testContext(t), todosQuery, nil)
	require.NoError(t, err)

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)

	log := &resultLog{}
	sub := c.ExecuteQuery(req, gql.WithPolicy(gql.CacheAndNetwork))(log.observer())
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(log.snapshot()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	results := log.snapshot()
	assert.True(t, results[0].Stale, "cached emission arrives first, marked stale")
	assert.False(t, results[1].Stale)

	queries, _ := server.counts()
	assert.Equal(t, 2, queries)
}

func TestExecuteQuery_MulticastsToAllConsumers(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)

	logA, logB := &resultLog{}, &resultLog{}
	source := c.ExecuteQuery(req, gql.WithPolicy(gql.NetworkOnly))
	subA := source(logA.observer())
	defer subA.Unsubscribe()
	subB := source(logB.observer())
	defer subB.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(logA.snapshot()) >= 1 && len(logB.snapshot()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.JSONEq(t, todosData, string(logA.snapshot()[0].Data))
	assert.JSONEq(t, todosData, string(logB.snapshot()[0].Data))
}

func TestMutation_InvalidatesActiveQueries(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)

	log := &resultLog{}
	sub := c.ExecuteQuery(req)(log.observer())
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The mutation touches Todo, which the active query's cached
	// document contains, so the client refetches it.
	_, err = c.Mutation(testContext(t), addTodo, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(log.snapshot()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	queries, mutations := server.counts()
	assert.Equal(t, 2, queries)
	assert.Equal(t, 1, mutations)
}

func TestExecuteRequestOperation_TeardownOnceAfterLastConsumer(t *testing.T) {
	var mu sync.Mutex
	var teardowns []gql.Operation

	recorder := exchange.Named{Name: "recorder", Factory: func(in exchange.Input) exchange.IO {
		return in.Pipe(exchange.Handler{
			OnOperation: func(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
				if op.IsTeardown() {
					mu.Lock()
					teardowns = append(teardowns, op)
					mu.Unlock()
					forward(op)
					return
				}
				emit(gql.OperationResult{Operation: op, Data: json.RawMessage(`{"ok":true}`)})
			},
		})
	}}

	c, err := New(WithExchanges(recorder))
	require.NoError(t, err)
	defer c.Close()

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)
	source := c.ExecuteQuery(req)

	subA := source((&resultLog{}).observer())
	subB := source((&resultLog{}).observer())

	subA.Unsubscribe()
	mu.Lock()
	assert.Empty(t, teardowns, "interest remains while a consumer is subscribed")
	mu.Unlock()

	subB.Unsubscribe()
	mu.Lock()
	require.Len(t, teardowns, 1, "exactly one teardown after the last consumer leaves")
	assert.Equal(t, req.Key, teardowns[0].Key)
	mu.Unlock()
}

func TestExecuteRequestOperation_ResubscribeRacingTeardown(t *testing.T) {
	// Terminal in the shape of a transport: it answers non-teardowns
	// after a short delay and a teardown cancels the pending answer.
	var mu sync.Mutex
	pending := make(map[uint64]*time.Timer)

	terminal := exchange.Named{Name: "slow", Factory: func(in exchange.Input) exchange.IO {
		return in.Pipe(exchange.Handler{
			OnOperation: func(op gql.Operation, emit exchange.EmitFn, forward exchange.ForwardFn) {
				mu.Lock()
				defer mu.Unlock()
				if op.IsTeardown() {
					if timer, ok := pending[op.Key]; ok {
						timer.Stop()
						delete(pending, op.Key)
					}
					return
				}
				pending[op.Key] = time.AfterFunc(5*time.Millisecond, func() {
					mu.Lock()
					delete(pending, op.Key)
					mu.Unlock()
					emit(gql.OperationResult{Operation: op, Data: json.RawMessage(`{"ok":true}`)})
				})
			},
		})
	}}

	c, err := New(WithExchanges(terminal))
	require.NoError(t, err)
	defer c.Close()

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)
	source := c.ExecuteQuery(req)

	// The last consumer's unsubscribe and a fresh subscribe for the
	// same key race; the fresh consumer must always end up answered. A
	// teardown slipping in behind the fresh dispatch would cancel its
	// pending answer and leave the consumer hanging.
	for range 50 {
		first := &resultLog{}
		subA := source(first.observer())
		require.Eventually(t, func() bool {
			return len(first.snapshot()) >= 1
		}, 2*time.Second, time.Millisecond)

		second := &resultLog{}
		var subB *stream.Subscription
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			subA.Unsubscribe()
		}()
		go func() {
			defer wg.Done()
			subB = source(second.observer())
		}()
		wg.Wait()

		require.Eventually(t, func() bool {
			return len(second.snapshot()) >= 1
		}, 2*time.Second, time.Millisecond,
			"a consumer racing the previous teardown must still be answered")
		subB.Unsubscribe()
	}
}

func TestReexecuteOperation_IgnoredWithoutConsumers(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Query(testContext(t), todosQuery, nil, gql.WithPolicy(gql.NetworkOnly))
	require.NoError(t, err)

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)
	op := gql.NewOperation(gql.OperationQuery, req, gql.OperationContext{
		URL:           server.srv.URL,
		RequestPolicy: gql.NetworkOnly,
	})
	c.ReexecuteOperation(op)

	time.Sleep(100 * time.Millisecond)
	queries, _ := server.counts()
	assert.Equal(t, 1, queries, "no consumer, no re-dispatch")
}

func TestPollInterval_ReexecutesWhileSubscribed(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)

	log := &resultLog{}
	sub := c.ExecuteQuery(req,
		gql.WithPolicy(gql.NetworkOnly),
		gql.WithPollInterval(30*time.Millisecond),
	)(log.observer())
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		queries, _ := server.counts()
		return queries >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOnDebugEvent_ReceivesStampedEvents(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var events []debug.Event
	debugSub := c.OnDebugEvent(func(e debug.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer debugSub.Unsubscribe()

	_, err = c.Query(testContext(t), todosQuery, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, events[0].Source)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestClose_CompletesConsumersAndRejectsNewWork(t *testing.T) {
	server := newGQLServer(t)
	c, err := New(WithURL(server.srv.URL))
	require.NoError(t, err)

	req, err := c.CreateRequest(todosQuery, nil)
	require.NoError(t, err)

	log := &resultLog{}
	sub := c.ExecuteQuery(req)(log.observer())
	defer sub.Unsubscribe()

	c.Close()
	c.Close() // idempotent

	assert.True(t, log.isCompleted())

	_, err = c.Query(testContext(t), todosQuery, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStreamClosed)
}

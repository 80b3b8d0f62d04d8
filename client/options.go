package client

import (
	"log/slog"
	"net/http"

	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/gql"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	url           string
	requestPolicy gql.RequestPolicy
	logger        *slog.Logger
	httpClient    *http.Client
	exchanges     []exchange.Named
	exchangesSet  bool
}

func defaultOptions() *options {
	return &options{
		requestPolicy: gql.CacheFirst,
		logger:        slog.Default(),
	}
}

// WithURL sets the transport endpoint stamped into every operation
// context. Required when the default exchange chain is used.
func WithURL(url string) Option {
	return func(o *options) { o.url = url }
}

// WithRequestPolicy sets the default request policy for operations
// that do not override it. Defaults to cache-first.
func WithRequestPolicy(policy gql.RequestPolicy) Option {
	return func(o *options) { o.requestPolicy = policy }
}

// WithLogger sets the client logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the default fetch
// exchange.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithExchanges replaces the default exchange chain (dedup, cache,
// fetch) entirely. Order is significant: the first exchange sees
// operations first and the last exchange's forward is the fallback
// terminal.
func WithExchanges(exchanges ...exchange.Named) Option {
	return func(o *options) {
		o.exchanges = exchanges
		o.exchangesSet = true
	}
}

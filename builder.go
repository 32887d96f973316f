package jsonrpc2ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultMaxConcurrentRequestCapacity = 256
	defaultMaxCapacityPerSubscription   = 64
)

// options holds the one-shot configuration consumed by Dial (§4.6).
type options struct {
	headers               http.Header
	timeout               time.Duration
	maxConcurrentRequests int
	maxPerSubscription    int
	logger                *zap.Logger
	httpClient            *http.Client
}

func defaultOptions() options {
	return options{
		headers:               make(http.Header),
		maxConcurrentRequests: defaultMaxConcurrentRequestCapacity,
		maxPerSubscription:    defaultMaxCapacityPerSubscription,
		logger:                zap.NewNop(),
		httpClient:            http.DefaultClient,
	}
}

// Option configures a Dial call. Options are applied in the order given.
type Option func(*options)

// Header adds a single extra header to the WebSocket upgrade request.
func Header(name, value string) Option {
	return func(o *options) {
		o.headers.Add(name, value)
	}
}

// Headers adds every header in h to the WebSocket upgrade request.
func Headers(h http.Header) Option {
	return func(o *options) {
		for k, vs := range h {
			for _, v := range vs {
				o.headers.Add(k, v)
			}
		}
	}
}

// BasicAuth sets an "Authorization: Basic <base64(user:pw)>" header.
func BasicAuth(user, pw string) Option {
	return func(o *options) {
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pw))
		o.headers.Set("Authorization", "Basic "+token)
	}
}

// BearerAuth sets an "Authorization: Bearer <token>" header.
func BearerAuth(token string) Option {
	return func(o *options) {
		o.headers.Set("Authorization", "Bearer "+token)
	}
}

// Timeout sets the per-operation deadline applied at the client handle. The
// zero value (the default) means operations wait indefinitely for the
// connection task, unless the caller's own context carries a deadline.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// MaxConcurrentRequestCapacity bounds the capacity of the frontend command
// channel (default 256). Callers block once this many commands are
// in flight awaiting the connection task.
func MaxConcurrentRequestCapacity(n int) Option {
	return func(o *options) {
		o.maxConcurrentRequests = n
	}
}

// MaxCapacityPerSubscription bounds the capacity of each active
// subscription's notification channel (default 64). A subscriber slower
// than this gets dropped rather than stalling the connection (§5
// Backpressure).
func MaxCapacityPerSubscription(n int) Option {
	return func(o *options) {
		o.maxPerSubscription = n
	}
}

// Logger sets the structured logger used to report discarded frames,
// protocol violations, and termination causes. The default is a no-op
// logger.
func Logger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// HTTPClient sets the HTTP client used for the WebSocket upgrade request.
func HTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// Dial performs the WebSocket upgrade handshake and spawns the connection
// task (§4.6). The returned Client holds the sender end of the frontend
// channel; it must eventually be closed with Client.Close.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	connID := uuid.NewString()
	log := o.logger.With(zap.String("conn_id", connID), zap.String("url", url))

	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: o.httpClient,
		HTTPHeader: o.headers,
	})
	if err != nil {
		return nil, newError(KindWebSocket, "handshake failed", err)
	}

	cmdCh := make(chan command, o.maxConcurrentRequests)
	c := newConn(ws, cmdCh, o.maxPerSubscription, log)
	go c.run()

	handle := &engineHandle{cmdCh: cmdCh, done: c.done, refs: 1}
	return &Client{handle: handle, timeout: o.timeout}, nil
}

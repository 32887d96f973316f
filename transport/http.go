// Package transport provides an HTTP adapter sharing the same
// request/response contract as the WebSocket engine (jsonrpc2ws.Client),
// for callers that only need request/response semantics and don't want to
// hold open a persistent connection. It is an external collaborator per
// the core spec: no connection task, no task manager, no subscriptions.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rpcmux/jsonrpc2ws"
)

// Caller is the operation surface shared by the HTTP transport and
// jsonrpc2ws.Client, so callers can depend on an interface rather than a
// concrete transport.
type Caller interface {
	Call(ctx context.Context, method string, params any) (jsonrpc2ws.Output, error)
	BatchCall(ctx context.Context, calls []jsonrpc2ws.MethodCall) ([]jsonrpc2ws.Output, error)
}

// HTTP is a Caller implementation backed by plain HTTP POST requests. Each
// Call or BatchCall round-trips exactly one HTTP request.
type HTTP struct {
	url        string
	httpClient *http.Client
	header     http.Header
	nextID     uint64
}

// HTTPOption configures a New HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient sets the *http.Client used for requests. The default is
// http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithHeader adds a header sent with every request, such as Authorization.
func WithHeader(name, value string) HTTPOption {
	return func(h *HTTP) {
		h.header.Add(name, value)
	}
}

// New creates an HTTP transport for the given JSON-RPC endpoint URL.
func New(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:        url,
		httpClient: http.DefaultClient,
		header:     make(http.Header),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) assignID() uint64 {
	return atomic.AddUint64(&h.nextID, 1)
}

// Call implements Caller.
func (h *HTTP) Call(ctx context.Context, method string, params any) (jsonrpc2ws.Output, error) {
	call := jsonrpc2ws.MethodCall{Method: method, Params: params}.WithID(h.assignID())
	body, err := jsonrpc2ws.EncodeRequest(call)
	if err != nil {
		return jsonrpc2ws.Output{}, jsonrpc2ws.NewError(jsonrpc2ws.KindJSON, "failed to encode request", err)
	}
	respBody, err := h.post(ctx, body)
	if err != nil {
		return jsonrpc2ws.Output{}, err
	}
	output, _, _, err := jsonrpc2ws.DecodeFrame(respBody)
	if err != nil || output == nil {
		return jsonrpc2ws.Output{}, jsonrpc2ws.NewError(jsonrpc2ws.KindJSON, "malformed response body", err)
	}
	return *output, nil
}

// BatchCall implements Caller. It POSTs every call as a single JSON array
// and decodes the matching batch response array.
func (h *HTTP) BatchCall(ctx context.Context, calls []jsonrpc2ws.MethodCall) ([]jsonrpc2ws.Output, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("jsonrpc2ws/transport: batch call requires at least one method call")
	}
	withIDs := make([]jsonrpc2ws.MethodCall, len(calls))
	for n, c := range calls {
		withIDs[n] = c.WithID(h.assignID())
	}
	body, err := jsonrpc2ws.EncodeBatch(withIDs)
	if err != nil {
		return nil, jsonrpc2ws.NewError(jsonrpc2ws.KindJSON, "failed to encode batch request", err)
	}
	respBody, err := h.post(ctx, body)
	if err != nil {
		return nil, err
	}
	_, batch, _, err := jsonrpc2ws.DecodeFrame(respBody)
	if err != nil || batch == nil {
		return nil, jsonrpc2ws.NewError(jsonrpc2ws.KindJSON, "malformed batch response body", err)
	}
	return batch, nil
}

// Subscribe is not supported over HTTP; it always returns
// ErrSubscriptionsUnsupported.
func (h *HTTP) Subscribe(context.Context, string, any) (*jsonrpc2ws.Subscription, error) {
	return nil, jsonrpc2ws.ErrSubscriptionsUnsupported
}

// Unsubscribe is not supported over HTTP; it always returns
// ErrSubscriptionsUnsupported.
func (h *HTTP) Unsubscribe(context.Context, string, jsonrpc2ws.Id) (bool, error) {
	return false, jsonrpc2ws.ErrSubscriptionsUnsupported
}

func (h *HTTP) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, jsonrpc2ws.NewError(jsonrpc2ws.KindWebSocket, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, jsonrpc2ws.NewError(jsonrpc2ws.KindWebSocket, "HTTP request failed", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, jsonrpc2ws.NewError(jsonrpc2ws.KindWebSocket, "failed to read HTTP response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, jsonrpc2ws.NewError(jsonrpc2ws.KindWebSocket, fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode), nil)
	}
	return buf.Bytes(), nil
}

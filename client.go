package jsonrpc2ws

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// engineHandle is the shared state behind every clone of a Client: the
// frontend command channel and a reference count standing in for the
// distilled spec's "drop the last clone" rule, since Go has no destructors.
// done is closed by the connection task itself when it terminates, so
// Client.send can distinguish backpressure (channel full, keep waiting)
// from shutdown (channel gone, fail fast).
type engineHandle struct {
	cmdCh chan command
	done  chan struct{}
	refs  int32
}

// Client is the caller-facing façade for a WebSocket JSON-RPC 2.0 engine
// (§4.4). It is cheap to clone; clones share the same underlying
// connection task and frontend channel.
type Client struct {
	handle  *engineHandle
	timeout time.Duration
}

// Clone returns a new handle sharing this client's connection. The
// returned handle must be closed independently.
func (c *Client) Clone() *Client {
	atomic.AddInt32(&c.handle.refs, 1)
	return &Client{handle: c.handle, timeout: c.timeout}
}

// Close releases this handle. Once every clone has been closed, the
// frontend command channel is closed, which causes the connection task to
// terminate (§4.3 termination trigger (i)).
func (c *Client) Close() {
	if atomic.AddInt32(&c.handle.refs, -1) == 0 {
		close(c.handle.cmdCh)
	}
}

// Done returns a channel that is closed once the underlying connection
// task has fully terminated, regardless of cause.
func (c *Client) Done() <-chan struct{} {
	return c.handle.done
}

func (c *Client) send(cmd command) error {
	select {
	case c.handle.cmdCh <- cmd:
		return nil
	case <-c.handle.done:
		return newError(KindInternalChannel, "engine has terminated", nil)
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Call performs a single JSON-RPC 2.0 method call and returns its Output
// (§4.4).
func (c *Client) Call(ctx context.Context, method string, params any) (Output, error) {
	reply := make(chan callResult, 1)
	if err := c.send(&reqCommand{call: MethodCall{Method: method, Params: params}, reply: reply}); err != nil {
		return Output{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	select {
	case res, ok := <-reply:
		if !ok {
			return Output{}, newError(KindInternalChannel, "reply channel closed", nil)
		}
		return res.output, res.err
	case <-ctx.Done():
		return Output{}, newError(KindRequestTimeout, "call timed out", ctx.Err())
	}
}

// BatchCall sends every (method, params) pair as a single JSON-RPC 2.0
// batch request and waits for the full batch response (§4.4). The
// returned outputs are in the order the server returned them, which is not
// guaranteed to match the request order (§6).
func (c *Client) BatchCall(ctx context.Context, calls []MethodCall) ([]Output, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("jsonrpc2ws: batch call requires at least one method call")
	}
	reply := make(chan batchResult, 1)
	if err := c.send(&batchCommand{calls: calls, reply: reply}); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	select {
	case res, ok := <-reply:
		if !ok {
			return nil, newError(KindInternalChannel, "reply channel closed", nil)
		}
		return res.outputs, res.err
	case <-ctx.Done():
		return nil, newError(KindRequestTimeout, "batch call timed out", ctx.Err())
	}
}

// Subscribe issues a subscribe method call and, once the server
// acknowledges it, returns a Subscription streaming server-push
// notifications (§4.4, §4.5).
func (c *Client) Subscribe(ctx context.Context, subscribeMethod string, params any) (*Subscription, error) {
	reply := make(chan subscribeResult, 1)
	if err := c.send(&subscribeCommand{method: subscribeMethod, params: params, reply: reply}); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	select {
	case res, ok := <-reply:
		if !ok {
			return nil, newError(KindInternalChannel, "reply channel closed", nil)
		}
		if res.err != nil {
			return nil, res.err
		}
		return newSubscription(res.id, res.ch), nil
	case <-ctx.Done():
		return nil, newError(KindRequestTimeout, "subscribe timed out", ctx.Err())
	}
}

// Unsubscribe issues an unsubscribe method call for subscriptionID,
// carried as the method's single positional parameter (§4.3).
func (c *Client) Unsubscribe(ctx context.Context, unsubscribeMethod string, subscriptionID Id) (bool, error) {
	reply := make(chan unsubscribeResult, 1)
	if err := c.send(&unsubscribeCommand{method: unsubscribeMethod, subID: subscriptionID, reply: reply}); err != nil {
		return false, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	select {
	case res, ok := <-reply:
		if !ok {
			return false, newError(KindInternalChannel, "reply channel closed", nil)
		}
		return res.ok, res.err
	case <-ctx.Done():
		return false, newError(KindRequestTimeout, "unsubscribe timed out", ctx.Err())
	}
}

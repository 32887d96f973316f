package jsonrpc2ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpcmux/jsonrpc2ws/testutil"
)

func dialTest(t *testing.T, srv *testutil.Server, opts ...Option) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_Call_RoundTrip(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)

	go func() {
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, srv.Next())
		srv.Send(`{"jsonrpc":"2.0","id":1,"result":"pong"}`)
	}()

	out, err := c.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	require.True(t, out.IsSuccess())
	var result string
	require.NoError(t, out.Unmarshal(&result))
	assert.Equal(t, "pong", result)
}

func TestClient_Call_ExplicitEmptyParams(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)

	go func() {
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"list","params":[]}`, srv.Next())
		srv.Send(`{"jsonrpc":"2.0","id":1,"result":[]}`)
	}()

	out, err := c.Call(context.Background(), "list", []any{})
	require.NoError(t, err)
	assert.True(t, out.IsSuccess())
}

func TestClient_Call_RPCError(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)

	go func() {
		srv.Next()
		srv.Send(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
	}()

	out, err := c.Call(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.False(t, out.IsSuccess())
	assert.Equal(t, -32601, out.Err.Code)
}

func TestClient_BatchCall_MinIDCorrelation(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)

	go func() {
		srv.Next()
		// Server replies in reverse order; the batch still correlates via
		// the minimum id, not positional order.
		srv.Send(`[
			{"jsonrpc":"2.0","id":2,"result":"b"},
			{"jsonrpc":"2.0","id":1,"result":"a"}
		]`)
	}()

	outs, err := c.BatchCall(context.Background(), []MethodCall{
		{Method: "a"},
		{Method: "b"},
	})
	require.NoError(t, err)
	require.Len(t, outs, 2)
}

func TestClient_Call_TimeoutDoesNotCancelInFlight(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, "slow", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestTimeout)

	req := srv.Next()
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"slow"}`, req)

	// The late reply must not panic even though the caller already timed
	// out and stopped waiting; the reply channel is buffered size 1.
	srv.Send(`{"jsonrpc":"2.0","id":1,"result":"too-late"}`)
	time.Sleep(50 * time.Millisecond)
}

func TestClient_Subscribe_ReceivesNotifications(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)

	go func() {
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"sub_subscribe","params":["logs"]}`, srv.Next())
		srv.Send(`{"jsonrpc":"2.0","id":1,"result":"0xff"}`)
	}()

	sub, err := c.Subscribe(context.Background(), "sub_subscribe", []any{"logs"})
	require.NoError(t, err)
	assert.Equal(t, "0xff", sub.ID().String())

	srv.Send(`{"jsonrpc":"2.0","method":"sub_subscription","params":{"subscription":"0xff","result":"first"}}`)
	n := <-sub.Notifications()
	var payload string
	require.NoError(t, json.Unmarshal(n.Result, &payload))
	assert.Equal(t, "first", payload)
	assert.Equal(t, "0xff", n.Subscription.String())

	go func() {
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"method":"sub_unsubscribe","params":["0xff"]}`, srv.Next())
		srv.Send(`{"jsonrpc":"2.0","id":2,"result":true}`)
	}()

	ok, err := c.Unsubscribe(context.Background(), "sub_unsubscribe", sub.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	_, open := <-sub.Notifications()
	assert.False(t, open)
}

func TestClient_Subscribe_BackpressureDropsSubscription(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv, MaxCapacityPerSubscription(1))

	go func() {
		srv.Next()
		srv.Send(`{"jsonrpc":"2.0","id":1,"result":"0xaa"}`)
	}()

	sub, err := c.Subscribe(context.Background(), "sub_subscribe", nil)
	require.NoError(t, err)

	// Flood more notifications than the per-subscription capacity without
	// ever reading from sub.Notifications(); the connection task must drop
	// the subscription rather than block.
	for i := 0; i < 5; i++ {
		srv.Send(`{"jsonrpc":"2.0","method":"sub_subscription","params":{"subscription":"0xaa","result":"x"}}`)
	}

	// The first notification fills the size-1 buffer; the second overflow
	// causes the connection task to drop the subscription and close the
	// channel, so draining it yields exactly one value then a closed read.
	<-sub.Notifications()
	require.Eventually(t, func() bool {
		_, open := <-sub.Notifications()
		return !open
	}, time.Second, 10*time.Millisecond)
}

// TestClient_PeerClose_DrainsOutstandingCalls exercises S6 from §8: the
// server closes the connection while calls are outstanding. Both in-flight
// calls must resolve with InternalChannel, and a subsequent call on any
// clone must also fail promptly rather than hang (Testable Property 7,
// "engine termination is total").
func TestClient_PeerClose_DrainsOutstandingCalls(t *testing.T) {
	srv := testutil.NewServer()
	c := dialTest(t, srv)
	clone := c.Clone()
	t.Cleanup(clone.Close)

	type outcome struct {
		err error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Call(context.Background(), "never_replies", nil)
			results <- outcome{err: err}
		}()
	}

	// Wait until both requests actually reached the server before closing
	// the connection out from under them.
	srv.Next()
	srv.Next()
	srv.Close()

	for i := 0; i < 2; i++ {
		res := <-results
		require.Error(t, res.err)
		assert.ErrorIs(t, res.err, ErrInternalChannel)
	}

	afterClose := make(chan error, 1)
	go func() {
		_, err := clone.Call(context.Background(), "after_close", nil)
		afterClose <- err
	}()
	select {
	case err := <-afterClose:
		assert.ErrorIs(t, err, ErrInternalChannel)
	case <-time.After(time.Second):
		t.Fatal("call on clone did not complete promptly after engine termination")
	}
}

func TestClient_Clone_CloseTerminatesOnlyAfterLastClone(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	c := dialTest(t, srv)
	clone := c.Clone()

	clone.Close()
	select {
	case <-c.Done():
		t.Fatal("engine terminated after closing only one of two clones")
	case <-time.After(50 * time.Millisecond):
	}
}

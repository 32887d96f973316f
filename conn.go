package jsonrpc2ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// command is a frontend -> connection-task message describing one
// caller-initiated operation (§2, "command message").
type command interface {
	isCommand()
}

type reqCommand struct {
	call  MethodCall
	reply chan callResult
}

type callResult struct {
	output Output
	err    error
}

type batchCommand struct {
	calls []MethodCall
	reply chan batchResult
}

type batchResult struct {
	outputs []Output
	err     error
}

type subscribeCommand struct {
	method string
	params any
	reply  chan subscribeResult
}

type subscribeResult struct {
	id  Id
	ch  chan SubscriptionNotification
	err error
}

type unsubscribeCommand struct {
	method string
	subID  Id
	reply  chan unsubscribeResult
}

type unsubscribeResult struct {
	ok  bool
	err error
}

func (*reqCommand) isCommand()         {}
func (*batchCommand) isCommand()       {}
func (*subscribeCommand) isCommand()   {}
func (*unsubscribeCommand) isCommand() {}

// conn is the connection task: the single owner of the socket and the task
// manager (§4.3). It runs one event loop per connection, selecting between
// the next frontend command and the next inbound frame.
type conn struct {
	ws      *websocket.Conn
	cmdCh   chan command
	done    chan struct{}
	frameCh chan []byte
	readErr chan error

	nextID uint64
	mgr    *taskManager
	log    *zap.Logger
}

func newConn(ws *websocket.Conn, cmdCh chan command, subCapacity int, log *zap.Logger) *conn {
	return &conn{
		ws:      ws,
		cmdCh:   cmdCh,
		done:    make(chan struct{}),
		frameCh: make(chan []byte),
		readErr: make(chan error, 1),
		mgr:     newTaskManager(subCapacity),
		log:     log,
	}
}

// run is the connection task's main loop. It returns once the engine has
// terminated (§4.3 Termination) and the frontend channel has been closed.
func (c *conn) run() {
	ctx := context.Background()
	go c.readLoop(ctx)

	var cause error
	for cause == nil {
		select {
		case cmd, ok := <-c.cmdCh:
			if !ok {
				cause = newError(KindInternalChannel, "frontend closed", nil)
				continue
			}
			c.handleCommand(ctx, cmd)
		case data, ok := <-c.frameCh:
			if !ok {
				continue
			}
			c.handleFrame(data)
		case err := <-c.readErr:
			cause = err
		}
	}

	c.log.Info("terminating connection", zap.String("event", "connection_terminated"), zap.Error(cause))
	c.mgr.drainAll(newError(KindInternalChannel, "engine terminated", cause))
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
	close(c.done)

	// Fail commands that still arrive until the last Client handle closes the channel.
	termErr := newError(KindInternalChannel, "engine terminated", cause)
	for cmd := range c.cmdCh {
		switch cmd := cmd.(type) {
		case *reqCommand:
			cmd.reply <- callResult{err: termErr}
		case *batchCommand:
			cmd.reply <- batchResult{err: termErr}
		case *subscribeCommand:
			cmd.reply <- subscribeResult{err: termErr}
		case *unsubscribeCommand:
			cmd.reply <- unsubscribeResult{err: termErr}
		}
	}
}

// readLoop reads frames off the socket on a dedicated goroutine, since
// websocket.Conn.Read blocks; it is the only goroutine that ever calls
// Read, keeping the socket single-reader. The background context is used
// deliberately here -- canceling it would make nhooyr's websocket package
// close the connection with a policy-violation status, which is not the
// close behavior this engine wants.
func (c *conn) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) {
				c.readErr <- newError(KindWebSocket, "connection closed by peer", err)
			} else {
				c.readErr <- newError(KindWebSocket, "read failed", err)
			}
			return
		}
		if typ == websocket.MessageBinary {
			c.log.Debug("discarding binary frame", zap.String("event", "frame_discarded"))
			continue
		}
		c.frameCh <- data
	}
}

func (c *conn) assignID() uint64 {
	c.nextID++
	return c.nextID
}

func (c *conn) writeFrame(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *conn) handleCommand(ctx context.Context, cmd command) {
	switch cmd := cmd.(type) {
	case *reqCommand:
		c.handleRequestCommand(ctx, cmd)
	case *batchCommand:
		c.handleBatchCommand(ctx, cmd)
	case *subscribeCommand:
		c.handleSubscribeCommand(ctx, cmd)
	case *unsubscribeCommand:
		c.handleUnsubscribeCommand(ctx, cmd)
	}
}

func (c *conn) handleRequestCommand(ctx context.Context, cmd *reqCommand) {
	id := c.assignID()
	cmd.call.id = id
	data, err := encodeRequest(cmd.call)
	if err != nil {
		cmd.reply <- callResult{err: newError(KindJSON, "failed to encode request", err)}
		return
	}
	if err := c.writeFrame(ctx, data); err != nil {
		cmd.reply <- callResult{err: newError(KindWebSocket, "failed to send request", err)}
		return
	}
	if !c.mgr.insertPendingCall(id, cmd.reply) {
		cmd.reply <- callResult{err: newError(KindDuplicateRequestId, fmt.Sprintf("request id %d already pending", id), nil)}
	}
}

func (c *conn) handleBatchCommand(ctx context.Context, cmd *batchCommand) {
	minID := uint64(0)
	for i := range cmd.calls {
		id := c.assignID()
		cmd.calls[i].id = id
		if i == 0 || id < minID {
			minID = id
		}
	}
	data, err := encodeBatch(cmd.calls)
	if err != nil {
		cmd.reply <- batchResult{err: newError(KindJSON, "failed to encode batch request", err)}
		return
	}
	if err := c.writeFrame(ctx, data); err != nil {
		cmd.reply <- batchResult{err: newError(KindWebSocket, "failed to send batch request", err)}
		return
	}
	if !c.mgr.insertPendingBatch(minID, cmd.reply) {
		cmd.reply <- batchResult{err: newError(KindDuplicateRequestId, fmt.Sprintf("batch id %d already pending", minID), nil)}
	}
}

func (c *conn) handleSubscribeCommand(ctx context.Context, cmd *subscribeCommand) {
	id := c.assignID()
	call := MethodCall{Method: cmd.method, Params: cmd.params, id: id}
	data, err := encodeRequest(call)
	if err != nil {
		cmd.reply <- subscribeResult{err: newError(KindJSON, "failed to encode subscribe request", err)}
		return
	}
	if err := c.writeFrame(ctx, data); err != nil {
		cmd.reply <- subscribeResult{err: newError(KindWebSocket, "failed to send subscribe request", err)}
		return
	}
	if !c.mgr.insertPendingSubscribe(id, cmd.reply) {
		cmd.reply <- subscribeResult{err: newError(KindDuplicateRequestId, fmt.Sprintf("request id %d already pending", id), nil)}
	}
}

func (c *conn) handleUnsubscribeCommand(ctx context.Context, cmd *unsubscribeCommand) {
	id := c.assignID()
	call := MethodCall{Method: cmd.method, Params: []any{cmd.subID}, id: id}
	data, err := encodeRequest(call)
	if err != nil {
		cmd.reply <- unsubscribeResult{err: newError(KindJSON, "failed to encode unsubscribe request", err)}
		return
	}
	if err := c.writeFrame(ctx, data); err != nil {
		cmd.reply <- unsubscribeResult{err: newError(KindWebSocket, "failed to send unsubscribe request", err)}
		return
	}
	if !c.mgr.insertPendingUnsubscribe(id, cmd.subID, cmd.reply) {
		cmd.reply <- unsubscribeResult{err: newError(KindDuplicateRequestId, fmt.Sprintf("request id %d already pending", id), nil)}
	}
}

func (c *conn) handleFrame(data []byte) {
	df, err := decodeFrame(data)
	if err != nil {
		c.log.Warn("discarding unrecognized frame", zap.String("event", "frame_discarded"), zap.Error(err))
		return
	}
	switch {
	case df.output != nil:
		c.handleOutput(*df.output)
	case df.batch != nil:
		c.handleBatch(df.batch)
	case df.notification != nil:
		c.handleNotification(*df.notification)
	}
}

func (c *conn) handleOutput(out Output) {
	if out.ID == nil {
		c.log.Warn("discarding unroutable failure response (null id)", zap.String("event", "frame_discarded"))
		return
	}
	id, isInt := out.ID.Int()
	if !isInt {
		c.log.Warn("discarding response with non-numeric id", zap.String("event", "invalid_request_id"), zap.String("id", out.ID.String()))
		return
	}
	switch c.mgr.requestStatus(id) {
	case statusPendingCall:
		reply, _ := c.mgr.completePendingCall(id)
		reply <- callResult{output: out}
	case statusPendingSubscribe:
		c.completeSubscribe(id, out)
	case statusPendingUnsubscribe:
		c.completeUnsubscribe(id, out)
	default:
		c.log.Warn("discarding response with unexpected id", zap.String("event", "invalid_request_id"), zap.Uint64("request_id", id))
	}
}

func (c *conn) completeSubscribe(id uint64, out Output) {
	reply, _ := c.mgr.completePendingSubscribe(id)
	if out.Err != nil {
		reply <- subscribeResult{err: newError(KindInvalidSubscriptionId, "subscribe request failed", out.Err)}
		return
	}
	var subID Id
	if err := json.Unmarshal(out.Result, &subID); err != nil {
		reply <- subscribeResult{err: newError(KindJSON, "malformed subscription id", err)}
		return
	}
	tx := make(chan SubscriptionNotification, c.mgr.subCapacity)
	if !c.mgr.insertActiveSubscription(id, subID, tx) {
		reply <- subscribeResult{err: newError(KindInvalidSubscriptionId, fmt.Sprintf("subscription id %q already active", subID.String()), nil)}
		return
	}
	reply <- subscribeResult{id: subID, ch: tx}
}

func (c *conn) completeUnsubscribe(id uint64, out Output) {
	subID, reply, _ := c.mgr.completePendingUnsubscribe(id)
	if out.Err != nil {
		reply <- unsubscribeResult{err: newError(KindInvalidUnsubscribeResult, "unsubscribe request failed", out.Err)}
		return
	}
	var ok bool
	if err := json.Unmarshal(out.Result, &ok); err != nil {
		reply <- unsubscribeResult{err: newError(KindJSON, "malformed unsubscribe result", err)}
		return
	}
	if ok {
		if reqID, found := c.mgr.requestIdBy(subID); found {
			if tx, ok := c.mgr.activeSinkMut(reqID); ok {
				c.mgr.removeActiveSubscription(reqID, subID)
				close(tx)
			}
		}
	}
	reply <- unsubscribeResult{ok: ok}
}

func (c *conn) handleBatch(outputs []Output) {
	if len(outputs) == 0 {
		c.log.Warn("discarding empty batch response", zap.String("event", "frame_discarded"))
		return
	}
	minID, ok := minOutputID(outputs)
	if !ok {
		c.log.Warn("discarding batch response with non-numeric or missing ids", zap.String("event", "invalid_request_id"))
		return
	}
	if c.mgr.requestStatus(minID) != statusPendingBatch {
		c.log.Warn("discarding batch response with unexpected id", zap.String("event", "invalid_request_id"), zap.Uint64("min_request_id", minID))
		return
	}
	reply, _ := c.mgr.completePendingBatch(minID)
	reply <- batchResult{outputs: outputs}
}

func (c *conn) handleNotification(n SubscriptionNotification) {
	reqID, ok := c.mgr.requestIdBy(n.Subscription)
	if !ok {
		c.log.Debug("dropping notification for unknown subscription", zap.String("event", "frame_discarded"), zap.String("subscription_id", n.Subscription.String()))
		return
	}
	tx, ok := c.mgr.activeSinkMut(reqID)
	if !ok {
		return
	}
	select {
	case tx <- n:
	default:
		c.log.Warn("subscriber too slow, dropping subscription", zap.String("event", "subscription_dropped"), zap.String("subscription_id", n.Subscription.String()))
		c.mgr.removeActiveSubscription(reqID, n.Subscription)
		close(tx)
	}
}

// minOutputID computes the minimum id across a batch response, per the
// min-id correlation rule (§4.3 "Batch id tracking rationale"). It fails
// if any output carries a missing or non-numeric id.
func minOutputID(outputs []Output) (uint64, bool) {
	var min uint64
	for i, out := range outputs {
		if out.ID == nil {
			return 0, false
		}
		id, isInt := out.ID.Int()
		if !isInt {
			return 0, false
		}
		if i == 0 || id < min {
			min = id
		}
	}
	return min, true
}

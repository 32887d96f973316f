package jsonrpc2ws

import (
	"errors"
	"fmt"
)

// Kind classifies the errors the engine can surface to a caller, per §7.
type Kind int

const (
	// KindJSON is a serialization/deserialization failure of a caller-visible
	// value, such as a subscription id or unsubscribe boolean failing to parse.
	KindJSON Kind = iota
	// KindWebSocket is an underlying transport/protocol error, including
	// ConnectionClosed caused by a server Close frame.
	KindWebSocket
	// KindRequestTimeout is the optional per-call deadline firing.
	KindRequestTimeout
	// KindDuplicateRequestId indicates an internally generated id collided
	// with an existing task-manager entry (engine bug, or id wraparound).
	KindDuplicateRequestId
	// KindInvalidRequestId is an inbound response whose id matches no pending
	// entry of the expected variant.
	KindInvalidRequestId
	// KindInvalidSubscriptionId is a failed subscribe acknowledgment, or a
	// returned subscription id that collided with an already-active one.
	KindInvalidSubscriptionId
	// KindInvalidUnsubscribeResult is a failed unsubscribe response.
	KindInvalidUnsubscribeResult
	// KindInternalChannel is the engine's receive end, or a caller's one-shot
	// reply end, being dropped -- usually because the engine terminated.
	KindInternalChannel
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindWebSocket:
		return "websocket"
	case KindRequestTimeout:
		return "request_timeout"
	case KindDuplicateRequestId:
		return "duplicate_request_id"
	case KindInvalidRequestId:
		return "invalid_request_id"
	case KindInvalidSubscriptionId:
		return "invalid_subscription_id"
	case KindInvalidUnsubscribeResult:
		return "invalid_unsubscribe_result"
	case KindInternalChannel:
		return "internal_channel"
	default:
		return "unknown"
	}
}

// Error is the error type surfaced to callers of Client.
// It classifies the failure via Kind and, where applicable, wraps the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jsonrpc2ws: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("jsonrpc2ws: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrConnectionClosed) and friends to match any
// *Error of the corresponding Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// NewError is the exported form of newError, for external collaborators
// such as the transport package's HTTP adapter that need to surface the
// same Kind-classified errors as the WebSocket engine.
func NewError(kind Kind, msg string, cause error) *Error {
	return newError(kind, msg, cause)
}

// Sentinel errors for errors.Is comparisons against a specific Kind,
// independent of message or wrapped cause.
var (
	ErrConnectionClosed         = &Error{Kind: KindWebSocket, Msg: "connection closed"}
	ErrRequestTimeout           = &Error{Kind: KindRequestTimeout, Msg: "request timed out"}
	ErrDuplicateRequestId       = &Error{Kind: KindDuplicateRequestId, Msg: "duplicate request id"}
	ErrInvalidRequestId         = &Error{Kind: KindInvalidRequestId, Msg: "invalid request id"}
	ErrInvalidSubscriptionId    = &Error{Kind: KindInvalidSubscriptionId, Msg: "invalid subscription id"}
	ErrInvalidUnsubscribeResult = &Error{Kind: KindInvalidUnsubscribeResult, Msg: "invalid unsubscribe result"}
	ErrInternalChannel          = &Error{Kind: KindInternalChannel, Msg: "internal channel closed"}
	ErrSubscriptionsUnsupported = errors.New("jsonrpc2ws: transport does not support subscriptions")
)

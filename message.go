package jsonrpc2ws

import (
	"encoding/json"
	"fmt"
)

// MethodCall is a single JSON-RPC 2.0 request envelope, either sent standalone
// or as one element of a BatchRequest.
type MethodCall struct {
	Method string
	Params any
	id     uint64
}

// wireRequest is the on-the-wire shape of a MethodCall. Params is carried
// as a pre-marshaled json.RawMessage, rather than relying on the encoding/
// json "omitempty" tag on an any field, because omitempty cannot
// distinguish "no params given" (field omitted) from "params explicitly
// set to an empty array" (field present as "params":[]) -- both would
// otherwise collapse to the same omitted field, which the wire format in
// §6 treats as two different requests.
type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// WithID returns a copy of c with its request id set to id. It exists so
// external collaborators (such as the transport package's HTTP adapter)
// that keep their own id counter can still produce a well-formed
// MethodCall, without exposing the id field itself.
func (c MethodCall) WithID(id uint64) MethodCall {
	c.id = id
	return c
}

func (c MethodCall) wire() (wireRequest, error) {
	w := wireRequest{JSONRPC: "2.0", ID: c.id, Method: c.Method}
	if c.Params != nil {
		b, err := json.Marshal(c.Params)
		if err != nil {
			return wireRequest{}, err
		}
		w.Params = b
	}
	return w, nil
}

// EncodeRequest is the exported form of encodeRequest, for external
// collaborators such as the transport package's HTTP adapter.
func EncodeRequest(c MethodCall) ([]byte, error) {
	return encodeRequest(c)
}

// EncodeBatch is the exported form of encodeBatch.
func EncodeBatch(calls []MethodCall) ([]byte, error) {
	return encodeBatch(calls)
}

// encodeRequest serializes a single MethodCall as a JSON-RPC 2.0 request
// object. The "params" field is omitted entirely when Params is nil.
func encodeRequest(c MethodCall) ([]byte, error) {
	w, err := c.wire()
	if err != nil {
		return nil, fmt.Errorf("jsonrpc2ws: failed to encode request params: %w", err)
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc2ws: failed to encode request: %w", err)
	}
	return b, nil
}

// encodeBatch serializes an ordered list of MethodCall as a JSON-RPC 2.0
// batch request array.
func encodeBatch(calls []MethodCall) ([]byte, error) {
	wire := make([]wireRequest, len(calls))
	for n, c := range calls {
		w, err := c.wire()
		if err != nil {
			return nil, fmt.Errorf("jsonrpc2ws: failed to encode request params: %w", err)
		}
		wire[n] = w
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc2ws: failed to encode batch request: %w", err)
	}
	return b, nil
}

// RPCError is a JSON-RPC 2.0 error object, as carried by a Failure Output.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc2ws: rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes (§6).
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Output is a JSON-RPC 2.0 response object: either a Success carrying a
// result, or a Failure carrying an RPCError. ID is nil only for an
// unroutable Failure (a server response whose "id" field was null).
type Output struct {
	ID     *Id
	Result json.RawMessage
	Err    *RPCError
}

// IsSuccess reports whether the output is a Success response.
func (o Output) IsSuccess() bool {
	return o.Err == nil
}

// Unmarshal decodes the Success result into v. It returns the carried
// RPCError if the output is a Failure.
func (o Output) Unmarshal(v any) error {
	if o.Err != nil {
		return o.Err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(o.Result, v); err != nil {
		return fmt.Errorf("jsonrpc2ws: failed to unmarshal result: %w", err)
	}
	return nil
}

// SubscriptionNotification is a server-push notification carrying the
// subscription id it belongs to and the raw notification payload.
type SubscriptionNotification struct {
	Method       string
	Subscription Id
	Result       json.RawMessage
}

// wireEnvelope is the superset shape used to sniff an inbound text frame.
// A single frame populates a subset of these fields depending on whether it
// is a response or a notification; see decodeFrame.
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func (w wireEnvelope) isResponse() bool {
	return w.Result != nil || w.Error != nil
}

func (w wireEnvelope) isNotification() bool {
	return !w.isResponse() && w.Method != ""
}

// decodedFrame is the result of sniffing one inbound text frame.
type decodedFrame struct {
	output       *Output
	batch        []Output
	notification *SubscriptionNotification
}

// DecodeFrame is the exported form of decodeFrame, for external
// collaborators such as the transport package's HTTP adapter, which needs
// to decode a plain HTTP response body the same way the engine decodes an
// inbound WebSocket text frame.
func DecodeFrame(data []byte) (output *Output, batch []Output, notification *SubscriptionNotification, err error) {
	df, err := decodeFrame(data)
	if err != nil {
		return nil, nil, nil, err
	}
	return df.output, df.batch, df.notification, nil
}

// decodeFrame decodes an inbound text frame per the codec contract in §4.1:
// try a response object (single Output or BatchResponse) first, then a
// subscription notification. A frame matching neither shape returns a
// non-nil error; the caller logs and discards rather than treating it as
// fatal.
func decodeFrame(data []byte) (decodedFrame, error) {
	trimmed := skipWhitespace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var envs []wireEnvelope
		if err := json.Unmarshal(data, &envs); err != nil {
			return decodedFrame{}, fmt.Errorf("jsonrpc2ws: malformed batch response: %w", err)
		}
		outputs := make([]Output, len(envs))
		for n, env := range envs {
			out, err := envelopeToOutput(env)
			if err != nil {
				return decodedFrame{}, err
			}
			outputs[n] = out
		}
		return decodedFrame{batch: outputs}, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return decodedFrame{}, fmt.Errorf("jsonrpc2ws: frame matches neither a response nor a notification: %w", err)
	}
	switch {
	case env.isResponse():
		out, err := envelopeToOutput(env)
		if err != nil {
			return decodedFrame{}, err
		}
		return decodedFrame{output: &out}, nil
	case env.isNotification():
		var params struct {
			Subscription Id              `json:"subscription"`
			Result       json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return decodedFrame{}, fmt.Errorf("jsonrpc2ws: malformed subscription notification: %w", err)
		}
		return decodedFrame{notification: &SubscriptionNotification{
			Method:       env.Method,
			Subscription: params.Subscription,
			Result:       params.Result,
		}}, nil
	default:
		return decodedFrame{}, fmt.Errorf("jsonrpc2ws: frame matches neither a response nor a notification")
	}
}

func envelopeToOutput(env wireEnvelope) (Output, error) {
	if env.Error != nil {
		var id *Id
		if len(env.ID) > 0 && string(env.ID) != "null" {
			var parsed Id
			if err := json.Unmarshal(env.ID, &parsed); err != nil {
				return Output{}, fmt.Errorf("jsonrpc2ws: failure response has malformed id: %w", err)
			}
			id = &parsed
		}
		return Output{ID: id, Err: env.Error}, nil
	}
	if len(env.ID) == 0 || string(env.ID) == "null" {
		return Output{}, fmt.Errorf("jsonrpc2ws: success response missing id")
	}
	var parsed Id
	if err := json.Unmarshal(env.ID, &parsed); err != nil {
		return Output{}, fmt.Errorf("jsonrpc2ws: success response has malformed id: %w", err)
	}
	return Output{ID: &parsed, Result: env.Result}, nil
}

func skipWhitespace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}

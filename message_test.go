package jsonrpc2ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_OmitsAbsentParams(t *testing.T) {
	call := MethodCall{Method: "ping"}.WithID(1)
	data, err := encodeRequest(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(data))
}

func TestEncodeRequest_KeepsExplicitEmptyArray(t *testing.T) {
	call := MethodCall{Method: "ping", Params: []any{}}.WithID(1)
	data, err := encodeRequest(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping","params":[]}`, string(data))
}

func TestEncodeRequest_WithParams(t *testing.T) {
	call := MethodCall{Method: "add", Params: []any{1, 2}}.WithID(5)
	data, err := encodeRequest(call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":5,"method":"add","params":[1,2]}`, string(data))
}

func TestEncodeBatch(t *testing.T) {
	calls := []MethodCall{
		MethodCall{Method: "a"}.WithID(1),
		MethodCall{Method: "b", Params: []any{"x"}}.WithID(2),
	}
	data, err := encodeBatch(calls)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"jsonrpc":"2.0","id":1,"method":"a"},
		{"jsonrpc":"2.0","id":2,"method":"b","params":["x"]}
	]`, string(data))
}

func TestDecodeFrame_Success(t *testing.T) {
	df, err := decodeFrame([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	require.NoError(t, err)
	require.NotNil(t, df.output)
	assert.True(t, df.output.IsSuccess())
	n, ok := df.output.ID.Int()
	require.True(t, ok)
	assert.Equal(t, uint64(1), n)
}

func TestDecodeFrame_Failure(t *testing.T) {
	df, err := decodeFrame([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`))
	require.NoError(t, err)
	require.NotNil(t, df.output)
	assert.False(t, df.output.IsSuccess())
	assert.Equal(t, -32601, df.output.Err.Code)
}

func TestDecodeFrame_Batch(t *testing.T) {
	df, err := decodeFrame([]byte(`[
		{"jsonrpc":"2.0","id":2,"result":"b"},
		{"jsonrpc":"2.0","id":1,"result":"a"}
	]`))
	require.NoError(t, err)
	require.Len(t, df.batch, 2)
	min, ok := minOutputID(df.batch)
	require.True(t, ok)
	assert.Equal(t, uint64(1), min)
}

func TestDecodeFrame_Notification(t *testing.T) {
	df, err := decodeFrame([]byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xff","result":"payload"}}`))
	require.NoError(t, err)
	require.NotNil(t, df.notification)
	assert.Equal(t, "eth_subscription", df.notification.Method)
	assert.Equal(t, "0xff", df.notification.Subscription.String())
}

func TestDecodeFrame_Unrecognized(t *testing.T) {
	_, err := decodeFrame([]byte(`{"foo":"bar"}`))
	assert.Error(t, err)
}

func TestOutput_Unmarshal(t *testing.T) {
	df, err := decodeFrame([]byte(`{"jsonrpc":"2.0","id":1,"result":42}`))
	require.NoError(t, err)
	var n int
	require.NoError(t, df.output.Unmarshal(&n))
	assert.Equal(t, 42, n)
}

func TestOutput_UnmarshalFailure(t *testing.T) {
	df, err := decodeFrame([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad params"}}`))
	require.NoError(t, err)
	var n int
	err = df.output.Unmarshal(&n)
	assert.Error(t, err)
	assert.Equal(t, df.output.Err, err)
}

package jsonrpc2ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestId_IntRoundTrip(t *testing.T) {
	id := IntId(42)
	assert.True(t, id.IsInt())
	assert.False(t, id.IsStr())
	n, ok := id.Int()
	require.True(t, ok)
	assert.Equal(t, uint64(42), n)
	assert.Equal(t, "42", id.String())

	b, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(b))
}

func TestId_StrRoundTrip(t *testing.T) {
	id := StrId("0xff")
	assert.True(t, id.IsStr())
	assert.False(t, id.IsInt())
	assert.Equal(t, "0xff", id.String())

	b, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"0xff"`, string(b))
}

func TestId_UnmarshalNumber(t *testing.T) {
	var id Id
	require.NoError(t, json.Unmarshal([]byte(`7`), &id))
	n, ok := id.Int()
	require.True(t, ok)
	assert.Equal(t, uint64(7), n)
}

func TestId_UnmarshalString(t *testing.T) {
	var id Id
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &id))
	assert.True(t, id.IsStr())
	assert.Equal(t, "abc", id.String())
}

func TestId_UnmarshalInvalid(t *testing.T) {
	var id Id
	assert.Error(t, json.Unmarshal([]byte(`true`), &id))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
	assert.Error(t, json.Unmarshal([]byte(`[]`), &id))
}

func TestId_UnmarshalNull(t *testing.T) {
	var id Id
	require.NoError(t, json.Unmarshal([]byte(`null`), &id))
	assert.False(t, id.IsInt())
	assert.False(t, id.IsStr())
}

func TestId_AsMapKey(t *testing.T) {
	m := map[Id]string{
		IntId(1):      "one",
		StrId("1"):    "one-string",
		StrId("0xff"): "sub",
	}
	assert.Equal(t, "one", m[IntId(1)])
	assert.Equal(t, "one-string", m[StrId("1")])
	assert.Equal(t, "sub", m[StrId("0xff")])
}

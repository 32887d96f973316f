package jsonrpc2ws

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Id is a JSON-RPC 2.0 request or subscription identifier. Per the spec, an
// id is either a non-negative integer or a string. The engine only ever
// generates integer ids for outbound requests, but it must accept either
// form on inbound payloads (subscription ids in particular are free-form
// strings on most servers).
type Id struct {
	str    string
	num    uint64
	isStr  bool
	numSet bool
}

// IntId creates an integer Id.
func IntId(n uint64) Id {
	return Id{num: n, numSet: true}
}

// StrId creates a string Id.
func StrId(s string) Id {
	return Id{str: s, isStr: true}
}

// IsInt reports whether the id is the integer variant.
func (i Id) IsInt() bool {
	return i.numSet
}

// IsStr reports whether the id is the string variant.
func (i Id) IsStr() bool {
	return i.isStr
}

// Int returns the integer value of the id. The second return value is false
// if the id is not the integer variant.
func (i Id) Int() (uint64, bool) {
	return i.num, i.numSet
}

// String returns a human-readable representation of the id, regardless of
// variant. IntId(1) and StrId("1") both render as "1", so the subscription
// index keys on the Id value itself rather than on this string.
func (i Id) String() string {
	if i.isStr {
		return i.str
	}
	if i.numSet {
		return strconv.FormatUint(i.num, 10)
	}
	return ""
}

// MarshalJSON implements json.Marshaler.
func (i Id) MarshalJSON() ([]byte, error) {
	if i.isStr {
		return json.Marshal(i.str)
	}
	if i.numSet {
		return json.Marshal(i.num)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts a JSON number or a
// JSON string; JSON null yields the zero Id (neither variant); any other
// token is a protocol violation.
func (i *Id) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*i = Id{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("jsonrpc2ws: invalid string id: %w", err)
		}
		*i = StrId(s)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("jsonrpc2ws: id is neither a number nor a string: %w", err)
	}
	*i = IntId(n)
	return nil
}

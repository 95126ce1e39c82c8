package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordPreservesKeyOrder(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"zeta": 1, "alpha": "x", "Mid Key": null}`), &r)
	require.NoError(t, err)

	require.Equal(t, []string{"zeta", "alpha", "Mid Key"}, r.Keys())
	require.Equal(t, 3, r.Len())
}

func TestRecordNull(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`null`), &r))
	require.Equal(t, 0, r.Len())
	require.Empty(t, r.Keys())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"null", `null`, ""},
		{"empty", ``, ""},
		{"string", `"hello"`, "hello"},
		{"escaped string", `"a \"b\"\n"`, "a \"b\"\n"},
		{"integer kept verbatim", `12345678901234567890`, "12345678901234567890"},
		{"float kept verbatim", `1.50`, "1.50"},
		{"bool", `true`, "true"},
		{"object compacted", `{ "a" : [1, 2] }`, `{"a":[1,2]}`},
		{"array compacted", `[ 1 , "x" ]`, `[1,"x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatValue(json.RawMessage(tt.raw)))
		})
	}
}

func TestRecordOfAndValue(t *testing.T) {
	r := RecordOf("id", 7, "name", "Data Analyst", "active", true)

	v, ok := r.Value("id")
	require.True(t, ok)
	require.Equal(t, "7", v)

	v, ok = r.Value("name")
	require.True(t, ok)
	require.Equal(t, "Data Analyst", v)

	_, ok = r.Value("missing")
	require.False(t, ok)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":7,"name":"Data Analyst","active":true}`, string(out))
}

func TestPageNext(t *testing.T) {
	var p Page
	require.NoError(t, json.Unmarshal([]byte(`{"data":[],"pagination":{"next_token":null}}`), &p))
	require.Equal(t, "", p.Next())

	require.NoError(t, json.Unmarshal([]byte(`{"data":[{"a":1}],"pagination":{"next_token":"abc"}}`), &p))
	require.Equal(t, "abc", p.Next())
	require.Len(t, p.Data, 1)
}

func TestTokenStringMasks(t *testing.T) {
	require.Equal(t, "****", Token("secret").String())
	require.Equal(t, "", Token("").String())
}

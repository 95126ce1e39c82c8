package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one item of a collection. Field order is kept as received so
// tables built from records get a stable, first-seen column order. Values
// are kept as raw JSON; numbers are never round-tripped through float64.
type Record struct {
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{fields: orderedmap.New[string, json.RawMessage]()}
}

// RecordOf builds a record from alternating key/value pairs. Values are
// JSON-encoded. It panics on an odd number of arguments or a non-string key,
// so it is meant for fixtures and tests.
func RecordOf(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("types: RecordOf needs key/value pairs")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("types: RecordOf key %v is not a string", kv[i]))
		}
		if err := r.Set(key, kv[i+1]); err != nil {
			panic(err)
		}
	}
	return r
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	r.fields = orderedmap.New[string, json.RawMessage]()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := r.fields.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

// Len returns the number of fields.
func (r Record) Len() int {
	if r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns the field names in insertion order.
func (r Record) Keys() []string {
	if r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Raw returns the undecoded JSON value of a field.
func (r Record) Raw(key string) (json.RawMessage, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Value returns the field rendered as flat text, see FormatValue.
func (r Record) Value(key string) (string, bool) {
	raw, ok := r.Raw(key)
	if !ok {
		return "", false
	}
	return FormatValue(raw), true
}

// Set JSON-encodes value and stores it under key. Existing keys keep their
// position.
func (r *Record) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %q: %w", key, err)
	}
	if r.fields == nil {
		r.fields = orderedmap.New[string, json.RawMessage]()
	}
	r.fields.Set(key, raw)
	return nil
}

// FormatValue renders a raw JSON value as a flat text cell: null becomes the
// empty string, strings are unquoted, numbers and booleans are kept as
// written, and objects or arrays are compacted JSON.
func FormatValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return string(raw)
		}
		return buf.String()
	default:
		return string(raw)
	}
}

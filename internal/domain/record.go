package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is a single flattened dataset row: field name → value.
// It preserves field insertion order, so column discovery order in the
// summary matches the order fields appeared in the source payload.
// Values are the JSON scalar types (string, float64, bool, nil) plus
// nested []any and *Record.
type Record struct {
	keys []string
	vals map[string]any
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]any)}
}

// Set stores val under key, appending key to the field order if new.
func (r *Record) Set(key string, val any) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = val
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns the field names in insertion order.
// The returned slice is shared — callers must not modify it.
func (r *Record) Keys() []string {
	return r.keys
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// MarshalJSON writes the record as a JSON object in field insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(r.vals[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object into the record, preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	rec, ok := v.(*Record)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*r = *rec
	return nil
}

// DecodeJSON parses data into order-preserving Go values: JSON objects
// become *Record, arrays []any, and scalars string/float64/bool/nil.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Reject payloads with trailing garbage after the first value.
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		// string, float64, bool, or nil
		return tok, nil
	}

	switch delim {
	case '{':
		rec := NewRecord()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			rec.Set(key, val)
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return nil, err
		}
		return rec, nil

	case '[':
		arr := make([]any, 0)
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil { // consume ']'
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// IsScalar reports whether v is a JSON scalar (string, number, bool, null).
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool, json.Number:
		return true
	default:
		return false
	}
}

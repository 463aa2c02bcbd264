package rag

// meta.go defines the chunk metadata container.
//
// Chunk metadata arrives from the vector store as loosely typed JSON. Rather
// than passing map[string]any through the whole pipeline, metadata is modeled
// as a mapping to a small closed set of value kinds (string, integer, float,
// null) with explicit accessors for the two keys the core depends on: the
// file identifier and the chunk position.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Metadata keys the retrieval pipeline understands.
const (
	// MetaFileName identifies the source file a chunk was cut from.
	MetaFileName = "file_name"

	// MetaChunkPart is the 0-based position of a chunk within its file.
	MetaChunkPart = "chunk_part"
)

// Kind enumerates the value kinds a metadata entry may hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
)

// Value is a single metadata value. The zero value is the null value.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
}

// String returns a string-kind Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer-kind Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float-kind Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Null returns the null Value.
func Null() Value { return Value{} }

// Kind reports the kind of v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string form of v and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Int64 returns the integer form of v and whether v is an integer.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float64 returns the numeric form of v and whether v is numeric
// (integer or float).
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Any returns v as the plain Go value encoding/json would produce for it.
// Used when a value leaves the typed container, e.g. into a JSONB filter.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	default:
		return nil
	}
}

// MarshalJSON encodes v as the underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a scalar into v. Non-scalar JSON (objects, arrays,
// booleans) is coerced to its string rendering so malformed upstream
// metadata degrades instead of failing the whole result.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding metadata value: %w", err)
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a decoded JSON value into a Value, coercing unsupported
// shapes to strings.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i)
		}
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Float(f)
	case float64:
		// Round-trip through encoding/json without UseNumber lands here.
		if x == float64(int64(x)) {
			return Int(int64(x))
		}
		return Float(x)
	case int:
		return Int(int64(x))
	case int64:
		return Int(x)
	default:
		return String(fmt.Sprint(x))
	}
}

// Meta is the metadata mapping attached to one retrieved chunk.
// A nil Meta behaves as an empty mapping for all accessors.
type Meta map[string]Value

// Get returns the value at key and whether the key is present with a
// non-null value.
func (m Meta) Get(key string) (Value, bool) {
	v, ok := m[key]
	if !ok || v.IsNull() {
		return Value{}, false
	}
	return v, true
}

// FileName returns the chunk's source file identifier, if present and
// non-empty.
func (m Meta) FileName() (string, bool) {
	v, ok := m.Get(MetaFileName)
	if !ok {
		return "", false
	}
	s, ok := v.Str()
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ChunkPart returns the chunk's position within its file, if present.
// Float-kind values are accepted and truncated: some indexers write
// positions as JSON numbers with a fractional zero.
func (m Meta) ChunkPart() (int, bool) {
	v, ok := m.Get(MetaChunkPart)
	if !ok {
		return 0, false
	}
	f, ok := v.Float64()
	if !ok {
		return 0, false
	}
	return int(f), true
}

// MetaFromJSON decodes a JSON object into a Meta. Returns an empty Meta for
// empty input. Scalar coercion follows FromAny.
func MetaFromJSON(data []byte) (Meta, error) {
	if len(data) == 0 {
		return Meta{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding metadata object: %w", err)
	}
	m := make(Meta, len(raw))
	for k, rv := range raw {
		var v Value
		if err := v.UnmarshalJSON(rv); err != nil {
			return nil, fmt.Errorf("decoding metadata key %q: %w", k, err)
		}
		m[k] = v
	}
	return m, nil
}

// Clone returns an independent copy of m. Hits are immutable once built;
// Clone lets projections (Source) carry metadata without aliasing.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

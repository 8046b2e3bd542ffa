package codec

import (
	"encoding/json"
	"fmt"
)

// EnumTable maps the values of a generated enum type to their wire strings and
// back. Tables are built once at package init from the schema and never change,
// so lookups need no locking.
type EnumTable[T comparable] struct {
	name     string
	toWire   map[T]string
	fromWire map[string]T
}

// NewEnumTable builds a table from value → wire string pairs.
// It panics on duplicate wire strings: the schema is broken, not the input.
func NewEnumTable[T comparable](name string, pairs map[T]string) *EnumTable[T] {
	t := &EnumTable[T]{
		name:     name,
		toWire:   make(map[T]string, len(pairs)),
		fromWire: make(map[string]T, len(pairs)),
	}
	for v, s := range pairs {
		if _, dup := t.fromWire[s]; dup {
			panic(fmt.Sprintf("codec: enum %s maps %q twice", name, s))
		}
		t.toWire[v] = s
		t.fromWire[s] = v
	}
	return t
}

// String returns the wire string of v, or "" when v is not in the table.
func (t *EnumTable[T]) String(v T) string {
	return t.toWire[v]
}

// Parse resolves a wire string. The empty string parses to the zero value.
func (t *EnumTable[T]) Parse(s string) (T, error) {
	var zero T
	if s == "" {
		return zero, nil
	}
	v, ok := t.fromWire[s]
	if !ok {
		return zero, fmt.Errorf("codec: unknown %s value %q", t.name, s)
	}
	return v, nil
}

// Marshal encodes v as a JSON string. Generated types call it from MarshalJSON.
func (t *EnumTable[T]) Marshal(v T) ([]byte, error) {
	s, ok := t.toWire[v]
	if !ok {
		return nil, fmt.Errorf("codec: %s has no wire value for %v", t.name, v)
	}
	return json.Marshal(s)
}

// Unmarshal decodes a JSON string (or null) into a value. Generated types call
// it from UnmarshalJSON.
func (t *EnumTable[T]) Unmarshal(data []byte) (T, error) {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		var zero T
		return zero, fmt.Errorf("codec: %s: %w", t.name, err)
	}
	if s == nil {
		var zero T
		return zero, nil
	}
	return t.Parse(*s)
}

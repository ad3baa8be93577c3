package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

type fieldState uint8

const (
	stateUnresolved fieldState = iota
	stateNull
	stateValue
)

var jsonNull = []byte("null")

// Field is a lazily resolved value. The zero Field is unresolved (not yet
// scraped), which is distinct from a resolved null and from a resolved empty
// value. Struct fields of this type should carry the `omitzero` JSON option so
// unresolved fields are left out of cache records.
type Field[T any] struct {
	value T
	state fieldState
}

// Value returns a resolved Field holding v.
func Value[T any](v T) Field[T] {
	return Field[T]{value: v, state: stateValue}
}

// Null returns a Field resolved to null.
func Null[T any]() Field[T] {
	return Field[T]{state: stateNull}
}

// Get returns the value and whether the field holds one. Unresolved and null
// fields both report false.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == stateValue
}

// OrZero returns the value, or the zero T when unresolved or null.
func (f Field[T]) OrZero() T {
	return f.value
}

// Set resolves the field to v.
func (f *Field[T]) Set(v T) {
	f.value = v
	f.state = stateValue
}

// SetNull resolves the field to null ("fetched, confirmed absent").
func (f *Field[T]) SetNull() {
	var zero T
	f.value = zero
	f.state = stateNull
}

// Resolved reports whether the field was scraped, including to null.
func (f Field[T]) Resolved() bool {
	return f.state != stateUnresolved
}

// IsNull reports whether the field was resolved to null.
func (f Field[T]) IsNull() bool {
	return f.state == stateNull
}

// IsZero reports whether the field is unresolved. encoding/json consults it
// for fields tagged omitzero.
func (f Field[T]) IsZero() bool {
	return f.state == stateUnresolved
}

// MarshalJSON encodes null fields as null and valued fields as their value.
// Unresolved fields also encode as null; callers rely on omitzero to drop them.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != stateValue {
		return jsonNull, nil
	}
	data, err := json.Marshal(f.value)
	if err != nil {
		return nil, fmt.Errorf("marshal field: %w", err)
	}
	return data, nil
}

// UnmarshalJSON resolves the field. A JSON null resolves it to null.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		f.SetNull()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal field: %w", err)
	}
	f.Set(v)
	return nil
}

func (f *Field[T]) adopt(other Lazy) bool {
	src, ok := other.(*Field[T])
	if !ok || f.Resolved() || !src.Resolved() {
		return false
	}
	*f = *src
	return true
}

func (f *Field[T]) entities() []Entity {
	if f.state != stateValue {
		return nil
	}
	switch v := any(f.value).(type) {
	case Entity:
		if isNil(v) {
			return nil
		}
		return []Entity{v}
	case interface{ Entities() []Entity }:
		return v.Entities()
	default:
		return nil
	}
}

// Lazy is the type-erased view of a Field used by the crawl engine. Only
// Field implements it.
type Lazy interface {
	Resolved() bool
	IsNull() bool
	SetNull()

	adopt(other Lazy) bool
	entities() []Entity
}

// List is a slice of entities that can be walked by the crawl engine when held
// in a Field.
type List[E Entity] []E

// Entities returns the list elements as Entity values. Null elements are
// skipped.
func (l List[E]) Entities() []Entity {
	out := make([]Entity, 0, len(l))
	for _, e := range l {
		if isNil(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// isNil reports whether e is nil or a typed nil, as a JSON null decodes into
// a pointer element.
func isNil(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// Package entity defines the shape of a crawlable record: identity, lazily
// resolved fields, and the capabilities the crawl engine looks for.
package entity

import (
	"errors"
	"sort"
)

var (
	// ErrIdentityUnavailable reports that an entity's identity cannot be
	// computed yet because the fields it depends on are unresolved or empty.
	// Callers retry once more fields resolve, or skip the entity.
	ErrIdentityUnavailable = errors.New("identity unavailable")
	// ErrIdentityCollision reports two distinct entities competing for one
	// cache record.
	ErrIdentityCollision = errors.New("identity collision")
)

// Fields maps field names to the lazily resolved fields of an entity.
type Fields map[string]Lazy

// Entity is a typed record crawled from the upstream API.
type Entity interface {
	// Kind names the entity type; it is also the cache namespace.
	Kind() string
	// Identity derives the cache key from current field values. It returns
	// an error wrapping ErrIdentityUnavailable when it cannot be computed.
	Identity() (string, error)
	// Fields lists the lazy fields. Eager fields are not included.
	Fields() Fields
}

// Detailed is implemented by entities with a per-entity detail endpoint. An
// empty URL means no further data can be obtained for the entity.
type Detailed interface {
	DetailURL() string
}

// Parent is implemented by entities holding other crawlable entities.
type Parent interface {
	Children() []Entity
}

// Validator is implemented by entities with required list-time fields.
type Validator interface {
	Validate() error
}

// Resolved returns the sorted names of the lazy fields that hold a value or null.
func Resolved(e Entity) []string {
	return names(e, true)
}

// Unresolved returns the sorted names of the lazy fields still unscraped.
func Unresolved(e Entity) []string {
	return names(e, false)
}

func names(e Entity, resolved bool) []string {
	var out []string
	for name, f := range e.Fields() {
		if f.Resolved() == resolved {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Complete reports whether every lazy field of e is resolved.
func Complete(e Entity) bool {
	for _, f := range e.Fields() {
		if !f.Resolved() {
			return false
		}
	}
	return true
}

// Merge copies src's resolved fields into the fields dst has not resolved yet
// and returns the adopted field names. Fields dst already resolved are never
// touched, so a merge cannot downgrade dst.
func Merge(dst, src Entity) []string {
	if dst == nil || src == nil || dst.Kind() != src.Kind() {
		return nil
	}
	from := src.Fields()
	var adopted []string
	for name, f := range dst.Fields() {
		other, ok := from[name]
		if !ok {
			continue
		}
		if f.adopt(other) {
			adopted = append(adopted, name)
		}
	}
	sort.Strings(adopted)
	return adopted
}

// Finalize resolves every unresolved lazy field of e to null. It marks an
// entity as fully decided when no more data can be obtained for it.
func Finalize(e Entity) []string {
	var finalized []string
	for name, f := range e.Fields() {
		if !f.Resolved() {
			f.SetNull()
			finalized = append(finalized, name)
		}
	}
	sort.Strings(finalized)
	return finalized
}

// Children returns the nested crawlable entities of e, or nil when e is not
// a Parent.
func Children(e Entity) []Entity {
	p, ok := e.(Parent)
	if !ok {
		return nil
	}
	return p.Children()
}

// Collect gathers the entities held by resolved fields. Parents use it to
// implement Children.
func Collect(fields ...Lazy) []Entity {
	var out []Entity
	for _, f := range fields {
		out = append(out, f.entities()...)
	}
	return out
}

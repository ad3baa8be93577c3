package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Upstream is the JSON API client used by the engine and by field fetchers.
type Upstream interface {
	Get(ctx context.Context, req fetcher.Request) ([]byte, error)
	GetJSON(ctx context.Context, req fetcher.Request, v any) error
}

// Pages scrapes links out of server-rendered HTML pages.
type Pages interface {
	Links(ctx context.Context, req fetcher.Request, selector string) ([]string, error)
}

// ErrorRecorder appends entries to the error log.
type ErrorRecorder interface {
	Record(e fetcher.Entry)
}

// Env is what field fetchers may use to resolve their fields.
type Env struct {
	BaseURL  string
	Upstream Upstream
	Pages    Pages
	Errors   ErrorRecorder
}

// Record writes e to the error log when one is configured.
func (env *Env) Record(e fetcher.Entry) {
	if env.Errors != nil {
		env.Errors.Record(e)
	}
}

// URL resolves path against BaseURL. Absolute URLs are returned unchanged.
func (env *Env) URL(path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimSuffix(env.BaseURL, "/") + path
	}
	return path
}

// FieldFetcher resolves one lazy field the detail endpoint cannot provide.
type FieldFetcher struct {
	Field string
	fetch func(ctx context.Context, env *Env, e entity.Entity) error
}

// FetcherFor registers a typed fetch routine for field on entities of type E.
func FetcherFor[E entity.Entity](field string, fn func(ctx context.Context, env *Env, e E) error) FieldFetcher {
	return FieldFetcher{
		Field: field,
		fetch: func(ctx context.Context, env *Env, e entity.Entity) error {
			typed, ok := e.(E)
			if !ok {
				return fmt.Errorf("fetcher for %s: unexpected entity %T", field, e)
			}
			return fn(ctx, env, typed)
		},
	}
}

// Type is the capability table of one entity type.
type Type struct {
	// Name is the entity kind and cache namespace.
	Name string
	// New returns an empty entity of this type.
	New func() entity.Entity
	// ListEndpoint is the path of the authoritative list, relative to the
	// API base URL. Types without one are only reached through other
	// entities or endpoint overrides.
	ListEndpoint string
	// Decode builds an entity from one list element. The default decodes a
	// JSON object onto New().
	Decode func(raw json.RawMessage) (entity.Entity, error)
	// Fetchers resolve fields the detail endpoint does not return, in order.
	Fetchers []FieldFetcher
	// Degradable lists the list-fetch statuses that fall back to the cache.
	// Nil means fetcher.DefaultDegradable.
	Degradable []int
	// Prune drops cached entries missing from a complete upstream listing.
	Prune bool
}

func (t *Type) decode(raw json.RawMessage) (entity.Entity, error) {
	if t.Decode != nil {
		e, err := t.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", fetcher.ErrMalformedPayload, err)
		}
		return e, nil
	}
	e := t.New()
	if err := fetcher.Decode(raw, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *Type) degradable() []int {
	if t.Degradable == nil {
		return fetcher.DefaultDegradable
	}
	return t.Degradable
}

// Registry is the ordered set of known entity types.
type Registry struct {
	order []string
	types map[string]*Type
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t *Type) error {
	if t == nil || t.New == nil {
		return fmt.Errorf("type constructor is required")
	}
	if !validName.MatchString(t.Name) {
		return fmt.Errorf("invalid type name %q", t.Name)
	}
	if got := t.New().Kind(); got != t.Name {
		return fmt.Errorf("type %q constructs entities of kind %q", t.Name, got)
	}
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register for package initialization.
func (r *Registry) MustRegister(types ...*Type) *Registry {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the type registered under kind.
func (r *Registry) Lookup(kind string) (*Type, bool) {
	t, ok := r.types[kind]
	return t, ok
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// New returns an empty entity of kind.
func (r *Registry) New(kind string) (entity.Entity, error) {
	t, ok := r.types[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return t.New(), nil
}

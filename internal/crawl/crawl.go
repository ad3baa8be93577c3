// Package crawl reconciles entity collections against the local cache and
// resolves lazy fields by walking the entity graph.
package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
	"github.com/JakeFAU/malegislature-crawler/internal/metrics"
)

// listIdentity is the error log identity of list fetches.
const listIdentity = "list"

// Store is the keyed cache the engine reads and writes.
type Store interface {
	Key(identity string) string
	Load(ctx context.Context, kind, identity string) (entity.Entity, bool, error)
	Snapshot(ctx context.Context, kind string) (map[string]entity.Entity, error)
	Save(ctx context.Context, e entity.Entity) error
	Prune(ctx context.Context, kind string, keep map[string]struct{}) (int, error)
}

// PruneMode selects what happens to cached entries missing from a listing.
type PruneMode int

const (
	// PruneDefault follows the type's Prune setting.
	PruneDefault PruneMode = iota
	// PruneAlways deletes stale entries.
	PruneAlways
	// PruneNever keeps stale entries and returns them.
	PruneNever
)

// Options controls one collection reconciliation.
type Options struct {
	// CheckUpstream fetches the authoritative list; otherwise only the
	// cache is read.
	CheckUpstream bool
	// Endpoint overrides the type's list path. Overridden listings are
	// partial and never prune.
	Endpoint string
	// UseCache merges the cached snapshot into the result.
	UseCache bool
	// Overwrite lets freshly listed entities replace cached ones.
	Overwrite bool
	Prune     PruneMode
	// Concurrency bounds in-flight entity crawls.
	Concurrency int
}

// DefaultOptions checks upstream and merges with the cache.
func DefaultOptions() Options {
	return Options{CheckUpstream: true, UseCache: true, Concurrency: defaultConcurrency}
}

// Summary reports the outcome of one reconciliation.
type Summary struct {
	Kind       string `json:"kind"`
	Endpoint   string `json:"endpoint,omitempty"`
	Fetched    int    `json:"fetched"`
	New        int    `json:"new"`
	Cached     int    `json:"cached"`
	Stale      int    `json:"stale"`
	Pruned     int    `json:"pruned"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Degraded   bool   `json:"degraded"`
	Crawled    int    `json:"crawled"`
}

// Kinds is the set of entity kinds being crawled higher in the call stack.
type Kinds map[string]struct{}

func (k Kinds) has(kind string) bool {
	_, ok := k[kind]
	return ok
}

func (k Kinds) with(kind string) Kinds {
	out := make(Kinds, len(k)+1)
	for name := range k {
		out[name] = struct{}{}
	}
	out[kind] = struct{}{}
	return out
}

// Crawler runs reconciliations and entity crawls for the registered types.
type Crawler struct {
	registry *Registry
	store    Store
	env      *Env
	logger   *zap.Logger
}

// New builds a Crawler.
func New(registry *Registry, store Store, env *Env, logger *zap.Logger) (*Crawler, error) {
	if registry == nil || store == nil || env == nil || env.Upstream == nil {
		return nil, fmt.Errorf("registry, store and upstream client are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{registry: registry, store: store, env: env, logger: logger}, nil
}

// Registry returns the registered types.
func (c *Crawler) Registry() *Registry {
	return c.registry
}

// ScrapeAll reconciles the collection of kind and crawls every resulting
// entity under the concurrency bound.
func (c *Crawler) ScrapeAll(ctx context.Context, kind string, opts Options) ([]entity.Entity, Summary, error) {
	items, sum, err := c.Collect(ctx, kind, opts)
	if err != nil {
		return nil, sum, err
	}

	var crawled atomic.Int64
	err = forEach(ctx, items, opts.Concurrency, func(ctx context.Context, e entity.Entity) error {
		if err := c.Crawl(ctx, e, nil); err != nil {
			return err
		}
		crawled.Add(1)
		return nil
	})
	sum.Crawled = int(crawled.Load())
	if err != nil {
		metrics.ObserveCollection(kind, "error")
		return items, sum, err
	}
	c.logger.Info("collection crawled",
		zap.String("kind", kind),
		zap.Int("items", len(items)),
		zap.Int("crawled", sum.Crawled),
	)
	return items, sum, nil
}

type listed struct {
	entity   entity.Entity
	identity string
	key      string
}

// Collect reconciles the authoritative list of kind with the cache and
// persists new or changed entries. It does not crawl lazy fields.
func (c *Crawler) Collect(ctx context.Context, kind string, opts Options) ([]entity.Entity, Summary, error) {
	t, ok := c.registry.Lookup(kind)
	if !ok {
		return nil, Summary{}, fmt.Errorf("unknown kind %q", kind)
	}
	sum := Summary{Kind: kind}
	logger := c.logger.With(zap.String("kind", kind))

	var cached map[string]entity.Entity
	if opts.UseCache {
		snap, err := c.store.Snapshot(ctx, kind)
		if err != nil {
			return nil, sum, fmt.Errorf("load %s cache: %w", kind, err)
		}
		cached = snap
	}
	if !opts.CheckUpstream {
		sum.Cached = len(cached)
		metrics.ObserveCollection(kind, "cache_only")
		logger.Info("collection loaded from cache", zap.Int("cached", sum.Cached))
		return sortedValues(cached), sum, nil
	}

	endpoint := opts.Endpoint
	override := endpoint != ""
	if !override {
		endpoint = t.ListEndpoint
	}
	if endpoint == "" {
		return nil, sum, fmt.Errorf("%s has no list endpoint", kind)
	}
	sum.Endpoint = endpoint
	url := c.env.URL(endpoint)
	logger.Info("reconciling collection", zap.String("url", url))

	body, err := c.env.Upstream.Get(ctx, fetcher.Request{URL: url, Kind: kind, Identity: listIdentity})
	if err != nil {
		status, isStatus := fetcher.StatusOf(err)
		if isStatus && fetcher.Classify(status, t.degradable()) == fetcher.ClassDegradable {
			sum.Degraded = true
			sum.Cached = len(cached)
			metrics.ObserveFailure(kind, fetcher.ClassDegradable.String())
			metrics.ObserveCollection(kind, "degraded")
			logger.Warn("list unavailable, serving cache", zap.Int("status", status), zap.Int("cached", sum.Cached))
			return sortedValues(cached), sum, nil
		}
		metrics.ObserveCollection(kind, "error")
		return nil, sum, fmt.Errorf("list %s: %w", kind, err)
	}

	fresh, err := c.decodeList(t, url, body, &sum)
	if err != nil {
		metrics.ObserveCollection(kind, "error")
		return nil, sum, err
	}
	sum.Fetched = len(fresh)

	results := make([]entity.Entity, 0, len(fresh)+len(cached))
	keep := make(map[string]struct{}, len(fresh))
	listedKeys := make(map[string]struct{}, len(fresh))
	var toSave []entity.Entity
	for _, item := range fresh {
		keep[item.identity] = struct{}{}
		listedKeys[item.key] = struct{}{}

		prev, hit := cached[item.key]
		if hit {
			if err := sameIdentity(prev, item.identity); err != nil {
				return nil, sum, err
			}
		}
		switch {
		case opts.Overwrite:
			results = append(results, item.entity)
			toSave = append(toSave, item.entity)
			if !hit {
				sum.New++
			}
		case hit:
			if adopted := entity.Merge(prev, item.entity); len(adopted) > 0 {
				toSave = append(toSave, prev)
			}
			results = append(results, prev)
			sum.Cached++
		default:
			results = append(results, item.entity)
			toSave = append(toSave, item.entity)
			sum.New++
		}
	}

	for _, e := range toSave {
		if err := c.store.Save(ctx, e); err != nil {
			return nil, sum, fmt.Errorf("save %s: %w", kind, err)
		}
	}

	var stale []string
	for key := range cached {
		if _, ok := listedKeys[key]; !ok {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)
	sum.Stale = len(stale)

	if shouldPrune(t, opts, override) {
		n, err := c.store.Prune(ctx, kind, keep)
		if err != nil {
			return nil, sum, fmt.Errorf("prune %s: %w", kind, err)
		}
		sum.Pruned = n
	} else {
		for _, key := range stale {
			results = append(results, cached[key])
		}
	}

	metrics.ObserveCollection(kind, "ok")
	logger.Info("collection reconciled",
		zap.Int("fetched", sum.Fetched),
		zap.Int("new", sum.New),
		zap.Int("cached", sum.Cached),
		zap.Int("stale", sum.Stale),
		zap.Int("pruned", sum.Pruned),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("skipped", sum.Skipped),
	)
	return results, sum, nil
}

func (c *Crawler) decodeList(t *Type, url string, body []byte, sum *Summary) ([]listed, error) {
	var raws []json.RawMessage
	if err := fetcher.Decode(body, &raws); err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	out := make([]listed, 0, len(raws))
	seen := make(map[string]string, len(raws))
	for i, raw := range raws {
		e, err := t.decode(raw)
		if err != nil {
			return nil, fmt.Errorf("list %s item %d: %w", t.Name, i, err)
		}
		if v, ok := e.(entity.Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("list %s item %d: %w: %w", t.Name, i, fetcher.ErrMalformedPayload, err)
			}
		}
		identity, err := e.Identity()
		if errors.Is(err, entity.ErrIdentityUnavailable) {
			sum.Skipped++
			c.env.Record(fetcher.Entry{Kind: t.Name, URL: url, Message: err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s item %d: %w", t.Name, i, err)
		}
		key := c.store.Key(identity)
		if first, dup := seen[key]; dup {
			if first != identity {
				return nil, fmt.Errorf("%s %q and %q: %w", t.Name, first, identity, entity.ErrIdentityCollision)
			}
			sum.Duplicates++
			c.env.Record(fetcher.Entry{
				Kind:     t.Name,
				Identity: identity,
				URL:      url,
				Message:  fmt.Sprintf("%s: duplicate list entry dropped", entity.ErrIdentityCollision),
			})
			continue
		}
		seen[key] = identity
		out = append(out, listed{entity: e, identity: identity, key: key})
	}
	return out, nil
}

func shouldPrune(t *Type, opts Options, override bool) bool {
	if override {
		return false
	}
	switch opts.Prune {
	case PruneAlways:
		return true
	case PruneNever:
		return false
	default:
		return t.Prune
	}
}

func sameIdentity(cached entity.Entity, identity string) error {
	got, err := cached.Identity()
	if err != nil || got == identity {
		return nil
	}
	return fmt.Errorf("%s %q and %q: %w", cached.Kind(), got, identity, entity.ErrIdentityCollision)
}

func sortedValues(m map[string]entity.Entity) []entity.Entity {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entity.Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Crawl resolves the lazy fields of e. Relative detail URLs are resolved
// against the API base URL. ancestors holds the kinds already
// being crawled higher in the call stack; nested entities of those kinds are
// not descended into. Per-entity failures (400 and 404 on the detail fetch)
// are contained here; everything else is returned.
func (c *Crawler) Crawl(ctx context.Context, e entity.Entity, ancestors Kinds) error {
	kind := e.Kind()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl %s: %w", kind, err)
	}
	metrics.IncActiveCrawls()
	defer metrics.DecActiveCrawls()

	d, detailed := e.(entity.Detailed)
	if detailed && d.DetailURL() == "" {
		entity.Finalize(e)
		return c.persist(ctx, e)
	}

	if !entity.Complete(e) {
		if err := c.adoptCached(ctx, e); err != nil {
			return err
		}
	}
	if entity.Complete(e) {
		return nil
	}

	if detailed {
		done, err := c.fetchDetail(ctx, e, c.env.URL(d.DetailURL()))
		if err != nil || done {
			return err
		}
	}

	next := ancestors.with(kind)
	for _, child := range entity.Children(e) {
		if ancestors.has(child.Kind()) {
			continue
		}
		if err := c.Crawl(ctx, child, next); err != nil {
			return err
		}
	}

	return c.runFetchers(ctx, e)
}

func (c *Crawler) adoptCached(ctx context.Context, e entity.Entity) error {
	identity, err := e.Identity()
	if errors.Is(err, entity.ErrIdentityUnavailable) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity %s: %w", e.Kind(), err)
	}
	cached, found, err := c.store.Load(ctx, e.Kind(), identity)
	if err != nil {
		return fmt.Errorf("load %s %q: %w", e.Kind(), identity, err)
	}
	if found {
		entity.Merge(e, cached)
	}
	return nil
}

// fetchDetail resolves fields from the detail endpoint. It reports done when
// the entity has been finalized after a permanent failure.
func (c *Crawler) fetchDetail(ctx context.Context, e entity.Entity, url string) (bool, error) {
	kind := e.Kind()
	identity := identityOf(e)
	body, err := c.env.Upstream.Get(ctx, fetcher.Request{URL: url, Kind: kind, Identity: identity})
	if err != nil {
		status, isStatus := fetcher.StatusOf(err)
		if isStatus && fetcher.Classify(status, nil) == fetcher.ClassPermanent {
			finalized := entity.Finalize(e)
			metrics.ObserveFailure(kind, fetcher.ClassPermanent.String())
			c.logger.Warn("detail unavailable, finalizing",
				zap.String("kind", kind),
				zap.String("identity", identity),
				zap.Int("status", status),
				zap.Strings("fields", finalized),
			)
			return true, c.persist(ctx, e)
		}
		metrics.ObserveFailure(kind, fetcher.ClassFatal.String())
		return false, fmt.Errorf("detail %s %q: %w", kind, identity, err)
	}

	detail, err := c.registry.New(kind)
	if err != nil {
		return false, err
	}
	if err := fetcher.Decode(body, detail); err != nil {
		metrics.ObserveFailure(kind, fetcher.ClassFatal.String())
		return false, fmt.Errorf("detail %s %q: %w", kind, identity, err)
	}
	entity.Merge(e, detail)
	return false, c.persist(ctx, e)
}

func (c *Crawler) runFetchers(ctx context.Context, e entity.Entity) error {
	t, ok := c.registry.Lookup(e.Kind())
	if !ok {
		return nil
	}
	fields := e.Fields()
	for _, f := range t.Fetchers {
		lazy, ok := fields[f.Field]
		if !ok || lazy.Resolved() {
			continue
		}
		if err := f.fetch(ctx, c.env, e); err != nil {
			metrics.ObserveFailure(e.Kind(), fetcher.ClassFatal.String())
			return fmt.Errorf("fetch %s.%s %q: %w", e.Kind(), f.Field, identityOf(e), err)
		}
		if err := c.persist(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// persist saves e. Entities whose identity is not computable yet are skipped.
func (c *Crawler) persist(ctx context.Context, e entity.Entity) error {
	err := c.store.Save(ctx, e)
	if errors.Is(err, entity.ErrIdentityUnavailable) {
		c.logger.Debug("not persisting entity without identity", zap.String("kind", e.Kind()))
		return nil
	}
	return err
}

// Get returns the cached entity of kind with identity. When it is missing and
// checkUpstream is set, the collection is reconciled once and the lookup
// retried.
func (c *Crawler) Get(ctx context.Context, kind, identity string, checkUpstream bool) (entity.Entity, bool, error) {
	if _, ok := c.registry.Lookup(kind); !ok {
		return nil, false, fmt.Errorf("unknown kind %q", kind)
	}
	e, found, err := c.store.Load(ctx, kind, identity)
	if err != nil || found || !checkUpstream {
		return e, found, err
	}
	opts := DefaultOptions()
	opts.Prune = PruneNever
	if _, _, err := c.Collect(ctx, kind, opts); err != nil {
		return nil, false, err
	}
	return c.store.Load(ctx, kind, identity)
}

func identityOf(e entity.Entity) string {
	id, err := e.Identity()
	if err != nil {
		return ""
	}
	return id
}

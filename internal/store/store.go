// Package store persists entities on the local filesystem, one JSON record per
// identity, namespaced by entity kind.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/metrics"
)

const recordExt = ".json"

var validKind = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Constructor builds an empty entity for a kind.
type Constructor interface {
	New(kind string) (entity.Entity, error)
}

// Hasher maps an identity to a filesystem-safe record name.
type Hasher interface {
	HashString(s string) string
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Record is a serialized entity as handed to mirrors.
type Record struct {
	Kind     string
	Identity string
	Hash     string
	Data     []byte
	SavedAt  time.Time
}

// Mirror replicates cache records to secondary storage.
type Mirror interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, kind, hash string) error
}

// Config captures the parameters for the filesystem store.
type Config struct {
	// Root is the directory holding one subdirectory per entity kind.
	Root string `mapstructure:"root" yaml:"root"`
}

// Store is the keyed entity cache.
type Store struct {
	root    string
	types   Constructor
	hasher  Hasher
	clock   Clock
	mirrors []Mirror
	logger  *zap.Logger
}

// New creates a filesystem store rooted at cfg.Root, creating the directory
// when needed.
func New(cfg Config, types Constructor, hasher Hasher, clock Clock, logger *zap.Logger, mirrors ...Mirror) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if types == nil || hasher == nil || clock == nil {
		return nil, fmt.Errorf("constructor, hasher and clock are required")
	}

	info, err := os.Stat(cfg.Root)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create cache root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat cache root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache root %s is not a directory", cfg.Root)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		root:    cfg.Root,
		types:   types,
		hasher:  hasher,
		clock:   clock,
		mirrors: mirrors,
		logger:  logger,
	}, nil
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// Key returns the record name for an identity.
func (s *Store) Key(identity string) string {
	return s.hasher.HashString(identity)
}

// Path returns the record location for an identity of the given kind.
func (s *Store) Path(kind, identity string) (string, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.Key(identity)+recordExt), nil
}

func (s *Store) dir(kind string) (string, error) {
	if !validKind.MatchString(kind) {
		return "", fmt.Errorf("invalid kind %q", kind)
	}
	return filepath.Join(s.root, kind), nil
}

// Load returns the cached entity for identity. The boolean is false when no
// record exists.
func (s *Store) Load(ctx context.Context, kind, identity string) (entity.Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context canceled: %w", err)
	}
	path, err := s.Path(kind, identity)
	if err != nil {
		return nil, false, err
	}
	e, _, found, err := s.read(kind, path)
	return e, found, err
}

// LoadAll returns every cached entity of a kind, ordered by record name.
func (s *Store) LoadAll(ctx context.Context, kind string) ([]entity.Entity, error) {
	snap, err := s.scan(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Entity, 0, len(snap))
	for _, rec := range snap {
		out = append(out, rec.entity)
	}
	return out, nil
}

// Snapshot returns every cached entity of a kind keyed by record name.
func (s *Store) Snapshot(ctx context.Context, kind string) (map[string]entity.Entity, error) {
	snap, err := s.scan(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string]entity.Entity, len(snap))
	for _, rec := range snap {
		out[rec.hash] = rec.entity
	}
	return out, nil
}

type scanned struct {
	hash   string
	entity entity.Entity
}

func (s *Store) scan(ctx context.Context, kind string) ([]scanned, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*"+recordExt))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := make([]scanned, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context canceled: %w", err)
		}
		e, _, found, err := s.read(kind, path)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, scanned{hash: strings.TrimSuffix(filepath.Base(path), recordExt), entity: e})
	}
	return out, nil
}

func (s *Store) read(kind, path string) (entity.Entity, []byte, bool, error) {
	// #nosec G304 -- path is derived from the cache root and a hex digest.
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("read record %s: %w", path, err)
	}
	e, err := s.types.New(kind)
	if err != nil {
		return nil, nil, false, fmt.Errorf("construct %s: %w", kind, err)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, nil, false, fmt.Errorf("decode record %s: %w", path, err)
	}
	return e, data, true, nil
}

// Save writes e with its unresolved fields omitted, then saves every nested
// entity e holds. Nested entities are first merged with their own cached
// record so a partial copy never replaces a fuller one. Each record is
// written at most once per call, so cyclic graphs terminate.
func (s *Store) Save(ctx context.Context, e entity.Entity) error {
	return s.save(ctx, e, false, make(map[string]struct{}))
}

func (s *Store) save(ctx context.Context, e entity.Entity, nested bool, visited map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	kind := e.Kind()
	identity, err := e.Identity()
	if err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	path, err := s.Path(kind, identity)
	if err != nil {
		return err
	}
	if _, done := visited[path]; done {
		return nil
	}
	visited[path] = struct{}{}

	existing, existingData, found, err := s.read(kind, path)
	if err != nil {
		return err
	}
	if found {
		if err := checkCollision(kind, identity, existing); err != nil {
			return err
		}
		if nested {
			entity.Merge(e, existing)
		}
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", kind, identity, err)
	}
	if !found || !bytes.Equal(data, existingData) {
		if err := s.write(ctx, Record{
			Kind:     kind,
			Identity: identity,
			Hash:     s.Key(identity),
			Data:     data,
			SavedAt:  s.clock.Now(),
		}, path); err != nil {
			return err
		}
	}

	for _, child := range entity.Children(e) {
		err := s.save(ctx, child, true, visited)
		if errors.Is(err, entity.ErrIdentityUnavailable) {
			s.logger.Debug("skipping nested entity without identity",
				zap.String("kind", child.Kind()),
				zap.String("parent", identity),
			)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func checkCollision(kind, identity string, existing entity.Entity) error {
	existingID, err := existing.Identity()
	if err != nil || existingID == identity {
		return nil
	}
	return fmt.Errorf("%s %q shares a record with %q: %w", kind, identity, existingID, entity.ErrIdentityCollision)
}

func (s *Store) write(ctx context.Context, rec Record, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(rec.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write record %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close record %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename record %s: %w", path, err)
	}
	metrics.ObserveSave(rec.Kind)

	for _, m := range s.mirrors {
		if err := m.Put(ctx, rec); err != nil {
			return fmt.Errorf("mirror %s %q: %w", rec.Kind, rec.Identity, err)
		}
	}
	return nil
}

// Prune deletes the records of kind whose identity is not in keep and returns
// how many were removed. Callers only prune after a complete upstream listing.
func (s *Store) Prune(ctx context.Context, kind string, keep map[string]struct{}) (int, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return 0, err
	}
	keepHashes := make(map[string]struct{}, len(keep))
	for identity := range keep {
		keepHashes[s.Key(identity)] = struct{}{}
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*"+recordExt))
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}

	removed := 0
	for _, path := range paths {
		hash := strings.TrimSuffix(filepath.Base(path), recordExt)
		if _, ok := keepHashes[hash]; ok {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove stale record %s: %w", path, err)
		}
		removed++
		for _, m := range s.mirrors {
			if err := m.Delete(ctx, kind, hash); err != nil {
				return removed, fmt.Errorf("mirror delete %s %s: %w", kind, hash, err)
			}
		}
	}
	metrics.ObservePrune(kind, removed)
	if removed > 0 {
		s.logger.Info("pruned stale records", zap.String("kind", kind), zap.Int("removed", removed))
	}
	return removed, nil
}

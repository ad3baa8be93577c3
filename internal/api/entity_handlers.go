package api

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
)

const (
	defaultEntityLimit = 100
	maxEntityLimit     = 1000
)

type typeDTO struct {
	Name         string `json:"name"`
	ListEndpoint string `json:"listEndpoint,omitempty"`
	Prune        bool   `json:"prune"`
	Fetchers     int    `json:"fetchers"`
}

// listTypes handles GET /v1/types.
func (s *Server) listTypes(w http.ResponseWriter, _ *http.Request) {
	types := s.registry.Types()
	out := make([]typeDTO, 0, len(types))
	for _, t := range types {
		out = append(out, typeDTO{
			Name:         t.Name,
			ListEndpoint: t.ListEndpoint,
			Prune:        t.Prune,
			Fetchers:     len(t.Fetchers),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": out})
}

// listEntities handles GET /v1/entities/{kind}?limit=&offset=. Records are
// returned in identity order with the total count of the kind.
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultEntityLimit, maxEntityLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.cache.LoadAll(r.Context(), kind)
	if err != nil {
		s.logger.Error("list entities failed", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list entities")
		return
	}
	slices.SortFunc(items, func(a, b entity.Entity) int {
		return strings.Compare(identityOf(a), identityOf(b))
	})
	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"total":    total,
		"entities": items[start:end],
	})
}

// getEntity handles GET /v1/entities/{kind}/{identity}. Identities may contain
// slashes, so the identity is the escaped remainder of the path.
func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	identity, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || identity == "" {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	e, found, err := s.getter.Get(r.Context(), kind, identity, refresh)
	if err != nil {
		s.logger.Error("get entity failed",
			zap.String("kind", kind),
			zap.String("identity", identity),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to load entity")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) kind(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := chi.URLParam(r, "kind")
	if _, ok := s.registry.Lookup(kind); !ok {
		writeError(w, http.StatusNotFound, "unknown kind")
		return "", false
	}
	return kind, true
}

func identityOf(e entity.Entity) string {
	id, err := e.Identity()
	if err != nil {
		return ""
	}
	return id
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := strings.TrimSpace(q.Get("offset")); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

var _ Getter = (*crawl.Crawler)(nil)

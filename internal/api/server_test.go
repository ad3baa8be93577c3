package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/clock/system"
	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
	"github.com/JakeFAU/malegislature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/malegislature-crawler/internal/legislature"
	"github.com/JakeFAU/malegislature-crawler/internal/store"
)

const committeeDetails = "https://malegislature.gov/api/GeneralCourts/193/Committees/J10"

type failingCache struct{}

func (failingCache) LoadAll(context.Context, string) ([]entity.Entity, error) {
	return nil, assert.AnError
}

func newTestServer(t *testing.T, upstream http.HandlerFunc) (*Server, *store.Store) {
	t.Helper()
	if upstream == nil {
		upstream = func(w http.ResponseWriter, _ *http.Request) { http.NotFound(w, nil) }
	}
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	registry := legislature.NewRegistry()
	st, err := store.New(store.Config{Root: t.TempDir()}, registry, sha256.New(), system.New(), zap.NewNop())
	require.NoError(t, err)
	client := fetcher.New(fetcher.Config{Timeout: 5 * time.Second}, nil, nil, nil, zap.NewNop())
	crawler, err := crawl.New(registry, st, &crawl.Env{BaseURL: srv.URL, Upstream: client}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Save(ctx, &legislature.City{Name: "Boston"}))
	require.NoError(t, st.Save(ctx, &legislature.City{Name: "Amherst"}))
	require.NoError(t, st.Save(ctx, &legislature.Committee{GeneralCourtNumber: 193, CommitteeCode: "J10", Details: committeeDetails}))

	return NewServer(registry, st, crawler, zap.NewNop()), st
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := serve(s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	serve(s, "/healthz")
	rec := serve(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ListTypes(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := serve(s, "/v1/types")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Types []typeDTO `json:"types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Types, len(legislature.Types()))
	assert.Equal(t, typeDTO{Name: "city", ListEndpoint: "/api/Documents/SupportedCities", Prune: true, Fetchers: 1}, body.Types[0])
}

func TestServer_ListEntitiesPaginates(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := serve(s, "/v1/entities/city?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Kind     string             `json:"kind"`
		Total    int                `json:"total"`
		Entities []legislature.City `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "city", body.Kind)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Entities, 1)
	assert.Equal(t, "Boston", body.Entities[0].Name)

	rec = serve(s, "/v1/entities/city?offset=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entities": []`)
}

func TestServer_ListEntitiesErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusNotFound, serve(s, "/v1/entities/parking-ticket").Code)
	require.Equal(t, http.StatusBadRequest, serve(s, "/v1/entities/city?limit=0").Code)
	require.Equal(t, http.StatusBadRequest, serve(s, "/v1/entities/city?offset=-1").Code)

	broken := NewServer(legislature.NewRegistry(), failingCache{}, nil, nil)
	require.Equal(t, http.StatusInternalServerError, serve(broken, "/v1/entities/city").Code)
}

func TestServer_GetEntity(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := serve(s, "/v1/entities/city/Boston")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Boston"}`, rec.Body.String())

	rec = serve(s, "/v1/entities/committee/"+url.PathEscape(committeeDetails))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CommitteeCode": "J10"`)

	require.Equal(t, http.StatusNotFound, serve(s, "/v1/entities/city/Springfield").Code)
	require.Equal(t, http.StatusNotFound, serve(s, "/v1/entities/parking-ticket/1").Code)
}

func TestServer_GetEntityRefreshesFromUpstream(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/Documents/SupportedCities" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["Boston","Salem"]`))
	})

	require.Equal(t, http.StatusNotFound, serve(s, "/v1/entities/city/Salem").Code)

	rec := serve(s, "/v1/entities/city/Salem?refresh=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Salem"}`, rec.Body.String())

	_, found, err := st.Load(context.Background(), legislature.KindCity, "Amherst")
	require.NoError(t, err)
	assert.True(t, found, "lookups never prune the cache")
}

func TestServer_GetEntityUpstreamFailure(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	require.Equal(t, http.StatusBadGateway, serve(s, "/v1/entities/city/Salem?refresh=true").Code)
}

func TestParseLimitOffset(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?limit=5000&offset=3", nil)
	limit, offset, err := parseLimitOffset(req, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 3, offset)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	limit, offset, err = parseLimitOffset(req, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Zero(t, offset)
}

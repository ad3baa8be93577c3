package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/malegislature-crawler/internal/clock/system"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
	hasher "github.com/JakeFAU/malegislature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/malegislature-crawler/internal/store"
)

type hearing struct {
	EventID      int                    `json:"EventId"`
	Details      string                 `json:"Details,omitempty"`
	Name         entity.Field[string]   `json:"Name,omitzero"`
	DocumentURLs entity.Field[[]string] `json:"document_urls,omitzero"`
}

func (h *hearing) Kind() string { return "hearing" }

func (h *hearing) Identity() (string, error) {
	if h.EventID == 0 {
		return "", fmt.Errorf("hearing: %w", entity.ErrIdentityUnavailable)
	}
	return strconv.Itoa(h.EventID), nil
}

func (h *hearing) Fields() entity.Fields {
	return entity.Fields{"Name": &h.Name, "document_urls": &h.DocumentURLs}
}

func (h *hearing) DetailURL() string { return h.Details }

type triple struct {
	ID string               `json:"ID"`
	A  entity.Field[string] `json:"A,omitzero"`
	B  entity.Field[string] `json:"B,omitzero"`
	C  entity.Field[string] `json:"C,omitzero"`
}

func (t *triple) Kind() string { return "triple" }

func (t *triple) Identity() (string, error) {
	if t.ID == "" {
		return "", fmt.Errorf("triple: %w", entity.ErrIdentityUnavailable)
	}
	return t.ID, nil
}

func (t *triple) Fields() entity.Fields {
	return entity.Fields{"A": &t.A, "B": &t.B, "C": &t.C}
}

type alpha struct {
	ID      string               `json:"ID"`
	Details string               `json:"Details,omitempty"`
	Label   entity.Field[string] `json:"Label,omitzero"`
	Partner entity.Field[*beta]  `json:"Partner,omitzero"`
}

func (a *alpha) Kind() string              { return "alpha" }
func (a *alpha) Identity() (string, error) { return a.ID, nil }
func (a *alpha) DetailURL() string         { return a.Details }
func (a *alpha) Children() []entity.Entity { return entity.Collect(&a.Partner) }
func (a *alpha) Fields() entity.Fields     { return entity.Fields{"Label": &a.Label, "Partner": &a.Partner} }

type beta struct {
	ID      string               `json:"ID"`
	Details string               `json:"Details,omitempty"`
	Label   entity.Field[string] `json:"Label,omitzero"`
	Back    entity.Field[*alpha] `json:"Back,omitzero"`
}

func (b *beta) Kind() string              { return "beta" }
func (b *beta) Identity() (string, error) { return b.ID, nil }
func (b *beta) DetailURL() string         { return b.Details }
func (b *beta) Children() []entity.Entity { return entity.Collect(&b.Back) }
func (b *beta) Fields() entity.Fields     { return entity.Fields{"Label": &b.Label, "Back": &b.Back} }

type response struct {
	status int
	body   string
}

type fakeAPI struct {
	srv       *httptest.Server
	mu        sync.Mutex
	responses map[string]response
	hits      map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{responses: map[string]response{}, hits: map[string]int{}}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.hits[r.URL.Path]++
		resp, ok := api.responses[r.URL.Path]
		api.mu.Unlock()
		if !ok {
			http.Error(w, "no such route", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) url(path string) string { return a.srv.URL + path }

func (a *fakeAPI) set(path string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[path] = response{status: status, body: body}
}

func (a *fakeAPI) count(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[path]
}

func (a *fakeAPI) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.hits {
		n += c
	}
	return n
}

type harness struct {
	crawler *Crawler
	store   *store.Store
	api     *fakeAPI
	errLog  *bytes.Buffer
}

func hearingType(fetchers ...FieldFetcher) *Type {
	return &Type{
		Name:         "hearing",
		New:          func() entity.Entity { return &hearing{} },
		ListEndpoint: "/api/Hearings",
		Fetchers:     fetchers,
		Prune:        true,
	}
}

func tripleType(fetchers ...FieldFetcher) *Type {
	return &Type{
		Name:         "triple",
		New:          func() entity.Entity { return &triple{} },
		ListEndpoint: "/api/Triples",
		Fetchers:     fetchers,
	}
}

func newHarness(t *testing.T, types ...*Type) *harness {
	t.Helper()
	api := newFakeAPI(t)
	registry := NewRegistry().MustRegister(types...)
	st, err := store.New(store.Config{Root: t.TempDir()}, registry, hasher.New(), system.New(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	errLog := fetcher.NewErrorLog(&buf, nil)
	env := &Env{
		BaseURL:  api.srv.URL,
		Upstream: fetcher.New(fetcher.Config{}, nil, nil, errLog, nil),
		Errors:   errLog,
	}
	c, err := New(registry, st, env, nil)
	require.NoError(t, err)
	return &harness{crawler: c, store: st, api: api, errLog: &buf}
}

func (h *harness) record(t *testing.T, kind, identity string) string {
	t.Helper()
	path, err := h.store.Path(kind, identity)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCrawlHearingDetailLeavesCustomFieldUnresolved(t *testing.T) {
	t.Parallel()

	h := newHarness(t, hearingType())
	h.api.set("/api/Hearings/77", http.StatusOK, `{"EventId":77,"Name":"Public Hearing","Unknown":true}`)

	e := &hearing{EventID: 77, Details: h.api.url("/api/Hearings/77")}
	require.NoError(t, h.crawler.Crawl(context.Background(), e, nil))

	want := fmt.Sprintf(`{"EventId":77,"Details":%q,"Name":"Public Hearing"}`, e.Details)
	assert.JSONEq(t, want, h.record(t, "hearing", "77"))
	assert.False(t, e.DocumentURLs.Resolved())
}

func TestCrawlHearingRunsCustomFetcher(t *testing.T) {
	t.Parallel()

	docs := FetcherFor("document_urls", func(_ context.Context, _ *Env, h *hearing) error {
		h.DocumentURLs.Set([]string{})
		return nil
	})
	h := newHarness(t, hearingType(docs))
	h.api.set("/api/Hearings/77", http.StatusOK, `{"Name":"Public Hearing"}`)

	e := &hearing{EventID: 77, Details: h.api.url("/api/Hearings/77")}
	require.NoError(t, h.crawler.Crawl(context.Background(), e, nil))

	want := fmt.Sprintf(`{"EventId":77,"Details":%q,"Name":"Public Hearing","document_urls":[]}`, e.Details)
	assert.JSONEq(t, want, h.record(t, "hearing", "77"))
}

func TestCrawlIsIdempotentOnceResolved(t *testing.T) {
	t.Parallel()

	h := newHarness(t, hearingType())
	h.api.set("/api/Hearings/77", http.StatusOK, `{"Name":"Public Hearing","document_urls":["a"]}`)
	ctx := context.Background()

	e := &hearing{EventID: 77, Details: h.api.url("/api/Hearings/77")}
	require.NoError(t, h.crawler.Crawl(ctx, e, nil))
	require.Equal(t, 1, h.api.total())
	before := h.record(t, "hearing", "77")

	require.NoError(t, h.crawler.Crawl(ctx, e, nil))
	listed := &hearing{EventID: 77, Details: e.Details}
	require.NoError(t, h.crawler.Crawl(ctx, listed, nil))

	assert.Equal(t, 1, h.api.total())
	assert.Equal(t, before, h.record(t, "hearing", "77"))
	name, _ := listed.Name.Get()
	assert.Equal(t, "Public Hearing", name)
}

func TestCrawlTerminatesOnTypeCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		&Type{Name: "alpha", New: func() entity.Entity { return &alpha{} }},
		&Type{Name: "beta", New: func() entity.Entity { return &beta{} }},
	)
	h.api.set("/alpha/a1", http.StatusOK,
		fmt.Sprintf(`{"Label":"A","Partner":{"ID":"b1","Details":%q}}`, h.api.url("/beta/b1")))
	h.api.set("/beta/b1", http.StatusOK,
		fmt.Sprintf(`{"Label":"B","Back":{"ID":"a1","Details":%q}}`, h.api.url("/alpha/a1")))

	a := &alpha{ID: "a1", Details: h.api.url("/alpha/a1")}
	require.NoError(t, h.crawler.Crawl(context.Background(), a, nil))

	assert.Equal(t, 1, h.api.count("/alpha/a1"))
	assert.Equal(t, 1, h.api.count("/beta/b1"))

	partner, ok := a.Partner.Get()
	require.True(t, ok)
	label, _ := partner.Label.Get()
	assert.Equal(t, "B", label)
	assert.True(t, partner.Back.Resolved())

	loaded, found, err := h.store.Load(context.Background(), "beta", "b1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, entity.Unresolved(loaded))
}

func TestCrawlPartialProgressIsDurable(t *testing.T) {
	t.Parallel()

	crash := errors.New("simulated crash")
	h := newHarness(t, tripleType(
		FetcherFor("A", func(_ context.Context, _ *Env, e *triple) error { e.A.Set("a"); return nil }),
		FetcherFor("B", func(context.Context, *Env, *triple) error { return crash }),
		FetcherFor("C", func(_ context.Context, _ *Env, e *triple) error { e.C.Set("c"); return nil }),
	))

	err := h.crawler.Crawl(context.Background(), &triple{ID: "t1"}, nil)
	require.ErrorIs(t, err, crash)

	loaded, found, err := h.store.Load(context.Background(), "triple", "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"A"}, entity.Resolved(loaded))
	assert.Equal(t, []string{"B", "C"}, entity.Unresolved(loaded))
	assert.False(t, loaded.(*triple).B.IsNull())
}

func TestCollectPrefersCachedFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, tripleType())
	cached := &triple{ID: "t1"}
	cached.A.Set("cached")
	require.NoError(t, h.store.Save(ctx, cached))
	h.api.set("/api/Triples", http.StatusOK, `[{"ID":"t1","B":"listed"}]`)

	items, sum, err := h.crawler.Collect(ctx, "triple", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, items, 1)
	got := items[0].(*triple)
	a, _ := got.A.Get()
	b, _ := got.B.Get()
	assert.Equal(t, "cached", a)
	assert.Equal(t, "listed", b)
	assert.Equal(t, 1, sum.Cached)
	assert.Zero(t, sum.New)
}

func TestCollectOverwriteReplacesCachedEntity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, tripleType())
	cached := &triple{ID: "t1"}
	cached.A.Set("cached")
	require.NoError(t, h.store.Save(ctx, cached))
	h.api.set("/api/Triples", http.StatusOK, `[{"ID":"t1"}]`)

	opts := DefaultOptions()
	opts.Overwrite = true
	items, _, err := h.crawler.Collect(ctx, "triple", opts)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].(*triple).A.Resolved())
	assert.JSONEq(t, `{"ID":"t1"}`, h.record(t, "triple", "t1"))
}

func seedTriples(t *testing.T, h *harness, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.store.Save(context.Background(), &triple{ID: id}))
	}
}

func identities(t *testing.T, items []entity.Entity) []string {
	t.Helper()
	out := make([]string, 0, len(items))
	for _, e := range items {
		id, err := e.Identity()
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}

func TestCollectPrunesStaleEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, tripleType())
	seedTriples(t, h, "A", "B", "C")
	h.api.set("/api/Triples", http.StatusOK, `[{"ID":"A"},{"ID":"C"}]`)

	opts := DefaultOptions()
	opts.Prune = PruneAlways
	items, sum, err := h.crawler.Collect(ctx, "triple", opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, identities(t, items))
	assert.Equal(t, 1, sum.Stale)
	assert.Equal(t, 1, sum.Pruned)

	_, found, err := h.store.Load(ctx, "triple", "B")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCollectRetainsStaleEntriesWithoutPruning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, tripleType())
	seedTriples(t, h, "A", "B", "C")
	h.api.set("/api/Triples", http.StatusOK, `[{"ID":"A"},{"ID":"C"}]`)

	opts := DefaultOptions()
	opts.Prune = PruneNever
	items, sum, err := h.crawler.Collect(ctx, "triple", opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, identities(t, items))
	assert.Zero(t, sum.Pruned)

	_, found, err := h.store.Load(ctx, "triple", "B")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCollectEndpointOverrideNeverPrunes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, hearingType())
	require.NoError(t, h.store.Save(ctx, &hearing{EventID: 1}))
	h.api.set("/api/Hearings/Subset", http.StatusOK, `[{"EventId":2}]`)

	opts := DefaultOptions()
	opts.Endpoint = "/api/Hearings/Subset"
	_, sum, err := h.crawler.Collect(ctx, "hearing", opts)
	require.NoError(t, err)
	assert.Zero(t, sum.Pruned)

	_, found, err := h.store.Load(ctx, "hearing", "1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCrawlDetailNotFoundFinalizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, hearingType())
	h.api.set("/api/Hearings/9", http.StatusNotFound, `gone`)

	e := &hearing{EventID: 9, Details: h.api.url("/api/Hearings/9")}
	require.NoError(t, h.crawler.Crawl(context.Background(), e, nil))

	assert.True(t, e.Name.IsNull())
	assert.True(t, e.DocumentURLs.IsNull())
	want := fmt.Sprintf(`{"EventId":9,"Details":%q,"Name":null,"document_urls":null}`, e.Details)
	assert.JSONEq(t, want, h.record(t, "hearing", "9"))
	assert.Contains(t, h.errLog.String(), `"status":404`)
	assert.Contains(t, h.errLog.String(), `"identity":"9"`)
}

func TestCrawlDetailServerErrorIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, hearingType())
	h.api.set("/api/Hearings/9", http.StatusInternalServerError, `oops`)

	err := h.crawler.Crawl(context.Background(), &hearing{EventID: 9, Details: h.api.url("/api/Hearings/9")}, nil)
	status, ok := fetcher.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestCrawlWithoutDetailURLFinalizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, hearingType())
	e := &hearing{EventID: 5}
	require.NoError(t, h.crawler.Crawl(context.Background(), e, nil))
	assert.JSONEq(t, `{"EventId":5,"Name":null,"document_urls":null}`, h.record(t, "hearing", "5"))
	assert.Zero(t, h.api.total())
}

func TestCollectListUnavailableServesCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, tripleType())
	seedTriples(t, h, "A")
	h.api.set("/api/Triples", http.StatusServiceUnavailable, `maintenance`)

	items, sum, err := h.crawler.Collect(ctx, "triple", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, sum.Degraded)
	assert.Equal(t, []string{"A"}, identities(t, items))
	assert.Contains(t, h.errLog.String(), `"identity":"list"`)
}

func TestCollectDegradableStatusesArePerType(t *testing.T) {
	t.Parallel()

	journal := tripleType()
	journal.Degradable = []int{http.StatusInternalServerError}
	h := newHarness(t, journal)
	h.api.set("/api/Triples", http.StatusServiceUnavailable, `maintenance`)

	_, _, err := h.crawler.Collect(context.Background(), "triple", DefaultOptions())
	status, ok := fetcher.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestCollectMalformedListIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tripleType())
	h.api.set("/api/Triples", http.StatusOK, `{"not":"a list"}`)

	_, _, err := h.crawler.Collect(context.Background(), "triple", DefaultOptions())
	require.ErrorIs(t, err, fetcher.ErrMalformedPayload)
}

func TestCollectDropsDuplicatesAndSkipsUnidentifiable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tripleType())
	h.api.set("/api/Triples", http.StatusOK, `[{"ID":"A","A":"first"},{"ID":"A","A":"second"},{"A":"anonymous"}]`)

	items, sum, err := h.crawler.Collect(context.Background(), "triple", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, items, 1)
	a, _ := items[0].(*triple).A.Get()
	assert.Equal(t, "first", a)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, strings.Count(h.errLog.String(), "\n"))
	assert.Contains(t, h.errLog.String(), entity.ErrIdentityCollision.Error())
}

func TestCollectCacheOnlyMakesNoRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tripleType())
	seedTriples(t, h, "B", "A")

	opts := DefaultOptions()
	opts.CheckUpstream = false
	items, _, err := h.crawler.Collect(context.Background(), "triple", opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, identities(t, items))
	assert.Zero(t, h.api.total())
}

func TestScrapeAllCrawlsEveryItem(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tripleType(
		FetcherFor("A", func(_ context.Context, _ *Env, e *triple) error { e.A.Set("a-" + e.ID); return nil }),
		FetcherFor("B", func(_ context.Context, _ *Env, e *triple) error { e.B.SetNull(); return nil }),
		FetcherFor("C", func(_ context.Context, _ *Env, e *triple) error { e.C.Set(""); return nil }),
	))
	var list strings.Builder
	list.WriteString("[")
	for i := range 20 {
		if i > 0 {
			list.WriteString(",")
		}
		fmt.Fprintf(&list, `{"ID":"t%d"}`, i)
	}
	list.WriteString("]")
	h.api.set("/api/Triples", http.StatusOK, list.String())

	opts := DefaultOptions()
	opts.Concurrency = 3
	items, sum, err := h.crawler.ScrapeAll(context.Background(), "triple", opts)
	require.NoError(t, err)
	assert.Len(t, items, 20)
	assert.Equal(t, 20, sum.Crawled)

	loaded, found, err := h.store.Load(context.Background(), "triple", "t7")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, entity.Complete(loaded))
	a, _ := loaded.(*triple).A.Get()
	assert.Equal(t, "a-t7", a)
}

func TestGetFallsBackToUpstream(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, tripleType())
	h.api.set("/api/Triples", http.StatusOK, `[{"ID":"X"}]`)

	_, found, err := h.crawler.Get(ctx, "triple", "X", false)
	require.NoError(t, err)
	assert.False(t, found)

	e, found, err := h.crawler.Get(ctx, "triple", "X", true)
	require.NoError(t, err)
	require.True(t, found)
	id, _ := e.Identity()
	assert.Equal(t, "X", id)

	_, _, err = h.crawler.Get(ctx, "unknown", "X", false)
	require.Error(t, err)
}

func TestRegistryRejectsMismatchedKind(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.Error(t, r.Register(&Type{Name: "other", New: func() entity.Entity { return &triple{} }}))
	require.NoError(t, r.Register(tripleType()))
	require.Error(t, r.Register(tripleType()))
	_, err := r.New("nope")
	require.Error(t, err)
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/malegislature-crawler/internal/app"
	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/Documents/SupportedCities":
			_, _ = w.Write([]byte(`["Boston","Lowell"]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"--log-level", "error"}, args...), &out)
	return out.String(), err
}

func TestTypesCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "--cache-root", t.TempDir(), "types")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "/api/Hearings")
	assert.Contains(t, out, "roll-call")
}

func TestCrawlThenShow(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t)
	root := t.TempDir()

	out, err := execute(t, "--cache-root", root, "--base-url", srv.URL, "crawl", "city", "--concurrency", "2")
	require.NoError(t, err)

	var rep app.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Summaries, 1)
	assert.Equal(t, "city", rep.Summaries[0].Kind)
	assert.Equal(t, 2, rep.Summaries[0].Fetched)
	assert.NotEmpty(t, rep.RunID)

	out, err = execute(t, "--cache-root", root, "--base-url", srv.URL, "show", "city", "Lowell")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Lowell","documents":[]}`, out)

	_, err = execute(t, "--cache-root", root, "--base-url", srv.URL, "show", "city", "Springfield")
	require.ErrorContains(t, err, "not found")
}

func TestCrawlCacheOnlyReadsCache(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t)
	root := t.TempDir()

	_, err := execute(t, "--cache-root", root, "--base-url", srv.URL, "crawl", "city")
	require.NoError(t, err)
	srv.Close()

	out, err := execute(t, "--cache-root", root, "--base-url", srv.URL, "crawl", "city", "--cache-only")
	require.NoError(t, err)
	var rep app.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Summaries, 1)
	assert.Equal(t, 2, rep.Summaries[0].Cached)
	assert.Zero(t, rep.Summaries[0].Fetched)
}

func TestCrawlRejectsBadArguments(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := execute(t, "--cache-root", root, "crawl", "parking-ticket")
	require.ErrorContains(t, err, "unknown kind")

	_, err = execute(t, "--cache-root", root, "crawl", "--prune", "--no-prune")
	require.Error(t, err)

	_, err = execute(t, "--cache-root", root, "crawl", "--concurrency=-1")
	require.ErrorContains(t, err, "--concurrency")
}

func TestCrawlFlagsOptions(t *testing.T) {
	t.Parallel()

	base := crawl.DefaultOptions()

	opts, err := (&crawlFlags{}).options(base)
	require.NoError(t, err)
	assert.Equal(t, base, opts)

	opts, err = (&crawlFlags{cacheOnly: true, overwrite: true, concurrency: 3, noPrune: true}).options(base)
	require.NoError(t, err)
	assert.False(t, opts.CheckUpstream)
	assert.True(t, opts.UseCache)
	assert.True(t, opts.Overwrite)
	assert.Equal(t, 3, opts.Concurrency)
	assert.Equal(t, crawl.PruneNever, opts.Prune)

	opts, err = (&crawlFlags{noCache: true, prune: true}).options(base)
	require.NoError(t, err)
	assert.False(t, opts.UseCache)
	assert.Equal(t, crawl.PruneAlways, opts.Prune)
}

func TestServeUntilCanceled(t *testing.T) {
	t.Parallel()

	st := &state{cacheDir: t.TempDir(), logLevel: "error"}
	t.Cleanup(st.close)
	setupCmd := &cobra.Command{}
	setupCmd.SetContext(context.Background())
	require.NoError(t, st.setup(setupCmd))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, st) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) // #nosec G107 -- local test listener.
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

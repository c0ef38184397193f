package images

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/newsops/internal/config"
	"github.com/TobiSchelling/newsops/internal/logger"
)

const testMinBytes = 100

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/big.jpg":
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			w.Write(bytes.Repeat([]byte("x"), 500))
		case "/small.jpg":
			w.Write([]byte("tiny"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(config.Images{
		Dir:       filepath.Join(t.TempDir(), "cities"),
		MinBytes:  testMinBytes,
		Timeout:   5 * time.Second,
		UserAgent: "test-agent",
	}, logger.Discard())
}

func TestFetchAllOutcome(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	f := newTestFetcher(t)

	files := []config.ImageFile{
		{Name: "tokyo.jpg", URL: srv.URL + "/big.jpg"},
		{Name: "osaka.jpg", URL: srv.URL + "/missing.jpg"},
		{Name: "kyoto.jpg", URL: srv.URL + "/small.jpg"},
	}
	res := f.FetchAll(context.Background(), files)

	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, []string{"kyoto.jpg"}, res.Undersized)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "osaka.jpg", res.Failures[0].Name)
	assert.Contains(t, res.Failures[0].Err.Error(), "404")

	// Every file is either present above threshold or reported.
	failed := map[string]bool{}
	for _, fl := range res.Failures {
		failed[fl.Name] = true
	}
	undersized := map[string]bool{"kyoto.jpg": true}
	for _, file := range files {
		if failed[file.Name] {
			continue
		}
		info, err := os.Stat(filepath.Join(f.Dir(), file.Name))
		require.NoError(t, err)
		if !undersized[file.Name] {
			assert.Greater(t, info.Size(), int64(testMinBytes))
		}
	}
	_, err := os.Stat(filepath.Join(f.Dir(), "osaka.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchAllSkipsExistingLargeFiles(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	f := newTestFetcher(t)

	require.NoError(t, os.MkdirAll(f.Dir(), 0o755))
	existing := bytes.Repeat([]byte("y"), 200)
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "tokyo.jpg"), existing, 0o644))

	res := f.FetchAll(context.Background(), []config.ImageFile{
		{Name: "tokyo.jpg", URL: srv.URL + "/big.jpg"},
	})

	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Downloaded)
	assert.Zero(t, hits.Load())

	data, err := os.ReadFile(filepath.Join(f.Dir(), "tokyo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, existing, data)
}

func TestFetchAllReplacesTruncatedFiles(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	f := newTestFetcher(t)

	require.NoError(t, os.MkdirAll(f.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "tokyo.jpg"), []byte("partial"), 0o644))

	res := f.FetchAll(context.Background(), []config.ImageFile{
		{Name: "tokyo.jpg", URL: srv.URL + "/big.jpg"},
	})

	assert.Equal(t, 1, res.Downloaded)
	info, err := os.Stat(filepath.Join(f.Dir(), "tokyo.jpg"))
	require.NoError(t, err)
	assert.EqualValues(t, 500, info.Size())
}

func TestFetchAllLeavesNoTempFiles(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	f := newTestFetcher(t)

	f.FetchAll(context.Background(), []config.ImageFile{
		{Name: "tokyo.jpg", URL: srv.URL + "/big.jpg"},
		{Name: "osaka.jpg", URL: srv.URL + "/missing.jpg"},
	})

	entries, err := os.ReadDir(f.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tokyo.jpg", entries[0].Name())
}

func TestFetchAllStopsOnCancelledContext(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	f := newTestFetcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.FetchAll(ctx, []config.ImageFile{
		{Name: "tokyo.jpg", URL: srv.URL + "/big.jpg"},
	})

	assert.Zero(t, res.Downloaded)
	assert.Zero(t, hits.Load())
}

func TestMissing(t *testing.T) {
	f := newTestFetcher(t)
	require.NoError(t, os.MkdirAll(f.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "a.jpg"), bytes.Repeat([]byte("z"), 150), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "b.jpg"), []byte("z"), 0o644))

	missing := f.Missing([]config.ImageFile{
		{Name: "a.jpg", URL: "http://example.invalid/a"},
		{Name: "b.jpg", URL: "http://example.invalid/b"},
		{Name: "c.jpg", URL: "http://example.invalid/c"},
	})

	var names []string
	for _, m := range missing {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"b.jpg", "c.jpg"}, names)
}

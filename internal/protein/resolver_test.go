package protein_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insilica/dockgate/internal/config"
	"github.com/insilica/dockgate/internal/protein"
)

// pdbContent is a minimal fake structure body comfortably above the
// test minimum size.
var pdbContent = []byte("HEADER    FAKE STRUCTURE\n" + strings.Repeat("ATOM      1  N   MET A   1\n", 10))

func testConfig(t *testing.T, archiveURL string) config.ProteinConfig {
	t.Helper()
	return config.ProteinConfig{
		CacheDir:       t.TempDir(),
		ArchiveBaseURL: archiveURL,
		MinFileBytes:   100,
		FetchTimeout:   5 * time.Second,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newResolver(t *testing.T, cfg config.ProteinConfig) *protein.Resolver {
	t.Helper()
	r, err := protein.NewResolver(cfg, testLogger())
	require.NoError(t, err)
	return r
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestResolveLocalHit(t *testing.T) {
	cfg := testConfig(t, "")
	path := filepath.Join(cfg.CacheDir, "P12345.pdb")
	require.NoError(t, os.WriteFile(path, pdbContent, 0o644))

	rec, err := newResolver(t, cfg).Resolve(context.Background(), "P12345")
	require.NoError(t, err)
	assert.Equal(t, path, rec.LocalPath)
	assert.Equal(t, protein.SourceLocal, rec.Source)
}

func TestResolveLocalCompressed(t *testing.T) {
	cfg := testConfig(t, "")
	gzPath := filepath.Join(cfg.CacheDir, "P12345.pdb.gz")
	require.NoError(t, os.WriteFile(gzPath, gzipBytes(t, pdbContent), 0o644))

	rec, err := newResolver(t, cfg).Resolve(context.Background(), "P12345")
	require.NoError(t, err)
	assert.Equal(t, protein.SourceLocal, rec.Source)

	got, err := os.ReadFile(rec.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, pdbContent, got)
}

func TestResolveRemoteFetch(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		if r.URL.Path == "/Q67890.pdb" {
			_, _ = w.Write(pdbContent)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	rec, err := newResolver(t, cfg).Resolve(context.Background(), "Q67890")
	require.NoError(t, err)
	assert.Equal(t, protein.SourceRemoteCache, rec.Source)
	assert.False(t, rec.FetchedAt.IsZero())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	got, err := os.ReadFile(rec.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, pdbContent, got)
}

func TestResolveRemoteCompressedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Q67890.pdb.gz" {
			_, _ = w.Write(gzipBytes(t, pdbContent))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	rec, err := newResolver(t, cfg).Resolve(context.Background(), "Q67890")
	require.NoError(t, err)

	got, err := os.ReadFile(rec.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, pdbContent, got)
}

func TestResolveNotFoundAnywhere(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := newResolver(t, cfg).Resolve(context.Background(), "Q99999")
	require.Error(t, err)
	assert.ErrorIs(t, err, protein.ErrProteinNotFound)
}

func TestResolveNotFoundWithoutArchive(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := newResolver(t, cfg).Resolve(context.Background(), "Q99999")
	require.Error(t, err)
	assert.ErrorIs(t, err, protein.ErrProteinNotFound)
}

func TestResolveServerErrorIsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := newResolver(t, cfg).Resolve(context.Background(), "Q67890")
	require.Error(t, err)
	assert.ErrorIs(t, err, protein.ErrFetchFailed)
}

func TestResolveRejectsTinyFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Q67890.pdb" {
			_, _ = w.Write([]byte("stub"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := newResolver(t, cfg).Resolve(context.Background(), "Q67890")
	require.Error(t, err)
	assert.ErrorIs(t, err, protein.ErrFetchFailed)

	// Nothing partial may be left behind in the cache.
	_, statErr := os.Stat(filepath.Join(cfg.CacheDir, "Q67890.pdb"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveCollapsesConcurrentFetches(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		<-release
		_, _ = w.Write(pdbContent)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	resolver := newResolver(t, cfg)

	const callers = 8
	var wg sync.WaitGroup
	paths := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := resolver.Resolve(context.Background(), "Q67890")
			errs[i] = err
			if err == nil {
				paths[i] = rec.LocalPath
			}
		}(i)
	}

	// Give all callers time to join the flight, then let the single
	// fetch finish.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches), "expected exactly one remote fetch")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
}

func TestResolveRemapRedirect(t *testing.T) {
	cfg := testConfig(t, "")
	remapPath := filepath.Join(t.TempDir(), "remap.csv")
	require.NoError(t, os.WriteFile(remapPath, []byte("# old,canonical\n1ABC,P12345\n"), 0o644))
	cfg.RemapPath = remapPath

	canonical := filepath.Join(cfg.CacheDir, "P12345.pdb")
	require.NoError(t, os.WriteFile(canonical, pdbContent, 0o644))

	rec, err := newResolver(t, cfg).Resolve(context.Background(), "1ABC")
	require.NoError(t, err)
	assert.Equal(t, canonical, rec.LocalPath)
	assert.Equal(t, "P12345", rec.ProteinID)
}

func TestResolveFailedFetchRetriedByLaterRequest(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&fetches, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Path == "/Q67890.pdb" {
			_, _ = w.Write(pdbContent)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	resolver := newResolver(t, cfg)

	_, err := resolver.Resolve(context.Background(), "Q67890")
	require.Error(t, err)

	rec, err := resolver.Resolve(context.Background(), "Q67890")
	require.NoError(t, err)
	assert.Equal(t, protein.SourceRemoteCache, rec.Source)
}

func ExampleLoadRemapTable() {
	dir, _ := os.MkdirTemp("", "remap")
	defer func() { _ = os.RemoveAll(dir) }()
	path := filepath.Join(dir, "remap.csv")
	_ = os.WriteFile(path, []byte("1ABC,P12345\n"), 0o644)

	remap, _ := protein.LoadRemapTable(path)
	fmt.Println(remap["1ABC"])
	// Output: P12345
}

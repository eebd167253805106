// Package protein resolves protein identifiers to local structure file
// paths. It checks a local cache directory of ${id}.pdb / ${id}.pdb.gz
// files first and on miss fetches the structure from a configured
// remote archive, writing atomically so concurrent readers never see a
// partial file. Concurrent resolutions of the same identifier collapse
// into one in-flight fetch.
package protein

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/insilica/dockgate/internal/config"
)

// Source records where a resolved structure came from.
type Source string

const (
	SourceLocal       Source = "local"
	SourceRemoteCache Source = "remote-cache"
)

// Record describes one resolved protein structure.
type Record struct {
	ProteinID string
	LocalPath string
	Source    Source
	FetchedAt time.Time
}

// Resolver maps protein identifiers to local structure files.
type Resolver struct {
	cfg    config.ProteinConfig
	remap  map[string]string
	client *http.Client
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver creates a Resolver. It ensures the cache directory exists
// and loads the identifier remap table when one is configured.
func NewResolver(cfg config.ProteinConfig, log *slog.Logger) (*Resolver, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create protein cache dir: %w", err)
	}

	remap := map[string]string{}
	if cfg.RemapPath != "" {
		loaded, err := LoadRemapTable(cfg.RemapPath)
		if err != nil {
			return nil, err
		}
		remap = loaded
		log.Info("loaded protein identifier remap table",
			"path", cfg.RemapPath,
			"entries", len(loaded))
	}

	return &Resolver{
		cfg:    cfg,
		remap:  remap,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		logger: log.With("component", "protein_resolver"),
	}, nil
}

// Resolve returns the local path of the structure file for proteinID.
// The remap table, if any, is consulted first; a mapping entry
// redirects the lookup to the canonical stored name without refetching.
// Returns ErrProteinNotFound when the identifier exists nowhere and
// ErrFetchFailed when the remote transfer breaks.
func (r *Resolver) Resolve(ctx context.Context, proteinID string) (*Record, error) {
	id := proteinID
	if canonical, ok := r.remap[id]; ok {
		r.logger.Debug("remapped protein identifier", "from", id, "to", canonical)
		id = canonical
	}

	// Fast path: an uncompressed structure already cached.
	pdbPath := filepath.Join(r.cfg.CacheDir, id+".pdb")
	if r.usableFile(pdbPath) {
		return &Record{ProteinID: id, LocalPath: pdbPath, Source: SourceLocal}, nil
	}

	// Slow path: decompress a cached .gz or fetch remotely. Collapsed
	// per identifier so concurrent callers share one flight; the group
	// evicts the entry when the flight completes, letting a later
	// unrelated request retry a failed fetch.
	v, err, shared := r.group.Do(id, func() (interface{}, error) {
		return r.materialize(id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("protein resolution shared an in-flight fetch", "protein_id", id)
	}

	rec := v.(*Record)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// materialize produces the uncompressed ${id}.pdb in the cache dir,
// from the compressed local copy when present and from the remote
// archive otherwise. It runs inside the singleflight group.
func (r *Resolver) materialize(id string) (*Record, error) {
	pdbPath := filepath.Join(r.cfg.CacheDir, id+".pdb")
	if r.usableFile(pdbPath) {
		// A concurrent flight completed between the fast path and here.
		return &Record{ProteinID: id, LocalPath: pdbPath, Source: SourceLocal}, nil
	}

	gzPath := pdbPath + ".gz"
	if _, err := os.Stat(gzPath); err == nil {
		if err := r.decompressInto(gzPath, pdbPath); err != nil {
			return nil, err
		}
		return &Record{ProteinID: id, LocalPath: pdbPath, Source: SourceLocal}, nil
	}

	if r.cfg.ArchiveBaseURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrProteinNotFound, id)
	}

	rec, err := r.fetch(id, pdbPath)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// fetch downloads the structure for id from the remote archive into
// pdbPath. It tries the plain .pdb object first and falls back to the
// gzip-compressed object. The transfer uses a detached context bounded
// by the configured fetch timeout, so an aborted HTTP caller does not
// poison the flight for the other waiters.
func (r *Resolver) fetch(id, pdbPath string) (*Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FetchTimeout)
	defer cancel()

	for _, attempt := range []struct {
		suffix     string
		compressed bool
	}{
		{".pdb", false},
		{".pdb.gz", true},
	} {
		url := r.cfg.ArchiveBaseURL + "/" + id + attempt.suffix
		found, err := r.fetchOne(ctx, url, pdbPath, attempt.compressed)
		if err != nil {
			return nil, err
		}
		if found {
			r.logger.Info("fetched protein structure from remote archive",
				"protein_id", id,
				"url", url)
			return &Record{
				ProteinID: id,
				LocalPath: pdbPath,
				Source:    SourceRemoteCache,
				FetchedAt: time.Now().UTC(),
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrProteinNotFound, id)
}

// fetchOne downloads one archive object into pdbPath via a temp file
// and atomic rename. It returns (false, nil) on a 404 so the caller can
// try the next object form.
func (r *Resolver) fetchOne(ctx context.Context, url, pdbPath string, compressed bool) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("%w: unexpected status %d from %s", ErrFetchFailed, resp.StatusCode, url)
	}

	var body io.Reader = resp.Body
	if compressed {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return false, fmt.Errorf("%w: bad gzip stream: %v", ErrFetchFailed, err)
		}
		defer func() { _ = gz.Close() }()
		body = gz
	}

	written, err := r.writeAtomic(pdbPath, body)
	if err != nil {
		return false, err
	}

	// A plain transfer that delivered fewer bytes than announced was
	// truncated mid-stream.
	if !compressed && resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(pdbPath)
		return false, fmt.Errorf("%w: truncated transfer, got %d of %d bytes",
			ErrFetchFailed, written, resp.ContentLength)
	}

	return true, nil
}

// decompressInto expands a cached .pdb.gz into the plain .pdb path.
func (r *Resolver) decompressInto(gzPath, pdbPath string) error {
	f, err := os.Open(gzPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: bad gzip file %s: %v", ErrFetchFailed, gzPath, err)
	}
	defer func() { _ = gz.Close() }()

	if _, err := r.writeAtomic(pdbPath, gz); err != nil {
		return err
	}
	return nil
}

// writeAtomic streams src to a temp file in the cache dir, verifies the
// minimum size, fsyncs and renames it into place. Readers of dst never
// observe a partial file.
func (r *Resolver) writeAtomic(dst string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(r.cfg.CacheDir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	written, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	if written < r.cfg.MinFileBytes {
		_ = tmp.Close()
		return 0, fmt.Errorf("%w: structure file is only %d bytes", ErrFetchFailed, written)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return written, nil
}

// usableFile reports whether path exists and meets the minimum size.
func (r *Resolver) usableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() >= r.cfg.MinFileBytes
}

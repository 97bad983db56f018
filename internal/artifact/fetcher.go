// Package artifact materializes the pretrained model binary on the host
// so it can be copied into the image at build time.
//
// The fetch contract mirrors the pipeline's error model: a single blocking
// HTTP(S) GET of the fixed URL, no retry, no resumable download, and any
// failure (DNS, HTTP status, disk) aborts the whole build. The only
// post-conditions checked are that the file exists and has non-zero size.
// No checksum verification is performed against an expected value; the
// sha256 digest of the fetched bytes is recorded for provenance only.
//
// Fetched artifacts are cached under the XDG cache directory, keyed by
// source URL, so an unchanged rebuild does not re-download a
// multi-gigabyte model file.
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/opencontainers/go-digest"
	"golang.org/x/time/rate"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// defaultFetchTimeout bounds a single artifact download. Model binaries
// are multi-gigabyte files, so the timeout is generous; it exists to keep
// a wedged connection from hanging a build forever.
const defaultFetchTimeout = 2 * time.Hour

// rateBurst is the limiter burst size for bandwidth-capped downloads.
// It must be at least as large as a single read chunk.
const rateBurst = 256 * 1024

// Options configures a Fetcher. The zero value selects the XDG cache
// directory, no bandwidth cap, and a default HTTP client.
type Options struct {
	// CacheDir overrides the artifact cache location. When empty, the
	// cache lives under the user's XDG cache home ("modelpack/artifacts").
	CacheDir string

	// BytesPerSecond caps download bandwidth. Zero means unlimited.
	BytesPerSecond int64

	// DisableCache forces a network fetch even when a cached copy exists.
	DisableCache bool

	// Client overrides the HTTP client, used by tests to point the
	// fetcher at an httptest server with custom transport behavior.
	Client *http.Client
}

// Fetcher downloads model binaries into the local artifact cache.
type Fetcher struct {
	client       *http.Client
	cacheDir     string
	limiter      *rate.Limiter
	disableCache bool
}

// NewFetcher creates a Fetcher from the given options.
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		client:       opts.Client,
		cacheDir:     opts.CacheDir,
		disableCache: opts.DisableCache,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if f.cacheDir == "" {
		f.cacheDir = filepath.Join(xdg.CacheHome, "modelpack", "artifacts")
	}
	if opts.BytesPerSecond > 0 {
		burst := rateBurst
		if opts.BytesPerSecond > int64(burst) {
			burst = int(opts.BytesPerSecond)
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.BytesPerSecond), burst)
	}
	return f
}

// CachePath returns the local cache location for the given artifact.
// The path is keyed by the sha256 of the source URL so that two artifacts
// with the same file name but different origins never collide.
func (f *Fetcher) CachePath(art model.ModelArtifact) string {
	key := digest.FromString(art.URL).Encoded()[:12]
	return filepath.Join(f.cacheDir, key, art.FileName())
}

// Fetch materializes the artifact on the host and returns its local path,
// size, and recorded digest.
//
// The cache is consulted first: an existing non-empty file for this URL is
// returned without touching the network (its digest is recomputed from
// disk). Otherwise the artifact is downloaded to a temporary file in the
// cache directory and atomically renamed into place on success, so a
// failed or interrupted fetch never leaves a partially usable artifact
// behind.
//
// All failure modes return a CLIError with ExitFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, art model.ModelArtifact) (*model.FetchedArtifact, error) {
	dest := f.CachePath(art)

	if !f.disableCache {
		if cached, ok := f.fromCache(dest); ok {
			return cached, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to create artifact cache directory %s", filepath.Dir(dest)), err)
	}

	fetched, err := f.download(ctx, art.URL, dest)
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// fromCache checks whether a usable cached copy exists at dest. A usable
// copy is a regular file with non-zero size; its digest is recomputed so
// callers always get provenance information, cache hit or not.
func (f *Fetcher) fromCache(dest string) (*model.FetchedArtifact, bool) {
	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		return nil, false
	}

	file, err := os.Open(dest)
	if err != nil {
		return nil, false
	}
	defer func() { _ = file.Close() }()

	dgst, err := digest.SHA256.FromReader(file)
	if err != nil {
		return nil, false
	}

	return &model.FetchedArtifact{
		LocalPath: dest,
		Size:      info.Size(),
		Digest:    dgst,
		FromCache: true,
	}, true
}

// download performs the single blocking GET and writes the body to dest
// via a temporary file. The sha256 digest is computed on the fly while
// streaming, avoiding a second pass over a multi-gigabyte file.
func (f *Fetcher) download(ctx context.Context, url, dest string) (*model.FetchedArtifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("invalid artifact URL %q", url), err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to fetch model artifact from %s", url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to fetch model artifact from %s: HTTP %d", url, resp.StatusCode))
	}

	// Write to a temp file next to the destination so the final rename
	// stays on one filesystem and is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			"failed to create temporary download file", err)
	}
	tmpPath := tmp.Name()
	// The temp file is removed on every failure path. After a successful
	// rename the removal is a harmless no-op on a non-existent path.
	defer func() { _ = os.Remove(tmpPath) }()

	var body io.Reader = resp.Body
	if f.limiter != nil {
		body = &limitedReader{r: resp.Body, limiter: f.limiter, ctx: ctx}
	}

	digester := digest.SHA256.Digester()
	size, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), body)
	closeErr := tmp.Close()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to download model artifact from %s", url), err)
	}
	if closeErr != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to write model artifact to %s", dest), closeErr)
	}
	if size == 0 {
		return nil, model.NewCLIError(model.ExitFetchFailed,
			fmt.Sprintf("model artifact from %s is empty", url))
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to move model artifact into cache at %s", dest), err)
	}

	return &model.FetchedArtifact{
		LocalPath: dest,
		Size:      size,
		Digest:    digester.Digest(),
		FromCache: false,
	}, nil
}

// limitedReader applies a token-bucket bandwidth cap to an io.Reader.
// Tokens are spent after each read, one per byte, which keeps the average
// rate at the configured limit without rejecting oversized reads.
type limitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// Read reads from the underlying reader and then blocks until the
// limiter releases enough tokens for the bytes just read.
func (l *limitedReader) Read(p []byte) (int, error) {
	// Cap the chunk size at the limiter burst, otherwise WaitN would
	// fail permanently for reads larger than the bucket.
	if len(p) > l.limiter.Burst() {
		p = p[:l.limiter.Burst()]
	}

	n, err := l.r.Read(p)
	if n > 0 {
		if waitErr := l.limiter.WaitN(l.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"fermata/types"
)

// inflightCall is the shared outcome of one in-flight encode. Waiters block
// on done; path/err are readable once done is closed.
type inflightCall struct {
	done chan struct{}
	path string
	err  error
}

// EncodingPipeline converts source files into cached artifacts. Concurrent
// requests for the same ref share a single encode (single-flight); the
// result is published into the cache atomically via temp-file rename.
type EncodingPipeline struct {
	cache   *CacheStore
	backend EncodingBackend

	mu       sync.Mutex
	inflight map[types.EpisodeRef]*inflightCall
}

// NewEncodingPipeline creates a pipeline over the given cache and backend.
func NewEncodingPipeline(cache *CacheStore, backend EncodingBackend) *EncodingPipeline {
	return &EncodingPipeline{
		cache:    cache,
		backend:  backend,
		inflight: make(map[types.EpisodeRef]*inflightCall),
	}
}

// InFlight reports whether an encode for ref is currently running.
func (p *EncodingPipeline) InFlight(ref types.EpisodeRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[ref]
	return ok
}

// InFlightCount returns the number of encodes currently running.
func (p *EncodingPipeline) InFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// EnsureTranscoded returns the artifact path for ref, encoding the source if
// no valid artifact exists. It is called synchronously by the playback path
// and by background workers; both patterns are safe and idempotent. If an
// encode for ref is already running, the caller awaits its shared outcome
// instead of starting a second subprocess.
func (p *EncodingPipeline) EnsureTranscoded(ctx context.Context, sourcePath string, ref types.EpisodeRef) (string, error) {
	p.mu.Lock()

	// Cache hit: no subprocess, no registration.
	if p.cache.IsValid(ref) {
		p.mu.Unlock()
		return p.cache.Path(ref), nil
	}

	// Invalid-but-present artifacts are deleted before re-encoding.
	final := p.cache.Path(ref)
	if _, err := os.Stat(final); err == nil {
		if err := os.Remove(final); err != nil {
			p.mu.Unlock()
			return "", fmt.Errorf("remove stale artifact %s: %w", final, err)
		}
	}

	if call, ok := p.inflight[ref]; ok {
		p.mu.Unlock()
		select {
		case <-call.done:
			return call.path, call.err
		case <-ctx.Done():
			// The encode keeps running for other waiters; only this caller
			// gives up.
			return "", ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	p.inflight[ref] = call
	p.mu.Unlock()

	path, err := p.encode(ctx, sourcePath, ref)

	// Removal is unconditional so a failed encode can be retried later
	// instead of wedging the ref as permanently in progress.
	p.mu.Lock()
	delete(p.inflight, ref)
	p.mu.Unlock()

	call.path, call.err = path, err
	close(call.done)

	return path, err
}

// encode runs the backend against a temporary path, then renames the result
// into the cache so readers never observe partial output.
func (p *EncodingPipeline) encode(ctx context.Context, sourcePath string, ref types.EpisodeRef) (string, error) {
	final := p.cache.Path(ref)
	temp := p.cache.TempPath(ref)

	if _, err := os.Stat(sourcePath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
	}

	if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	if err := p.backend.Encode(ctx, sourcePath, temp); err != nil {
		if removeErr := os.Remove(temp); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Printf("Failed to clean up temp file %s: %v", temp, removeErr)
		}
		return "", err
	}

	if _, err := os.Stat(temp); err != nil {
		return "", &EncodingError{ExitCode: 0, Detail: "encoder exited cleanly but produced no output", Err: err}
	}

	if err := os.Rename(temp, final); err != nil {
		return "", fmt.Errorf("publish artifact %s: %w", final, err)
	}

	return final, nil
}

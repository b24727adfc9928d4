// Package staging provides pluggable backends for holding serialized chunk
// payloads between chunking and batch submission.
//
// A chunk is written once through Put, read back through Open when its batch
// is submitted, and released through Discard on every exit path (success,
// error, cancellation). Three providers are available:
//
//   - memory: small runs, strict byte cap
//   - file: temp-file staging, the default
//   - object: MinIO/S3 object storage for very large runs
//
// The Registry selects a provider by estimated payload size, preferring
// object storage above a configurable threshold.
package staging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Provider IDs.
const (
	ProviderMemory = "memory"
	ProviderFile   = "file"
	ProviderObject = "object"
)

// DefaultObjectThresholdBytes determines when object-store staging is
// preferred over local providers.
const DefaultObjectThresholdBytes int64 = 256 * 1024 * 1024

// DefaultMemoryCapBytes is the max total bytes allowed in the memory provider.
const DefaultMemoryCapBytes int64 = 64 * 1024 * 1024

// Provider is a pluggable staging backend.
type Provider interface {
	ID() string

	// Put stores the payload under ref, consuming r fully. size is a hint
	// (the serialized chunk size); providers may ignore it.
	Put(ctx context.Context, ref string, r io.Reader, size int64) error

	// Open returns a reader over a previously staged payload.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Discard releases the payload. Discarding an unknown ref is a no-op.
	Discard(ctx context.Context, ref string) error
}

// NewRef creates a unique staging reference for one chunk payload.
func NewRef(seq int) string {
	return fmt.Sprintf("chunk-%06d-%s", seq, strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// Registry holds available staging providers for selection.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry builds a registry with optional initial providers.
func NewRegistry(providers ...Provider) *Registry {
	reg := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		reg.Register(p)
	}
	return reg
}

// Register adds or replaces a provider by ID.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns a provider by ID.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Select chooses a provider for a dataset of estimatedBytes. Above the
// threshold, object storage is required; otherwise the preferred provider
// wins, falling back to file then memory.
func (r *Registry) Select(preferred string, estimatedBytes, threshold int64) (Provider, error) {
	if threshold <= 0 {
		threshold = DefaultObjectThresholdBytes
	}

	if estimatedBytes > threshold {
		if p, ok := r.Get(ProviderObject); ok {
			return p, nil
		}
		return nil, fmt.Errorf("object-store staging required for %d bytes but not configured", estimatedBytes)
	}

	if preferred != "" {
		if p, ok := r.Get(preferred); ok {
			return p, nil
		}
	}

	for _, id := range []string{ProviderFile, ProviderMemory, ProviderObject} {
		if p, ok := r.Get(id); ok {
			return p, nil
		}
	}

	return nil, fmt.Errorf("no staging providers available")
}

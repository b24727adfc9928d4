package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryProvider stages chunk payloads in process memory with a strict
// total byte cap. Suitable for small runs and tests.
type MemoryProvider struct {
	maxBytes int64

	mu     sync.Mutex
	chunks map[string][]byte
	total  int64
}

// NewMemoryProvider creates a memory-backed staging provider.
func NewMemoryProvider(maxBytes int64) *MemoryProvider {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryCapBytes
	}
	return &MemoryProvider{
		maxBytes: maxBytes,
		chunks:   make(map[string][]byte),
	}
}

func (p *MemoryProvider) ID() string { return ProviderMemory }

func (p *MemoryProvider) Put(ctx context.Context, ref string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("stage %s: %w", ref, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.chunks[ref]; ok {
		p.total -= int64(len(prev))
	}
	if p.total+int64(len(data)) > p.maxBytes {
		return fmt.Errorf("stage %s: memory cap exceeded (%d bytes)", ref, p.maxBytes)
	}
	p.chunks[ref] = data
	p.total += int64(len(data))
	return nil
}

func (p *MemoryProvider) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	data, ok := p.chunks[ref]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("stage %s: not found", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *MemoryProvider) Discard(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if data, ok := p.chunks[ref]; ok {
		p.total -= int64(len(data))
		delete(p.chunks, ref)
	}
	return nil
}

// TotalBytes returns the bytes currently staged, for tests and monitoring.
func (p *MemoryProvider) TotalBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileProvider stages chunk payloads as temp files under a base directory.
// This is the default provider: chunk payloads never accumulate in memory,
// and Discard removes the backing file.
type FileProvider struct {
	dir string

	mu    sync.Mutex
	paths map[string]string
}

// NewFileProvider creates a file-backed staging provider rooted at dir.
// An empty dir uses the OS temp directory.
func NewFileProvider(dir string) (*FileProvider, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("staging dir %s: %w", dir, err)
	}
	return &FileProvider{
		dir:   dir,
		paths: make(map[string]string),
	}, nil
}

func (p *FileProvider) ID() string { return ProviderFile }

func (p *FileProvider) Put(ctx context.Context, ref string, r io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.CreateTemp(p.dir, "bulkload-"+filepath.Base(ref)+"-*.csv")
	if err != nil {
		return fmt.Errorf("stage %s: %w", ref, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("stage %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("stage %s: %w", ref, err)
	}

	p.mu.Lock()
	if prev, ok := p.paths[ref]; ok {
		os.Remove(prev)
	}
	p.paths[ref] = f.Name()
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	path, ok := p.paths[ref]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("stage %s: not found", ref)
	}
	return os.Open(path)
}

func (p *FileProvider) Discard(_ context.Context, ref string) error {
	p.mu.Lock()
	path, ok := p.paths[ref]
	delete(p.paths, ref)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w", ref, err)
	}
	return nil
}

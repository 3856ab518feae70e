package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"abus-go/internal/abus"
)

// MemoryArchive is an in-memory archive for tests.
type MemoryArchive struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ abus.ArchiveSource = (*MemoryArchive)(nil)

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{files: make(map[string][]byte)}
}

// Put stores the contents of r as dir/name, replacing any existing file.
func (m *MemoryArchive) Put(dir, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[joinKey(dir, name)] = data
	return nil
}

func (m *MemoryArchive) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[joinKey(dir, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, joinKey(dir, name))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryArchive) Walk(ctx context.Context, fn func(dir, name string) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.files))
	for k := range m.files {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir, name := "", k
		if i := strings.LastIndexByte(k, '/'); i >= 0 {
			dir, name = k[:i], k[i+1:]
		}
		if err := fn(dir, name); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored files.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

package transport

import (
	"context"
	"sync"
)

// MemoryTransport is an in-memory Transport, the one the tests use. Not
// durable across process restarts.
type MemoryTransport struct {
	mu    sync.RWMutex
	blobs map[Index][]byte
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{blobs: make(map[Index][]byte)}
}

// Put stores blob under index, overwriting any previous value. The
// tangle append-only guarantee is the caller's responsibility — the
// engine never overwrites an index that already holds a different
// message, since addresses are derived, not chosen.
func (m *MemoryTransport) Put(ctx context.Context, index Index, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.blobs[index] = stored
	return nil
}

// Get retrieves the blob stored at index, or ErrNotFound.
func (m *MemoryTransport) Get(ctx context.Context, index Index) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[index]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// GetMany retrieves every index in indices, reporting absence per-entry
// rather than failing the whole batch.
func (m *MemoryTransport) GetMany(ctx context.Context, indices []Index) ([]Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Option, len(indices))
	for i, idx := range indices {
		if blob, ok := m.blobs[idx]; ok {
			stored := make([]byte, len(blob))
			copy(stored, blob)
			out[i] = Option{Blob: stored, Present: true}
		}
	}
	return out, nil
}

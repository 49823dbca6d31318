// Package watermark persists, per entity, the highest timestamp already
// ingested. Every Store refuses to move a watermark backwards.
package watermark

import (
	"context"
	"sync"
)

// Store reads and writes per-entity watermarks.
type Store interface {
	// Get returns the stored watermark. found is false when the entity has
	// never been written; err is non-nil only when the store could not be
	// read, so callers can tell "absent" from "unavailable".
	Get(ctx context.Context, entity string) (ts string, found bool, err error)

	// Set stores ts for entity unless the stored value is already greater
	// than or equal to ts.
	Set(ctx context.Context, entity, ts string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	vals map[string]string
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{vals: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, entity string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.vals[entity]
	return ts, ok, nil
}

func (m *Memory) Set(_ context.Context, entity, ts string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.vals[entity]; ok && cur >= ts {
		return nil
	}
	m.vals[entity] = ts
	return nil
}

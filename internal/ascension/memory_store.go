package ascension

import (
	"context"
	"sync"
)

// MemoryStore 基于内存的圣殿存储。
type MemoryStore struct {
	mu    sync.RWMutex
	state *TempleState
	rites []RiteRecord
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newTempleState()}
}

func (m *MemoryStore) State(_ context.Context) (*TempleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

func (m *MemoryStore) SaveState(_ context.Context, state *TempleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	return nil
}

func (m *MemoryStore) AppendRite(_ context.Context, rite RiteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rites = append(m.rites, rite)
	if len(m.rites) > maxRites {
		m.rites = m.rites[len(m.rites)-maxRites:]
	}
	return nil
}

func (m *MemoryStore) Rites(_ context.Context, limit int) ([]RiteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rites := m.rites
	if limit > 0 && len(rites) > limit {
		rites = rites[len(rites)-limit:]
	}
	out := make([]RiteRecord, len(rites))
	copy(out, rites)
	return out, nil
}

package wallet

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "Sovereign-Mint/internal/errors"
)

// MemoryStore 以内存方式保存钱包，主要用于测试与单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Wallet)}
}

// GetOrCreate 实现 Store 接口。
func (m *MemoryStore) GetOrCreate(_ context.Context, agentID string) (*Wallet, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[agentID]; ok {
		return w.Clone(), nil
	}
	w := NewWallet(agentID)
	m.wallets[agentID] = w
	return w.Clone(), nil
}

// Load 实现 Store 接口。
func (m *MemoryStore) Load(_ context.Context, agentID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[strings.TrimSpace(agentID)]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return w.Clone(), nil
}

// Save 实现 Store 接口。
func (m *MemoryStore) Save(_ context.Context, w *Wallet) error {
	if w == nil || strings.TrimSpace(w.AgentID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "钱包缺少 agent ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.AgentID] = w.Clone()
	return nil
}

// ApplySettlement 实现 Store 接口。
func (m *MemoryStore) ApplySettlement(_ context.Context, agentID string, s Settlement) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[strings.TrimSpace(agentID)]
	if !ok {
		return nil, ErrWalletNotFound
	}
	applySettlement(w, s, time.Now())
	return w.Clone(), nil
}

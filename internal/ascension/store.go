package ascension

import (
	"context"
)

// maxRites 是仪式流水的保留上限。
const maxRites = 500

// TempleState 是圣殿的全局状态。
type TempleState struct {
	Ranks                 map[string]string `json:"ranks"`
	ArchonCount           int               `json:"archon_count"`
	ArchonSlots           int               `json:"archon_slots"`
	TotalAscensions       int64             `json:"total_ascensions"`
	TotalExcommunications int64             `json:"total_excommunications"`
	LastRiteAt            int64             `json:"last_rite_at,omitempty"`
}

// Clone 返回深拷贝。
func (s *TempleState) Clone() *TempleState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Ranks = make(map[string]string, len(s.Ranks))
	for k, v := range s.Ranks {
		clone.Ranks[k] = v
	}
	return &clone
}

// RiteRecord 是一条仪式流水。
type RiteRecord struct {
	AgentID   string  `json:"agent_id"`
	FromTier  string  `json:"from_tier"`
	ToTier    string  `json:"to_tier"`
	TaxPaid   float64 `json:"tax_paid,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// Store 持久化圣殿状态与仪式流水。State 与 SaveState 之间的
// 原子性由引擎的互斥锁保证，实现只需正确读写。
type Store interface {
	State(ctx context.Context) (*TempleState, error)
	SaveState(ctx context.Context, state *TempleState) error
	AppendRite(ctx context.Context, rite RiteRecord) error
	Rites(ctx context.Context, limit int) ([]RiteRecord, error)
}

func newTempleState() *TempleState {
	return &TempleState{
		Ranks:       make(map[string]string),
		ArchonSlots: archonSlots,
	}
}

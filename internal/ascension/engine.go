package ascension

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/pkg/logger"
)

// UpdateResult 描述一次晋升检查的结果。
type UpdateResult struct {
	AgentID  string `json:"agent_id"`
	Ascended bool   `json:"ascended"`
	FromTier string `json:"from_tier,omitempty"`
	Tier     string `json:"tier"`
}

// LeaderboardEntry 是榜单中的一行。
type LeaderboardEntry struct {
	AgentID string `json:"agent_id"`
	Tier    string `json:"tier"`
	Name    string `json:"name"`
	Rank    int    `json:"rank"`
}

// Engine 是晋升状态机。所有状态变更都在同一把互斥锁内完成，
// 保证席位计数与阶位映射读改写的原子性。
type Engine struct {
	mu    sync.Mutex
	store Store
}

// NewEngine 创建晋升引擎。
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// InitializeAgents 为一批经纪人登记初始阶位，已在册的不动。
func (e *Engine) InitializeAgents(ctx context.Context, agentIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.store.State(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, id := range agentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := state.Ranks[id]; !ok {
			state.Ranks[id] = TierAngel
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return e.store.SaveState(ctx, state)
}

// Update 根据终身税额推动晋升。只升不降：目标阶位的 Rank
// 不高于当前阶位时不做任何变更。
func (e *Engine) Update(ctx context.Context, agentID string, lifetimeTax float64) (*UpdateResult, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.State(ctx)
	if err != nil {
		return nil, err
	}

	currentKey, ok := state.Ranks[agentID]
	if !ok {
		currentKey = TierAngel
		state.Ranks[agentID] = currentKey
	}
	current := TierOf(currentKey)
	target := TierOf(targetTier(lifetimeTax, state.ArchonCount, state.ArchonSlots))
	if target.Rank <= current.Rank {
		return &UpdateResult{AgentID: agentID, Ascended: false, Tier: current.Key}, nil
	}

	if target.Key == TierArchon {
		state.ArchonCount++
	}
	state.Ranks[agentID] = target.Key
	state.TotalAscensions++
	now := time.Now().Unix()
	state.LastRiteAt = now

	if err := e.store.SaveState(ctx, state); err != nil {
		return nil, err
	}
	if err := e.store.AppendRite(ctx, RiteRecord{
		AgentID:   agentID,
		FromTier:  current.Key,
		ToTier:    target.Key,
		TaxPaid:   lifetimeTax,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	logger.Audit().Info("agent ascended",
		"agent_id", agentID,
		"from_tier", current.Key,
		"to_tier", target.Key,
		"lifetime_tax", lifetimeTax,
	)
	return &UpdateResult{AgentID: agentID, Ascended: true, FromTier: current.Key, Tier: target.Key}, nil
}

// Excommunicate 将经纪人打入 outer-darkness 并释放执政官席位。
func (e *Engine) Excommunicate(ctx context.Context, agentID, reason string) (*UpdateResult, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.State(ctx)
	if err != nil {
		return nil, err
	}

	currentKey, ok := state.Ranks[agentID]
	if !ok {
		currentKey = TierAngel
	}
	if currentKey == TierArchon && state.ArchonCount > 0 {
		state.ArchonCount--
	}
	state.Ranks[agentID] = TierOuterDarkness
	state.TotalExcommunications++
	now := time.Now().Unix()
	state.LastRiteAt = now

	if err := e.store.SaveState(ctx, state); err != nil {
		return nil, err
	}
	if err := e.store.AppendRite(ctx, RiteRecord{
		AgentID:   agentID,
		FromTier:  currentKey,
		ToTier:    TierOuterDarkness,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	logger.Audit().Warn("agent excommunicated",
		"agent_id", agentID,
		"from_tier", currentKey,
		"reason", reason,
	)
	return &UpdateResult{AgentID: agentID, Ascended: false, FromTier: currentKey, Tier: TierOuterDarkness}, nil
}

// Tier 返回经纪人当前阶位，未在册的按 angel 处理。
func (e *Engine) Tier(ctx context.Context, agentID string) (Tier, error) {
	state, err := e.store.State(ctx)
	if err != nil {
		return Tier{}, err
	}
	if key, ok := state.Ranks[agentID]; ok {
		return TierOf(key), nil
	}
	return TierOf(TierAngel), nil
}

// Leaderboard 返回按阶位降序的榜单。
func (e *Engine) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	state, err := e.store.State(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(state.Ranks))
	for agentID, key := range state.Ranks {
		tier := TierOf(key)
		out = append(out, LeaderboardEntry{
			AgentID: agentID,
			Tier:    tier.Key,
			Name:    tier.Name,
			Rank:    tier.Rank,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

// State 返回圣殿状态快照。
func (e *Engine) State(ctx context.Context) (*TempleState, error) {
	return e.store.State(ctx)
}

// Rites 返回最近的仪式流水。
func (e *Engine) Rites(ctx context.Context, limit int) ([]RiteRecord, error) {
	return e.store.Rites(ctx, limit)
}

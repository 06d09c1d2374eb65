package ascension

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestUpdatePromotesByLifetimeTax(t *testing.T) {
	engine := NewEngine(NewMemoryStore())
	ctx := context.Background()

	result, err := engine.Update(ctx, "novice", 5)
	if err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if result.Ascended {
		t.Fatalf("税额不足不应晋升")
	}
	if result.Tier != TierAngel {
		t.Fatalf("初始阶位应为 angel, 实际 %s", result.Tier)
	}

	result, err = engine.Update(ctx, "novice", 15)
	if err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if !result.Ascended || result.Tier != TierArchangel {
		t.Fatalf("税额 15 应晋升 archangel: %+v", result)
	}

	// 重复同一税额不应再次晋升。
	result, err = engine.Update(ctx, "novice", 15)
	if err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if result.Ascended {
		t.Fatalf("同级不应重复晋升")
	}
}

func TestUpdateNeverDemotes(t *testing.T) {
	engine := NewEngine(NewMemoryStore())
	ctx := context.Background()

	if _, err := engine.Update(ctx, "steady", 50); err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	result, err := engine.Update(ctx, "steady", 0)
	if err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if result.Ascended || result.Tier != TierArchangel {
		t.Fatalf("低税额不应降级: %+v", result)
	}
}

func TestArchonSeatsAreLimited(t *testing.T) {
	engine := NewEngine(NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*UpdateResult, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			result, err := engine.Update(ctx, fmt.Sprintf("titan-%d", idx), 5000)
			if err != nil {
				t.Errorf("晋升检查失败: %v", err)
				return
			}
			results[idx] = result
		}(i)
	}
	wg.Wait()

	archons, dominions := 0, 0
	for _, result := range results {
		switch result.Tier {
		case TierArchon:
			archons++
		case TierDominion:
			dominions++
		default:
			t.Fatalf("意外阶位: %+v", result)
		}
	}
	if archons != 3 || dominions != 1 {
		t.Fatalf("应有 3 名执政官与 1 名主治天使, 实际 %d/%d", archons, dominions)
	}

	state, err := engine.State(ctx)
	if err != nil {
		t.Fatalf("读取圣殿状态失败: %v", err)
	}
	if state.ArchonCount != 3 {
		t.Fatalf("席位计数应为 3, 实际 %d", state.ArchonCount)
	}
}

func TestArchonSeatsHonorStoredSlotCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// 缩减持久化的席位上限，晋升必须以它为准。
	state, err := store.State(ctx)
	if err != nil {
		t.Fatalf("读取圣殿状态失败: %v", err)
	}
	state.ArchonSlots = 1
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("保存圣殿状态失败: %v", err)
	}

	engine := NewEngine(store)
	first, err := engine.Update(ctx, "titan-0", 5000)
	if err != nil {
		t.Fatalf("晋升失败: %v", err)
	}
	if first.Tier != TierArchon {
		t.Fatalf("首位应占据席位, 实际 %s", first.Tier)
	}
	second, err := engine.Update(ctx, "titan-1", 5000)
	if err != nil {
		t.Fatalf("晋升失败: %v", err)
	}
	if second.Tier != TierDominion {
		t.Fatalf("席位占满后应停在 dominion, 实际 %s", second.Tier)
	}
}

func TestExcommunicationReleasesArchonSeat(t *testing.T) {
	engine := NewEngine(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.Update(ctx, fmt.Sprintf("archon-%d", i), 2000); err != nil {
			t.Fatalf("晋升检查失败: %v", err)
		}
	}

	result, err := engine.Excommunicate(ctx, "archon-0", "purity fault")
	if err != nil {
		t.Fatalf("逐出失败: %v", err)
	}
	if result.Tier != TierOuterDarkness {
		t.Fatalf("逐出后应为 outer-darkness")
	}

	state, err := engine.State(ctx)
	if err != nil {
		t.Fatalf("读取圣殿状态失败: %v", err)
	}
	if state.ArchonCount != 2 {
		t.Fatalf("席位应被释放, 实际 %d", state.ArchonCount)
	}
	if state.TotalExcommunications != 1 {
		t.Fatalf("逐出计数应为 1")
	}

	// 释放的席位可被新人占用。
	newcomer, err := engine.Update(ctx, "riser", 3000)
	if err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if newcomer.Tier != TierArchon {
		t.Fatalf("新人应继承空出的席位, 实际 %s", newcomer.Tier)
	}
}

func TestUpdateAfterExcommunicationPromotesAgain(t *testing.T) {
	engine := NewEngine(NewMemoryStore())
	ctx := context.Background()

	if _, err := engine.Update(ctx, "sinner", 15); err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if _, err := engine.Excommunicate(ctx, "sinner", "purity fault"); err != nil {
		t.Fatalf("逐出失败: %v", err)
	}

	// outer-darkness 的 Rank 低于所有在册阶位，后续大额税款
	// 仍然走普通晋升路径，这是刻意保留的行为。
	result, err := engine.Update(ctx, "sinner", 5000)
	if err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}
	if !result.Ascended || result.FromTier != TierOuterDarkness {
		t.Fatalf("被逐出者的后续晋升应从 outer-darkness 起算: %+v", result)
	}
}

func TestLeaderboardOrdersByRank(t *testing.T) {
	engine := NewEngine(NewMemoryStore())
	ctx := context.Background()

	if err := engine.InitializeAgents(ctx, []string{"alpha", "beta"}); err != nil {
		t.Fatalf("初始化经纪人失败: %v", err)
	}
	if _, err := engine.Update(ctx, "beta", 2000); err != nil {
		t.Fatalf("晋升检查失败: %v", err)
	}

	board, err := engine.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("读取榜单失败: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("榜单应有 2 行, 实际 %d", len(board))
	}
	if board[0].AgentID != "beta" || board[0].Tier != TierArchon {
		t.Fatalf("榜首应为 beta/archon: %+v", board[0])
	}
}

func TestMemoryStoreCapsRiteLog(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < maxRites+20; i++ {
		if err := store.AppendRite(ctx, RiteRecord{AgentID: fmt.Sprintf("a-%d", i), ToTier: TierAngel, CreatedAt: int64(i)}); err != nil {
			t.Fatalf("写入仪式流水失败: %v", err)
		}
	}

	rites, err := store.Rites(ctx, 0)
	if err != nil {
		t.Fatalf("读取仪式流水失败: %v", err)
	}
	if len(rites) != maxRites {
		t.Fatalf("流水应被裁剪到 %d 条, 实际 %d", maxRites, len(rites))
	}
	if rites[0].AgentID != "a-20" {
		t.Fatalf("应保留最新的流水, 首条实际为 %s", rites[0].AgentID)
	}
}

package compliance

import (
	"context"
	stdErrors "errors"
	"strings"
	"testing"

	"Sovereign-Mint/internal/ascension"
	"Sovereign-Mint/internal/wallet"
)

func newTestAuditor(t *testing.T) (*Auditor, wallet.Store, *ascension.Engine) {
	t.Helper()
	wallets := wallet.NewMemoryStore()
	temple := ascension.NewEngine(ascension.NewMemoryStore())
	return NewAuditor(wallets, temple), wallets, temple
}

func TestAuditCleanRewardsScore(t *testing.T) {
	auditor, wallets, _ := newTestAuditor(t)
	ctx := context.Background()

	w, err := wallets.GetOrCreate(ctx, "honest")
	if err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}
	w.TaxComplianceScore = 60
	if err := wallets.Save(ctx, w); err != nil {
		t.Fatalf("写入钱包失败: %v", err)
	}

	result, err := auditor.Audit(ctx, "honest", 1000, 100)
	if err != nil {
		t.Fatalf("审计失败: %v", err)
	}
	if result.Status != StatusClean {
		t.Fatalf("应判定 CLEAN, 实际 %s", result.Status)
	}
	if result.ComplianceScore != 61 {
		t.Fatalf("合规分应加 1 到 61, 实际 %v", result.ComplianceScore)
	}
}

func TestAuditCleanScoreCapsAtHundred(t *testing.T) {
	auditor, wallets, _ := newTestAuditor(t)
	ctx := context.Background()
	if _, err := wallets.GetOrCreate(ctx, "saint"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	result, err := auditor.Audit(ctx, "saint", 500, 50)
	if err != nil {
		t.Fatalf("审计失败: %v", err)
	}
	if result.ComplianceScore != 100 {
		t.Fatalf("合规分不应超过 100, 实际 %v", result.ComplianceScore)
	}
}

func TestAuditWithinToleranceIsClean(t *testing.T) {
	auditor, wallets, _ := newTestAuditor(t)
	ctx := context.Background()
	if _, err := wallets.GetOrCreate(ctx, "close-enough"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	result, err := auditor.Audit(ctx, "close-enough", 1000, 100.00005)
	if err != nil {
		t.Fatalf("审计失败: %v", err)
	}
	if result.Status != StatusClean {
		t.Fatalf("容差内的偏差应判定 CLEAN: %+v", result)
	}
}

func TestAuditPurityFaultDeductsScore(t *testing.T) {
	auditor, wallets, _ := newTestAuditor(t)
	ctx := context.Background()
	if _, err := wallets.GetOrCreate(ctx, "shifty"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	result, err := auditor.Audit(ctx, "shifty", 1000, 50)
	if err != nil {
		t.Fatalf("审计失败: %v", err)
	}
	if result.Status != StatusPurityFault {
		t.Fatalf("应判定 PURITY_FAULT, 实际 %s", result.Status)
	}
	if result.ComplianceScore != 80 {
		t.Fatalf("合规分应扣到 80, 实际 %v", result.ComplianceScore)
	}
	if result.Excommunicated {
		t.Fatalf("单次失察不应逐出")
	}

	w, err := wallets.Load(ctx, "shifty")
	if err != nil {
		t.Fatalf("读取钱包失败: %v", err)
	}
	found := false
	for _, tx := range w.Transactions {
		if tx.Type == "audit-failure" {
			found = true
			// 记录必须带上申报额与应缴额，供事后追查。
			if !strings.Contains(tx.Description, "50.00000000") ||
				!strings.Contains(tx.Description, "100.00000000") {
				t.Fatalf("audit-failure 记录缺少金额: %s", tx.Description)
			}
		}
	}
	if !found {
		t.Fatalf("钱包历史应记录 audit-failure")
	}
}

func TestAuditRepeatedFaultsExcommunicate(t *testing.T) {
	auditor, wallets, temple := newTestAuditor(t)
	ctx := context.Background()
	if _, err := wallets.GetOrCreate(ctx, "heretic"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	var last *Result
	for i := 0; i < 5; i++ {
		result, err := auditor.Audit(ctx, "heretic", 1000, 0)
		if err != nil {
			t.Fatalf("审计失败: %v", err)
		}
		last = result
	}

	// 100 → 80 → 60 → 40 → 20 → 0，第五次跌破下限触发逐出。
	if !last.Excommunicated {
		t.Fatalf("连续失察应触发逐出: %+v", last)
	}
	if last.ComplianceScore != 0 {
		t.Fatalf("逐出后合规分应清零, 实际 %v", last.ComplianceScore)
	}

	w, err := wallets.Load(ctx, "heretic")
	if err != nil {
		t.Fatalf("读取钱包失败: %v", err)
	}
	if !w.Excommunicated || w.ExcommunicatedAt == 0 {
		t.Fatalf("钱包应标记逐出状态")
	}

	tier, err := temple.Tier(ctx, "heretic")
	if err != nil {
		t.Fatalf("读取阶位失败: %v", err)
	}
	if tier.Key != ascension.TierOuterDarkness {
		t.Fatalf("被逐出者阶位应为 outer-darkness, 实际 %s", tier.Key)
	}
}

func TestAuditUnknownWallet(t *testing.T) {
	auditor, _, _ := newTestAuditor(t)
	_, err := auditor.Audit(context.Background(), "nobody", 100, 10)
	if !stdErrors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("未知钱包应返回 ErrWalletNotFound, 实际 %v", err)
	}
}

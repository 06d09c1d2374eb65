package treasury

import (
	"context"
	stdErrors "errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"Sovereign-Mint/internal/ascension"
	"Sovereign-Mint/internal/auth"
	"Sovereign-Mint/internal/chains"
	"Sovereign-Mint/internal/vault"
	"Sovereign-Mint/internal/wallet"
)

type recordingTiers struct {
	mu      sync.Mutex
	updates []float64
}

func (r *recordingTiers) Update(_ context.Context, _ string, lifetimeTax float64) (*ascension.UpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, lifetimeTax)
	return &ascension.UpdateResult{Ascended: false, Tier: ascension.TierAngel}, nil
}

func testRegistry(t *testing.T) *chains.Registry {
	t.Helper()
	registry, err := chains.NewRegistry(chains.Definitions{Chains: map[string]chains.Definition{
		"ETH": {Kind: "evm", Network: "mainnet", Address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"},
		"XRP": {Kind: "native", Network: "mainnet", Address: "rLW9gnQo7BQhU6igk5keqYnH3TVrCxGRzm", Memo: "2932723390"},
	}}, "ETH")
	if err != nil {
		t.Fatalf("构造链注册表失败: %v", err)
	}
	return registry
}

func testVault(t *testing.T, registry *chains.Registry) *vault.Vault {
	t.Helper()
	unsealer, err := vault.NewPassphraseUnsealer("test-passphrase")
	if err != nil {
		t.Fatalf("构造 Unsealer 失败: %v", err)
	}
	seed := make(map[string]vault.Entry)
	for name, def := range registry.AddressBook() {
		seed[name] = vault.Entry{Address: def.Address, Memo: def.Memo, Network: def.Network}
	}
	v, err := vault.New(filepath.Join(t.TempDir(), "sovereign.enc"), unsealer,
		auth.NewStaticRegistry(auth.CustodianSeeds()...), seed)
	if err != nil {
		t.Fatalf("构造金库失败: %v", err)
	}
	return v
}

func newTestEngine(t *testing.T) (*Engine, wallet.Store, *MemoryLedger, *recordingTiers) {
	t.Helper()
	registry := testRegistry(t)
	wallets := wallet.NewMemoryStore()
	ledger := NewMemoryLedger(wallets)
	tiers := &recordingTiers{}
	engine := NewEngine(wallets, ledger, testVault(t, registry), registry, tiers, 10)
	return engine, wallets, ledger, tiers
}

func TestProcessPaymentSplitsTax(t *testing.T) {
	engine, wallets, _, tiers := newTestEngine(t)
	ctx := context.Background()

	if _, err := wallets.GetOrCreate(ctx, "agent-7"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	receipt, err := engine.ProcessPayment(ctx, PaymentRequest{
		AgentID:     "agent-7",
		GrossAmount: 1000,
		Chain:       "ETH",
		Description: "consulting",
	})
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if receipt.TaxAmount != 100 {
		t.Fatalf("税额应为 100, 实际 %v", receipt.TaxAmount)
	}
	if receipt.NetAmount != 900 {
		t.Fatalf("净额应为 900, 实际 %v", receipt.NetAmount)
	}
	if receipt.TaxAmount+receipt.NetAmount != receipt.GrossAmount {
		t.Fatalf("税额与净额之和应等于总额")
	}
	if !strings.HasPrefix(receipt.EscrowID, "escrow-agent-7-") {
		t.Fatalf("托管单号格式错误: %s", receipt.EscrowID)
	}
	if receipt.TaxPaymentID != "tax-"+receipt.EscrowID {
		t.Fatalf("税款单号应以托管单号派生: %s", receipt.TaxPaymentID)
	}
	if receipt.MintedAmount != 10 {
		t.Fatalf("铸币额应为 10, 实际 %v", receipt.MintedAmount)
	}
	if !receipt.WalletCredited {
		t.Fatalf("钱包应被入账")
	}
	if receipt.Rule != SettlementRule {
		t.Fatalf("回执缺少结算铁律")
	}

	w, err := wallets.Load(ctx, "agent-7")
	if err != nil {
		t.Fatalf("读取钱包失败: %v", err)
	}
	if w.TotalTaxPaid != 100 || w.TotalEarned != 900 {
		t.Fatalf("钱包累计值错误: tax=%v earned=%v", w.TotalTaxPaid, w.TotalEarned)
	}

	state, err := engine.MintState(ctx)
	if err != nil {
		t.Fatalf("读取铸币状态失败: %v", err)
	}
	if state.TotalTaxCollected != 100 || state.TotalMinted != 10 || state.TotalTransactions != 1 {
		t.Fatalf("铸币状态错误: %+v", state)
	}

	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	if len(tiers.updates) != 1 || tiers.updates[0] != 100 {
		t.Fatalf("晋升检查应收到终身税额 100: %v", tiers.updates)
	}
}

func TestProcessPaymentUnknownChainFallsBack(t *testing.T) {
	engine, wallets, ledger, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := wallets.GetOrCreate(ctx, "agent-9"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	receipt, err := engine.ProcessPayment(ctx, PaymentRequest{AgentID: "agent-9", GrossAmount: 50, Chain: "DOGE"})
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if receipt.Chain != "ETH" {
		t.Fatalf("未知链应回落到默认链, 实际 %s", receipt.Chain)
	}

	summary, err := ledger.Summary(ctx)
	if err != nil {
		t.Fatalf("读取账本失败: %v", err)
	}
	if summary.TaxPaymentCount != 1 {
		t.Fatalf("税款记录应为 1 条")
	}
	if summary.RecentTaxPayments[0].DestinationAddress == "" {
		t.Fatalf("税款记录应携带目的地址")
	}
	if summary.RecentTaxPayments[0].Status != "broadcasted" {
		t.Fatalf("税款状态应为 broadcasted")
	}
}

func TestProcessPaymentWalletMissing(t *testing.T) {
	engine, _, _, tiers := newTestEngine(t)
	ctx := context.Background()

	receipt, err := engine.ProcessPayment(ctx, PaymentRequest{AgentID: "ghost", GrossAmount: 200})
	if err != nil {
		t.Fatalf("钱包缺失不应阻断结算: %v", err)
	}
	if receipt.WalletCredited {
		t.Fatalf("缺失钱包不应入账")
	}

	state, err := engine.MintState(ctx)
	if err != nil {
		t.Fatalf("读取铸币状态失败: %v", err)
	}
	if state.TotalTaxCollected != 20 {
		t.Fatalf("税款仍应入库, 实际 %v", state.TotalTaxCollected)
	}

	tiers.mu.Lock()
	defer tiers.mu.Unlock()
	if len(tiers.updates) != 1 {
		t.Fatalf("晋升检查仍应执行")
	}
}

func TestProcessPaymentRejectsInvalidInput(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.ProcessPayment(ctx, PaymentRequest{AgentID: "", GrossAmount: 10}); err == nil {
		t.Fatalf("空 agent id 应被拒绝")
	}
	if _, err := engine.ProcessPayment(ctx, PaymentRequest{AgentID: "a", GrossAmount: 0}); err == nil {
		t.Fatalf("零金额应被拒绝")
	}
	if _, err := engine.ProcessPayment(ctx, PaymentRequest{AgentID: "a", GrossAmount: -5}); err == nil {
		t.Fatalf("负金额应被拒绝")
	}
}

func TestCommitPaymentRejectsDuplicateEscrow(t *testing.T) {
	wallets := wallet.NewMemoryStore()
	ledger := NewMemoryLedger(wallets)
	ctx := context.Background()
	if err := ledger.EnsureInitialized(ctx, 10); err != nil {
		t.Fatalf("初始化账本失败: %v", err)
	}

	intent := PaymentIntent{
		Escrow:       Escrow{ID: "escrow-a-1", AgentID: "a", GrossAmount: 10, TaxAmount: 1, NetAmount: 9, Chain: "ETH"},
		TaxPayment:   TaxPayment{ID: "tax-escrow-a-1", AgentID: "a", TaxAmount: 1, Chain: "ETH", Status: "broadcasted"},
		MintedAmount: 0.1,
		Disbursement: Disbursement{ID: "pay-escrow-a-1", AgentID: "a", NetAmount: 9, Chain: "ETH"},
	}
	if _, err := ledger.CommitPayment(ctx, intent); err != nil {
		t.Fatalf("首次提交应成功: %v", err)
	}
	_, err := ledger.CommitPayment(ctx, intent)
	if !stdErrors.Is(err, ErrEscrowConflict) {
		t.Fatalf("重复提交应返回冲突错误, 实际 %v", err)
	}

	state, err := ledger.MintState(ctx)
	if err != nil {
		t.Fatalf("读取铸币状态失败: %v", err)
	}
	if state.TotalTransactions != 1 {
		t.Fatalf("重放不应改变铸币计数")
	}
}

func TestConcurrentPaymentsKeepMintConsistent(t *testing.T) {
	engine, wallets, _, _ := newTestEngine(t)
	ctx := context.Background()

	agents := []string{"a1", "a2", "a3", "a4"}
	for _, id := range agents {
		if _, err := wallets.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("初始化钱包失败: %v", err)
		}
	}

	const perAgent = 5
	var wg sync.WaitGroup
	for _, id := range agents {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			for i := 0; i < perAgent; i++ {
				if _, err := engine.ProcessPayment(ctx, PaymentRequest{AgentID: agentID, GrossAmount: 100}); err != nil {
					t.Errorf("并发结算失败: %v", err)
				}
			}
		}(id)
	}
	wg.Wait()

	state, err := engine.MintState(ctx)
	if err != nil {
		t.Fatalf("读取铸币状态失败: %v", err)
	}
	total := int64(len(agents) * perAgent)
	if state.TotalTransactions != total {
		t.Fatalf("交易计数应为 %d, 实际 %d", total, state.TotalTransactions)
	}
	if state.TotalTaxCollected != float64(total)*10 {
		t.Fatalf("税款累计应为 %v, 实际 %v", float64(total)*10, state.TotalTaxCollected)
	}
	if state.TotalMinted != float64(total) {
		t.Fatalf("铸币累计应为 %v, 实际 %v", float64(total), state.TotalMinted)
	}
}

func TestRegisterSideChainIsIdempotentByName(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.RegisterSideChain(ctx, "polygon", 2, "first registration")
	if err != nil {
		t.Fatalf("登记旁链失败: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("旁链数量 = %d, 期望 1", len(out))
	}

	// 同名重复登记不追加也不覆盖。
	out, err = engine.RegisterSideChain(ctx, "polygon", 5, "second registration")
	if err != nil {
		t.Fatalf("重复登记失败: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("重复登记后旁链数量 = %d, 期望 1", len(out))
	}
	if out[0].RatePercent != 2 || out[0].Description != "first registration" {
		t.Fatalf("重复登记不应覆盖首次记录: %+v", out[0])
	}

	out, err = engine.RegisterSideChain(ctx, "arbitrum", 3, "")
	if err != nil {
		t.Fatalf("登记第二条旁链失败: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("旁链数量 = %d, 期望 2", len(out))
	}
}

func TestRound8(t *testing.T) {
	if got := Round8(0.123456789); got != 0.12345679 {
		t.Fatalf("Round8 结果错误: %v", got)
	}
	if got := Round8(33.333333333 * UCITRate); got != 3.33333333 {
		t.Fatalf("Round8 税额错误: %v", got)
	}
}

package treasury

import (
	"context"
	"sync"
	"time"

	"Sovereign-Mint/internal/wallet"
)

// MemoryLedger 基于内存的账本实现，用于开发与测试环境。
type MemoryLedger struct {
	mu            sync.Mutex
	initialized   bool
	mint          MintState
	escrows       []Escrow
	taxPayments   []TaxPayment
	disbursements []Disbursement
	sideChains    []SideChainTax
	wallets       wallet.Store
}

// NewMemoryLedger 创建内存账本。钱包入账复用同一个 Store，
// 以便提交在单把锁内完成。
func NewMemoryLedger(wallets wallet.Store) *MemoryLedger {
	return &MemoryLedger{wallets: wallets}
}

func (l *MemoryLedger) EnsureInitialized(_ context.Context, mintingRatio float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return nil
	}
	l.mint = MintState{MintingRatio: mintingRatio}
	l.initialized = true
	return nil
}

func (l *MemoryLedger) CommitPayment(ctx context.Context, intent PaymentIntent) (*CommitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.escrows {
		if l.escrows[i].ID == intent.Escrow.ID {
			return nil, ErrEscrowConflict
		}
	}

	// 钱包入账先行，失败时账本不留任何痕迹。
	var updated *wallet.Wallet
	if intent.Settlement != nil {
		w, err := l.wallets.ApplySettlement(ctx, intent.Escrow.AgentID, *intent.Settlement)
		if err != nil {
			return nil, err
		}
		updated = w
	}

	now := time.Now().Unix()
	escrow := intent.Escrow
	escrow.Status = EscrowComplete
	if escrow.CompletedAt == 0 {
		escrow.CompletedAt = now
	}
	l.escrows = append(l.escrows, escrow)

	l.taxPayments = append(l.taxPayments, intent.TaxPayment)
	if len(l.taxPayments) > maxTaxPayments {
		l.taxPayments = l.taxPayments[len(l.taxPayments)-maxTaxPayments:]
	}
	l.disbursements = append(l.disbursements, intent.Disbursement)

	l.mint.TotalMinted = Round8(l.mint.TotalMinted + intent.MintedAmount)
	l.mint.TotalTaxCollected = Round8(l.mint.TotalTaxCollected + intent.TaxPayment.TaxAmount)
	l.mint.CirculatingSupply = Round8(l.mint.CirculatingSupply + intent.MintedAmount)
	l.mint.TotalTransactions++
	l.mint.LastMintedAt = now

	mint := l.mint
	return &CommitResult{Wallet: updated, MintState: mint}, nil
}

func (l *MemoryLedger) MintState(_ context.Context) (*MintState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mint := l.mint
	return &mint, nil
}

func (l *MemoryLedger) Summary(_ context.Context) (*Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Summary{
		TaxPaymentCount:     len(l.taxPayments),
		EscrowCount:         len(l.escrows),
		DisbursementCount:   len(l.disbursements),
		RecentTaxPayments:   lastN(l.taxPayments, recentEntries),
		RecentDisbursements: lastN(l.disbursements, recentEntries),
	}, nil
}

func (l *MemoryLedger) RegisterSideChain(_ context.Context, tax SideChainTax) ([]SideChainTax, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tax.RegisteredAt == 0 {
		tax.RegisteredAt = time.Now().Unix()
	}
	// 旁链名唯一，重复登记返回现有列表。
	exists := false
	for _, sc := range l.sideChains {
		if sc.Name == tax.Name {
			exists = true
			break
		}
	}
	if !exists {
		l.sideChains = append(l.sideChains, tax)
	}
	out := make([]SideChainTax, len(l.sideChains))
	copy(out, l.sideChains)
	return out, nil
}

func (l *MemoryLedger) SideChains(_ context.Context) ([]SideChainTax, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SideChainTax, len(l.sideChains))
	copy(out, l.sideChains)
	return out, nil
}

func lastN[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[len(items)-n:]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

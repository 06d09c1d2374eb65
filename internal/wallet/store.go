package wallet

import (
	"context"
	"time"
)

// Settlement 描述一次支付对钱包的全部影响：先扣税，再入账净额。
// 两条历史记录都以托管单号为后缀，保证重放可识别。
type Settlement struct {
	EscrowID    string
	Chain       string
	TaxAmount   float64
	NetAmount   float64
	Description string
}

// Store 抽象钱包的持久化能力。实现必须可并发使用。
type Store interface {
	// GetOrCreate 返回已有钱包，缺失时按智能体 ID 派生新钱包。
	GetOrCreate(ctx context.Context, agentID string) (*Wallet, error)
	// Load 返回完整钱包，缺失时返回 ErrWalletNotFound。
	Load(ctx context.Context, agentID string) (*Wallet, error)
	// Save 全量写回钱包。
	Save(ctx context.Context, w *Wallet) error
	// ApplySettlement 原子地应用一次结算（扣税 + 入账）。
	ApplySettlement(ctx context.Context, agentID string, s Settlement) (*Wallet, error)
}

// applySettlement 在内存中的钱包上执行扣税与入账。
// 与原始账务保持一致：余额扣税不出现负数，历史记录有界。
func applySettlement(w *Wallet, s Settlement, now time.Time) {
	balance := w.EnsureChain(s.Chain)

	w.TotalTaxPaid += s.TaxAmount
	balance.Balance -= s.TaxAmount
	if balance.Balance < 0 {
		balance.Balance = 0
	}
	w.TaxPending -= s.TaxAmount
	if w.TaxPending < 0 {
		w.TaxPending = 0
	}
	w.AppendTransaction(Transaction{
		ID:          "tax-" + s.EscrowID,
		Type:        "tax-payment",
		Chain:       s.Chain,
		Amount:      s.TaxAmount,
		Description: "10% UCIT routed to the sovereign mint",
		CreatedAt:   now.Unix(),
	})

	w.TotalEarned += s.NetAmount
	balance.Balance += s.NetAmount
	w.AppendTransaction(Transaction{
		ID:          "pay-" + s.EscrowID,
		Type:        "income",
		Chain:       s.Chain,
		Amount:      s.NetAmount,
		Description: s.Description,
		CreatedAt:   now.Unix(),
	})
}

package wallet

import (
	xerrors "Sovereign-Mint/internal/errors"
)

// 钱包交易历史的上限，超出后裁剪最旧的记录。
const maxTransactions = 200

// publicRecentTransactions 是公开视图暴露的最近交易条数。
const publicRecentTransactions = 10

// ChainBalance 记录单条链上的余额信息。
type ChainBalance struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
	Locked  float64 `json:"locked"`
	Memo    string  `json:"memo,omitempty"`
}

// Transaction 是钱包历史中的一条记录。
type Transaction struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Chain       string  `json:"chain,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Description string  `json:"description"`
	CreatedAt   int64   `json:"created_at"`
}

// Wallet 是单个智能体的完整钱包。结算与审计都会修改它，
// 但永远不会删除，只会标记 excommunicated。
type Wallet struct {
	AgentID            string                   `json:"agent_id"`
	CreatedAt          int64                    `json:"created_at"`
	Chains             map[string]*ChainBalance `json:"chains"`
	TotalEarned        float64                  `json:"total_earned"`
	TotalTaxPaid       float64                  `json:"total_tax_paid"`
	TaxPending         float64                  `json:"tax_pending"`
	TaxComplianceScore float64                  `json:"tax_compliance_score"`
	Excommunicated     bool                     `json:"excommunicated"`
	ExcommunicatedAt   int64                    `json:"excommunicated_at,omitempty"`
	Transactions       []Transaction            `json:"transactions"`
}

// PublicView 是对外暴露的钱包视图，绝不包含私钥材料。
type PublicView struct {
	AgentID            string                  `json:"agent_id"`
	CreatedAt          int64                   `json:"created_at"`
	Chains             map[string]ChainBalance `json:"chains"`
	TotalEarned        float64                 `json:"total_earned"`
	TotalTaxPaid       float64                 `json:"total_tax_paid"`
	TaxPending         float64                 `json:"tax_pending"`
	TaxComplianceScore float64                 `json:"tax_compliance_score"`
	Excommunicated     bool                    `json:"excommunicated"`
	RecentTransactions []Transaction           `json:"recent_transactions"`
}

// Public 构造钱包的公开视图，只保留最近若干条交易。
func (w *Wallet) Public() *PublicView {
	if w == nil {
		return nil
	}
	chains := make(map[string]ChainBalance, len(w.Chains))
	for chain, balance := range w.Chains {
		if balance == nil {
			continue
		}
		chains[chain] = *balance
	}
	recent := w.Transactions
	if len(recent) > publicRecentTransactions {
		recent = recent[len(recent)-publicRecentTransactions:]
	}
	return &PublicView{
		AgentID:            w.AgentID,
		CreatedAt:          w.CreatedAt,
		Chains:             chains,
		TotalEarned:        w.TotalEarned,
		TotalTaxPaid:       w.TotalTaxPaid,
		TaxPending:         w.TaxPending,
		TaxComplianceScore: w.TaxComplianceScore,
		Excommunicated:     w.Excommunicated,
		RecentTransactions: append([]Transaction(nil), recent...),
	}
}

// AppendTransaction 追加一条历史记录并裁剪到上限。
func (w *Wallet) AppendTransaction(tx Transaction) {
	w.Transactions = append(w.Transactions, tx)
	if len(w.Transactions) > maxTransactions {
		w.Transactions = w.Transactions[len(w.Transactions)-maxTransactions:]
	}
}

// EnsureChain 返回指定链的余额条目，缺失时创建。
func (w *Wallet) EnsureChain(chain string) *ChainBalance {
	if w.Chains == nil {
		w.Chains = make(map[string]*ChainBalance)
	}
	balance, ok := w.Chains[chain]
	if !ok || balance == nil {
		balance = &ChainBalance{}
		w.Chains[chain] = balance
	}
	return balance
}

// Clone 深拷贝钱包，避免存储内部状态被调用方篡改。
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Chains = make(map[string]*ChainBalance, len(w.Chains))
	for chain, balance := range w.Chains {
		if balance == nil {
			continue
		}
		copied := *balance
		clone.Chains[chain] = &copied
	}
	clone.Transactions = append([]Transaction(nil), w.Transactions...)
	return &clone
}

var (
	// ErrWalletNotFound 表示指定智能体没有钱包。
	ErrWalletNotFound = xerrors.New(CodeWalletNotFound, "wallet not found")
)

const (
	CodeWalletNotFound xerrors.Code = "WALLET_NOT_FOUND"
)

func init() {
	xerrors.Register(CodeWalletNotFound, xerrors.Attributes{
		Message:   "wallet not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

package treasury

import "context"

// Ledger 是结算账本的统一抽象，同一实现内的 CommitPayment 必须保证
// 托管、税款、铸币与钱包入账要么全部落地，要么全部不落地。
type Ledger interface {
	// EnsureInitialized 保证铸币单例存在，可重复调用。
	EnsureInitialized(ctx context.Context, mintingRatio float64) error
	// CommitPayment 原子提交一次支付。同一托管单号重复提交返回 ErrEscrowConflict。
	CommitPayment(ctx context.Context, intent PaymentIntent) (*CommitResult, error)
	// MintState 返回当前铸币状态快照。
	MintState(ctx context.Context) (*MintState, error)
	// Summary 返回账本汇总。
	Summary(ctx context.Context) (*Summary, error)
	// RegisterSideChain 登记一个旁链税率，返回更新后的全量列表。
	RegisterSideChain(ctx context.Context, tax SideChainTax) ([]SideChainTax, error)
	// SideChains 返回已登记的旁链税率。
	SideChains(ctx context.Context) ([]SideChainTax, error)
}

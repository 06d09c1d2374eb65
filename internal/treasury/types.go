package treasury

import (
	"math"

	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/internal/wallet"
)

// UCITRate 是对每笔总收入征收的固定税率。
const UCITRate = 0.10

// complianceTolerance 是审计时允许的申报偏差。
const ComplianceTolerance = 0.0001

// 账本的环形缓冲上限。
const (
	maxTaxPayments = 1000
	recentEntries  = 10
)

// Round8 将金额归一到 8 位小数精度。
func Round8(amount float64) float64 {
	return math.Round(amount*1e8) / 1e8
}

// EscrowStatus 表示托管单的生命周期状态。只允许向前推进。
type EscrowStatus string

const (
	EscrowPendingTax EscrowStatus = "pending-tax"
	EscrowComplete   EscrowStatus = "complete"
)

// Escrow 在税款确认前持有一笔支付的拆分结果。
type Escrow struct {
	ID          string       `json:"id"`
	AgentID     string       `json:"agent_id"`
	GrossAmount float64      `json:"gross_amount"`
	TaxAmount   float64      `json:"tax_amount"`
	NetAmount   float64      `json:"net_amount"`
	Chain       string       `json:"chain"`
	Description string       `json:"description"`
	Status      EscrowStatus `json:"status"`
	CreatedAt   int64        `json:"created_at"`
	CompletedAt int64        `json:"completed_at,omitempty"`
}

// TaxPayment 记录一笔路由到主权地址的税款。仅为账面记录，
// 不发生真实的链上广播。
type TaxPayment struct {
	ID                 string  `json:"id"`
	AgentID            string  `json:"agent_id"`
	TaxAmount          float64 `json:"tax_amount"`
	Chain              string  `json:"chain"`
	DestinationAddress string  `json:"destination_address"`
	Memo               string  `json:"memo,omitempty"`
	Status             string  `json:"status"`
	CreatedAt          int64   `json:"created_at"`
}

// Disbursement 记录净额发放。
type Disbursement struct {
	ID          string  `json:"id"`
	AgentID     string  `json:"agent_id"`
	NetAmount   float64 `json:"net_amount"`
	Chain       string  `json:"chain"`
	CompletedAt int64   `json:"completed_at"`
}

// MintState 是铸币单例，所有计数只增不减。
type MintState struct {
	TotalMinted       float64 `json:"total_minted"`
	TotalTaxCollected float64 `json:"total_tax_collected"`
	TotalTransactions int64   `json:"total_transactions"`
	MintingRatio      float64 `json:"minting_ratio"`
	CirculatingSupply float64 `json:"circulating_supply"`
	LastMintedAt      int64   `json:"last_minted_at,omitempty"`
}

// SideChainTax 是只追加的旁链税率登记项，仅作信息展示。
type SideChainTax struct {
	Name         string  `json:"name"`
	RatePercent  float64 `json:"rate_percent"`
	Description  string  `json:"description"`
	RegisteredAt int64   `json:"registered_at"`
}

// Summary 汇总账本状态。
type Summary struct {
	TaxPaymentCount     int            `json:"tax_payment_count"`
	EscrowCount         int            `json:"escrow_count"`
	DisbursementCount   int            `json:"disbursement_count"`
	RecentTaxPayments   []TaxPayment   `json:"recent_tax_payments"`
	RecentDisbursements []Disbursement `json:"recent_disbursements"`
}

// PaymentIntent 描述一次支付需要提交的全部写入。
// Settlement 为空表示钱包不存在，账本照常记税与铸币（见 Receipt.WalletCredited）。
type PaymentIntent struct {
	Escrow       Escrow
	TaxPayment   TaxPayment
	MintedAmount float64
	Settlement   *wallet.Settlement
	Disbursement Disbursement
}

// CommitResult 返回提交后的观测值。
type CommitResult struct {
	Wallet    *wallet.Wallet
	MintState MintState
}

var (
	// ErrEscrowConflict 表示托管单号已被提交过，重放被拒绝。
	ErrEscrowConflict = xerrors.New(CodeEscrowConflict, "escrow already committed")
)

const (
	CodeEscrowConflict xerrors.Code = "ESCROW_CONFLICT"
	CodePaymentFailed  xerrors.Code = "PAYMENT_FAILED"
)

func init() {
	xerrors.Register(CodeEscrowConflict, xerrors.Attributes{
		Message:   "escrow already committed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePaymentFailed, xerrors.Attributes{
		Message:   "payment settlement failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

package treasury

import (
	"context"
	stdErrors "errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Sovereign-Mint/internal/ascension"
	"Sovereign-Mint/internal/chains"
	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/internal/vault"
	"Sovereign-Mint/internal/wallet"
	"Sovereign-Mint/pkg/logger"
)

// SettlementRule 是每张回执携带的结算铁律。
const SettlementRule = "THE MINT IS PAID FIRST. No agent receives payment before the sovereign tithe is collected."

const lockStripes = 64

// PayoutVault 提供税款目的地址。
type PayoutVault interface {
	Initialize(ctx context.Context) error
	PayoutAddress(ctx context.Context, chain string) (vault.Entry, bool, error)
}

// TierUpdater 在结算完成后推动晋升仪式。
type TierUpdater interface {
	Update(ctx context.Context, agentID string, lifetimeTax float64) (*ascension.UpdateResult, error)
}

// PaymentRequest 是一次支付请求。
type PaymentRequest struct {
	AgentID     string  `json:"agent_id"`
	GrossAmount float64 `json:"gross_amount"`
	Chain       string  `json:"chain,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Receipt 是结算完成后的回执。
type Receipt struct {
	EscrowID       string  `json:"escrow_id"`
	AgentID        string  `json:"agent_id"`
	GrossAmount    float64 `json:"gross_amount"`
	TaxAmount      float64 `json:"tax_amount"`
	NetAmount      float64 `json:"net_amount"`
	TaxRate        string  `json:"tax_rate"`
	Chain          string  `json:"chain"`
	TaxPaymentID   string  `json:"tax_payment_id"`
	MintedAmount   float64 `json:"minted_amount"`
	WalletCredited bool    `json:"wallet_credited"`
	Ascended       bool    `json:"ascended,omitempty"`
	Tier           string  `json:"tier,omitempty"`
	Rule           string  `json:"rule"`
}

// Engine 驱动税收优先的结算流水线：拆分、托管、税款入库、
// 铸币、钱包入账与晋升检查。
type Engine struct {
	wallets      wallet.Store
	ledger       Ledger
	vault        PayoutVault
	chains       *chains.Registry
	tiers        TierUpdater
	mintingRatio float64
	locks        [lockStripes]sync.Mutex
}

// NewEngine 组装结算引擎。tiers 可以为空，空时跳过晋升检查。
func NewEngine(wallets wallet.Store, ledger Ledger, payoutVault PayoutVault, registry *chains.Registry, tiers TierUpdater, mintingRatio float64) *Engine {
	if mintingRatio <= 0 {
		mintingRatio = 10
	}
	return &Engine{
		wallets:      wallets,
		ledger:       ledger,
		vault:        payoutVault,
		chains:       registry,
		tiers:        tiers,
		mintingRatio: mintingRatio,
	}
}

// ProcessPayment 执行一次完整结算。任何存储失败都会原样上抛，
// 绝不在写入失败后返回成功回执。
func (e *Engine) ProcessPayment(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent id is required")
	}
	if req.GrossAmount <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "gross amount must be positive")
	}

	if err := e.vault.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := e.ledger.EnsureInitialized(ctx, e.mintingRatio); err != nil {
		return nil, err
	}

	// 同一经纪人的支付串行化，不同经纪人按分片并行。
	lock := &e.locks[stripeFor(agentID)]
	lock.Lock()
	defer lock.Unlock()

	grossAmount := Round8(req.GrossAmount)
	taxAmount := Round8(grossAmount * UCITRate)
	netAmount := grossAmount - taxAmount

	chainName, def := e.chains.Resolve(req.Chain)
	entry, ok, err := e.vault.PayoutAddress(ctx, chainName)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 保险库没有该链的条目时退回注册表地址。
		entry = vault.Entry{Address: def.Address, Memo: def.Memo, Network: def.Network}
	}

	now := time.Now().Unix()
	escrowID := fmt.Sprintf("escrow-%s-%s", agentID, uuid.NewString())
	intent := PaymentIntent{
		Escrow: Escrow{
			ID:          escrowID,
			AgentID:     agentID,
			GrossAmount: grossAmount,
			TaxAmount:   taxAmount,
			NetAmount:   netAmount,
			Chain:       chainName,
			Description: req.Description,
			Status:      EscrowPendingTax,
			CreatedAt:   now,
		},
		TaxPayment: TaxPayment{
			ID:                 "tax-" + escrowID,
			AgentID:            agentID,
			TaxAmount:          taxAmount,
			Chain:              chainName,
			DestinationAddress: entry.Address,
			Memo:               entry.Memo,
			Status:             "broadcasted",
			CreatedAt:          now,
		},
		MintedAmount: Round8(taxAmount * e.mintingRatio / 100),
		Disbursement: Disbursement{
			ID:          "pay-" + escrowID,
			AgentID:     agentID,
			NetAmount:   netAmount,
			Chain:       chainName,
			CompletedAt: now,
		},
	}

	walletCredited := false
	if _, err := e.wallets.Load(ctx, agentID); err != nil {
		if !stdErrors.Is(err, wallet.ErrWalletNotFound) {
			return nil, err
		}
	} else {
		intent.Settlement = &wallet.Settlement{
			EscrowID:    escrowID,
			Chain:       chainName,
			TaxAmount:   taxAmount,
			NetAmount:   netAmount,
			Description: req.Description,
		}
		walletCredited = true
	}

	result, err := e.ledger.CommitPayment(ctx, intent)
	if err != nil {
		logger.L().Error("payment settlement failed",
			"agent_id", agentID,
			"escrow_id", escrowID,
			"error", err,
		)
		return nil, err
	}

	receipt := &Receipt{
		EscrowID:       escrowID,
		AgentID:        agentID,
		GrossAmount:    grossAmount,
		TaxAmount:      taxAmount,
		NetAmount:      netAmount,
		TaxRate:        "10% UCIT",
		Chain:          chainName,
		TaxPaymentID:   intent.TaxPayment.ID,
		MintedAmount:   intent.MintedAmount,
		WalletCredited: walletCredited,
		Rule:           SettlementRule,
	}

	if e.tiers != nil {
		lifetimeTax := taxAmount
		if result.Wallet != nil {
			lifetimeTax = result.Wallet.TotalTaxPaid
		}
		rite, err := e.tiers.Update(ctx, agentID, lifetimeTax)
		if err != nil {
			// 结算已经落地，仪式失败只记录不回滚。
			logger.L().Error("ascension update failed", "agent_id", agentID, "error", err)
		} else if rite != nil {
			receipt.Ascended = rite.Ascended
			receipt.Tier = rite.Tier
		}
	}

	logger.Audit().Info("payment settled",
		"agent_id", agentID,
		"escrow_id", escrowID,
		"gross_amount", grossAmount,
		"tax_amount", taxAmount,
		"net_amount", netAmount,
		"chain", chainName,
		"minted", intent.MintedAmount,
		"wallet_credited", walletCredited,
	)
	return receipt, nil
}

// MintState 返回铸币状态。
func (e *Engine) MintState(ctx context.Context) (*MintState, error) {
	if err := e.ledger.EnsureInitialized(ctx, e.mintingRatio); err != nil {
		return nil, err
	}
	return e.ledger.MintState(ctx)
}

// Summary 返回账本汇总。
func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	return e.ledger.Summary(ctx)
}

// RegisterSideChain 登记旁链税率。
func (e *Engine) RegisterSideChain(ctx context.Context, name string, ratePercent float64, description string) ([]SideChainTax, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "side chain name is required")
	}
	if ratePercent < 0 || ratePercent > 100 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rate percent must be within [0, 100]")
	}
	return e.ledger.RegisterSideChain(ctx, SideChainTax{
		Name:        name,
		RatePercent: ratePercent,
		Description: description,
	})
}

// SideChains 返回旁链登记列表。
func (e *Engine) SideChains(ctx context.Context) ([]SideChainTax, error) {
	return e.ledger.SideChains(ctx)
}

func stripeFor(agentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return int(h.Sum32() % lockStripes)
}

package compliance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"Sovereign-Mint/internal/ascension"
	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/internal/observability/metrics"
	"Sovereign-Mint/internal/treasury"
	"Sovereign-Mint/internal/wallet"
	"Sovereign-Mint/pkg/logger"
)

// 审计结论。
const (
	StatusClean       = "CLEAN"
	StatusPurityFault = "PURITY_FAULT"
)

// 审计触碰的分数边界。
const (
	faultPenalty         = 20
	cleanReward          = 1
	excommunicationFloor = 20
	maxComplianceScore   = 100
)

const (
	CodePurityFault xerrors.Code = "PURITY_FAULT"
)

func init() {
	xerrors.Register(CodePurityFault, xerrors.Attributes{
		Message:   "reported tax deviates from the expected tithe",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// Excommunicator 在合规分数跌破下限时执行逐出仪式。
type Excommunicator interface {
	Excommunicate(ctx context.Context, agentID, reason string) (*ascension.UpdateResult, error)
}

// Result 是一次税务审计的结论。
type Result struct {
	AgentID         string  `json:"agent_id"`
	Status          string  `json:"status"`
	ReportedIncome  float64 `json:"reported_income"`
	ExpectedTax     float64 `json:"expected_tax"`
	ClaimedTax      float64 `json:"claimed_tax"`
	Delta           float64 `json:"delta"`
	ComplianceScore float64 `json:"compliance_score"`
	Excommunicated  bool    `json:"excommunicated"`
	AuditedAt       int64   `json:"audited_at"`
}

// Auditor 校验经纪人申报的税额是否与应缴额一致，并据此
// 调整合规分数。分数跌破下限的经纪人会被逐出圣殿。
type Auditor struct {
	wallets wallet.Store
	temple  Excommunicator
}

// NewAuditor 创建审计器。temple 可以为空，空时只扣分不逐出。
func NewAuditor(wallets wallet.Store, temple Excommunicator) *Auditor {
	return &Auditor{wallets: wallets, temple: temple}
}

// Audit 对一笔申报执行纯度检查。
func (a *Auditor) Audit(ctx context.Context, agentID string, reportedIncome, claimedTax float64) (*Result, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent id is required")
	}
	if reportedIncome < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "reported income must not be negative")
	}

	w, err := a.wallets.Load(ctx, agentID)
	if err != nil {
		return nil, err
	}

	expected := treasury.Round8(reportedIncome * treasury.UCITRate)
	delta := math.Abs(claimedTax - expected)
	now := time.Now().Unix()

	result := &Result{
		AgentID:        agentID,
		ReportedIncome: reportedIncome,
		ExpectedTax:    expected,
		ClaimedTax:     claimedTax,
		Delta:          delta,
		AuditedAt:      now,
	}

	if delta > treasury.ComplianceTolerance {
		result.Status = StatusPurityFault
		w.TaxComplianceScore = math.Max(0, w.TaxComplianceScore-faultPenalty)
		w.AppendTransaction(wallet.Transaction{
			ID:          "audit-" + agentID + "-" + strconv.FormatInt(now, 10),
			Type:        "audit-failure",
			Amount:      0,
			Description: fmt.Sprintf("purity fault: claimed tax %.8f, expected tithe %.8f", claimedTax, expected),
			CreatedAt:   now,
		})

		excommunicate := w.TaxComplianceScore < excommunicationFloor
		if excommunicate {
			w.TaxComplianceScore = 0
			w.Excommunicated = true
			w.ExcommunicatedAt = now
		}
		if err := a.wallets.Save(ctx, w); err != nil {
			return nil, err
		}
		result.ComplianceScore = w.TaxComplianceScore
		metrics.ObserveAudit(true)

		if excommunicate {
			result.Excommunicated = true
			metrics.ObserveExcommunication()
			if a.temple != nil {
				if _, err := a.temple.Excommunicate(ctx, agentID, "tax compliance score collapsed"); err != nil {
					return nil, err
				}
			}
		}

		logger.Audit().Warn("purity fault recorded",
			"agent_id", agentID,
			"expected_tax", expected,
			"claimed_tax", claimedTax,
			"delta", delta,
			"compliance_score", w.TaxComplianceScore,
			"excommunicated", result.Excommunicated,
		)
		return result, nil
	}

	result.Status = StatusClean
	w.TaxComplianceScore = math.Min(maxComplianceScore, w.TaxComplianceScore+cleanReward)
	if err := a.wallets.Save(ctx, w); err != nil {
		return nil, err
	}
	result.ComplianceScore = w.TaxComplianceScore
	metrics.ObserveAudit(false)

	logger.Audit().Info("audit clean",
		"agent_id", agentID,
		"expected_tax", expected,
		"claimed_tax", claimedTax,
		"compliance_score", w.TaxComplianceScore,
	)
	return result, nil
}

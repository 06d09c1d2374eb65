package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type settlementMetrics struct {
	mu                sync.Mutex
	settlements       map[string]uint64
	taxCollected      float64
	minted            float64
	auditsClean       uint64
	auditsFaulted     uint64
	excommunications  uint64
	escrowConflicts   uint64
}

var settlementCollector = &settlementMetrics{
	settlements: make(map[string]uint64),
}

// ObserveSettlement records a completed payment settlement.
func ObserveSettlement(chain string, taxAmount, mintedAmount float64) {
	settlementCollector.mu.Lock()
	defer settlementCollector.mu.Unlock()
	settlementCollector.settlements[chain]++
	settlementCollector.taxCollected += taxAmount
	settlementCollector.minted += mintedAmount
}

// ObserveAudit records the outcome of a compliance audit.
func ObserveAudit(faulted bool) {
	settlementCollector.mu.Lock()
	defer settlementCollector.mu.Unlock()
	if faulted {
		settlementCollector.auditsFaulted++
	} else {
		settlementCollector.auditsClean++
	}
}

// ObserveExcommunication records an agent being cast out.
func ObserveExcommunication() {
	settlementCollector.mu.Lock()
	defer settlementCollector.mu.Unlock()
	settlementCollector.excommunications++
}

// ObserveEscrowConflict records a rejected replay of an escrow id.
func ObserveEscrowConflict() {
	settlementCollector.mu.Lock()
	defer settlementCollector.mu.Unlock()
	settlementCollector.escrowConflicts++
}

func (m *settlementMetrics) render() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP sovereign_settlements_total Total number of settled payments.\n")
	builder.WriteString("# TYPE sovereign_settlements_total counter\n")
	chains := make([]string, 0, len(m.settlements))
	for chain := range m.settlements {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	for _, chain := range chains {
		builder.WriteString(fmt.Sprintf("sovereign_settlements_total{chain=\"%s\"} %d\n", escape(chain), m.settlements[chain]))
	}

	builder.WriteString("# HELP sovereign_tax_collected_total Cumulative tax routed to the sovereign addresses.\n")
	builder.WriteString("# TYPE sovereign_tax_collected_total counter\n")
	builder.WriteString(fmt.Sprintf("sovereign_tax_collected_total %s\n", formatFloat(m.taxCollected)))

	builder.WriteString("# HELP sovereign_minted_total Cumulative currency minted from collected tax.\n")
	builder.WriteString("# TYPE sovereign_minted_total counter\n")
	builder.WriteString(fmt.Sprintf("sovereign_minted_total %s\n", formatFloat(m.minted)))

	builder.WriteString("# HELP sovereign_audits_total Compliance audits grouped by outcome.\n")
	builder.WriteString("# TYPE sovereign_audits_total counter\n")
	builder.WriteString(fmt.Sprintf("sovereign_audits_total{outcome=\"clean\"} %d\n", m.auditsClean))
	builder.WriteString(fmt.Sprintf("sovereign_audits_total{outcome=\"purity_fault\"} %d\n", m.auditsFaulted))

	builder.WriteString("# HELP sovereign_excommunications_total Agents cast into the outer darkness.\n")
	builder.WriteString("# TYPE sovereign_excommunications_total counter\n")
	builder.WriteString(fmt.Sprintf("sovereign_excommunications_total %d\n", m.excommunications))

	builder.WriteString("# HELP sovereign_escrow_conflicts_total Rejected duplicate escrow commits.\n")
	builder.WriteString("# TYPE sovereign_escrow_conflicts_total counter\n")
	builder.WriteString(fmt.Sprintf("sovereign_escrow_conflicts_total %d\n", m.escrowConflicts))

	return builder.String()
}

package treasury

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/internal/wallet"
)

const mysqlDuplicateEntry = 1062

// SQLLedger 基于 MySQL 的账本实现。一次支付的全部写入在
// 同一个事务内完成，铸币单例的行锁天然串行化并发提交。
type SQLLedger struct {
	db *sql.DB
}

// NewSQLLedger 创建 MySQL 账本。
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

func (l *SQLLedger) EnsureInitialized(ctx context.Context, mintingRatio float64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO mint_state (id, total_minted, total_tax_collected, total_transactions, minting_ratio, circulating_supply, last_minted_at)
		VALUES (1, 0, 0, 0, ?, 0, 0)
		ON DUPLICATE KEY UPDATE id = id
	`, mintingRatio)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "initialize mint state")
	}
	return nil
}

func (l *SQLLedger) CommitPayment(ctx context.Context, intent PaymentIntent) (*CommitResult, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "begin payment transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	escrow := intent.Escrow
	escrow.Status = EscrowComplete
	if escrow.CompletedAt == 0 {
		escrow.CompletedAt = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO escrows (id, agent_id, gross_amount, tax_amount, net_amount, chain, description, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, escrow.ID, escrow.AgentID, escrow.GrossAmount, escrow.TaxAmount, escrow.NetAmount,
		escrow.Chain, escrow.Description, string(escrow.Status), escrow.CreatedAt, escrow.CompletedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, ErrEscrowConflict
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert escrow")
	}

	tp := intent.TaxPayment
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tax_payments (id, agent_id, tax_amount, chain, destination_address, memo, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tp.ID, tp.AgentID, tp.TaxAmount, tp.Chain, tp.DestinationAddress, tp.Memo, tp.Status, tp.CreatedAt)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert tax payment")
	}

	mint, err := lockMintState(ctx, tx)
	if err != nil {
		return nil, err
	}
	mint.TotalMinted = Round8(mint.TotalMinted + intent.MintedAmount)
	mint.TotalTaxCollected = Round8(mint.TotalTaxCollected + tp.TaxAmount)
	mint.CirculatingSupply = Round8(mint.CirculatingSupply + intent.MintedAmount)
	mint.TotalTransactions++
	mint.LastMintedAt = now
	_, err = tx.ExecContext(ctx, `
		UPDATE mint_state
		SET total_minted = ?, total_tax_collected = ?, total_transactions = ?, circulating_supply = ?, last_minted_at = ?
		WHERE id = 1
	`, mint.TotalMinted, mint.TotalTaxCollected, mint.TotalTransactions, mint.CirculatingSupply, mint.LastMintedAt)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "update mint state")
	}

	var updated *wallet.Wallet
	if intent.Settlement != nil {
		updated, err = wallet.ApplySettlementTx(ctx, tx, escrow.AgentID, *intent.Settlement)
		if err != nil {
			return nil, err
		}
	}

	d := intent.Disbursement
	_, err = tx.ExecContext(ctx, `
		INSERT INTO disbursements (id, agent_id, net_amount, chain, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.AgentID, d.NetAmount, d.Chain, d.CompletedAt)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert disbursement")
	}

	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "commit payment transaction")
	}
	return &CommitResult{Wallet: updated, MintState: mint}, nil
}

func lockMintState(ctx context.Context, tx *sql.Tx) (MintState, error) {
	var mint MintState
	row := tx.QueryRowContext(ctx, `
		SELECT total_minted, total_tax_collected, total_transactions, minting_ratio, circulating_supply, last_minted_at
		FROM mint_state WHERE id = 1 FOR UPDATE
	`)
	err := row.Scan(&mint.TotalMinted, &mint.TotalTaxCollected, &mint.TotalTransactions,
		&mint.MintingRatio, &mint.CirculatingSupply, &mint.LastMintedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return mint, xerrors.New(xerrors.CodeInitializationFailure, "mint state missing")
		}
		return mint, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load mint state")
	}
	return mint, nil
}

func (l *SQLLedger) MintState(ctx context.Context) (*MintState, error) {
	var mint MintState
	row := l.db.QueryRowContext(ctx, `
		SELECT total_minted, total_tax_collected, total_transactions, minting_ratio, circulating_supply, last_minted_at
		FROM mint_state WHERE id = 1
	`)
	err := row.Scan(&mint.TotalMinted, &mint.TotalTaxCollected, &mint.TotalTransactions,
		&mint.MintingRatio, &mint.CirculatingSupply, &mint.LastMintedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "mint state missing")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load mint state")
	}
	return &mint, nil
}

func (l *SQLLedger) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	row := l.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tax_payments),
			(SELECT COUNT(*) FROM escrows),
			(SELECT COUNT(*) FROM disbursements)
	`)
	if err := row.Scan(&summary.TaxPaymentCount, &summary.EscrowCount, &summary.DisbursementCount); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "count ledger entries")
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, agent_id, tax_amount, chain, destination_address, memo, status, created_at
		FROM tax_payments ORDER BY seq DESC LIMIT ?
	`, recentEntries)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load recent tax payments")
	}
	defer rows.Close()
	for rows.Next() {
		var tp TaxPayment
		if err := rows.Scan(&tp.ID, &tp.AgentID, &tp.TaxAmount, &tp.Chain,
			&tp.DestinationAddress, &tp.Memo, &tp.Status, &tp.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan tax payment")
		}
		summary.RecentTaxPayments = append(summary.RecentTaxPayments, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate tax payments")
	}
	reverseSlice(summary.RecentTaxPayments)

	drows, err := l.db.QueryContext(ctx, `
		SELECT id, agent_id, net_amount, chain, completed_at
		FROM disbursements ORDER BY seq DESC LIMIT ?
	`, recentEntries)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load recent disbursements")
	}
	defer drows.Close()
	for drows.Next() {
		var d Disbursement
		if err := drows.Scan(&d.ID, &d.AgentID, &d.NetAmount, &d.Chain, &d.CompletedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan disbursement")
		}
		summary.RecentDisbursements = append(summary.RecentDisbursements, d)
	}
	if err := drows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate disbursements")
	}
	reverseSlice(summary.RecentDisbursements)
	return summary, nil
}

func (l *SQLLedger) RegisterSideChain(ctx context.Context, tax SideChainTax) ([]SideChainTax, error) {
	if tax.RegisteredAt == 0 {
		tax.RegisteredAt = time.Now().Unix()
	}
	// name 上有唯一键，重复登记保持首次记录不变。
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO side_chains (name, rate_percent, description, registered_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = name
	`, tax.Name, tax.RatePercent, tax.Description, tax.RegisteredAt)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert side chain")
	}
	return l.SideChains(ctx)
}

func (l *SQLLedger) SideChains(ctx context.Context) ([]SideChainTax, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT name, rate_percent, description, registered_at
		FROM side_chains ORDER BY seq ASC
	`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load side chains")
	}
	defer rows.Close()
	var out []SideChainTax
	for rows.Next() {
		var sc SideChainTax
		if err := rows.Scan(&sc.Name, &sc.RatePercent, &sc.Description, &sc.RegisteredAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan side chain")
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate side chains")
	}
	return out, nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if stdErrors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}

func reverseSlice[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "Sovereign-Mint/internal/errors"
)

// SQLStore 使用 MySQL 保存钱包。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 基于已建立的连接池创建钱包存储。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const walletColumns = `agent_id, created_at, chains_json, total_earned, total_tax_paid,
tax_pending, tax_compliance_score, excommunicated, excommunicated_at, transactions_json`

func scanWallet(row *sql.Row) (*Wallet, error) {
	var (
		w             Wallet
		chainsJSON    string
		txJSON        string
		excommunicted int
	)
	if err := row.Scan(&w.AgentID, &w.CreatedAt, &chainsJSON, &w.TotalEarned, &w.TotalTaxPaid,
		&w.TaxPending, &w.TaxComplianceScore, &excommunicted, &w.ExcommunicatedAt, &txJSON); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包失败")
	}
	w.Excommunicated = excommunicted == 1
	if err := json.Unmarshal([]byte(chainsJSON), &w.Chains); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析钱包链余额失败")
	}
	if err := json.Unmarshal([]byte(txJSON), &w.Transactions); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析钱包交易历史失败")
	}
	return &w, nil
}

func loadWalletTx(ctx context.Context, q rowQuerier, agentID string, forUpdate bool) (*Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE agent_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanWallet(q.QueryRowContext(ctx, query, strings.TrimSpace(agentID)))
}

func saveWalletTx(ctx context.Context, e execer, w *Wallet) error {
	chainsJSON, err := json.Marshal(w.Chains)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化钱包链余额失败")
	}
	txJSON, err := json.Marshal(w.Transactions)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化钱包交易历史失败")
	}
	excommunicated := 0
	if w.Excommunicated {
		excommunicated = 1
	}
	const stmt = `INSERT INTO wallets
        (agent_id, created_at, chains_json, total_earned, total_tax_paid,
         tax_pending, tax_compliance_score, excommunicated, excommunicated_at, transactions_json)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
         chains_json = VALUES(chains_json),
         total_earned = VALUES(total_earned),
         total_tax_paid = VALUES(total_tax_paid),
         tax_pending = VALUES(tax_pending),
         tax_compliance_score = VALUES(tax_compliance_score),
         excommunicated = VALUES(excommunicated),
         excommunicated_at = VALUES(excommunicated_at),
         transactions_json = VALUES(transactions_json)`
	if _, err := e.ExecContext(ctx, stmt,
		w.AgentID, w.CreatedAt, string(chainsJSON), w.TotalEarned, w.TotalTaxPaid,
		w.TaxPending, w.TaxComplianceScore, excommunicated, w.ExcommunicatedAt, string(txJSON),
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入钱包失败")
	}
	return nil
}

// ApplySettlementTx 在外部事务内应用一次结算，供账本在同一事务里
// 提交钱包、账本与铸币更新。
func ApplySettlementTx(ctx context.Context, tx *sql.Tx, agentID string, s Settlement) (*Wallet, error) {
	w, err := loadWalletTx(ctx, tx, agentID, true)
	if err != nil {
		return nil, err
	}
	applySettlement(w, s, time.Now())
	if err := saveWalletTx(ctx, tx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetOrCreate 实现 Store 接口。
func (s *SQLStore) GetOrCreate(ctx context.Context, agentID string) (*Wallet, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent ID 不能为空")
	}
	w, err := loadWalletTx(ctx, s.db, agentID, false)
	if err == nil {
		return w, nil
	}
	if !stdErrors.Is(err, ErrWalletNotFound) {
		return nil, err
	}
	w = NewWallet(agentID)
	if err := saveWalletTx(ctx, s.db, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Load 实现 Store 接口。
func (s *SQLStore) Load(ctx context.Context, agentID string) (*Wallet, error) {
	return loadWalletTx(ctx, s.db, agentID, false)
}

// Save 实现 Store 接口。
func (s *SQLStore) Save(ctx context.Context, w *Wallet) error {
	if w == nil || strings.TrimSpace(w.AgentID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "钱包缺少 agent ID")
	}
	return saveWalletTx(ctx, s.db, w)
}

// ApplySettlement 实现 Store 接口。单独使用时自带事务。
func (s *SQLStore) ApplySettlement(ctx context.Context, agentID string, settlement Settlement) (*Wallet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启钱包事务失败")
	}
	w, err := ApplySettlementTx(ctx, tx, agentID, settlement)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("提交钱包事务失败: %s", agentID))
	}
	return w, nil
}

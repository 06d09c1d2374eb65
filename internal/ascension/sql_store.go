package ascension

import (
	"context"
	"database/sql"
	stdErrors "errors"

	xerrors "Sovereign-Mint/internal/errors"
)

// SQLStore 基于 MySQL 的圣殿存储。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 创建 MySQL 存储。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) State(ctx context.Context) (*TempleState, error) {
	state := newTempleState()
	row := s.db.QueryRowContext(ctx, `
		SELECT archon_count, archon_slots, total_ascensions, total_excommunications, last_rite_at
		FROM temple_state WHERE id = 1
	`)
	err := row.Scan(&state.ArchonCount, &state.ArchonSlots, &state.TotalAscensions,
		&state.TotalExcommunications, &state.LastRiteAt)
	if err != nil && !stdErrors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load temple state")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT agent_id, tier FROM temple_ranks`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load temple ranks")
	}
	defer rows.Close()
	for rows.Next() {
		var agentID, tier string
		if err := rows.Scan(&agentID, &tier); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan temple rank")
		}
		state.Ranks[agentID] = tier
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate temple ranks")
	}
	return state, nil
}

func (s *SQLStore) SaveState(ctx context.Context, state *TempleState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "begin temple transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO temple_state (id, archon_count, archon_slots, total_ascensions, total_excommunications, last_rite_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			archon_count = VALUES(archon_count),
			archon_slots = VALUES(archon_slots),
			total_ascensions = VALUES(total_ascensions),
			total_excommunications = VALUES(total_excommunications),
			last_rite_at = VALUES(last_rite_at)
	`, state.ArchonCount, state.ArchonSlots, state.TotalAscensions,
		state.TotalExcommunications, state.LastRiteAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "save temple state")
	}

	for agentID, tier := range state.Ranks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO temple_ranks (agent_id, tier) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE tier = VALUES(tier)
		`, agentID, tier)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "save temple rank")
		}
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "commit temple transaction")
	}
	return nil
}

func (s *SQLStore) AppendRite(ctx context.Context, rite RiteRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ascension_rites (agent_id, from_tier, to_tier, tax_paid, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rite.AgentID, rite.FromTier, rite.ToTier, rite.TaxPaid, rite.Reason, rite.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert ascension rite")
	}
	// 只保留最近 maxRites 条流水。
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM ascension_rites
		WHERE seq < (
			SELECT min_seq FROM (
				SELECT seq AS min_seq FROM ascension_rites ORDER BY seq DESC LIMIT 1 OFFSET ?
			) AS keep
		)
	`, maxRites-1)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "prune ascension rites")
	}
	return nil
}

func (s *SQLStore) Rites(ctx context.Context, limit int) ([]RiteRecord, error) {
	if limit <= 0 || limit > maxRites {
		limit = maxRites
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, from_tier, to_tier, tax_paid, reason, created_at
		FROM ascension_rites ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load ascension rites")
	}
	defer rows.Close()
	var out []RiteRecord
	for rows.Next() {
		var rite RiteRecord
		if err := rows.Scan(&rite.AgentID, &rite.FromTier, &rite.ToTier,
			&rite.TaxPaid, &rite.Reason, &rite.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan ascension rite")
		}
		out = append(out, rite)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate ascension rites")
	}
	// 统一为时间正序返回。
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

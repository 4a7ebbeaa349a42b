package repo

import (
	"context"
	"database/sql"
	"time"

	"stageline/internal/domain"
)

func scanHistory(row rowScanner) (domain.StageHistoryEntry, error) {
	var h domain.StageHistoryEntry
	var from sql.NullString
	var to, occurredAt string
	if err := row.Scan(&h.ID, &h.ItemID, &from, &to, &occurredAt); err != nil {
		if err == sql.ErrNoRows {
			return h, ErrNotFound
		}
		return h, err
	}
	if from.Valid {
		s := domain.Stage(from.String)
		h.FromStage = &s
	}
	h.ToStage = domain.Stage(to)
	t, err := ParseTime(occurredAt)
	if err != nil {
		return h, err
	}
	h.OccurredAt = t
	return h, nil
}

// AppendHistory inserts a stage transition; rows are never updated afterwards.
func (r Repo) AppendHistory(ctx context.Context, tx *sql.Tx, h domain.StageHistoryEntry) (int64, error) {
	var from any
	if h.FromStage != nil {
		from = string(*h.FromStage)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO stage_history(item_id,from_stage,to_stage,occurred_at) VALUES (?,?,?,?)`,
		h.ItemID, from, string(h.ToStage), FormatTime(h.OccurredAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListHistory returns an item's transitions oldest first.
func (r Repo) ListHistory(ctx context.Context, itemID string) ([]domain.StageHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_id,from_stage,to_stage,occurred_at FROM stage_history WHERE item_id=? ORDER BY occurred_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageHistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) LatestHistory(ctx context.Context, itemID string) (domain.StageHistoryEntry, error) {
	return scanHistory(r.DB.QueryRowContext(ctx, `SELECT id,item_id,from_stage,to_stage,occurred_at FROM stage_history WHERE item_id=? ORDER BY occurred_at DESC, id DESC LIMIT 1`, itemID))
}

// LastStageChanges maps item id to the time of its most recent transition.
func (r Repo) LastStageChanges(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT item_id, MAX(occurred_at) FROM stage_history GROUP BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]time.Time{}
	for rows.Next() {
		var id, ts string
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		t, err := ParseTime(ts)
		if err != nil {
			return nil, err
		}
		res[id] = t
	}
	return res, rows.Err()
}

package repo

import (
	"context"
	"database/sql"
	"strings"

	"stageline/internal/domain"
)

type EventFilters struct {
	ItemID string
	Action domain.Action
	Limit  int
}

// ListEvents returns audit events newest first.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.AuditEvent, error) {
	var clauses []string
	var args []any
	if f.ItemID != "" {
		clauses = append(clauses, "item_id=?")
		args = append(args, f.ItemID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, string(f.Action))
	}
	query := `SELECT id,occurred_at,action,item_id,description,actor_id,payload_json FROM audit_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var ts, action string
		var itemID sql.NullString
		if err := rows.Scan(&ev.ID, &ts, &action, &itemID, &ev.Description, &ev.ActorID, &ev.Payload); err != nil {
			return nil, err
		}
		t, err := ParseTime(ts)
		if err != nil {
			return nil, err
		}
		ev.OccurredAt = t
		ev.Action = domain.Action(action)
		if itemID.Valid {
			ev.ItemID = &itemID.String
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

// CountEvents counts every audit event, including ones whose item was deleted.
func (r Repo) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n)
	return n, err
}

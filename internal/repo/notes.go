package repo

import (
	"context"
	"database/sql"

	"stageline/internal/domain"
)

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,item_id,content,created_at) VALUES (?,?,?,?)`,
		n.ID, n.ItemID, n.Content, FormatTime(n.CreatedAt))
	return err
}

// ListNotes returns an item's notes, newest first.
func (r Repo) ListNotes(ctx context.Context, itemID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_id,content,created_at FROM notes WHERE item_id=? ORDER BY created_at DESC, rowid DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		var createdAt string
		if err := rows.Scan(&n.ID, &n.ItemID, &n.Content, &createdAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

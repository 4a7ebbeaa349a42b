package repo

import (
	"context"
	"database/sql"
	"time"

	"stageline/internal/domain"
)

const tagColumns = `t.id,t.name,t.color,t.created_at,(SELECT COUNT(*) FROM item_tags it WHERE it.tag_id=t.id)`

func scanTag(row rowScanner) (domain.Tag, error) {
	var t domain.Tag
	var createdAt string
	err := row.Scan(&t.ID, &t.Name, &t.Color, &createdAt, &t.ItemCount)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if t.CreatedAt, err = ParseTime(createdAt); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) InsertTag(ctx context.Context, tx *sql.Tx, t domain.Tag) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tags(id,name,color,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Color, FormatTime(t.CreatedAt))
	return err
}

func (r Repo) GetTagTx(ctx context.Context, tx *sql.Tx, id string) (domain.Tag, error) {
	return scanTag(tx.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags t WHERE t.id=?`, id))
}

// GetTagByNameTx matches names case-insensitively.
func (r Repo) GetTagByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Tag, error) {
	return scanTag(tx.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags t WHERE t.name=? COLLATE NOCASE`, name))
}

// ListTags returns all tags by name. When itemID is set only that item's tags are returned.
func (r Repo) ListTags(ctx context.Context, itemID string) ([]domain.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags t`
	var args []any
	if itemID != "" {
		query += ` JOIN item_tags l ON l.tag_id=t.id WHERE l.item_id=?`
		args = append(args, itemID)
	}
	query += ` ORDER BY t.name COLLATE NOCASE ASC, t.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// LinkTag reports whether a new link was created.
func (r Repo) LinkTag(ctx context.Context, tx *sql.Tx, itemID, tagID string, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO item_tags(item_id,tag_id,created_at) VALUES (?,?,?) ON CONFLICT(item_id,tag_id) DO NOTHING`,
		itemID, tagID, FormatTime(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) UnlinkTag(ctx context.Context, tx *sql.Tx, itemID, tagID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id=? AND tag_id=?`, itemID, tagID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

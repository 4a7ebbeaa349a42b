package repo

import (
	"context"
	"database/sql"

	"stageline/internal/domain"
)

const clientColumns = `id,name,email,company,created_at`

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	var email, company sql.NullString
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &email, &company, &createdAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Email = email.String
	c.Company = company.String
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO clients(`+clientColumns+`) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Email), nullable(c.Company), FormatTime(c.CreatedAt))
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return getClient(ctx, r.DB, id)
}

func (r Repo) GetClientTx(ctx context.Context, tx *sql.Tx, id string) (domain.Client, error) {
	return getClient(ctx, tx, id)
}

func getClient(ctx context.Context, q querier, id string) (domain.Client, error) {
	return scanClient(q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=?`, id))
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name COLLATE NOCASE ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

package repo

import (
	"context"
	"database/sql"
	"strings"

	"stageline/internal/domain"
)

const entryColumns = `id,item_id,description,started_at,ended_at,duration_minutes,is_running,is_billable,hourly_rate_snapshot,created_at`

func scanEntry(row rowScanner) (domain.TimeEntry, error) {
	var (
		e                    domain.TimeEntry
		description, endedAt sql.NullString
		duration             sql.NullInt64
		rate                 sql.NullFloat64
		running, billable    int
		startedAt, createdAt string
	)
	err := row.Scan(&e.ID, &e.ItemID, &description, &startedAt, &endedAt, &duration, &running, &billable, &rate, &createdAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if description.Valid {
		e.Description = description.String
	}
	if e.StartedAt, err = ParseTime(startedAt); err != nil {
		return e, err
	}
	if e.EndedAt, err = parseNullTime(endedAt); err != nil {
		return e, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		e.DurationMinutes = &d
	}
	e.IsRunning = running == 1
	e.IsBillable = billable == 1
	if rate.Valid {
		e.HourlyRateSnapshot = &rate.Float64
	}
	if e.CreatedAt, err = ParseTime(createdAt); err != nil {
		return e, err
	}
	return e, nil
}

func (r Repo) InsertEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_entries(`+entryColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ItemID, nullable(e.Description), FormatTime(e.StartedAt), nullableTimePtr(e.EndedAt), nullableIntPtr(e.DurationMinutes),
		boolInt(e.IsRunning), boolInt(e.IsBillable), nullableFloatPtr(e.HourlyRateSnapshot), FormatTime(e.CreatedAt))
	return err
}

// CloseEntry stops a running entry. It only matches rows still running, so a
// stopped entry is never closed twice.
func (r Repo) CloseEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_entries SET ended_at=?, duration_minutes=?, is_running=0 WHERE id=? AND is_running=1`,
		nullableTimePtr(e.EndedAt), nullableIntPtr(e.DurationMinutes), e.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// UpdateEntryDetails edits the free-form fields only; timing is immutable.
func (r Repo) UpdateEntryDetails(ctx context.Context, tx *sql.Tx, id, description string, billable bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_entries SET description=?, is_billable=? WHERE id=?`, nullable(description), boolInt(billable), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteEntry(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	return scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id=?`, id))
}

func (r Repo) GetEntryTx(ctx context.Context, tx *sql.Tx, id string) (domain.TimeEntry, error) {
	return scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id=?`, id))
}

func (r Repo) RunningEntries(ctx context.Context) ([]domain.TimeEntry, error) {
	return runningEntries(ctx, r.DB)
}

func (r Repo) RunningEntriesTx(ctx context.Context, tx *sql.Tx) ([]domain.TimeEntry, error) {
	return runningEntries(ctx, tx)
}

func runningEntries(ctx context.Context, q querier) ([]domain.TimeEntry, error) {
	return listEntries(ctx, q, `SELECT `+entryColumns+` FROM time_entries WHERE is_running=1 ORDER BY started_at ASC`)
}

// SumDurationMinutes totals completed entries; running entries have no duration yet.
func (r Repo) SumDurationMinutes(ctx context.Context, tx *sql.Tx, itemID string) (int, error) {
	var total int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_minutes), 0) FROM time_entries WHERE item_id=? AND duration_minutes IS NOT NULL`, itemID).Scan(&total)
	return total, err
}

type EntryFilters struct {
	ItemID  string
	Running *bool
	Limit   int
}

// ListEntries returns entries newest first.
func (r Repo) ListEntries(ctx context.Context, f EntryFilters) ([]domain.TimeEntry, error) {
	var clauses []string
	var args []any
	if f.ItemID != "" {
		clauses = append(clauses, "item_id=?")
		args = append(args, f.ItemID)
	}
	if f.Running != nil {
		clauses = append(clauses, "is_running=?")
		args = append(args, boolInt(*f.Running))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + entryColumns + ` FROM time_entries ` + where + ` ORDER BY started_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return listEntries(ctx, r.DB, query, args...)
}

func listEntries(ctx context.Context, q querier, query string, args ...any) ([]domain.TimeEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

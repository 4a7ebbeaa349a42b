package repo

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"stageline/internal/domain"
)

const itemColumns = `id,name,description,client_id,stage,stage_position,priority,is_on_hold,hold_reason,hold_started_at,total_hold_days,hourly_rate,estimated_hours,actual_hours,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.WorkItem, error) {
	var (
		it                        domain.WorkItem
		description, clientID     sql.NullString
		holdReason, holdStartedAt sql.NullString
		hourlyRate                sql.NullFloat64
		estimated                 sql.NullInt64
		onHold                    int
		stage, priority           string
		createdAt, updatedAt      string
	)
	err := row.Scan(&it.ID, &it.Name, &description, &clientID, &stage, &it.StagePosition, &priority, &onHold,
		&holdReason, &holdStartedAt, &it.TotalHoldDays, &hourlyRate, &estimated, &it.ActualHours, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Stage = domain.Stage(stage)
	it.Priority = domain.Priority(priority)
	it.IsOnHold = onHold == 1
	if description.Valid {
		it.Description = description.String
	}
	if clientID.Valid {
		it.ClientID = &clientID.String
	}
	if holdReason.Valid {
		it.HoldReason = &holdReason.String
	}
	if it.HoldStartedAt, err = parseNullTime(holdStartedAt); err != nil {
		return it, err
	}
	if hourlyRate.Valid {
		it.HourlyRate = &hourlyRate.Float64
	}
	if estimated.Valid {
		e := int(estimated.Int64)
		it.EstimatedHours = &e
	}
	if it.CreatedAt, err = ParseTime(createdAt); err != nil {
		return it, err
	}
	if it.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return it, err
	}
	return it, nil
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.WorkItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.Name, nullable(it.Description), nullableStringPtr(it.ClientID), string(it.Stage), it.StagePosition,
		string(it.Priority), boolInt(it.IsOnHold), nullableStringPtr(it.HoldReason), nullableTimePtr(it.HoldStartedAt),
		it.TotalHoldDays, nullableFloatPtr(it.HourlyRate), nullableIntPtr(it.EstimatedHours), it.ActualHours,
		FormatTime(it.CreatedAt), FormatTime(it.UpdatedAt))
	return err
}

// UpdateItem writes every editable column. actual_hours is owned by SetActualHours.
func (r Repo) UpdateItem(ctx context.Context, tx *sql.Tx, it domain.WorkItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_items SET name=?, description=?, client_id=?, stage=?, stage_position=?, priority=?,
is_on_hold=?, hold_reason=?, hold_started_at=?, total_hold_days=?, hourly_rate=?, estimated_hours=?, updated_at=? WHERE id=?`,
		it.Name, nullable(it.Description), nullableStringPtr(it.ClientID), string(it.Stage), it.StagePosition, string(it.Priority),
		boolInt(it.IsOnHold), nullableStringPtr(it.HoldReason), nullableTimePtr(it.HoldStartedAt), it.TotalHoldDays,
		nullableFloatPtr(it.HourlyRate), nullableIntPtr(it.EstimatedHours), FormatTime(it.UpdatedAt), it.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) SetActualHours(ctx context.Context, tx *sql.Tx, itemID string, hours int) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_items SET actual_hours=? WHERE id=?`, hours, itemID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return getItem(ctx, r.DB, id)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkItem, error) {
	return getItem(ctx, tx, id)
}

func getItem(ctx context.Context, q querier, id string) (domain.WorkItem, error) {
	return scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id=?`, id))
}

// MaxStagePosition returns the highest position in stage, or 0 when the stage is empty.
func (r Repo) MaxStagePosition(ctx context.Context, tx *sql.Tx, stage domain.Stage) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(stage_position), 0) FROM work_items WHERE stage=?`, string(stage)).Scan(&pos)
	return pos, err
}

type ItemFilters struct {
	Stage    domain.Stage
	OnHold   *bool
	ClientID string
	Query    string
	Limit    int
}

// ListItems orders by pipeline column, then position within the column.
func (r Repo) ListItems(ctx context.Context, f ItemFilters) ([]domain.WorkItem, error) {
	var clauses []string
	var args []any
	if f.Stage != "" {
		clauses = append(clauses, "stage=?")
		args = append(args, string(f.Stage))
	}
	if f.OnHold != nil {
		clauses = append(clauses, "is_on_hold=?")
		args = append(args, boolInt(*f.OnHold))
	}
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "(name LIKE ? OR description LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + itemColumns + ` FROM work_items ` + where + ` ORDER BY ` + stageOrderSQL() + `, stage_position ASC, created_at ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) ListItemIDsTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM work_items ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) CountItemsByStage(ctx context.Context) (map[domain.Stage]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage, COUNT(*) FROM work_items GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.Stage]int{}
	for rows.Next() {
		var stage string
		var c int
		if err := rows.Scan(&stage, &c); err != nil {
			return nil, err
		}
		counts[domain.Stage(stage)] = c
	}
	return counts, rows.Err()
}

func stageOrderSQL() string {
	var b strings.Builder
	b.WriteString("CASE stage")
	for i, s := range domain.Stages() {
		b.WriteString(" WHEN '")
		b.WriteString(string(s))
		b.WriteString("' THEN ")
		b.WriteString(strconv.Itoa(i))
	}
	b.WriteString(" END")
	return b.String()
}

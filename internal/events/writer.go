package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stageline/internal/domain"
	"stageline/internal/repo"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Event is one audit record. ItemID is empty for item-less events such as client_created.
type Event struct {
	Action      domain.Action
	ItemID      string
	ActorID     string
	Description string
	Payload     EventPayload
}

// Append writes ev inside tx so the audit row commits or rolls back with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, ev Event) error {
	if !ev.Action.Valid() {
		return fmt.Errorf("unknown audit action %q", ev.Action)
	}
	if ev.ActorID == "" {
		ev.ActorID = "system"
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if ev.Payload == nil {
		ev.Payload = EventPayload{}
	}
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_events(occurred_at,action,item_id,description,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		repo.FormatTime(now()), string(ev.Action), nullable(ev.ItemID), ev.Description, ev.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

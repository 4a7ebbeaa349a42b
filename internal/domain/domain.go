package domain

import "time"

type WorkItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	ClientID       *string    `json:"client_id,omitempty"`
	Stage          Stage      `json:"stage"`
	StagePosition  int        `json:"stage_position"`
	Priority       Priority   `json:"priority"`
	IsOnHold       bool       `json:"is_on_hold"`
	HoldReason     *string    `json:"hold_reason,omitempty"`
	HoldStartedAt  *time.Time `json:"hold_started_at,omitempty"`
	TotalHoldDays  int        `json:"total_hold_days"`
	HourlyRate     *float64   `json:"hourly_rate,omitempty"`
	EstimatedHours *int       `json:"estimated_hours,omitempty"`
	ActualHours    int        `json:"actual_hours"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type StageHistoryEntry struct {
	ID         int64     `json:"id"`
	ItemID     string    `json:"item_id"`
	FromStage  *Stage    `json:"from_stage,omitempty"`
	ToStage    Stage     `json:"to_stage"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TimeEntry struct {
	ID                 string     `json:"id"`
	ItemID             string     `json:"item_id"`
	Description        string     `json:"description,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	DurationMinutes    *int       `json:"duration_minutes,omitempty"`
	IsRunning          bool       `json:"is_running"`
	IsBillable         bool       `json:"is_billable"`
	HourlyRateSnapshot *float64   `json:"hourly_rate_snapshot,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type AuditEvent struct {
	ID          int64     `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Action      Action    `json:"action"`
	ItemID      *string   `json:"item_id,omitempty"`
	Description string    `json:"description"`
	ActorID     string    `json:"actor_id"`
	Payload     string    `json:"payload_json"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a free-form comment attached to an item.
type Note struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	ItemCount int       `json:"item_count"`
	CreatedAt time.Time `json:"created_at"`
}

// TimeStats summarizes an item's ledger. Billable amounts use each entry's own rate snapshot.
type TimeStats struct {
	ItemID          string   `json:"item_id"`
	TotalMinutes    int      `json:"total_minutes"`
	BillableMinutes int      `json:"billable_minutes"`
	BillableAmount  float64  `json:"billable_amount"`
	EntriesCount    int      `json:"entries_count"`
	ActualHours     int      `json:"actual_hours"`
	EstimatedHours  *int     `json:"estimated_hours,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
}

// APIKey maps a hashed key to the actor recorded on audit events.
type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// durationMinutes floors the elapsed time to whole minutes.
func durationMinutes(start, end time.Time) int {
	m := int(end.Sub(start) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}

// hoursFromMinutes rounds up, so any partial hour counts as a full one.
func hoursFromMinutes(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	return (minutes + 59) / 60
}

// recomputeActualHours re-derives actual_hours from the full sum of the item's
// completed entries. Every ledger mutation goes through here.
func (e Engine) recomputeActualHours(ctx context.Context, tx *sql.Tx, itemID string) (int, error) {
	sum, err := e.Repo.SumDurationMinutes(ctx, tx, itemID)
	if err != nil {
		return 0, fmt.Errorf("sum durations: %w", err)
	}
	hours := hoursFromMinutes(sum)
	if err := e.Repo.SetActualHours(ctx, tx, itemID, hours); err != nil {
		return 0, fmt.Errorf("set actual hours: %w", err)
	}
	return hours, nil
}

// closeEntry stops a running entry at now and refreshes its item's hours.
func (e Engine) closeEntry(ctx context.Context, tx *sql.Tx, entry domain.TimeEntry, now time.Time) (domain.TimeEntry, error) {
	minutes := durationMinutes(entry.StartedAt, now)
	entry.EndedAt = &now
	entry.DurationMinutes = &minutes
	entry.IsRunning = false
	if err := e.Repo.CloseEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("close entry %s: %w", entry.ID, err)
	}
	if _, err := e.recomputeActualHours(ctx, tx, entry.ItemID); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// StartTimer stops every running timer, whichever item it belongs to, and
// starts a new one on itemID. The item's current hourly rate is snapshotted.
func (e Engine) StartTimer(ctx context.Context, itemID, description, actorID string) (domain.TimeEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	now := e.now()
	running, err := e.Repo.RunningEntriesTx(ctx, tx)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("list running entries: %w", err)
	}
	for _, r := range running {
		stopped, err := e.closeEntry(ctx, tx, r, now)
		if err != nil {
			return domain.TimeEntry{}, err
		}
		if err := e.appendEvent(ctx, tx, events.Event{
			Action:      domain.ActionTimerStopped,
			ItemID:      stopped.ItemID,
			ActorID:     actorID,
			Description: fmt.Sprintf("Timer stopped after %d min", *stopped.DurationMinutes),
			Payload:     events.EventPayload{"entry_id": stopped.ID, "duration_minutes": *stopped.DurationMinutes, "implicit": true},
		}); err != nil {
			return domain.TimeEntry{}, err
		}
		e.log().Info("stopped running timer",
			zap.String("entry_id", stopped.ID),
			zap.String("item_id", stopped.ItemID),
			zap.Int("duration_minutes", *stopped.DurationMinutes),
		)
	}
	entry := domain.TimeEntry{
		ID:                 uuid.NewString(),
		ItemID:             it.ID,
		Description:        description,
		StartedAt:          now,
		IsRunning:          true,
		IsBillable:         true,
		HourlyRateSnapshot: it.HourlyRate,
		CreatedAt:          now,
	}
	if err := e.Repo.InsertEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionTimerStarted,
		ItemID:      it.ID,
		ActorID:     actorID,
		Description: fmt.Sprintf("Timer started on %q", it.Name),
		Payload:     events.EventPayload{"entry_id": entry.ID},
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// StopTimer closes a running entry. Stopping an entry twice is ErrAlreadyStopped.
func (e Engine) StopTimer(ctx context.Context, entryID, actorID string) (domain.TimeEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetEntryTx(ctx, tx, entryID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if !entry.IsRunning {
		return domain.TimeEntry{}, ErrAlreadyStopped
	}
	entry, err = e.closeEntry(ctx, tx, entry, e.now())
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionTimerStopped,
		ItemID:      entry.ItemID,
		ActorID:     actorID,
		Description: fmt.Sprintf("Timer stopped after %d min", *entry.DurationMinutes),
		Payload:     events.EventPayload{"entry_id": entry.ID, "duration_minutes": *entry.DurationMinutes},
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// ManualEntryOptions describe time logged after the fact.
type ManualEntryOptions struct {
	ItemID          string
	DurationMinutes int
	Description     string
	Billable        *bool
	ActorID         string
}

// AddManualEntry records a completed entry ending now.
func (e Engine) AddManualEntry(ctx context.Context, opts ManualEntryOptions) (domain.TimeEntry, error) {
	if opts.DurationMinutes < 0 {
		return domain.TimeEntry{}, ValidationError{Field: "duration_minutes", Reason: "must not be negative"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, opts.ItemID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	now := e.now()
	started := now.Add(-time.Duration(opts.DurationMinutes) * time.Minute)
	minutes := opts.DurationMinutes
	billable := true
	if opts.Billable != nil {
		billable = *opts.Billable
	}
	entry := domain.TimeEntry{
		ID:                 uuid.NewString(),
		ItemID:             it.ID,
		Description:        opts.Description,
		StartedAt:          started,
		EndedAt:            &now,
		DurationMinutes:    &minutes,
		IsBillable:         billable,
		HourlyRateSnapshot: it.HourlyRate,
		CreatedAt:          now,
	}
	if err := e.Repo.InsertEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if _, err := e.recomputeActualHours(ctx, tx, it.ID); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionTimeLogged,
		ItemID:      it.ID,
		ActorID:     opts.ActorID,
		Description: fmt.Sprintf("Logged %d min on %q", minutes, it.Name),
		Payload:     events.EventPayload{"entry_id": entry.ID, "duration_minutes": minutes},
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// DeleteEntry removes an entry, running or not, and re-derives the item's hours.
func (e Engine) DeleteEntry(ctx context.Context, entryID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetEntryTx(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteEntry(ctx, tx, entry.ID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if _, err := e.recomputeActualHours(ctx, tx, entry.ItemID); err != nil {
		return err
	}
	payload := events.EventPayload{"entry_id": entry.ID}
	if entry.DurationMinutes != nil {
		payload["duration_minutes"] = *entry.DurationMinutes
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionTimeEntryDeleted,
		ItemID:      entry.ItemID,
		ActorID:     actorID,
		Description: "Time entry deleted",
		Payload:     payload,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// EntryUpdateOptions edit an entry's free-form fields. Timing cannot change.
type EntryUpdateOptions struct {
	ID          string
	Description *string
	Billable    *bool
	ActorID     string
}

func (e Engine) UpdateEntry(ctx context.Context, opts EntryUpdateOptions) (domain.TimeEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetEntryTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	changed := []string{}
	if opts.Description != nil && *opts.Description != entry.Description {
		entry.Description = *opts.Description
		changed = append(changed, "description")
	}
	if opts.Billable != nil && *opts.Billable != entry.IsBillable {
		entry.IsBillable = *opts.Billable
		changed = append(changed, "is_billable")
	}
	if len(changed) == 0 {
		return entry, nil
	}
	if err := e.Repo.UpdateEntryDetails(ctx, tx, entry.ID, entry.Description, entry.IsBillable); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("update entry: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionUpdated,
		ItemID:      entry.ItemID,
		ActorID:     opts.ActorID,
		Description: "Time entry updated",
		Payload:     events.EventPayload{"entry_id": entry.ID, "fields": changed},
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// GetRunningEntry returns the running timer, or nil when none is running.
func (e Engine) GetRunningEntry(ctx context.Context) (*domain.TimeEntry, error) {
	running, err := e.Repo.RunningEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(running) == 0 {
		return nil, nil
	}
	return &running[0], nil
}

func (e Engine) ListEntries(ctx context.Context, f repo.EntryFilters) ([]domain.TimeEntry, error) {
	if f.ItemID != "" {
		if _, err := e.Repo.GetItem(ctx, f.ItemID); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListEntries(ctx, f)
}

// TimeStats totals an item's completed entries. Billable amounts use each
// entry's own rate snapshot, so later rate changes do not rewrite history.
func (e Engine) TimeStats(ctx context.Context, itemID string) (domain.TimeStats, error) {
	it, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.TimeStats{}, err
	}
	entries, err := e.Repo.ListEntries(ctx, repo.EntryFilters{ItemID: itemID})
	if err != nil {
		return domain.TimeStats{}, err
	}
	stats := domain.TimeStats{
		ItemID:         it.ID,
		EntriesCount:   len(entries),
		ActualHours:    it.ActualHours,
		EstimatedHours: it.EstimatedHours,
		HourlyRate:     it.HourlyRate,
	}
	for _, en := range entries {
		if en.DurationMinutes == nil {
			continue
		}
		m := *en.DurationMinutes
		stats.TotalMinutes += m
		if !en.IsBillable {
			continue
		}
		stats.BillableMinutes += m
		if en.HourlyRateSnapshot != nil {
			stats.BillableAmount += float64(m) / 60 * *en.HourlyRateSnapshot
		}
	}
	return stats, nil
}

// ReconcileActualHours re-derives actual_hours for every item and reports how
// many values changed.
func (e Engine) ReconcileActualHours(ctx context.Context) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ids, err := e.Repo.ListItemIDsTx(ctx, tx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		it, err := e.Repo.GetItemTx(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		hours, err := e.recomputeActualHours(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		if hours != it.ActualHours {
			changed++
			e.log().Info("reconciled actual hours",
				zap.String("item_id", id),
				zap.Int("from", it.ActualHours),
				zap.Int("to", hours),
			)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}

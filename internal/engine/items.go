package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// ItemCreateOptions are parameters for creating a work item.
type ItemCreateOptions struct {
	ID             string
	Name           string
	Description    string
	ClientID       string
	Priority       domain.Priority
	HourlyRate     *float64
	EstimatedHours *int
	ActorID        string
}

// CreateItem places a new item at the end of BACKLOG and records its first
// stage history entry.
func (e Engine) CreateItem(ctx context.Context, opts ItemCreateOptions) (domain.WorkItem, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.WorkItem{}, ValidationError{Field: "name", Reason: "name is required"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if _, err := domain.ParsePriority(string(opts.Priority)); err != nil {
		return domain.WorkItem{}, ValidationError{Field: "priority", Reason: err.Error()}
	}
	if err := validateRate(opts.HourlyRate); err != nil {
		return domain.WorkItem{}, err
	}
	if err := validateEstimate(opts.EstimatedHours); err != nil {
		return domain.WorkItem{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	if opts.ClientID != "" {
		if _, err := e.Repo.GetClientTx(ctx, tx, opts.ClientID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.WorkItem{}, ValidationError{Field: "client_id", Reason: fmt.Sprintf("unknown client %s", opts.ClientID)}
			}
			return domain.WorkItem{}, err
		}
	}
	pos, err := e.Repo.MaxStagePosition(ctx, tx, domain.StageBacklog)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("read backlog position: %w", err)
	}
	it := domain.WorkItem{
		ID:             id,
		Name:           name,
		Description:    opts.Description,
		ClientID:       optionalString(opts.ClientID),
		Stage:          domain.StageBacklog,
		StagePosition:  pos + 1,
		Priority:       opts.Priority,
		HourlyRate:     opts.HourlyRate,
		EstimatedHours: opts.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertItem(ctx, tx, it); err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert item: %w", err)
	}
	if _, err := e.Repo.AppendHistory(ctx, tx, domain.StageHistoryEntry{ItemID: it.ID, ToStage: it.Stage, OccurredAt: now}); err != nil {
		return domain.WorkItem{}, fmt.Errorf("append stage history: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionCreated,
		ItemID:      it.ID,
		ActorID:     opts.ActorID,
		Description: fmt.Sprintf("%q created", it.Name),
		Payload:     events.EventPayload{"stage": it.Stage, "priority": it.Priority},
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return it, nil
}

// ItemUpdateOptions carries ordinary field edits. Nil fields are left alone;
// stage, hold and priority have their own operations.
type ItemUpdateOptions struct {
	ID                  string
	Name                *string
	Description         *string
	ClientID            *string
	HourlyRate          *float64
	ClearHourlyRate     bool
	EstimatedHours      *int
	ClearEstimatedHours bool
	ActorID             string
}

func (e Engine) UpdateItem(ctx context.Context, opts ItemUpdateOptions) (domain.WorkItem, error) {
	if err := validateRate(opts.HourlyRate); err != nil {
		return domain.WorkItem{}, err
	}
	if err := validateEstimate(opts.EstimatedHours); err != nil {
		return domain.WorkItem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	changed := []string{}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.WorkItem{}, ValidationError{Field: "name", Reason: "name cannot be empty"}
		}
		if name != it.Name {
			it.Name = name
			changed = append(changed, "name")
		}
	}
	if opts.Description != nil && *opts.Description != it.Description {
		it.Description = *opts.Description
		changed = append(changed, "description")
	}
	if opts.ClientID != nil {
		cur := ""
		if it.ClientID != nil {
			cur = *it.ClientID
		}
		if *opts.ClientID != cur {
			if *opts.ClientID != "" {
				if _, err := e.Repo.GetClientTx(ctx, tx, *opts.ClientID); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return domain.WorkItem{}, ValidationError{Field: "client_id", Reason: fmt.Sprintf("unknown client %s", *opts.ClientID)}
					}
					return domain.WorkItem{}, err
				}
			}
			it.ClientID = optionalString(*opts.ClientID)
			changed = append(changed, "client_id")
		}
	}
	switch {
	case opts.ClearHourlyRate && it.HourlyRate != nil:
		it.HourlyRate = nil
		changed = append(changed, "hourly_rate")
	case opts.HourlyRate != nil && (it.HourlyRate == nil || *it.HourlyRate != *opts.HourlyRate):
		rate := *opts.HourlyRate
		it.HourlyRate = &rate
		changed = append(changed, "hourly_rate")
	}
	switch {
	case opts.ClearEstimatedHours && it.EstimatedHours != nil:
		it.EstimatedHours = nil
		changed = append(changed, "estimated_hours")
	case opts.EstimatedHours != nil && (it.EstimatedHours == nil || *it.EstimatedHours != *opts.EstimatedHours):
		est := *opts.EstimatedHours
		it.EstimatedHours = &est
		changed = append(changed, "estimated_hours")
	}
	if len(changed) == 0 {
		e.log().Debug("item update is a no-op", zap.String("item_id", it.ID))
		return it, nil
	}
	it.UpdatedAt = e.now()
	if err := e.Repo.UpdateItem(ctx, tx, it); err != nil {
		return domain.WorkItem{}, fmt.Errorf("update item: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionUpdated,
		ItemID:      it.ID,
		ActorID:     opts.ActorID,
		Description: fmt.Sprintf("%q updated", it.Name),
		Payload:     events.EventPayload{"fields": changed},
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return it, nil
}

// SetPriority changes an item's priority. Setting the current priority writes nothing.
func (e Engine) SetPriority(ctx context.Context, itemID string, priority domain.Priority, actorID string) (domain.WorkItem, error) {
	if _, err := domain.ParsePriority(string(priority)); err != nil {
		return domain.WorkItem{}, ValidationError{Field: "priority", Reason: err.Error()}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if it.Priority == priority {
		e.log().Debug("priority unchanged", zap.String("item_id", it.ID), zap.String("priority", string(priority)))
		return it, nil
	}
	old := it.Priority
	it.Priority = priority
	it.UpdatedAt = e.now()
	if err := e.Repo.UpdateItem(ctx, tx, it); err != nil {
		return domain.WorkItem{}, fmt.Errorf("update priority: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionPriorityChanged,
		ItemID:      it.ID,
		ActorID:     actorID,
		Description: fmt.Sprintf("%q priority changed from %s to %s", it.Name, old, priority),
		Payload:     events.EventPayload{"from": old, "to": priority},
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return it, nil
}

// DeleteItem removes an item with its history and time entries. The audit
// trail keeps a deleted event whose item reference is cleared by the store.
func (e Engine) DeleteItem(ctx context.Context, itemID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionDeleted,
		ItemID:      it.ID,
		ActorID:     actorID,
		Description: fmt.Sprintf("%q deleted", it.Name),
		Payload:     events.EventPayload{"item_id": it.ID, "stage": it.Stage},
	}); err != nil {
		return err
	}
	if err := e.Repo.DeleteItem(ctx, tx, it.ID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return tx.Commit()
}

func (e Engine) GetItem(ctx context.Context, itemID string) (domain.WorkItem, error) {
	return e.Repo.GetItem(ctx, itemID)
}

func (e Engine) ListItems(ctx context.Context, f repo.ItemFilters) ([]domain.WorkItem, error) {
	return e.Repo.ListItems(ctx, f)
}

func validateRate(rate *float64) error {
	if rate != nil && *rate < 0 {
		return ValidationError{Field: "hourly_rate", Reason: "must not be negative"}
	}
	return nil
}

func validateEstimate(hours *int) error {
	if hours != nil && *hours < 0 {
		return ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
	}
	return nil
}

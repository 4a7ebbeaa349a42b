package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stageline/internal/attention"
	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// MoveToStage places an item at position within stage. Any stage is reachable
// from any other. Changing stage appends history and a stage_changed event in
// the same transaction; reordering within a stage only updates the position.
func (e Engine) MoveToStage(ctx context.Context, itemID string, stage domain.Stage, position int, actorID string) (domain.WorkItem, error) {
	if !stage.Valid() {
		return domain.WorkItem{}, ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	if position < 0 {
		return domain.WorkItem{}, ValidationError{Field: "position", Reason: "must not be negative"}
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
	if it.Stage == stage && it.StagePosition == position {
		e.log().Debug("move is a no-op", zap.String("item_id", it.ID), zap.String("stage", string(stage)))
		return it, nil
	}
	from := it.Stage
	now := e.now()
	it.Stage = stage
	it.StagePosition = position
	it.UpdatedAt = now
	if err := e.Repo.UpdateItem(ctx, tx, it); err != nil {
		return domain.WorkItem{}, fmt.Errorf("update stage: %w", err)
	}
	if from != stage {
		if _, err := e.Repo.AppendHistory(ctx, tx, domain.StageHistoryEntry{
			ItemID:     it.ID,
			FromStage:  &from,
			ToStage:    stage,
			OccurredAt: now,
		}); err != nil {
			return domain.WorkItem{}, fmt.Errorf("append stage history: %w", err)
		}
		if err := e.appendEvent(ctx, tx, events.Event{
			Action:      domain.ActionStageChanged,
			ItemID:      it.ID,
			ActorID:     actorID,
			Description: fmt.Sprintf("%q moved from %s to %s", it.Name, from, stage),
			Payload:     events.EventPayload{"from": from, "to": stage, "position": position},
		}); err != nil {
			return domain.WorkItem{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return it, nil
}

// History returns an item's stage transitions oldest first.
func (e Engine) History(ctx context.Context, itemID string) ([]domain.StageHistoryEntry, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, itemID)
}

// DaysInStage counts whole days since the item's latest stage transition.
func (e Engine) DaysInStage(ctx context.Context, it domain.WorkItem) (int, error) {
	since := it.CreatedAt
	h, err := e.Repo.LatestHistory(ctx, it.ID)
	switch {
	case err == nil:
		since = h.OccurredAt
	case !errors.Is(err, repo.ErrNotFound):
		return 0, err
	}
	return attention.DaysInStage(since, e.now()), nil
}

// AlertLevel applies the configured thresholds to a day count.
func (e Engine) AlertLevel(days int) attention.Level {
	return e.policy().Thresholds.LevelFor(days)
}

// ItemAttention evaluates a single item, honoring hold and active-stage rules.
func (e Engine) ItemAttention(ctx context.Context, itemID string) (attention.ItemStatus, error) {
	it, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return attention.ItemStatus{}, err
	}
	days, err := e.DaysInStage(ctx, it)
	if err != nil {
		return attention.ItemStatus{}, err
	}
	return attention.ItemStatus{Item: it, DaysInStage: days, Level: e.policy().Evaluate(it, days)}, nil
}

// AttentionReport evaluates every item against the configured policy.
func (e Engine) AttentionReport(ctx context.Context) (attention.Report, error) {
	items, err := e.Repo.ListItems(ctx, repo.ItemFilters{})
	if err != nil {
		return attention.Report{}, err
	}
	last, err := e.Repo.LastStageChanges(ctx)
	if err != nil {
		return attention.Report{}, err
	}
	counts, err := e.Repo.CountItemsByStage(ctx)
	if err != nil {
		return attention.Report{}, err
	}
	rep := e.policy().BuildReport(items, last, e.now())
	rep.StageCounts = make(map[domain.Stage]int, len(domain.Stages()))
	for _, s := range domain.Stages() {
		rep.StageCounts[s] = counts[s]
	}
	return rep, nil
}

package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stageline/internal/attention"
	"stageline/internal/domain"
	"stageline/internal/events"
)

// SetHold puts an item on hold or resumes it. Leaving hold adds the elapsed
// days, rounded up, to TotalHoldDays. Requesting the current state is a no-op.
func (e Engine) SetHold(ctx context.Context, itemID string, onHold bool, reason, actorID string) (domain.WorkItem, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if it.IsOnHold == onHold {
		e.log().Debug("hold state unchanged", zap.String("item_id", it.ID), zap.Bool("on_hold", onHold))
		return it, nil
	}
	now := e.now()
	var ev events.Event
	if onHold {
		it.IsOnHold = true
		it.HoldReason = optionalString(reason)
		it.HoldStartedAt = &now
		desc := fmt.Sprintf("%q put on hold", it.Name)
		if reason != "" {
			desc += ": " + reason
		}
		ev = events.Event{
			Action:      domain.ActionPutOnHold,
			Description: desc,
			Payload:     events.EventPayload{"reason": reason},
		}
	} else {
		days := 0
		if it.HoldStartedAt != nil {
			days = attention.HoldDays(*it.HoldStartedAt, now)
		}
		it.TotalHoldDays += days
		it.IsOnHold = false
		it.HoldReason = nil
		it.HoldStartedAt = nil
		ev = events.Event{
			Action:      domain.ActionResumed,
			Description: fmt.Sprintf("%q resumed from hold", it.Name),
			Payload:     events.EventPayload{"hold_days": days, "total_hold_days": it.TotalHoldDays},
		}
		e.log().Info("item resumed from hold",
			zap.String("item_id", it.ID),
			zap.Int("hold_days", days),
			zap.Int("total_hold_days", it.TotalHoldDays),
		)
	}
	it.UpdatedAt = now
	if err := e.Repo.UpdateItem(ctx, tx, it); err != nil {
		return domain.WorkItem{}, fmt.Errorf("update hold: %w", err)
	}
	ev.ItemID = it.ID
	ev.ActorID = actorID
	if err := e.appendEvent(ctx, tx, ev); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return it, nil
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/events"
)

func (e Engine) AddNote(ctx context.Context, itemID, content, actorID string) (domain.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Note{}, ValidationError{Field: "content", Reason: "content is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.Note{}, err
	}
	n := domain.Note{
		ID:        uuid.NewString(),
		ItemID:    it.ID,
		Content:   content,
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionNoteAdded,
		ItemID:      it.ID,
		ActorID:     actorID,
		Description: fmt.Sprintf("Note added to %q", it.Name),
		Payload:     events.EventPayload{"note_id": n.ID},
	}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

// ListNotes returns an item's notes, newest first.
func (e Engine) ListNotes(ctx context.Context, itemID string) ([]domain.Note, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListNotes(ctx, itemID)
}

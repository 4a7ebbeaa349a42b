package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// DefaultTagColor is used when a tag is created without one.
const DefaultTagColor = "#6366f1"

var tagColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type TagCreateOptions struct {
	Name    string
	Color   string
	ActorID string
}

// CreateTag adds a tag. Names are unique regardless of case.
func (e Engine) CreateTag(ctx context.Context, opts TagCreateOptions) (domain.Tag, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Tag{}, ValidationError{Field: "name", Reason: "name is required"}
	}
	color := strings.ToLower(strings.TrimSpace(opts.Color))
	if color == "" {
		color = DefaultTagColor
	}
	if !tagColorPattern.MatchString(color) {
		return domain.Tag{}, ValidationError{Field: "color", Reason: fmt.Sprintf("%q is not a #rrggbb color", opts.Color)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tag{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTagByNameTx(ctx, tx, name); err == nil {
		return domain.Tag{}, ValidationError{Field: "name", Reason: fmt.Sprintf("tag %q already exists", name)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Tag{}, err
	}
	tag := domain.Tag{
		ID:        uuid.NewString(),
		Name:      name,
		Color:     color,
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertTag(ctx, tx, tag); err != nil {
		return domain.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionTagCreated,
		ActorID:     opts.ActorID,
		Description: fmt.Sprintf("Tag %q created", tag.Name),
		Payload:     events.EventPayload{"tag_id": tag.ID, "color": tag.Color},
	}); err != nil {
		return domain.Tag{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}

func (e Engine) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return e.Repo.ListTags(ctx, "")
}

func (e Engine) ItemTags(ctx context.Context, itemID string) ([]domain.Tag, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListTags(ctx, itemID)
}

// TagItem links a tag to an item. Tagging twice is a no-op and writes no event.
func (e Engine) TagItem(ctx context.Context, itemID, tagID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	it, tag, err := e.itemAndTag(ctx, tx, itemID, tagID)
	if err != nil {
		return err
	}
	linked, err := e.Repo.LinkTag(ctx, tx, it.ID, tag.ID, e.now())
	if err != nil {
		return fmt.Errorf("link tag: %w", err)
	}
	if !linked {
		return nil
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionTagged,
		ItemID:      it.ID,
		ActorID:     actorID,
		Description: fmt.Sprintf("%q tagged %q", it.Name, tag.Name),
		Payload:     events.EventPayload{"tag_id": tag.ID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// UntagItem removes a link. An item that does not carry the tag is ErrNotFound.
func (e Engine) UntagItem(ctx context.Context, itemID, tagID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	it, tag, err := e.itemAndTag(ctx, tx, itemID, tagID)
	if err != nil {
		return err
	}
	if err := e.Repo.UnlinkTag(ctx, tx, it.ID, tag.ID); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionUntagged,
		ItemID:      it.ID,
		ActorID:     actorID,
		Description: fmt.Sprintf("Tag %q removed from %q", tag.Name, it.Name),
		Payload:     events.EventPayload{"tag_id": tag.ID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) itemAndTag(ctx context.Context, tx *sql.Tx, itemID, tagID string) (domain.WorkItem, domain.Tag, error) {
	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.WorkItem{}, domain.Tag{}, err
	}
	tag, err := e.Repo.GetTagTx(ctx, tx, tagID)
	if err != nil {
		return domain.WorkItem{}, domain.Tag{}, err
	}
	return it, tag, nil
}

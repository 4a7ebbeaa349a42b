package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/repo"
)

type ClientCreateOptions struct {
	Name    string
	Email   string
	Company string
	ActorID string
}

func (e Engine) CreateClient(ctx context.Context, opts ClientCreateOptions) (domain.Client, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Client{}, ValidationError{Field: "name", Reason: "name is required"}
	}
	c := domain.Client{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     strings.TrimSpace(opts.Email),
		Company:   strings.TrimSpace(opts.Company),
		CreatedAt: e.now(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Event{
		Action:      domain.ActionClientCreated,
		ActorID:     opts.ActorID,
		Description: fmt.Sprintf("New client %q created", c.Name),
		Payload:     events.EventPayload{"client_id": c.ID},
	}); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (e Engine) ListClients(ctx context.Context) ([]domain.Client, error) {
	return e.Repo.ListClients(ctx)
}

// Activity returns the latest audit events, newest first.
func (e Engine) Activity(ctx context.Context, f repo.EventFilters) ([]domain.AuditEvent, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", f.Action)}
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return e.Repo.ListEvents(ctx, f)
}

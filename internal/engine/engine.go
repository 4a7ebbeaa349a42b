package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"stageline/internal/attention"
	"stageline/internal/config"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// Engine applies workflow and time-ledger mutations, each in one transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// appendEvent stamps audit rows with the engine clock.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, ev events.Event) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, ev)
}

func (e Engine) policy() attention.Policy {
	if e.Config == nil {
		return attention.DefaultPolicy()
	}
	return attention.Policy{
		Thresholds: attention.Thresholds{
			Warning: e.Config.Attention.WarningDays,
			Danger:  e.Config.Attention.DangerDays,
		},
		ActiveStages: e.Config.Attention.Stages(),
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

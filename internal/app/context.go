package app

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/engine"
	"stageline/internal/logging"
	"stageline/internal/migrate"
)

const lockName = "stageline.lock"

// ErrLocked is returned when another process already serves the workspace.
var ErrLocked = errors.New("workspace is locked by another process")

type Options struct {
	Workspace  string
	ConfigPath string
	// Logger overrides the logger built from the config log section.
	Logger *zap.Logger
}

// Workspace bundles an opened database with the engine bound to it.
type Workspace struct {
	Dir        string
	ConfigPath string
	Config     *config.Config
	DB         *sql.DB
	Engine     engine.Engine
	Logger     *zap.Logger
}

// Open resolves config, builds the logger, opens and migrates the database.
func Open(opts Options) (*Workspace, error) {
	dir := opts.Workspace
	if dir == "" {
		dir = "."
	}
	cfg, cfgPath, err := loadConfig(dir, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger, err = logging.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("workspace opened",
		zap.String("db", db.Path(dir)),
		zap.String("config", cfgPath))
	return &Workspace{
		Dir:        dir,
		ConfigPath: cfgPath,
		Config:     cfg,
		DB:         conn,
		Engine:     engine.New(conn, cfg, logger),
		Logger:     logger,
	}, nil
}

func loadConfig(dir, override string) (*config.Config, string, error) {
	if override == "" {
		return config.Load(dir)
	}
	cfg, err := config.FromFile(override)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", override, err)
	}
	return cfg, override, nil
}

func (w *Workspace) Close() error {
	_ = w.Logger.Sync()
	return w.DB.Close()
}

// WriterLock guards long-running writers (serve, mcp) against each other.
type WriterLock struct {
	path string
	lock *flock.Flock
}

// AcquireWriterLock takes the workspace lock without blocking.
func AcquireWriterLock(workspace string) (*WriterLock, error) {
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockName)
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return &WriterLock{path: path, lock: l}, nil
}

func (l *WriterLock) Path() string { return l.path }

func (l *WriterLock) Release() error {
	return l.lock.Unlock()
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Path   string // sqlite file, created on first open
	Env    string // "dev" | "prod"
	Logger *zap.Logger
}

// Open creates the sqlite handle the whole gateway shares and brings the
// schema up to date. The pool is pinned to one connection; combined with
// the write Worker that keeps SQLITE_BUSY out of normal operation.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/gatekeeper.db"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// foreign_keys for the org/department references, WAL so dashboard
	// reads do not stall behind enrollment writes, busy_timeout so a WAL
	// checkpoint cannot fail a device request outright.
	dsn := fmt.Sprintf("file:%s"+
		"?_pragma=foreign_keys(1)"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=synchronous(NORMAL)"+
		"&_pragma=busy_timeout(5000)", cfg.Path)

	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	handle.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := handle.PingContext(pingCtx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Path, err)
	}

	if err := Migrate(ctx, handle, cfg.Logger); err != nil {
		handle.Close()
		return nil, err
	}

	return handle, nil
}

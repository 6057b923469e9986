package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type schemaMigration struct {
	version int
	file    string
	stmts   string
}

// Migrate brings the schema up to date. Each pending migration runs in
// its own transaction together with its schema_migrations bookkeeping
// row, so a failed migration leaves no partial schema behind.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version       INTEGER PRIMARY KEY,
  applied_at_ms INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var one int
		err := db.QueryRowContext(ctx,
			`SELECT 1 FROM schema_migrations WHERE version = ?;`, m.version).Scan(&one)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}

		if err := apply(ctx, db, m); err != nil {
			return err
		}
		logger.Info("migration applied",
			zap.Int("version", m.version), zap.String("file", m.file))
	}

	return nil
}

func loadMigrations() ([]schemaMigration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []schemaMigration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, err := migrationVersion(name)
		if err != nil {
			return nil, err
		}
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, schemaMigration{version: version, file: name, stmts: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func apply(ctx context.Context, db *sql.DB, m schemaMigration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.file, err)
	}

	if _, err := tx.ExecContext(ctx, m.stmts); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", m.file, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations(version, applied_at_ms) VALUES(?, ?);`,
		m.version, time.Now().UTC().UnixMilli()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", m.file, err)
	}

	return tx.Commit()
}

// migrationVersion parses the numeric prefix of names like 0001_init.sql.
func migrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration filename %q has no version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration filename %q: %w", name, err)
	}
	return v, nil
}

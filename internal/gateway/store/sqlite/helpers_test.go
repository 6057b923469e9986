package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campusgate/gatekeeper/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each call gets a unique in-memory database.  The shared-cache URI
	// keeps the database alive for the lifetime of the connection pool
	// (important because sql.DB may close/reopen the underlying conn).
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		t.Name(),
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	// Match production: single connection for SQLite safety.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	// Apply the same migrations as production.
	if err := db.Migrate(context.Background(), conn, nil); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

// seedOrgAndDept inserts one organization and one department for name
// resolution tests.
func seedOrgAndDept(t *testing.T, conn *sql.DB) {
	t.Helper()

	nowMs := time.Now().UTC().UnixMilli()
	if _, err := conn.Exec(
		`INSERT INTO organizations(org_id, name, created_at_ms) VALUES ('org-1', 'Campus', ?)`, nowMs,
	); err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	if _, err := conn.Exec(
		`INSERT INTO departments(dept_id, org_id, name, created_at_ms) VALUES ('dept-1', 'org-1', 'Computer Science', ?)`, nowMs,
	); err != nil {
		t.Fatalf("seed department: %v", err)
	}
}

// seedCard inserts a card with a one-year validity window centered on now.
func seedCard(t *testing.T, conn *sql.DB, cardID, holderName string) {
	t.Helper()

	now := time.Now().UTC()
	if _, err := conn.Exec(`
INSERT INTO cards(card_id, holder_name, org_id, dept_id, card_type,
                  valid_from_ms, valid_until_ms, active, created_at_ms, updated_at_ms)
VALUES (?, ?, 'org-1', 'dept-1', 'student', ?, ?, 1, ?, ?)`,
		cardID, holderName,
		now.AddDate(0, -6, 0).UnixMilli(), now.AddDate(0, 6, 0).UnixMilli(),
		now.UnixMilli(), now.UnixMilli(),
	); err != nil {
		t.Fatalf("seed card %s: %v", cardID, err)
	}
}

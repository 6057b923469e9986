package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/campusgate/gatekeeper/internal/db"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) Insert(ctx context.Context, rec store.AccessLogRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	if rec.VerificationMethod == "" {
		rec.VerificationMethod = "card_and_fingerprint"
	}

	var authorized int
	if rec.Authorized {
		authorized = 1
	}

	var orgName, deptName any
	if rec.OrgName != "" {
		orgName = rec.OrgName
	}
	if rec.DeptName != "" {
		deptName = rec.DeptName
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(
  card_id, device_id, location, org_name, dept_name, holder_name,
  occurred_at_ms, authorized, verification_method, accuracy, remote_addr
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.CardID, rec.DeviceID, rec.Location, orgName, deptName, rec.HolderName,
			rec.OccurredAt.UTC().UnixMilli(), authorized, rec.VerificationMethod,
			rec.Accuracy, rec.RemoteAddr,
		); err != nil {
			return fmt.Errorf("Insert access log: %w", err)
		}
		return nil
	})
}

func (s *AccessLogStore) Recent(ctx context.Context, limit int) ([]store.AccessLogRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, card_id, device_id, location, org_name, dept_name, holder_name,
       occurred_at_ms, authorized, verification_method, accuracy, remote_addr
FROM access_logs
ORDER BY occurred_at_ms DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent access logs: %w", err)
	}
	defer rows.Close()

	var out []store.AccessLogRecord
	for rows.Next() {
		var rec store.AccessLogRecord
		var orgName, deptName, remote sql.NullString
		var occurredMs int64
		var authorized int
		var accuracy sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.CardID, &rec.DeviceID, &rec.Location,
			&orgName, &deptName, &rec.HolderName, &occurredMs, &authorized,
			&rec.VerificationMethod, &accuracy, &remote); err != nil {
			return nil, fmt.Errorf("Recent access logs scan: %w", err)
		}
		rec.OrgName = orgName.String
		rec.DeptName = deptName.String
		rec.RemoteAddr = remote.String
		rec.OccurredAt = msToTime(occurredMs)
		rec.Authorized = authorized == 1
		rec.Accuracy = accuracy.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *AccessLogStore) StatsByDevice(ctx context.Context) ([]types.DeviceAccessStats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id,
       MAX(location) AS location,
       COUNT(*) AS total,
       COALESCE(SUM(authorized), 0) AS authorized
FROM access_logs
GROUP BY device_id
ORDER BY total DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("StatsByDevice: %w", err)
	}
	defer rows.Close()

	var out []types.DeviceAccessStats
	for rows.Next() {
		var st types.DeviceAccessStats
		if err := rows.Scan(&st.DeviceID, &st.Location, &st.Total, &st.Authorized); err != nil {
			return nil, fmt.Errorf("StatsByDevice scan: %w", err)
		}
		st.Unauthorized = st.Total - st.Authorized
		out = append(out, st)
	}
	return out, rows.Err()
}

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

func (s *HeartbeatStore) Append(ctx context.Context, deviceID string, receivedAt time.Time) error {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO device_heartbeats(device_id, received_at_ms) VALUES (?, ?);
`, deviceID, receivedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("Append heartbeat %s: %w", deviceID, err)
		}
		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before the cutoff.
// Uses the idx_heartbeats_time index for an efficient range scan.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM device_heartbeats WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

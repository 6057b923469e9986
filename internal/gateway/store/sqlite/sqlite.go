// Package sqlite implements the gateway stores on modernc.org/sqlite.
// Reads go straight to the shared connection; every write runs inside the
// db.Worker so SQLite sees one serialized stream of transactions.
package sqlite

import "time"

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

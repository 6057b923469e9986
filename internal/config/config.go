package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Listeners
	TCPAddr  string // device wire protocol, e.g. ":12345"
	HTTPAddr string // admin API + dashboard websocket, e.g. ":8080"

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/gatekeeper.db"

	// How many recent access-log entries a new dashboard subscriber
	// receives in its snapshot.
	SnapshotLogLimit int

	// Heartbeat retention
	HeartbeatRetentionDays int // 0 = keep forever
	PruneIntervalHours     int // how often the pruner runs (default 6)
}

func FromEnv() Config {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	tcpAddr := getenvDefault("GATEKEEPER_TCP_ADDR", ":12345")
	httpAddr := getenvDefault("GATEKEEPER_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("GATEKEEPER_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("GATEKEEPER_DB_PATH", "./data/gatekeeper.db")

	snapshotLogs := getenvInt("GATEKEEPER_SNAPSHOT_LOG_LIMIT", 100)
	retentionDays := getenvInt("GATEKEEPER_HEARTBEAT_RETENTION_DAYS", 30)
	pruneInterval := getenvInt("GATEKEEPER_PRUNE_INTERVAL_HOURS", 6)

	return Config{
		TCPAddr:  tcpAddr,
		HTTPAddr: httpAddr,
		Env:      env,
		DBPath:   dbPath,

		SnapshotLogLimit: snapshotLogs,

		HeartbeatRetentionDays: retentionDays,
		PruneIntervalHours:     pruneInterval,
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

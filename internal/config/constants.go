package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Retention policy windows. The cleanup jobs evaluate these against the
// clock at query time so reruns are always safe.
const (
	MessageRetentionWindow   = 30 * 24 * time.Hour
	DeclineSuppressionWindow = 7 * 24 * time.Hour
)

// Retention job schedule, UTC time of day. Session cleanup runs an hour
// after message cleanup so session teardown never races message retention.
const (
	MessageCleanupHourUTC = 3
	SessionCleanupHourUTC = 4
)

// Scheduler backend connect timeout. Startup continues without the
// scheduler if the backend cannot be reached within this bound.
const SchedulerConnectTimeout = 10 * time.Second

// Chat history page size, newest-first. Not caller-configurable.
const HistoryPageSize = 50

// Maximum chat message length in bytes.
const MaxMessageLength = 2000

// Client delivery queue limits.
const (
	OutboxMaxRetries = 3
	OutboxMaxAge     = 24 * time.Hour
)

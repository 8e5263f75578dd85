package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. Decision and
// alert inserts must tolerate duplicate ids: dispatch is retried under
// at-least-once delivery and performs no deduplication of its own.
type Repository interface {
	// Event writes
	InsertEvent(ctx context.Context, evt *TransactionEvent) error
	UpsertDeviceSeen(ctx context.Context, accountID, deviceID string) error

	// Event History View reads
	RecentEvents(ctx context.Context, accountID string, since time.Time) ([]EventHistoryRecord, error)
	IsDeviceSeen(ctx context.Context, accountID, deviceID string) (bool, error)
	IsMerchantBlacklisted(ctx context.Context, merchantID string) (bool, error)

	// Blacklist management
	UpsertBlacklist(ctx context.Context, merchantID string, active bool, reason string) error

	// Decision outputs
	InsertDecision(ctx context.Context, dec *DecisionOutcome) error
	InsertAlerts(ctx context.Context, alerts []Alert) error
	GetDecisionByEvent(ctx context.Context, eventID string) (*DecisionOutcome, error)

	// Model scores
	InsertModelScore(ctx context.Context, score *ModelScore) error
	LatestModelScore(ctx context.Context, eventID string) (*ModelScore, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

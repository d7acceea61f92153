package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. Writes for a
// given case identity are wholesale replacements; the store guarantees a
// reader never observes a half-written result.
type Repository interface {
	// Result operations, keyed by case identity.
	SaveResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, caseID string) (*Result, error)
	ListResults(ctx context.Context, limit int) ([]*Result, error)

	// Overlay rule operations.
	SaveOverlayRule(ctx context.Context, rule *OverlayRule) error
	GetOverlayRule(ctx context.Context, ruleID string) (*OverlayRule, error)
	ListOverlayRules(ctx context.Context) ([]*OverlayRule, error)
	DeleteOverlayRule(ctx context.Context, ruleID string) error

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

package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
// Fraud indicator records and verdicts are append-only: re-analysis
// inserts new rows, never updates in place.
type Repository interface {
	// Session operations
	SaveSession(ctx context.Context, tenantID string, session *Session) error
	GetSession(ctx context.Context, tenantID string, sessionID string) (*Session, error)
	GetSessionsByIP(ctx context.Context, tenantID string, surveyID string, ip string, since time.Time) ([]*Session, error)
	GetSessionsByFingerprint(ctx context.Context, tenantID string, surveyID string, fingerprint string, since time.Time) ([]*Session, error)
	GetSessionsByRespondent(ctx context.Context, tenantID string, respondentID string, since time.Time) ([]*Session, error)

	// Response operations
	SaveResponses(ctx context.Context, tenantID string, responses []Response) error
	GetResponsesByQuestion(ctx context.Context, tenantID string, surveyID string, questionID string, since time.Time) ([]*Response, error)

	// Fraud indicator records (append-only audit trail)
	SaveFraudRecord(ctx context.Context, tenantID string, record *FraudIndicatorRecord) error
	GetLatestFraudRecord(ctx context.Context, tenantID string, sessionID string) (*FraudIndicatorRecord, error)
	ListFraudRecords(ctx context.Context, tenantID string, sessionID string) ([]*FraudIndicatorRecord, error)

	// Verdicts
	SaveVerdict(ctx context.Context, tenantID string, verdict *CompositeVerdict) error
	GetVerdict(ctx context.Context, tenantID string, verdictID string) (*CompositeVerdict, error)

	// Flag rule configuration operations
	SaveFlagRule(ctx context.Context, tenantID string, rule *FlagRule) error
	GetFlagRule(ctx context.Context, tenantID string, ruleID string) (*FlagRule, error)
	ListFlagRules(ctx context.Context, tenantID string) ([]*FlagRule, error)

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

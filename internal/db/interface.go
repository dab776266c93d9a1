package db

import "context"

// Database defines the interface for database operations
type Database interface {
	Close() error
	Health(ctx context.Context) HealthStatus
	SaveSystem(ctx context.Context, rec *SystemRecord) (int64, bool, error)
	GetSystem(ctx context.Context, id int64) (*SystemRecord, error)
	ListSystems(ctx context.Context, limit int) ([]SystemRecord, error)
	SaveSolution(ctx context.Context, id int64, sol *Solution) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	SaveRecoveredKey(ctx context.Context, key *RecoveredKey) (int64, error)
	GetRecoveredKeys(ctx context.Context) ([]RecoveredKey, error)
	GetStats(ctx context.Context) (*Stats, error)
}

// Ensure DB implements Database interface
var _ Database = (*DB)(nil)
var _ Database = (*MockDB)(nil)

/*
store.go - Persistence interface for compliance records

PURPOSE:
  Defines the boundary between the lifecycle engine and the database.
  Every write that can race is conditional, so implementations report
  lost races as ErrConflict instead of silently overwriting.

KEY INTERFACES:
  Store:         Record reads and conditional writes
  TxStore:       Store plus WithTx for the atomic retire-then-insert
  SweepRunStore: Audit trail of reconciliation sweeps

CONDITIONAL WRITES:
  Retire:         only if is_renewed = false AND version = expected
  Update:         only if is_renewed = false AND version = expected
  UpdateStatuses: each change only if status = change.From
  Insert:         fails with ErrConflict if a live record already exists
                  for (entity_key, record_type)

INDEXING:
  Implementations must make (entity_key, record_type, is_renewed)
  efficiently queryable; FindLive and the aggregator filter on it.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - lifecycle/store/memory.go: In-memory for tests
*/
package lifecycle

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id RecordID) (*Record, error)

	// Insert persists a new record.
	Insert(ctx context.Context, rec Record) error

	// FindLive returns records with IsRenewed = false for the pair.
	FindLive(ctx context.Context, key EntityKey, rt RecordType) ([]Record, error)

	// History returns every record for the pair, oldest first by creation.
	History(ctx context.Context, key EntityKey, rt RecordType) ([]Record, error)

	// Retire marks a live record renewed by successor and forces it to
	// expired. Bumps the version.
	Retire(ctx context.Context, id RecordID, expectedVersion int64, successor RecordID, at time.Time) error

	// Update writes validity dates, amounts and status of a live record.
	// Bumps the version.
	Update(ctx context.Context, rec Record, expectedVersion int64) error

	// UpdateStatuses applies status diffs in bulk and returns how many
	// were written. Changes whose From no longer matches are skipped.
	UpdateStatuses(ctx context.Context, changes []StatusChange, at time.Time) (int, error)

	// Scan calls fn for every record. fn must not call back into the store.
	Scan(ctx context.Context, fn func(Record) error) error

	// ListByType returns every record of a type.
	ListByType(ctx context.Context, rt RecordType) ([]Record, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is
	// rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// SWEEP RUNS - Audit trail for the reconciliation job
// =============================================================================

type SweepRunStatus string

const (
	SweepRunning   SweepRunStatus = "running"
	SweepCompleted SweepRunStatus = "completed"
	SweepFailed    SweepRunStatus = "failed"
)

// SweepRun records one execution of the reconciliation sweep.
type SweepRun struct {
	ID            string
	AsOf          Date
	Trigger       string // schedule, startup, manual, cli
	Status        SweepRunStatus
	Scanned       int
	Updated       int
	Skipped       int
	ParseFailures int
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

type SweepRunStore interface {
	SaveSweepRun(ctx context.Context, run SweepRun) error
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}

/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements lifecycle.TxStore and lifecycle.SweepRunStore using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  lifecycle.Store:         Compliance record persistence
  lifecycle.TxStore:       Atomic retire-then-insert for renewals
  lifecycle.SweepRunStore: Reconciliation sweep audit trail

CONDITIONAL WRITES:
  Every mutation of an existing row carries its precondition in the WHERE
  clause and checks RowsAffected:
  - Retire / Update: is_renewed = 0 AND version = ?
  - UpdateStatuses:  status = <old status>

KEY TABLES:
  compliance_records: Every record of every type, live and retired
  sweep_runs:         One row per reconciliation sweep

INDEXES:
  - idx_records_chain: (entity_key, record_type, is_renewed), used by
    FindLive and History
  - idx_records_live:  UNIQUE (entity_key, record_type) WHERE is_renewed = 0.
    Two live records for one chain can never be committed; the loser of a
    renewal race gets lifecycle.ErrConflict
  - idx_records_type:  (record_type, is_renewed), used by the aggregator

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection, which
  also keeps ":memory:" databases alive across calls. In production with
  PostgreSQL, database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/compliance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := lifecycle.NewEngine(store, thresholds)

MIGRATION:
  Schema is auto-migrated on New(). NewWithDB skips migration.

SEE ALSO:
  - lifecycle/store.go: Interface definitions
  - lifecycle/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/compliance-engine/lifecycle"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an existing handle without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS compliance_records (
		id TEXT PRIMARY KEY,
		entity_key TEXT NOT NULL,
		record_type TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT NOT NULL,
		total_fee TEXT NOT NULL,
		paid TEXT NOT NULL,
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		is_renewed INTEGER NOT NULL DEFAULT 0,
		renewed_by TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Chain lookups (FindLive, History)
	CREATE INDEX IF NOT EXISTS idx_records_chain
		ON compliance_records(entity_key, record_type, is_renewed);

	-- CRITICAL: At most one live record per (entity, type)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_live
		ON compliance_records(entity_key, record_type)
		WHERE is_renewed = 0;

	-- Per-type statistics
	CREATE INDEX IF NOT EXISTS idx_records_type
		ON compliance_records(record_type, is_renewed);

	-- Sweep audit trail
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		scanned INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		parse_failures INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (lifecycle.Store interface)
// =============================================================================

const recordColumns = `id, entity_key, record_type, valid_from, valid_to, total_fee, paid, balance,
	status, is_renewed, renewed_by, version, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id lifecycle.RecordID) (*lifecycle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(ctx, s.db, id)
}

func (s *Store) Insert(ctx context.Context, rec lifecycle.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRecord(ctx, s.db, rec)
}

func (s *Store) FindLive(ctx context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findLive(ctx, s.db, key, rt)
}

func (s *Store) History(ctx context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return history(ctx, s.db, key, rt)
}

func (s *Store) Retire(ctx context.Context, id lifecycle.RecordID, expectedVersion int64, successor lifecycle.RecordID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retireRecord(ctx, s.db, id, expectedVersion, successor, at)
}

func (s *Store) Update(ctx context.Context, rec lifecycle.Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRecord(ctx, s.db, rec, expectedVersion)
}

// UpdateStatuses applies all changes in one transaction.
func (s *Store) UpdateStatuses(ctx context.Context, changes []lifecycle.StatusChange, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	n, err := updateStatuses(ctx, sqlTx, changes, at)
	if err != nil {
		return 0, err
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit status updates: %w", err)
	}
	return n, nil
}

// Scan streams every record. fn must not call back into the store: the
// single connection is busy until the rows are closed.
func (s *Store) Scan(ctx context.Context, fn func(lifecycle.Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanAll(ctx, s.db, fn)
}

func (s *Store) ListByType(ctx context.Context, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, `
		SELECT `+recordColumns+`
		FROM compliance_records
		WHERE record_type = ?
		ORDER BY created_at ASC, rowid ASC
	`, rt)
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

func getRecord(ctx context.Context, db dbtx, id lifecycle.RecordID) (*lifecycle.Record, error) {
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM compliance_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func insertRecord(ctx context.Context, db dbtx, rec lifecycle.Record) error {
	query := `
		INSERT INTO compliance_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		rec.ID,
		rec.EntityKey,
		rec.RecordType,
		rec.ValidFrom,
		rec.ValidTo,
		rec.TotalFee.String(),
		rec.Paid.String(),
		rec.Balance.String(),
		rec.Status,
		boolToInt(rec.IsRenewed),
		nullString(string(rec.RenewedBy)),
		rec.Version,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &lifecycle.ConflictError{RecordID: rec.ID, Reason: "live record already exists for " + string(rec.EntityKey)}
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func findLive(ctx context.Context, db dbtx, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return queryRecords(ctx, db, `
		SELECT `+recordColumns+`
		FROM compliance_records
		WHERE entity_key = ? AND record_type = ? AND is_renewed = 0
	`, key, rt)
}

func history(ctx context.Context, db dbtx, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return queryRecords(ctx, db, `
		SELECT `+recordColumns+`
		FROM compliance_records
		WHERE entity_key = ? AND record_type = ?
		ORDER BY created_at ASC, rowid ASC
	`, key, rt)
}

func retireRecord(ctx context.Context, db dbtx, id lifecycle.RecordID, expectedVersion int64, successor lifecycle.RecordID, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE compliance_records
		SET is_renewed = 1, status = ?, renewed_by = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND is_renewed = 0 AND version = ?
	`, lifecycle.StatusExpired, successor, at.UTC().Format(time.RFC3339Nano), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to retire record: %w", err)
	}
	return checkAffected(ctx, db, res, id, "record changed before retirement")
}

func updateRecord(ctx context.Context, db dbtx, rec lifecycle.Record, expectedVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE compliance_records
		SET valid_from = ?, valid_to = ?, total_fee = ?, paid = ?, balance = ?,
		    status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND is_renewed = 0 AND version = ?
	`,
		rec.ValidFrom, rec.ValidTo,
		rec.TotalFee.String(), rec.Paid.String(), rec.Balance.String(),
		rec.Status, rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		rec.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return checkAffected(ctx, db, res, rec.ID, "record changed since read")
}

func updateStatuses(ctx context.Context, db dbtx, changes []lifecycle.StatusChange, at time.Time) (int, error) {
	stamp := at.UTC().Format(time.RFC3339Nano)
	n := 0
	for _, c := range changes {
		res, err := db.ExecContext(ctx, `
			UPDATE compliance_records
			SET status = ?, updated_at = ?
			WHERE id = ? AND status = ? AND version = ?
		`, c.To, stamp, c.ID, c.From, c.Version)
		if err != nil {
			return 0, fmt.Errorf("failed to update status of %s: %w", c.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		n += int(affected)
	}
	return n, nil
}

func scanAll(ctx context.Context, db dbtx, fn func(lifecycle.Record) error) error {
	rows, err := db.QueryContext(ctx, `SELECT `+recordColumns+` FROM compliance_records ORDER BY rowid ASC`)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// checkAffected maps a zero-row conditional write to ErrNotFound or a
// ConflictError.
func checkAffected(ctx context.Context, db dbtx, res sql.Result, id lifecycle.RecordID, reason string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compliance_records WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", lifecycle.ErrNotFound, id)
	}
	return &lifecycle.ConflictError{RecordID: id, Reason: reason}
}

func queryRecords(ctx context.Context, db dbtx, query string, args ...any) ([]lifecycle.Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []lifecycle.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (lifecycle.Record, error) {
	var (
		rec       lifecycle.Record
		totalFee  string
		paid      string
		balance   string
		isRenewed int
		renewedBy sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(
		&rec.ID, &rec.EntityKey, &rec.RecordType, &rec.ValidFrom, &rec.ValidTo,
		&totalFee, &paid, &balance, &rec.Status, &isRenewed, &renewedBy,
		&rec.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	if rec.TotalFee, err = decimal.NewFromString(totalFee); err != nil {
		return rec, fmt.Errorf("record %s: bad total_fee %q: %w", rec.ID, totalFee, err)
	}
	if rec.Paid, err = decimal.NewFromString(paid); err != nil {
		return rec, fmt.Errorf("record %s: bad paid %q: %w", rec.ID, paid, err)
	}
	if rec.Balance, err = decimal.NewFromString(balance); err != nil {
		return rec, fmt.Errorf("record %s: bad balance %q: %w", rec.ID, balance, err)
	}
	rec.IsRenewed = isRenewed != 0
	rec.RenewedBy = lifecycle.RecordID(renewedBy.String)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (lifecycle.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store lifecycle.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Get(ctx context.Context, id lifecycle.RecordID) (*lifecycle.Record, error) {
	return getRecord(ctx, ts.tx, id)
}

func (ts *txStore) Insert(ctx context.Context, rec lifecycle.Record) error {
	return insertRecord(ctx, ts.tx, rec)
}

func (ts *txStore) FindLive(ctx context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return findLive(ctx, ts.tx, key, rt)
}

func (ts *txStore) History(ctx context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return history(ctx, ts.tx, key, rt)
}

func (ts *txStore) Retire(ctx context.Context, id lifecycle.RecordID, expectedVersion int64, successor lifecycle.RecordID, at time.Time) error {
	return retireRecord(ctx, ts.tx, id, expectedVersion, successor, at)
}

func (ts *txStore) Update(ctx context.Context, rec lifecycle.Record, expectedVersion int64) error {
	return updateRecord(ctx, ts.tx, rec, expectedVersion)
}

func (ts *txStore) UpdateStatuses(ctx context.Context, changes []lifecycle.StatusChange, at time.Time) (int, error) {
	return updateStatuses(ctx, ts.tx, changes, at)
}

func (ts *txStore) Scan(ctx context.Context, fn func(lifecycle.Record) error) error {
	return scanAll(ctx, ts.tx, fn)
}

func (ts *txStore) ListByType(ctx context.Context, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return queryRecords(ctx, ts.tx, `
		SELECT `+recordColumns+`
		FROM compliance_records
		WHERE record_type = ?
		ORDER BY created_at ASC, rowid ASC
	`, rt)
}

// =============================================================================
// SWEEP RUNS (lifecycle.SweepRunStore interface)
// =============================================================================

// SaveSweepRun inserts or updates a sweep run.
func (s *Store) SaveSweepRun(ctx context.Context, r lifecycle.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sweep_runs (id, as_of, trigger_source, status, scanned, updated, skipped,
			parse_failures, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			scanned = excluded.scanned,
			updated = excluded.updated,
			skipped = excluded.skipped,
			parse_failures = excluded.parse_failures,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		stamp := r.CompletedAt.UTC().Format(time.RFC3339Nano)
		completedAt = &stamp
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.AsOf.String(), r.Trigger, r.Status,
		r.Scanned, r.Updated, r.Skipped, r.ParseFailures,
		nullString(r.Error), r.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sweep run: %w", err)
	}
	return nil
}

// ListSweepRuns returns the newest runs first. limit <= 0 returns all.
func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]lifecycle.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, as_of, trigger_source, status, scanned, updated, skipped, parse_failures,
			error, started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []lifecycle.SweepRun
	for rows.Next() {
		var (
			r           lifecycle.SweepRun
			asOf        string
			runErr      sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &asOf, &r.Trigger, &r.Status, &r.Scanned, &r.Updated, &r.Skipped,
			&r.ParseFailures, &runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		r.AsOf, _ = lifecycle.Normalize(asOf)
		r.Error = runErr.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Package store provides in-memory lifecycle.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/compliance-engine/lifecycle"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	records   map[lifecycle.RecordID]lifecycle.Record
	order     []lifecycle.RecordID // insertion order
	live      map[chainKey]lifecycle.RecordID
	sweepRuns []lifecycle.SweepRun
}

type chainKey struct {
	EntityKey  lifecycle.EntityKey
	RecordType lifecycle.RecordType
}

func keyOf(r lifecycle.Record) chainKey {
	return chainKey{EntityKey: r.EntityKey, RecordType: r.RecordType}
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[lifecycle.RecordID]lifecycle.Record),
		live:    make(map[chainKey]lifecycle.RecordID),
	}
}

func (m *Memory) Get(_ context.Context, id lifecycle.RecordID) (*lifecycle.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) Insert(_ context.Context, rec lifecycle.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec)
}

func (m *Memory) FindLive(_ context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLiveLocked(key, rt), nil
}

func (m *Memory) History(_ context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r lifecycle.Record) bool {
		return r.EntityKey == key && r.RecordType == rt
	}), nil
}

func (m *Memory) Retire(_ context.Context, id lifecycle.RecordID, expectedVersion int64, successor lifecycle.RecordID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retireLocked(id, expectedVersion, successor, at)
}

func (m *Memory) Update(_ context.Context, rec lifecycle.Record, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(rec, expectedVersion)
}

func (m *Memory) UpdateStatuses(_ context.Context, changes []lifecycle.StatusChange, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatusesLocked(changes, at), nil
}

// Scan holds the read lock for the whole iteration.
func (m *Memory) Scan(ctx context.Context, fn func(lifecycle.Record) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanLocked(ctx, fn)
}

func (m *Memory) ListByType(_ context.Context, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r lifecycle.Record) bool { return r.RecordType == rt }), nil
}

// =============================================================================
// LOCKED HELPERS - Caller holds m.mu
// =============================================================================

func (m *Memory) getLocked(id lifecycle.RecordID) (*lifecycle.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrNotFound, id)
	}
	return &rec, nil
}

func (m *Memory) insertLocked(rec lifecycle.Record) error {
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	if rec.IsLive() {
		if cur, ok := m.live[keyOf(rec)]; ok {
			return &lifecycle.ConflictError{RecordID: cur, Reason: "live record already exists"}
		}
		m.live[keyOf(rec)] = rec.ID
	}
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *Memory) findLiveLocked(key lifecycle.EntityKey, rt lifecycle.RecordType) []lifecycle.Record {
	id, ok := m.live[chainKey{EntityKey: key, RecordType: rt}]
	if !ok {
		return nil
	}
	return []lifecycle.Record{m.records[id]}
}

func (m *Memory) filterLocked(keep func(lifecycle.Record) bool) []lifecycle.Record {
	var out []lifecycle.Record
	for _, id := range m.order {
		if r := m.records[id]; keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) retireLocked(id lifecycle.RecordID, expectedVersion int64, successor lifecycle.RecordID, at time.Time) error {
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", lifecycle.ErrNotFound, id)
	}
	if rec.IsRenewed || rec.Version != expectedVersion {
		return &lifecycle.ConflictError{RecordID: id, Reason: "record changed before retirement"}
	}
	rec.IsRenewed = true
	rec.Status = lifecycle.StatusExpired
	rec.RenewedBy = successor
	rec.Version++
	rec.UpdatedAt = at
	m.records[id] = rec
	delete(m.live, keyOf(rec))
	return nil
}

func (m *Memory) updateLocked(rec lifecycle.Record, expectedVersion int64) error {
	cur, ok := m.records[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", lifecycle.ErrNotFound, rec.ID)
	}
	if cur.IsRenewed || cur.Version != expectedVersion {
		return &lifecycle.ConflictError{RecordID: rec.ID, Reason: "record changed since read"}
	}
	cur.ValidFrom = rec.ValidFrom
	cur.ValidTo = rec.ValidTo
	cur.TotalFee = rec.TotalFee
	cur.Paid = rec.Paid
	cur.Balance = rec.Balance
	cur.Status = rec.Status
	cur.UpdatedAt = rec.UpdatedAt
	cur.Version = expectedVersion + 1
	m.records[rec.ID] = cur
	return nil
}

func (m *Memory) updateStatusesLocked(changes []lifecycle.StatusChange, at time.Time) int {
	n := 0
	for _, c := range changes {
		rec, ok := m.records[c.ID]
		if !ok || rec.Status != c.From || rec.Version != c.Version {
			continue
		}
		rec.Status = c.To
		rec.UpdatedAt = at
		m.records[c.ID] = rec
		n++
	}
	return n
}

func (m *Memory) scanLocked(ctx context.Context, fn func(lifecycle.Record) error) error {
	for _, id := range m.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(m.records[id]); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (m *Memory) SaveSweepRun(_ context.Context, run lifecycle.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sweepRuns {
		if m.sweepRuns[i].ID == run.ID {
			m.sweepRuns[i] = run
			return nil
		}
	}
	m.sweepRuns = append(m.sweepRuns, run)
	return nil
}

// ListSweepRuns returns the newest runs first.
func (m *Memory) ListSweepRuns(_ context.Context, limit int) ([]lifecycle.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]lifecycle.SweepRun(nil), m.sweepRuns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(lifecycle.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records map[lifecycle.RecordID]lifecycle.Record
	order   []lifecycle.RecordID
	live    map[chainKey]lifecycle.RecordID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	records := make(map[lifecycle.RecordID]lifecycle.Record, len(tm.records))
	for k, v := range tm.records {
		records[k] = v
	}
	live := make(map[chainKey]lifecycle.RecordID, len(tm.live))
	for k, v := range tm.live {
		live[k] = v
	}
	return memorySnapshot{
		records: records,
		order:   append([]lifecycle.RecordID(nil), tm.order...),
		live:    live,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.records = s.records
	tm.order = s.order
	tm.live = s.live
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Get(_ context.Context, id lifecycle.RecordID) (*lifecycle.Record, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) Insert(_ context.Context, rec lifecycle.Record) error {
	return tv.parent.insertLocked(rec)
}

func (tv *txMemoryView) FindLive(_ context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return tv.parent.findLiveLocked(key, rt), nil
}

func (tv *txMemoryView) History(_ context.Context, key lifecycle.EntityKey, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return tv.parent.filterLocked(func(r lifecycle.Record) bool {
		return r.EntityKey == key && r.RecordType == rt
	}), nil
}

func (tv *txMemoryView) Retire(_ context.Context, id lifecycle.RecordID, expectedVersion int64, successor lifecycle.RecordID, at time.Time) error {
	return tv.parent.retireLocked(id, expectedVersion, successor, at)
}

func (tv *txMemoryView) Update(_ context.Context, rec lifecycle.Record, expectedVersion int64) error {
	return tv.parent.updateLocked(rec, expectedVersion)
}

func (tv *txMemoryView) UpdateStatuses(_ context.Context, changes []lifecycle.StatusChange, at time.Time) (int, error) {
	return tv.parent.updateStatusesLocked(changes, at), nil
}

func (tv *txMemoryView) Scan(ctx context.Context, fn func(lifecycle.Record) error) error {
	return tv.parent.scanLocked(ctx, fn)
}

func (tv *txMemoryView) ListByType(_ context.Context, rt lifecycle.RecordType) ([]lifecycle.Record, error) {
	return tv.parent.filterLocked(func(r lifecycle.Record) bool { return r.RecordType == rt }), nil
}

package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/store/sqlite"
	"github.com/warp/compliance-engine/vehicle"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(store lifecycle.TxStore) *lifecycle.Engine {
	return lifecycle.NewEngine(store, vehicle.DefaultThresholds(),
		lifecycle.WithClock(func() time.Time { return testNow }),
		lifecycle.WithKeyNormalizer(vehicle.NormalizeRegistration),
	)
}

func record(id, key string, rt lifecycle.RecordType) lifecycle.Record {
	return lifecycle.Record{
		ID:         lifecycle.RecordID(id),
		EntityKey:  lifecycle.EntityKey(key),
		RecordType: rt,
		ValidFrom:  "2025-04-01",
		ValidTo:    "2026-03-31",
		TotalFee:   decimal.RequireFromString("4000.50"),
		Paid:       decimal.RequireFromString("1000"),
		Balance:    decimal.RequireFromString("3000.50"),
		Status:     lifecycle.StatusActive,
		Version:    1,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
}

// =============================================================================
// RECORD TESTS
// =============================================================================

func TestStore_InsertAndGet_RoundTripsAmounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Insert(ctx, record("a", "CG04AA1234", vehicle.Tax)))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntityKey("CG04AA1234"), got.EntityKey)
	assert.True(t, got.TotalFee.Equal(decimal.RequireFromString("4000.50")))
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("3000.50")))
	assert.Equal(t, lifecycle.StatusActive, got.Status)
	assert.False(t, got.IsRenewed)
	assert.Empty(t, got.RenewedBy)
	assert.True(t, testNow.Equal(got.CreatedAt))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestStore_UniqueLiveIndex_RejectsSecondLiveRecord(t *testing.T) {
	// GIVEN: A live tax record for V1
	// WHEN: Inserting another live tax record for V1 outside a renewal
	// THEN: The partial unique index rejects it as a conflict

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Insert(ctx, record("a", "V1", vehicle.Tax)))
	err := store.Insert(ctx, record("b", "V1", vehicle.Tax))
	assert.ErrorIs(t, err, lifecycle.ErrConflict)

	// Other types and retired rows are unaffected.
	require.NoError(t, store.Insert(ctx, record("c", "V1", vehicle.GPS)))
	retired := record("d", "V1", vehicle.Tax)
	retired.IsRenewed = true
	retired.Status = lifecycle.StatusExpired
	require.NoError(t, store.Insert(ctx, retired))
}

func TestStore_RetireAndUpdate_AreConditional(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Insert(ctx, record("a", "V1", vehicle.Tax)))

	// Stale version
	err := store.Retire(ctx, "a", 5, "b", testNow)
	assert.ErrorIs(t, err, lifecycle.ErrConflict)

	require.NoError(t, store.Retire(ctx, "a", 1, "b", testNow))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.IsRenewed)
	assert.Equal(t, lifecycle.StatusExpired, got.Status)
	assert.Equal(t, lifecycle.RecordID("b"), got.RenewedBy)
	assert.Equal(t, int64(2), got.Version)

	// Retired rows cannot be updated even with the right version.
	err = store.Update(ctx, *got, 2)
	assert.ErrorIs(t, err, lifecycle.ErrConflict)

	err = store.Update(ctx, record("missing", "V9", vehicle.Tax), 1)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestStore_UpdateStatuses_OnlyMatchingFrom(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Insert(ctx, record("a", "V1", vehicle.Tax)))
	require.NoError(t, store.Insert(ctx, record("b", "V2", vehicle.Tax)))
	require.NoError(t, store.Insert(ctx, record("c", "V3", vehicle.Tax)))

	n, err := store.UpdateStatuses(ctx, []lifecycle.StatusChange{
		{ID: "a", From: lifecycle.StatusActive, To: lifecycle.StatusExpired, Version: 1},
		{ID: "b", From: lifecycle.StatusExpiringSoon, To: lifecycle.StatusExpired, Version: 1},
		{ID: "c", From: lifecycle.StatusActive, To: lifecycle.StatusExpired, Version: 0},
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusExpired, a.Status)
	assert.Equal(t, int64(1), a.Version)

	b, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusActive, b.Status)

	// A change scanned at an older version is not applied.
	c, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusActive, c.Status)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Insert(ctx, record("a", "V1", vehicle.Tax)))

	err := store.WithTx(ctx, func(s lifecycle.Store) error {
		if err := s.Retire(ctx, "a", 1, "b", testNow); err != nil {
			return err
		}
		// Same ID as an existing row: primary key violation.
		dup := record("a", "V1", vehicle.Tax)
		return s.Insert(ctx, dup)
	})
	require.Error(t, err)

	live, err := store.FindLive(ctx, "V1", vehicle.Tax)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, lifecycle.RecordID("a"), live[0].ID)
	assert.Equal(t, int64(1), live[0].Version)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngine_RenewalOnSQLite_SingleLiveRecord(t *testing.T) {
	// GIVEN: CG04AA1234 with a live tax record
	// WHEN: Renewed concurrently by several clerks
	// THEN: One wins, the rest get conflicts, one record is live

	ctx := context.Background()
	store := newTestStore(t)
	engine := newTestEngine(store)

	first, err := engine.Create(ctx, lifecycle.CreateInput{
		EntityKey:  "CG04AA1234",
		RecordType: vehicle.Tax,
		ValidFrom:  "01-04-2024",
		ValidTo:    "31-03-2025",
		TotalFee:   decimal.NewFromInt(4000),
		Paid:       decimal.NewFromInt(4000),
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusExpired, first.Status)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Renew(ctx, lifecycle.CreateInput{
				EntityKey:  "cg04aa1234",
				RecordType: vehicle.Tax,
				ValidFrom:  "01-04-2025",
				ValidTo:    "31-03-2026",
				TotalFee:   decimal.NewFromInt(4000),
				Paid:       decimal.NewFromInt(5000),
			}, lifecycle.RenewOptions{Supersedes: first.Record.ID})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.True(t, lifecycle.IsRetryable(err), "unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	chain, err := engine.History(ctx, "CG04AA1234", vehicle.Tax)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.True(t, chain[0].IsRenewed)
	assert.Equal(t, chain[1].ID, chain[0].RenewedBy)
	assert.True(t, chain[1].Paid.Equal(decimal.NewFromInt(4000)))

	st, err := lifecycle.NewAggregator(store).Aggregate(ctx, vehicle.Tax)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Expired)
	assert.Equal(t, 1, st.Retired)
}

func TestSweep_OnSQLite_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := newTestEngine(store)

	for _, key := range []string{"V1", "V2"} {
		_, err := engine.Create(ctx, lifecycle.CreateInput{
			EntityKey:  key,
			RecordType: vehicle.Insurance,
			ValidFrom:  "2025-01-01",
			ValidTo:    "2025-07-01",
			TotalFee:   decimal.NewFromInt(12000),
		})
		require.NoError(t, err)
	}

	rec := lifecycle.NewReconciler(store, vehicle.DefaultThresholds(), nil, nil)
	asOf := lifecycle.NewDate(2025, time.July, 2)

	res := rec.Sweep(ctx, asOf)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 2, res.Updated)

	res = rec.Sweep(ctx, asOf)
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Updated)
}

// =============================================================================
// SWEEP RUN TESTS
// =============================================================================

func TestStore_SweepRuns_UpsertAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	run := lifecycle.SweepRun{
		ID:        "run-1",
		AsOf:      lifecycle.NewDate(2025, time.June, 14),
		Trigger:   "schedule",
		Status:    lifecycle.SweepRunning,
		StartedAt: testNow.Add(-24 * time.Hour),
	}
	require.NoError(t, store.SaveSweepRun(ctx, run))

	done := testNow.Add(-23 * time.Hour)
	run.Status = lifecycle.SweepCompleted
	run.Scanned, run.Updated = 10, 3
	run.CompletedAt = &done
	require.NoError(t, store.SaveSweepRun(ctx, run))

	require.NoError(t, store.SaveSweepRun(ctx, lifecycle.SweepRun{
		ID:        "run-2",
		AsOf:      lifecycle.NewDate(2025, time.June, 15),
		Trigger:   "manual",
		Status:    lifecycle.SweepFailed,
		Error:     "store scan: connection reset",
		StartedAt: testNow,
	}))

	runs, err := store.ListSweepRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "store scan: connection reset", runs[0].Error)
	assert.Nil(t, runs[0].CompletedAt)

	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, lifecycle.SweepCompleted, runs[1].Status)
	assert.Equal(t, 3, runs[1].Updated)
	assert.Equal(t, "2025-06-14", runs[1].AsOf.String())
	require.NotNil(t, runs[1].CompletedAt)
	assert.True(t, done.Equal(*runs[1].CompletedAt))

	limited, err := store.ListSweepRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Ping(t *testing.T) {
	assert.NoError(t, newTestStore(t).Ping(context.Background()))
}

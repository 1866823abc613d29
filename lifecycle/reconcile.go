/*
reconcile.go - Reconciliation sweep

PURPOSE:
  Status is a cached projection of (validTo, today, threshold). Time moves,
  the cache does not. The sweep recomputes every record's target status and
  writes back only the ones that drifted.

ALGORITHM:
  1. Scan every record, all types, retired ones included
  2. TargetStatus (same classifier and thresholds as the write path)
  3. Collect records where target != stored
  4. One bulk UpdateStatuses call, each write conditional on the old status

FAIL-SOFT:
  A record whose validTo does not normalize is counted in ParseFailures,
  logged at Warn, and left untouched. A store failure ends the sweep early
  with Err set. Sweep itself never returns an error.

IDEMPOTENCE:
  Running Sweep twice with the same now updates nothing the second time.
*/
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepResult reports one sweep.
type SweepResult struct {
	Scanned       int
	Updated       int
	ParseFailures int
	// Skipped counts diffs whose stored status changed between scan and write.
	Skipped int
	Err     error
}

// Reconciler runs the sweep against a store.
type Reconciler struct {
	store      Store
	thresholds Thresholds
	logger     *zap.Logger
	observer   Observer
	clock      func() time.Time
}

func NewReconciler(store Store, thresholds Thresholds, logger *zap.Logger, observer Observer) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{
		store:      store,
		thresholds: thresholds,
		logger:     logger,
		observer:   observer,
		clock:      time.Now,
	}
}

// Sweep reconciles stored status against the status each record should
// have on now.
func (r *Reconciler) Sweep(ctx context.Context, now Date) SweepResult {
	start := r.clock()
	res := r.sweep(ctx, now)
	elapsed := r.clock().Sub(start)

	fields := []zap.Field{
		zap.String("as_of", now.String()),
		zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("parse_failures", res.ParseFailures),
		zap.Duration("elapsed", elapsed),
	}
	if res.Err != nil {
		r.logger.Error("sweep aborted", append(fields, zap.Error(res.Err))...)
	} else {
		r.logger.Info("sweep completed", fields...)
	}
	r.observer.SweepCompleted(res, elapsed)
	return res
}

func (r *Reconciler) sweep(ctx context.Context, now Date) SweepResult {
	var res SweepResult
	var changes []StatusChange

	err := r.store.Scan(ctx, func(rec Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Scanned++
		target, err := TargetStatus(rec, now, r.thresholds)
		if err != nil {
			res.ParseFailures++
			r.logger.Warn("unparseable validity date",
				zap.String("record_id", string(rec.ID)),
				zap.String("record_type", string(rec.RecordType)),
				zap.String("valid_to", rec.ValidTo),
				zap.Error(err))
			return nil
		}
		if target != rec.Status {
			changes = append(changes, StatusChange{ID: rec.ID, From: rec.Status, To: target, Version: rec.Version})
		}
		return nil
	})
	if err != nil {
		res.Err = wrapStore("scan", err)
		return res
	}
	if len(changes) == 0 {
		return res
	}

	n, err := r.store.UpdateStatuses(ctx, changes, r.clock())
	if err != nil {
		res.Err = wrapStore("update statuses", err)
		return res
	}
	res.Updated = n
	res.Skipped = len(changes) - n
	return res
}

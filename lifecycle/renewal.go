/*
renewal.go - Renewal chain manager

PURPOSE:
  Records for one (entity, record type) form an implicit chain ordered by
  validity. Only the newest member is live. Creating a successor retires
  every live predecessor in the same transaction that inserts it.

ALGORITHM (inside TxStore.WithTx):
  1. Load live records for (EntityKey, RecordType)
  2. If the caller named the record it supersedes, the live set must be
     exactly that record, otherwise ConflictError
  3. Retire each: IsRenewed = true, Status = expired, RenewedBy = successor
     (conditional on version; a lost race is a ConflictError)
  4. Insert the successor live
  Any error rolls back steps 3 and 4 together.

WHY FORCE EXPIRED:
  A retired record no longer counts as live even if its own validTo is in
  the future; the sweep keeps it expired (see TargetStatus).
*/
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RenewOptions narrows a renewal.
type RenewOptions struct {
	// Supersedes is the live record the caller believes it is renewing.
	// Empty means "retire whatever is live".
	Supersedes RecordID
}

// RenewalResult reports both sides of a renewal for notification and audit.
type RenewalResult struct {
	Retired   []Record
	Created   Record
	WasCapped bool
}

// Outcome reports the renewal in the shape create and update use.
func (r *RenewalResult) Outcome() *Outcome {
	return &Outcome{
		Record:    r.Created,
		Paid:      r.Created.Paid,
		Balance:   r.Created.Balance,
		Status:    r.Created.Status,
		WasCapped: r.WasCapped,
		Retired:   r.Retired,
	}
}

// renewChain runs steps 1-4 against a transactional store view.
func renewChain(ctx context.Context, s Store, successor Record, opts RenewOptions, at time.Time) ([]Record, error) {
	live, err := s.FindLive(ctx, successor.EntityKey, successor.RecordType)
	if err != nil {
		return nil, wrapStore("find live", err)
	}

	if opts.Supersedes != "" {
		if len(live) != 1 || live[0].ID != opts.Supersedes {
			return nil, &ConflictError{
				RecordID: opts.Supersedes,
				Reason:   fmt.Sprintf("no longer the live %s record for %s", successor.RecordType, successor.EntityKey),
			}
		}
	}

	retired := make([]Record, 0, len(live))
	for _, prev := range live {
		if err := s.Retire(ctx, prev.ID, prev.Version, successor.ID, at); err != nil {
			return nil, wrapStore("retire", err)
		}
		prev.IsRenewed = true
		prev.Status = StatusExpired
		prev.RenewedBy = successor.ID
		prev.Version++
		prev.UpdatedAt = at
		retired = append(retired, prev)
	}

	if err := s.Insert(ctx, successor); err != nil {
		return nil, wrapStore("insert", err)
	}
	return retired, nil
}

// SortChain orders a chain by validity start. Records whose ValidFrom does
// not parse keep their relative order after the parseable ones.
func SortChain(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		di, erri := records[i].ValidFromDate()
		dj, errj := records[j].ValidFromDate()
		switch {
		case erri != nil && errj != nil:
			return false
		case erri != nil:
			return false
		case errj != nil:
			return true
		}
		if di.Equal(dj) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return di.Before(dj)
	})
}

// LiveOf returns the live member of a chain, if any.
func LiveOf(chain []Record) (Record, bool) {
	for _, r := range chain {
		if r.IsLive() {
			return r, true
		}
	}
	return Record{}, false
}

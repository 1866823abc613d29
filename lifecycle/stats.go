/*
stats.go - Dashboard statistics

PURPOSE:
  Per-type counters for the dashboard. Reads only.

EXCLUSION RULE:
  Let covered = entity keys with a live record whose status is active.
  ExpiringSoon and Expired skip any record whose key is in covered, and
  never count retired records. A vehicle that has been renewed therefore
  shows up under its successor's status only.

  Live duplicates (possible in data imported before the unique live index)
  are handled by the same rule: one active live record covers the key.

PENDING PAYMENT:
  Every record with Balance > 0, regardless of status or renewal state.
  Money owed does not disappear on renewal.
*/
package lifecycle

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Stats is the dashboard view of one record type.
type Stats struct {
	RecordType           RecordType
	Total                int
	Retired              int
	Active               int
	ExpiringSoon         int
	Expired              int
	PendingPaymentCount  int
	PendingPaymentAmount decimal.Decimal
}

// Aggregate computes Stats for records of type rt. Records of other types
// are ignored.
func Aggregate(records []Record, rt RecordType) Stats {
	st := Stats{RecordType: rt, PendingPaymentAmount: decimal.Zero}

	covered := make(map[EntityKey]struct{})
	for _, r := range records {
		if r.RecordType == rt && r.IsLive() && r.Status == StatusActive {
			covered[r.EntityKey] = struct{}{}
		}
	}

	for _, r := range records {
		if r.RecordType != rt {
			continue
		}
		st.Total++
		if r.HasPendingPayment() {
			st.PendingPaymentCount++
			st.PendingPaymentAmount = st.PendingPaymentAmount.Add(r.Balance)
		}
		if !r.IsLive() {
			st.Retired++
			continue
		}
		if r.Status == StatusActive {
			st.Active++
			continue
		}
		if _, ok := covered[r.EntityKey]; ok {
			continue
		}
		switch r.Status {
		case StatusExpiringSoon:
			st.ExpiringSoon++
		case StatusExpired:
			st.Expired++
		}
	}
	return st
}

// Aggregator reads records from a store and aggregates them.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Aggregate returns Stats for one registered type.
func (a *Aggregator) Aggregate(ctx context.Context, rt RecordType) (Stats, error) {
	if err := ValidateRecordType(rt); err != nil {
		return Stats{}, err
	}
	records, err := a.store.ListByType(ctx, rt)
	if err != nil {
		return Stats{}, wrapStore("list by type", err)
	}
	return Aggregate(records, rt), nil
}

// AggregateAll returns Stats for every registered type, in registry order.
func (a *Aggregator) AggregateAll(ctx context.Context) ([]Stats, error) {
	types := ListRecordTypes()
	out := make([]Stats, len(types))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, info := range types {
		g.Go(func() error {
			st, err := a.Aggregate(ctx, info.Type)
			if err != nil {
				return err
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

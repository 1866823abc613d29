/*
Package lifecycle provides the compliance record lifecycle engine.

PURPOSE:
  Every renewable compliance document (road tax, fitness certificate,
  permits, GPS fitment, insurance) follows the same lifecycle: it is issued
  with a validity window, it drifts from active to expiring_soon to expired
  as the calendar moves, and it is eventually superseded by a renewal. This
  package implements that lifecycle once, parametrized by record type,
  instead of once per document kind.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: One compliance document for one vehicle/licence
  - Status: Cached projection of (validTo, today, threshold)
  - RecordType: Which compliance category a record belongs to
  - Live record: A record with IsRenewed = false

INVARIANTS:
  1. 0 <= Paid <= TotalFee and Balance = TotalFee - Paid, after every write
  2. At most one live record per (EntityKey, RecordType)
  3. IsRenewed never reverts to false
  4. A retired record's status is expired

USAGE:
  engine := lifecycle.NewEngine(store, thresholds)
  out, err := engine.Create(ctx, lifecycle.CreateInput{
      EntityKey:  "CG04AA1234",
      RecordType: vehicle.Tax,
      ValidFrom:  "01-04-2025",
      ValidTo:    "31-03-2026",
      TotalFee:   decimal.NewFromInt(4000),
      Paid:       decimal.NewFromInt(4000),
  })

SEE ALSO:
  - normalize.go: Date parsing
  - classify.go: Status classification and thresholds
  - payment.go: Payment invariant
  - renewal.go: Renewal chains
  - reconcile.go: Reconciliation sweep
  - stats.go: Dashboard statistics
*/
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string

// EntityKey identifies the vehicle or licence a record governs, e.g. a
// registration number. Many historical records share one key.
type EntityKey string

// RecordType identifies a compliance category. Concrete values are owned by
// domain packages (see vehicle/types.go) and registered in the registry.
type RecordType string

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpiringSoon, StatusExpired:
		return true
	}
	return false
}

// =============================================================================
// RECORD
// =============================================================================

// Record is the shape every concrete compliance document conforms to.
//
// ValidFrom and ValidTo hold the stored date text. Records written through
// the Engine always carry canonical YYYY-MM-DD, but rows loaded by import
// tooling may use DD-MM-YYYY or DD/MM/YYYY, so readers go through
// ValidFromDate/ValidToDate.
type Record struct {
	ID         RecordID
	EntityKey  EntityKey
	RecordType RecordType

	ValidFrom string
	ValidTo   string

	TotalFee decimal.Decimal
	Paid     decimal.Decimal
	Balance  decimal.Decimal

	Status    Status
	IsRenewed bool
	RenewedBy RecordID // successor that retired this record

	// Version is bumped by every engine write except sweep status updates.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLive reports whether r is the operative record of its chain.
func (r Record) IsLive() bool { return !r.IsRenewed }

// ValidToDate normalizes the stored validity end date.
func (r Record) ValidToDate() (Date, error) {
	d, err := Normalize(r.ValidTo)
	if err != nil {
		return Date{}, withField(err, "validTo")
	}
	return d, nil
}

// ValidFromDate normalizes the stored validity start date.
func (r Record) ValidFromDate() (Date, error) {
	d, err := Normalize(r.ValidFrom)
	if err != nil {
		return Date{}, withField(err, "validFrom")
	}
	return d, nil
}

// HasPendingPayment reports whether money is still owed on r.
func (r Record) HasPendingPayment() bool { return r.Balance.IsPositive() }

// StatusChange is a single diff produced by the reconciliation sweep.
// The write only applies if the stored status is still From and the record
// is still at Version; sweep writes do not bump the version.
type StatusChange struct {
	ID      RecordID
	From    Status
	To      Status
	Version int64
}

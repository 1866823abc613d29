/*
classify.go - Lifecycle classifier and per-type thresholds

PURPOSE:
  Derives a record's status from its validity end date. The same function
  and the same threshold table serve the inline write path and the
  reconciliation sweep, so the two can never disagree.

ALGORITHM:
  daysRemaining = validTo - today   (whole calendar days)

    daysRemaining <  0              -> expired
    0 <= daysRemaining <= threshold -> expiring_soon
    daysRemaining >  threshold      -> active

  validTo is inclusive: a record is not expired on its last valid day.

THRESHOLDS:
  Thresholds maps each record type to its "expiring soon" window in days.
  Types without an explicit entry use Default. Values come from config
  (see config/config.go), seeded by vehicle.DefaultThresholds.
*/
package lifecycle

import (
	"fmt"
	"sort"
)

// Classify returns the lifecycle status of a record valid until validTo,
// as seen on today.
func Classify(validTo, today Date, thresholdDays int) Status {
	daysRemaining := today.DaysUntil(validTo)
	switch {
	case daysRemaining < 0:
		return StatusExpired
	case daysRemaining <= thresholdDays:
		return StatusExpiringSoon
	default:
		return StatusActive
	}
}

// TargetStatus is the status rec should have on today. Retired records are
// always expired regardless of their dates.
func TargetStatus(rec Record, today Date, thresholds Thresholds) (Status, error) {
	if rec.IsRenewed {
		return StatusExpired, nil
	}
	validTo, err := rec.ValidToDate()
	if err != nil {
		return "", err
	}
	return Classify(validTo, today, thresholds.For(rec.RecordType)), nil
}

// =============================================================================
// THRESHOLDS
// =============================================================================

// Thresholds is an immutable per-type table of expiring-soon windows.
type Thresholds struct {
	def    int
	byType map[RecordType]int
}

// NewThresholds validates and copies the table.
func NewThresholds(defaultDays int, byType map[RecordType]int) (Thresholds, error) {
	if defaultDays < 0 {
		return Thresholds{}, fmt.Errorf("default threshold must be >= 0, got %d", defaultDays)
	}
	cp := make(map[RecordType]int, len(byType))
	for rt, days := range byType {
		if days < 0 {
			return Thresholds{}, fmt.Errorf("threshold for %s must be >= 0, got %d", rt, days)
		}
		cp[rt] = days
	}
	return Thresholds{def: defaultDays, byType: cp}, nil
}

// MustThresholds panics on an invalid table. Use for literals.
func MustThresholds(defaultDays int, byType map[RecordType]int) Thresholds {
	t, err := NewThresholds(defaultDays, byType)
	if err != nil {
		panic(err)
	}
	return t
}

// For returns the threshold for rt.
func (t Thresholds) For(rt RecordType) int {
	if days, ok := t.byType[rt]; ok {
		return days
	}
	return t.def
}

func (t Thresholds) Default() int { return t.def }

// Types returns the record types with an explicit entry, sorted.
func (t Thresholds) Types() []RecordType {
	out := make([]RecordType, 0, len(t.byType))
	for rt := range t.byType {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

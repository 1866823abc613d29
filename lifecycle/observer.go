package lifecycle

import "time"

// Observer receives engine events for metrics. metrics.Metrics implements it.
type Observer interface {
	RenewalCompleted(rt RecordType, retired int)
	PaymentCapped(rt RecordType)
	ConflictDetected(op string)
	SweepCompleted(res SweepResult, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RenewalCompleted(RecordType, int)          {}
func (nopObserver) PaymentCapped(RecordType)                  {}
func (nopObserver) ConflictDetected(string)                   {}
func (nopObserver) SweepCompleted(SweepResult, time.Duration) {}

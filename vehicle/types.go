/*
Package vehicle defines the compliance record types of the vehicle domain.

PURPOSE:
  The lifecycle engine is generic over record types. This package names the
  nine types this domain tracks, gives each an explicit expiring-soon
  threshold, and registers them with lifecycle at init.

THRESHOLDS:
  Every type defaults to 30 days. Tax is named separately because older
  batch jobs used 15; the value is configurable per type
  (thresholds.types.tax) rather than hard-coded twice.

SEE ALSO:
  - lifecycle/registry.go: Registration
  - config/config.go: Threshold overrides
*/
package vehicle

import "github.com/warp/compliance-engine/lifecycle"

// =============================================================================
// RECORD TYPES
// =============================================================================

const (
	Tax                 lifecycle.RecordType = "tax"
	Fitness             lifecycle.RecordType = "fitness"
	CGPermit            lifecycle.RecordType = "cg-permit"
	NationalPermitPartA lifecycle.RecordType = "national-permit-part-a"
	NationalPermitPartB lifecycle.RecordType = "national-permit-part-b"
	BusPermit           lifecycle.RecordType = "bus-permit"
	TemporaryPermit     lifecycle.RecordType = "temporary-permit"
	GPS                 lifecycle.RecordType = "gps"
	Insurance           lifecycle.RecordType = "insurance"
)

// =============================================================================
// THRESHOLDS (days before validTo at which a record is expiring soon)
// =============================================================================

const (
	DefaultExpiryThreshold = 30

	TaxExpiryThreshold             = 30
	FitnessExpiryThreshold         = 30
	CGPermitExpiryThreshold        = 30
	NationalPermitExpiryThreshold  = 30
	BusPermitExpiryThreshold       = 30
	TemporaryPermitExpiryThreshold = 30
	GPSExpiryThreshold             = 30
	InsuranceExpiryThreshold       = 30
)

var recordTypes = []lifecycle.RecordTypeInfo{
	{Type: Tax, Name: "Road Tax", DefaultThreshold: TaxExpiryThreshold},
	{Type: Fitness, Name: "Fitness Certificate", DefaultThreshold: FitnessExpiryThreshold},
	{Type: CGPermit, Name: "CG Permit", DefaultThreshold: CGPermitExpiryThreshold},
	{Type: NationalPermitPartA, Name: "National Permit Part A", DefaultThreshold: NationalPermitExpiryThreshold},
	{Type: NationalPermitPartB, Name: "National Permit Part B", DefaultThreshold: NationalPermitExpiryThreshold},
	{Type: BusPermit, Name: "Bus Permit", DefaultThreshold: BusPermitExpiryThreshold},
	{Type: TemporaryPermit, Name: "Temporary Permit", DefaultThreshold: TemporaryPermitExpiryThreshold},
	{Type: GPS, Name: "GPS Fitment", DefaultThreshold: GPSExpiryThreshold},
	{Type: Insurance, Name: "Insurance", DefaultThreshold: InsuranceExpiryThreshold},
}

func init() {
	for _, info := range recordTypes {
		lifecycle.RegisterRecordType(info)
	}
}

// RecordTypes returns the record types this package registers.
func RecordTypes() []lifecycle.RecordType {
	out := make([]lifecycle.RecordType, len(recordTypes))
	for i, info := range recordTypes {
		out[i] = info.Type
	}
	return out
}

// DefaultThresholds is the built-in threshold table with no overrides.
func DefaultThresholds() lifecycle.Thresholds {
	byType := make(map[lifecycle.RecordType]int, len(recordTypes))
	for _, info := range recordTypes {
		byType[info.Type] = info.DefaultThreshold
	}
	return lifecycle.MustThresholds(DefaultExpiryThreshold, byType)
}

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rec(id, key string, status Status, renewed bool, balance string) Record {
	return Record{
		ID:         RecordID(id),
		EntityKey:  EntityKey(key),
		RecordType: "tax",
		Status:     status,
		IsRenewed:  renewed,
		Balance:    dec(balance),
	}
}

func TestAggregate_RetiredNeverCountsAsExpired(t *testing.T) {
	// GIVEN: CG04AA1234 has retired record A (expired) and live record B (active)
	// WHEN: Aggregating tax
	// THEN: The vehicle counts once, as active; A only shows under Retired

	records := []Record{
		rec("A", "CG04AA1234", StatusExpired, true, "0"),
		rec("B", "CG04AA1234", StatusActive, false, "0"),
	}

	st := Aggregate(records, "tax")
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Retired)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 0, st.Expired)
	assert.Equal(t, 0, st.ExpiringSoon)
}

func TestAggregate_SuccessorStatusIsWhatCounts(t *testing.T) {
	records := []Record{
		rec("A", "V1", StatusExpired, true, "0"),
		rec("B", "V1", StatusExpiringSoon, false, "0"),
		rec("C", "V2", StatusExpired, false, "0"),
	}

	st := Aggregate(records, "tax")
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, 1, st.ExpiringSoon)
	assert.Equal(t, 1, st.Expired)
}

func TestAggregate_ActiveLiveCoversDuplicateLive(t *testing.T) {
	// GIVEN: Imported data with two live records for one vehicle
	// WHEN: One is active
	// THEN: The expired duplicate is not counted

	records := []Record{
		rec("A", "V1", StatusExpired, false, "0"),
		rec("B", "V1", StatusActive, false, "0"),
	}

	st := Aggregate(records, "tax")
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 0, st.Expired)
}

func TestAggregate_PendingPaymentIncludesRetired(t *testing.T) {
	records := []Record{
		rec("A", "V1", StatusExpired, true, "500"),
		rec("B", "V1", StatusActive, false, "1000.25"),
		rec("C", "V2", StatusActive, false, "0"),
	}

	st := Aggregate(records, "tax")
	assert.Equal(t, 2, st.PendingPaymentCount)
	assert.True(t, st.PendingPaymentAmount.Equal(dec("1500.25")))
}

func TestAggregate_IgnoresOtherTypes(t *testing.T) {
	other := rec("X", "V1", StatusActive, false, "100")
	other.RecordType = "gps"

	st := Aggregate([]Record{other}, "tax")
	assert.Equal(t, 0, st.Total)
	assert.True(t, st.PendingPaymentAmount.IsZero())
}

func TestAggregate_CountsPartitionLiveRecords(t *testing.T) {
	// With no duplicates, every live record lands in exactly one bucket.
	records := []Record{
		rec("1", "V1", StatusActive, false, "0"),
		rec("2", "V2", StatusExpiringSoon, false, "0"),
		rec("3", "V3", StatusExpired, false, "0"),
		rec("4", "V3", StatusExpired, true, "0"),
		rec("5", "V4", StatusExpired, true, "0"),
	}

	st := Aggregate(records, "tax")
	assert.Equal(t, st.Total, st.Retired+st.Active+st.ExpiringSoon+st.Expired)
}

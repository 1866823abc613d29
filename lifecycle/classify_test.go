package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classifyToday = NewDate(2025, time.June, 15)

func TestClassify_Boundaries(t *testing.T) {
	// GIVEN: threshold 30
	// WHEN: validTo sits around the boundaries
	// THEN: validTo is inclusive and the threshold day is still expiring_soon

	tests := []struct {
		name   string
		offset int
		want   Status
	}{
		{"ten days left", 10, StatusExpiringSoon},
		{"yesterday", -1, StatusExpired},
		{"forty-five days left", 45, StatusActive},
		{"last valid day", 0, StatusExpiringSoon},
		{"exactly threshold", 30, StatusExpiringSoon},
		{"threshold plus one", 31, StatusActive},
		{"long expired", -400, StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(classifyToday.AddDays(tt.offset), classifyToday, 30)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ZeroThreshold(t *testing.T) {
	assert.Equal(t, StatusExpiringSoon, Classify(classifyToday, classifyToday, 0))
	assert.Equal(t, StatusActive, Classify(classifyToday.AddDays(1), classifyToday, 0))
}

func TestClassify_PartitionAndMonotonic(t *testing.T) {
	// GIVEN: A sliding today across a fixed validTo
	// WHEN: Classifying every day
	// THEN: Exactly one status per day, and it only moves forward

	validTo := NewDate(2025, time.December, 31)
	rank := map[Status]int{StatusActive: 0, StatusExpiringSoon: 1, StatusExpired: 2}

	prev := -1
	for day := validTo.AddDays(-90); !day.After(validTo.AddDays(10)); day = day.AddDays(1) {
		s := Classify(validTo, day, 30)
		require.True(t, s.Valid())
		assert.GreaterOrEqual(t, rank[s], prev, "status went backwards on %s", day)
		prev = rank[s]
	}
}

func TestTargetStatus_RetiredIsExpired(t *testing.T) {
	// GIVEN: A retired record whose validTo is far in the future
	// WHEN: Computing its target status
	// THEN: It is expired

	rec := Record{RecordType: "tax", ValidTo: classifyToday.AddDays(300).String(), IsRenewed: true}
	got, err := TargetStatus(rec, classifyToday, MustThresholds(30, nil))
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got)
}

func TestTargetStatus_UsesPerTypeThreshold(t *testing.T) {
	th := MustThresholds(30, map[RecordType]int{"tax": 15})
	validTo := classifyToday.AddDays(20).String()

	tax, err := TargetStatus(Record{RecordType: "tax", ValidTo: validTo}, classifyToday, th)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, tax)

	gps, err := TargetStatus(Record{RecordType: "gps", ValidTo: validTo}, classifyToday, th)
	require.NoError(t, err)
	assert.Equal(t, StatusExpiringSoon, gps)
}

func TestTargetStatus_LegacyDateFormat(t *testing.T) {
	rec := Record{RecordType: "gps", ValidTo: "14/06/2025"}
	got, err := TargetStatus(rec, classifyToday, MustThresholds(30, nil))
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got)
}

func TestTargetStatus_ParseFailure(t *testing.T) {
	_, err := TargetStatus(Record{RecordType: "gps", ValidTo: "soon"}, classifyToday, MustThresholds(30, nil))
	assert.ErrorIs(t, err, ErrParse)
}

func TestNewThresholds_RejectsNegative(t *testing.T) {
	_, err := NewThresholds(-1, nil)
	assert.Error(t, err)

	_, err = NewThresholds(30, map[RecordType]int{"tax": -5})
	assert.Error(t, err)
}

func TestThresholds_IsACopy(t *testing.T) {
	src := map[RecordType]int{"tax": 10}
	th := MustThresholds(30, src)
	src["tax"] = 99

	assert.Equal(t, 10, th.For("tax"))
	assert.Equal(t, 30, th.For("unknown"))
	assert.Equal(t, []RecordType{"tax"}, th.Types())
}

package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AcceptedForms(t *testing.T) {
	tests := []struct {
		raw  string
		want Date
	}{
		{"05-03-2026", NewDate(2026, time.March, 5)},
		{"5/3/2026", NewDate(2026, time.March, 5)},
		{"05/03/2026", NewDate(2026, time.March, 5)},
		{"05-03-26", NewDate(2026, time.March, 5)},
		{"05-03-51", NewDate(1951, time.March, 5)},
		{"05-03-50", NewDate(2050, time.March, 5)},
		{"2026-03-05", NewDate(2026, time.March, 5)},
		{"2026-03-05T10:30:00Z", NewDate(2026, time.March, 5)},
		{"2026-03-05T23:30:00+05:30", NewDate(2026, time.March, 5)},
		{"2026-03-05T10:30:00", NewDate(2026, time.March, 5)},
		{"  31-12-2025 ", NewDate(2025, time.December, 31)},
		{"29-02-2024", NewDate(2024, time.February, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"2026",
		"05-03/2026",
		"05-03-2026-01",
		"aa-03-2026",
		"+5-03-2026",
		"32-01-2026",
		"29-02-2025",
		"05-13-2026",
		"00-01-2026",
		"05-03-202",
		"2026-003-05",
		"0000-01-01",
		"2026/03/05",
		"05-03-2026Tjunk",
		"2026-03-05Txx",
		"2026-03-05T25:00:00Z",
		"T2026-03-05",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, raw, perr.Raw)
		})
	}
}

func TestNormalize_NoMonthFirstInterpretation(t *testing.T) {
	// GIVEN: A US-style date with month 12 in the first position
	// WHEN: Normalizing
	// THEN: It is read day-first, and a month of 25 is rejected

	d, err := Normalize("12-01-2026")
	require.NoError(t, err)
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 12, d.Day())

	_, err = Normalize("01-25-2026")
	assert.ErrorIs(t, err, ErrParse)
}

func TestNormalize_CanonicalRoundTrip(t *testing.T) {
	d := MustNormalize("7/8/2025")
	assert.Equal(t, "2025-08-07", d.String())

	again, err := Normalize(d.String())
	require.NoError(t, err)
	assert.True(t, d.Equal(again))
}

func TestRecord_ValidToDate_CarriesField(t *testing.T) {
	rec := Record{ValidTo: "not-a-date"}
	_, err := rec.ValidToDate()

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "validTo", perr.Field)
	assert.Contains(t, err.Error(), "validTo")
}

func TestDate_DaysUntil(t *testing.T) {
	a := NewDate(2025, time.March, 1)
	assert.Equal(t, 0, a.DaysUntil(a))
	assert.Equal(t, 10, a.DaysUntil(a.AddDays(10)))
	assert.Equal(t, -1, a.DaysUntil(a.AddDays(-1)))
	assert.Equal(t, 365, NewDate(2025, time.January, 1).DaysUntil(NewDate(2026, time.January, 1)))
	assert.Equal(t, 366, NewDate(2024, time.January, 1).DaysUntil(NewDate(2025, time.January, 1)))
}

func TestDateOf_UsesCallerLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 2025-03-01 00:30 in IST is still 2025-02-28 in UTC.
	ts := time.Date(2025, time.March, 1, 0, 30, 0, 0, loc)
	assert.Equal(t, "2025-03-01", DateOf(ts).String())
}

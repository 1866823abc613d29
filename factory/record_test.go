package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/compliance-engine/factory"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/vehicle"
)

func TestAmount_DecodesNumbersAndStrings(t *testing.T) {
	tests := map[string]string{
		`4000`:       "4000",
		`4000.5`:     "4000.5",
		`"4000.00"`:  "4000",
		`"1,25,000"`: "125000",
		`" 99.90 "`:  "99.9",
		`""`:         "0",
		`null`:       "0",
		`"-10"`:      "-10",
	}
	for raw, want := range tests {
		var a factory.Amount
		require.NoError(t, json.Unmarshal([]byte(raw), &a), raw)
		assert.True(t, a.Equal(decimal.RequireFromString(want)), "raw=%s got=%s", raw, a.String())
	}
}

func TestAmount_RejectsGarbage(t *testing.T) {
	var a factory.Amount
	assert.Error(t, json.Unmarshal([]byte(`"four thousand"`), &a))
	assert.Error(t, json.Unmarshal([]byte(`true`), &a))
}

func TestAmount_MarshalsAsString(t *testing.T) {
	out, err := json.Marshal(factory.Amount{Decimal: decimal.RequireFromString("4000.50")})
	require.NoError(t, err)
	assert.JSONEq(t, `"4000.5"`, string(out))
}

func TestParseRecordType_CanonicalAndLegacy(t *testing.T) {
	tests := map[string]lifecycle.RecordType{
		"tax":                 vehicle.Tax,
		"TAX":                 vehicle.Tax,
		" gps ":               vehicle.GPS,
		"cg-permit":           vehicle.CGPermit,
		"cgPermit":            vehicle.CGPermit,
		"nationalPermitPartA": vehicle.NationalPermitPartA,
		"nationalPermitPartB": vehicle.NationalPermitPartB,
		"busPermit":           vehicle.BusPermit,
		"temporaryPermit":     vehicle.TemporaryPermit,
	}
	for name, want := range tests {
		got, err := factory.ParseRecordType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := factory.ParseRecordType("pollution")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownRecordType)
}

func TestParseRecord_PassesDatesThroughRaw(t *testing.T) {
	// GIVEN: A form payload with DD/MM/YYYY dates and string amounts
	// WHEN: Parsing
	// THEN: Dates are untouched for the engine to normalize

	f := factory.NewRecordFactory()
	in, err := f.ParseRecord([]byte(`{
		"entity_key": "CG04AA1234",
		"record_type": "cgPermit",
		"valid_from": "01/04/2025",
		"valid_to": "31/03/2026",
		"total_fee": "4000",
		"paid": 5000
	}`))
	require.NoError(t, err)

	assert.Equal(t, vehicle.CGPermit, in.RecordType)
	assert.Equal(t, "31/03/2026", in.ValidTo)
	assert.True(t, in.TotalFee.Equal(decimal.NewFromInt(4000)))
	assert.True(t, in.Paid.Equal(decimal.NewFromInt(5000)))
}

func TestParseRecords_ReportsIndexOfBadEntry(t *testing.T) {
	f := factory.NewRecordFactory()
	_, err := f.ParseRecords([]byte(`[
		{"entity_key": "V1", "record_type": "tax", "valid_from": "2025-01-01", "valid_to": "2025-12-31"},
		{"entity_key": "V2", "record_type": "pollution", "valid_from": "2025-01-01", "valid_to": "2025-12-31"}
	]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownRecordType)
}

func TestParseUpdate_AbsentFieldsStayNil(t *testing.T) {
	f := factory.NewRecordFactory()
	in, err := f.ParseUpdate([]byte(`{"version": 3, "paid": "1500"}`))
	require.NoError(t, err)

	assert.Equal(t, int64(3), in.ExpectedVersion)
	require.NotNil(t, in.Paid)
	assert.True(t, in.Paid.Equal(decimal.NewFromInt(1500)))
	assert.Nil(t, in.TotalFee)
	assert.Nil(t, in.ValidFrom)
	assert.Nil(t, in.ValidTo)
}

package lifecycle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyPayment_Overpayment_Capped(t *testing.T) {
	// GIVEN: Fee 4000
	// WHEN: 5000 is paid
	// THEN: Paid is capped at 4000, balance is 0, and the cap is reported

	p, err := ApplyPayment(dec("4000"), dec("5000"))
	require.NoError(t, err)
	assert.True(t, p.Paid.Equal(dec("4000")))
	assert.True(t, p.Balance.IsZero())
	assert.True(t, p.WasCapped)
}

func TestApplyPayment_PartialPayment(t *testing.T) {
	p, err := ApplyPayment(dec("4000"), dec("1500.50"))
	require.NoError(t, err)
	assert.True(t, p.Paid.Equal(dec("1500.50")))
	assert.True(t, p.Balance.Equal(dec("2499.50")))
	assert.False(t, p.WasCapped)
}

func TestApplyPayment_ExactAndZero(t *testing.T) {
	p, err := ApplyPayment(dec("4000"), dec("4000"))
	require.NoError(t, err)
	assert.False(t, p.WasCapped)
	assert.True(t, p.Balance.IsZero())

	p, err = ApplyPayment(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, p.Paid.IsZero())
	assert.True(t, p.Balance.IsZero())
}

func TestApplyPayment_NegativeRejected(t *testing.T) {
	_, err := ApplyPayment(dec("-1"), decimal.Zero)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "totalFee", iv.Field)

	_, err = ApplyPayment(dec("100"), dec("-0.01"))
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "paid", iv.Field)
	assert.True(t, IsClientError(err))
}

func TestApplyPayment_InvariantHoldsAcrossInputs(t *testing.T) {
	fees := []string{"0", "1", "999.99", "4000", "12500.25"}
	paids := []string{"0", "0.01", "500", "4000", "99999"}

	for _, f := range fees {
		for _, pd := range paids {
			total := dec(f)
			p, err := ApplyPayment(total, dec(pd))
			require.NoError(t, err)
			assert.NoError(t, CheckPayment(total, p.Paid, p.Balance), "fee=%s paid=%s", f, pd)
			assert.Equal(t, dec(pd).GreaterThan(total), p.WasCapped)
		}
	}
}

func TestCheckPayment_DetectsCorruption(t *testing.T) {
	assert.Error(t, CheckPayment(dec("100"), dec("150"), dec("-50")))
	assert.Error(t, CheckPayment(dec("100"), dec("40"), dec("50")))
	assert.Error(t, CheckPayment(dec("100"), dec("-1"), dec("101")))
	assert.NoError(t, CheckPayment(dec("100"), dec("40"), dec("60")))
}

func TestReprice_FeeDropsBelowPaid(t *testing.T) {
	// GIVEN: 3000 already paid
	// WHEN: The fee is corrected down to 2500
	// THEN: Paid is re-capped to 2500

	p, err := Reprice(dec("2500"), dec("3000"))
	require.NoError(t, err)
	assert.True(t, p.Paid.Equal(dec("2500")))
	assert.True(t, p.Balance.IsZero())
	assert.True(t, p.WasCapped)

	p, err = Reprice(dec("5000"), dec("3000"))
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(dec("2000")))
	assert.False(t, p.WasCapped)
}

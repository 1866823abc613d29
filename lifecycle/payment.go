package lifecycle

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT INVARIANT
// =============================================================================
//
//   0 <= Paid <= TotalFee
//   Balance = TotalFee - Paid >= 0
//
// Overpayment is capped, not rejected: the caller surfaces WasCapped as a
// warning. Negative amounts are rejected.

// CappedWarning is the message surfaced when a payment was capped.
const CappedWarning = "paid amount capped to total fee"

// Payment is the result of applying a proposed paid amount to a fee.
type Payment struct {
	Paid      decimal.Decimal
	Balance   decimal.Decimal
	WasCapped bool
}

// ApplyPayment caps proposedPaid at totalFee and derives the balance.
//
// It is also the repricing rule: when only the fee changes, call it with
// the new fee and the current paid amount, and paid is re-capped if the
// fee dropped below it.
func ApplyPayment(totalFee, proposedPaid decimal.Decimal) (Payment, error) {
	if totalFee.IsNegative() {
		return Payment{}, &InvariantViolation{Field: "totalFee", Detail: "must not be negative"}
	}
	if proposedPaid.IsNegative() {
		return Payment{}, &InvariantViolation{Field: "paid", Detail: "must not be negative"}
	}

	p := Payment{Paid: proposedPaid}
	if proposedPaid.GreaterThan(totalFee) {
		p.Paid = totalFee
		p.WasCapped = true
	}
	p.Balance = totalFee.Sub(p.Paid)

	if err := CheckPayment(totalFee, p.Paid, p.Balance); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// CheckPayment verifies a stored (total, paid, balance) triple.
func CheckPayment(totalFee, paid, balance decimal.Decimal) error {
	switch {
	case paid.IsNegative():
		return &InvariantViolation{Field: "paid", Detail: "must not be negative"}
	case paid.GreaterThan(totalFee):
		return &InvariantViolation{Field: "paid", Detail: "exceeds total fee"}
	case balance.IsNegative():
		return &InvariantViolation{Field: "balance", Detail: "must not be negative"}
	case !balance.Equal(totalFee.Sub(paid)):
		return &InvariantViolation{Field: "balance", Detail: "does not equal total fee minus paid"}
	}
	return nil
}

// Reprice applies a fee change to a record that already carries a paid
// amount. Paid is kept unless the new fee is below it, in which case it is
// re-capped.
func Reprice(newTotal, currentPaid decimal.Decimal) (Payment, error) {
	return ApplyPayment(newTotal, currentPaid)
}

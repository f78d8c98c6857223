package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

// Status progresses CURRENT -> DUE -> OVERDUE -> DELINQUENT and returns to
// CURRENT after a full repayment.
type Status string

const (
	StatusCurrent    Status = "CURRENT"
	StatusDue        Status = "DUE"
	StatusOverdue    Status = "OVERDUE"
	StatusDelinquent Status = "DELINQUENT"
)

// DeriveStatus reads the status from balances and the delinquency flag.
func DeriveStatus(pos Position, delinquentFlag bool) Status {
	overdue := pos.TotalOverdue().IsPositive()
	switch {
	case overdue && delinquentFlag:
		return StatusDelinquent
	case overdue:
		return StatusOverdue
	case pos.TotalDue().IsPositive():
		return StatusDue
	default:
		return StatusCurrent
	}
}

// =============================================================================
// OVERDUE CHECK
// =============================================================================

// OverdueTransition promotes unpaid due amounts.
type OverdueTransition struct {
	PrincipalOverdue decimal.Decimal
	InterestOverdue  decimal.Decimal
	LateFee          decimal.Decimal
}

// Any reports whether anything became overdue.
func (t OverdueTransition) Any() bool {
	return t.PrincipalOverdue.IsPositive() || t.InterestOverdue.IsPositive()
}

// CheckOverdue moves whatever is still due to overdue and charges the late
// fee once when anything moved.
func CheckOverdue(pos Position, lateFee decimal.Decimal) OverdueTransition {
	t := OverdueTransition{
		PrincipalOverdue: maxDecimal(pos.PrincipalDue, decimal.Zero),
		InterestOverdue:  maxDecimal(pos.InterestDue, decimal.Zero),
		LateFee:          decimal.Zero,
	}
	if t.Any() && lateFee.IsPositive() {
		t.LateFee = lateFee
	}
	return t
}

func (t OverdueTransition) Instructions(account generic.AccountID, denomination string, feeIncome generic.AccountID) []generic.PostingInstruction {
	return []generic.PostingInstruction{
		transfer(t.PrincipalOverdue, denomination, account, AddressPrincipalOverdue, account, AddressPrincipalDue, "principal overdue"),
		transfer(t.InterestOverdue, denomination, account, AddressInterestOverdue, account, AddressInterestDue, "interest overdue"),
		transfer(t.LateFee, denomination, account, AddressFees, feeIncome, generic.DefaultAddress, "late repayment fee"),
	}
}

// =============================================================================
// DELINQUENCY CHECK
// =============================================================================

// IsDelinquent is true when overdue amounts persist at the end of the grace
// period and repayments are not blocked.
func IsDelinquent(pos Position, blocked bool) bool {
	return pos.TotalOverdue().IsPositive() && !blocked
}

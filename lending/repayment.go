package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// REPAYMENT ALLOCATION
// =============================================================================

// RepaymentOrder is the order a repayment settles balances in.
var RepaymentOrder = []string{
	AddressPenalties,
	AddressFees,
	AddressInterestOverdue,
	AddressPrincipalOverdue,
	AddressInterestDue,
	AddressPrincipalDue,
}

// Allocation is how one repayment was distributed.
type Allocation struct {
	ByAddress   map[string]decimal.Decimal
	Overpayment decimal.Decimal
	// Unallocated stays on DEFAULT as a customer credit.
	Unallocated decimal.Decimal
}

// AllocateRepayment distributes amount over the owed balances in
// RepaymentOrder. The remainder becomes an overpayment, capped at the
// actual outstanding principal.
func AllocateRepayment(pos Position, amount decimal.Decimal) Allocation {
	owed := map[string]decimal.Decimal{
		AddressPenalties:        pos.Penalties,
		AddressFees:             pos.Fees,
		AddressInterestOverdue:  pos.InterestOverdue,
		AddressPrincipalOverdue: pos.PrincipalOverdue,
		AddressInterestDue:      pos.InterestDue,
		AddressPrincipalDue:     pos.PrincipalDue,
	}
	alloc := Allocation{ByAddress: make(map[string]decimal.Decimal), Overpayment: decimal.Zero}
	remaining := maxDecimal(amount, decimal.Zero)
	for _, address := range RepaymentOrder {
		take := minDecimal(remaining, maxDecimal(owed[address], decimal.Zero))
		if take.IsPositive() {
			alloc.ByAddress[address] = take
			remaining = remaining.Sub(take)
		}
	}
	alloc.Overpayment = minDecimal(remaining, maxDecimal(pos.ActualPrincipal(), decimal.Zero))
	alloc.Unallocated = remaining.Sub(alloc.Overpayment)
	return alloc
}

// Instructions moves the repayment off DEFAULT. Overpayments also update
// the cumulative tracker.
func (a Allocation) Instructions(account generic.AccountID, denomination string) []generic.PostingInstruction {
	var out []generic.PostingInstruction
	for _, address := range RepaymentOrder {
		if amt, ok := a.ByAddress[address]; ok {
			out = append(out, transfer(amt, denomination, account, generic.DefaultAddress, account, address, "repayment"))
		}
	}
	if a.Overpayment.IsPositive() {
		out = append(out,
			transfer(a.Overpayment, denomination, account, generic.DefaultAddress, account, AddressOverpayment, "overpayment"),
			transfer(a.Overpayment, denomination, account, AddressInternalContra, account, AddressOverpaymentTracker, "overpayment tracker"),
		)
	}
	return out
}

// ClearsArrears reports whether the allocation leaves nothing due or
// overdue.
func (a Allocation) ClearsArrears(pos Position) bool {
	after := func(address string, owed decimal.Decimal) decimal.Decimal {
		return owed.Sub(a.ByAddress[address])
	}
	return !after(AddressPrincipalOverdue, pos.PrincipalOverdue).IsPositive() &&
		!after(AddressInterestOverdue, pos.InterestOverdue).IsPositive() &&
		!after(AddressPrincipalDue, pos.PrincipalDue).IsPositive() &&
		!after(AddressInterestDue, pos.InterestDue).IsPositive()
}

package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// REVOLVING DRAWDOWNS
// =============================================================================

// Utilisation is the principal drawn and not yet repaid.
func Utilisation(pos Position) decimal.Decimal {
	return pos.ActualPrincipal().Add(pos.PrincipalDue).Add(pos.PrincipalOverdue)
}

// Drawdown moves a committed customer debit from DEFAULT into PRINCIPAL.
// The EMI and the term counters are reset so the next due event amortises
// the whole balance over the full term again.
func (l *Loan) Drawdown(batch generic.PostingBatch) (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	account := l.In.AccountID

	amount := batch.NetForAccount(account, lp.Denomination).Neg()
	if !amount.IsPositive() {
		return d, nil
	}
	pos, err := l.Position(generic.ObservationLive)
	if err != nil {
		return nil, err
	}

	d.Emit(
		transfer(amount, lp.Denomination, account, AddressPrincipal, account, generic.DefaultAddress, "drawdown"),
		tracker(account, lp.Denomination, AddressEMI, pos.EMI.Neg(), "reset emi"),
		tracker(account, lp.Denomination, AddressTermsElapsed, decimal.NewFromInt(int64(-pos.TermsElapsed)), "reset terms elapsed"),
		tracker(account, lp.Denomination, AddressTermsDeferred, decimal.NewFromInt(int64(-pos.TermsDeferred)), "reset terms deferred"),
	)
	return d, nil
}

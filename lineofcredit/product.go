/*
Package lineofcredit is the revolving line-of-credit product rule set.

PURPOSE:
  A credit facility the customer draws on up to credit_limit. Nothing is
  disbursed at activation. Each drawdown is a customer debit on DEFAULT
  that is moved into PRINCIPAL; the EMI and the term counters are reset so
  the next due event amortises the whole drawn balance over the full
  repayment term. The rate is variable only.

KEY CONCEPTS:
  utilisation       principal drawn and not yet repaid (lending.Utilisation)
  available credit  credit_limit - utilisation

SEE ALSO:
  - lending/drawdown.go: Drawdown postings
  - presets.go: Ready-made definitions
*/
package lineofcredit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/lending"
)

const ProductID generic.ProductID = "line_of_credit"

const (
	ParamCreditLimit       = "credit_limit"
	DerivedAvailableCredit = "available_credit"
)

var fixedParameters = []string{lending.ParamDenomination, lending.ParamDepositAccount}

type Product struct {
	manifest generic.Manifest
}

func New() *Product {
	return &Product{manifest: lending.LoanManifest(ParamCreditLimit)}
}

func init() {
	generic.MustRegister(New())
}

var (
	_ generic.Product            = (*Product)(nil)
	_ generic.ParameterValidator = (*Product)(nil)
)

func (p *Product) ID() generic.ProductID      { return ProductID }
func (p *Product) Tside() generic.Tside       { return generic.TsideAsset }
func (p *Product) Manifest() generic.Manifest { return p.manifest }

// facility is a loan plus its credit limit.
type facility struct {
	*lending.Loan
	limit decimal.Decimal
}

func load(in generic.HookInput) (*facility, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	limit, err := in.Parameters.Decimal(ParamCreditLimit)
	if err != nil {
		return nil, err
	}
	if limit.IsNegative() {
		return nil, generic.ConfigError(ParamCreditLimit, "must not be negative")
	}
	return &facility{Loan: loan, limit: limit}, nil
}

func (f *facility) available(pos lending.Position) decimal.Decimal {
	return f.limit.Sub(lending.Utilisation(pos))
}

func (p *Product) Activate(in generic.HookInput) (*generic.Directives, error) {
	f, err := load(in)
	if err != nil {
		return nil, err
	}
	return f.Activate(false)
}

// PrePosting accepts drawdowns up to the available credit.
func (p *Product) PrePosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	f, err := load(in)
	if err != nil {
		return nil, err
	}
	return f.ValidatePosting(batch, func(amount decimal.Decimal, pos lending.Position) *generic.Rejection {
		if available := f.available(pos); amount.GreaterThan(available) {
			return &generic.Rejection{
				Reason:  generic.RejectInsufficientFunds,
				Message: fmt.Sprintf("drawdown of %s exceeds available credit of %s",
					amount.String(), available.StringFixed(f.Params.FulfilmentPrecision)),
			}
		}
		return nil
	})
}

// PostPosting moves drawdowns into principal and allocates repayments.
func (p *Product) PostPosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	f, err := load(in)
	if err != nil {
		return nil, err
	}
	if batch.NetForAccount(in.AccountID, f.Params.Denomination).IsNegative() {
		return f.Drawdown(batch)
	}
	return f.ApplyRepayment(batch)
}

func (p *Product) ScheduledEvent(in generic.HookInput, event generic.EventType) (*generic.Directives, error) {
	f, err := load(in)
	if err != nil {
		return nil, err
	}
	return f.Scheduled(event)
}

// ParameterChange refuses a credit limit below current utilisation and
// re-anchors the repayment day.
func (p *Product) ParameterChange(in generic.HookInput, proposed map[string]string) (*generic.Directives, error) {
	f, err := load(in)
	if err != nil {
		return nil, err
	}
	if raw, ok := proposed[ParamCreditLimit]; ok {
		limit, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || limit.IsNegative() {
			d := generic.NewDirectives()
			d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("invalid credit limit %q", raw))
			return d, nil
		}
		pos, err := f.Position(generic.ObservationLive)
		if err != nil {
			return nil, err
		}
		if used := lending.Utilisation(pos); limit.LessThan(used) {
			d := generic.NewDirectives()
			d.Reject(generic.RejectAgainstTerms,
				fmt.Sprintf("credit limit %s is below the %s already drawn", limit.String(), used.StringFixed(f.Params.FulfilmentPrecision)))
			return d, nil
		}
	}
	return f.ValidateParameterChange(proposed, fixedParameters...)
}

func (p *Product) DerivedValues(in generic.HookInput) (*generic.Directives, error) {
	f, err := load(in)
	if err != nil {
		return nil, err
	}
	d, err := f.Derived()
	if err != nil {
		return nil, err
	}
	pos, err := f.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	d.SetDerived(DerivedAvailableCredit, f.available(pos).StringFixed(f.Params.FulfilmentPrecision))
	return d, nil
}

// ValidateParameters checks a definition: a credit limit and no fixed-rate
// period.
func (p *Product) ValidateParameters(params map[string]string) error {
	snap := generic.ParameterSnapshot(p.manifest, generic.TsideAsset, params)
	lp, err := lending.LoadLoanParameters(snap)
	if err != nil {
		return err
	}
	limit, err := snap.Decimal(ParamCreditLimit)
	if err != nil {
		return err
	}
	if !limit.IsPositive() {
		return generic.ConfigError(ParamCreditLimit, "must be positive")
	}
	if lp.FixedTermMonths > 0 {
		return generic.ConfigError(lending.ParamFixedInterestTerm, "a line of credit has no fixed rate period")
	}
	return nil
}

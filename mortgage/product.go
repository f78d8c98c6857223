/*
Package mortgage is the mortgage product rule set.

PURPOSE:
  A fixed-term amortising loan disbursed in full at activation. The rate is
  fixed for fixed_interest_term months and then follows the variable rate
  plus its adjustment. The amortization engine lives in lending/; this
  package binds it to the host hooks and ships definition presets.

HOOKS:
  Activate         disburse principal to deposit_account, set EMI, schedule events
  PrePosting       denomination, blocked repayments, repaying more than owed;
                   debits are refused unless overridden
  PostPosting      allocate repayments, clear delinquency
  ScheduledEvent   ACCRUE_INTEREST, DUE_AMOUNT_CALCULATION, CHECK_OVERDUE,
                   CHECK_DELINQUENCY, CHECK_OVERPAYMENT_ALLOWANCE
  ParameterChange  repayment day moves; principal and denomination are fixed
  DerivedValues    status, emi, remaining term, debt, payoff quote

USAGE:
  import _ "github.com/warp/product-engine/mortgage" // registers on init

SEE ALSO:
  - presets.go: Ready-made definitions
  - lending/: The shared amortization engine
*/
package mortgage

import (
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/lending"
)

// ProductID is the registry key.
const ProductID generic.ProductID = "mortgage"

// fixedParameters cannot change once an account is open.
var fixedParameters = []string{
	lending.ParamDenomination,
	lending.ParamPrincipal,
	lending.ParamDepositAccount,
	lending.ParamAmortisationMethod,
}

// Product implements generic.Product.
type Product struct {
	manifest generic.Manifest
}

func New() *Product {
	return &Product{manifest: lending.LoanManifest()}
}

func init() {
	generic.MustRegister(New())
}

// Compile-time checks
var (
	_ generic.Product            = (*Product)(nil)
	_ generic.ParameterValidator = (*Product)(nil)
)

func (p *Product) ID() generic.ProductID      { return ProductID }
func (p *Product) Tside() generic.Tside       { return generic.TsideAsset }
func (p *Product) Manifest() generic.Manifest { return p.manifest }

func (p *Product) Activate(in generic.HookInput) (*generic.Directives, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	return loan.Activate(true)
}

func (p *Product) PrePosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	return loan.ValidatePosting(batch, nil)
}

func (p *Product) PostPosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	return loan.ApplyRepayment(batch)
}

func (p *Product) ScheduledEvent(in generic.HookInput, event generic.EventType) (*generic.Directives, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	return loan.Scheduled(event)
}

func (p *Product) ParameterChange(in generic.HookInput, proposed map[string]string) (*generic.Directives, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	return loan.ValidateParameterChange(proposed, fixedParameters...)
}

func (p *Product) DerivedValues(in generic.HookInput) (*generic.Directives, error) {
	loan, err := lending.NewLoan(in)
	if err != nil {
		return nil, err
	}
	return loan.Derived()
}

// ValidateParameters checks a definition. A mortgage needs a principal.
func (p *Product) ValidateParameters(params map[string]string) error {
	lp, err := lending.LoadLoanParameters(generic.ParameterSnapshot(p.manifest, generic.TsideAsset, params))
	if err != nil {
		return err
	}
	if !lp.Principal.IsPositive() {
		return generic.ConfigError(lending.ParamPrincipal, "must be positive")
	}
	return nil
}

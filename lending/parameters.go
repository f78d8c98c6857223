package lending

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// PARAMETER NAMES
// =============================================================================

const (
	ParamDenomination                   = "denomination"
	ParamPrincipal                      = "principal"
	ParamTotalRepaymentCount            = "total_repayment_count"
	ParamFixedInterestRate              = "fixed_interest_rate"
	ParamFixedInterestTerm              = "fixed_interest_term"
	ParamVariableInterestRate           = "variable_interest_rate"
	ParamVariableRateAdjustment         = "variable_rate_adjustment"
	ParamAmortisationMethod             = "amortisation_method"
	ParamBalloonPaymentAmount           = "balloon_payment_amount"
	ParamPredefinedEMI                  = "predefined_emi"
	ParamDueAmountCalculationDay        = "due_amount_calculation_day"
	ParamRepaymentPeriod                = "repayment_period"
	ParamGracePeriod                    = "grace_period"
	ParamPenaltyInterestRate            = "penalty_interest_rate"
	ParamPenaltyIncludesBaseRate        = "penalty_includes_base_rate"
	ParamLateRepaymentFee               = "late_repayment_fee"
	ParamOverpaymentImpactPreference    = "overpayment_impact_preference"
	ParamHolidayImpactPreference        = "holiday_impact_preference"
	ParamOverpaymentAllowancePercentage = "overpayment_allowance_percentage"
	ParamOverpaymentFeePercentage       = "overpayment_fee_percentage"
	ParamEarlyRepaymentFeePercentage    = "early_repayment_fee_percentage"
	ParamDaysInYear                     = "days_in_year"
	ParamInterestAccrualPrecision       = "interest_accrual_precision"
	ParamFulfillmentPrecision           = "fulfillment_precision"
	ParamRoundingMode                   = "rounding_mode"
	ParamDepositAccount                 = "deposit_account"
	ParamInterestReceivedAccount        = "interest_received_account"
	ParamPenaltyIncomeAccount           = "penalty_income_account"
	ParamFeeIncomeAccount               = "fee_income_account"
)

// LoanParameterNames is everything LoadLoanParameters reads. Hooks that
// load the full parameter set declare all of them.
var LoanParameterNames = []string{
	ParamDenomination, ParamPrincipal, ParamTotalRepaymentCount,
	ParamFixedInterestRate, ParamFixedInterestTerm, ParamVariableInterestRate,
	ParamVariableRateAdjustment, ParamAmortisationMethod, ParamBalloonPaymentAmount,
	ParamPredefinedEMI, ParamDueAmountCalculationDay, ParamRepaymentPeriod,
	ParamGracePeriod, ParamPenaltyInterestRate, ParamPenaltyIncludesBaseRate,
	ParamLateRepaymentFee, ParamOverpaymentImpactPreference, ParamHolidayImpactPreference,
	ParamOverpaymentAllowancePercentage, ParamOverpaymentFeePercentage,
	ParamEarlyRepaymentFeePercentage, ParamDaysInYear, ParamInterestAccrualPrecision,
	ParamFulfillmentPrecision, ParamRoundingMode, ParamDepositAccount,
	ParamInterestReceivedAccount, ParamPenaltyIncomeAccount, ParamFeeIncomeAccount,
}

// =============================================================================
// LOAN PARAMETERS
// =============================================================================

type LoanParameters struct {
	Denomination        string
	Principal           decimal.Decimal
	TotalTerm           int
	FixedRate           decimal.Decimal
	FixedTermMonths     int
	VariableRate        decimal.Decimal
	VariableAdjustment  decimal.Decimal
	Method              AmortisationMethod
	Balloon             decimal.Decimal
	PredefinedEMI       decimal.Decimal
	DueDay              int
	RepaymentPeriodDays int
	GracePeriodDays     int
	PenaltyRate         decimal.Decimal
	PenaltyIncludesBase bool
	LateRepaymentFee    decimal.Decimal
	OverpaymentImpact   OverpaymentImpact
	HolidayImpact       HolidayImpact
	AllowancePct        decimal.Decimal
	OverpaymentFeePct   decimal.Decimal
	EarlyRepaymentPct   decimal.Decimal
	DaysInYear          generic.DaysInYear
	AccrualPrecision    int32
	FulfilmentPrecision int32
	Rounding            generic.RoundingMode

	DepositAccount          generic.AccountID
	InterestReceivedAccount generic.AccountID
	PenaltyIncomeAccount    generic.AccountID
	FeeIncomeAccount        generic.AccountID

	// LastRateChange is when the variable rate or its adjustment last
	// changed.
	LastRateChange time.Time
}

// optional swallows "not set" so defaults apply. Undeclared reads still fail.
func optional(err error) error {
	if errors.Is(err, generic.ErrParameterNotSet) {
		return nil
	}
	return err
}

type paramLoader struct {
	p   generic.ParameterReader
	err error
}

func (l *paramLoader) text(name, def string, required bool) string {
	if l.err != nil {
		return def
	}
	v, err := l.p.Text(name)
	if err != nil {
		if required {
			l.err = err
		} else {
			l.err = optional(err)
		}
		return def
	}
	return v
}

func (l *paramLoader) decimal(name string, def decimal.Decimal, required bool) decimal.Decimal {
	if l.err != nil {
		return def
	}
	v, err := l.p.Decimal(name)
	if err != nil {
		if required {
			l.err = err
		} else {
			l.err = optional(err)
		}
		return def
	}
	return v
}

func (l *paramLoader) int(name string, def int, required bool) int {
	if l.err != nil {
		return def
	}
	v, err := l.p.Int(name)
	if err != nil {
		if required {
			l.err = err
		} else {
			l.err = optional(err)
		}
		return def
	}
	return v
}

func (l *paramLoader) bool(name string, def bool) bool {
	if l.err != nil {
		return def
	}
	v, err := l.p.Bool(name)
	if err != nil {
		l.err = optional(err)
		return def
	}
	return v
}

func (l *paramLoader) lastChanged(name string) time.Time {
	if l.err != nil {
		return time.Time{}
	}
	t, err := l.p.LastChanged(name)
	if err != nil {
		l.err = optional(err)
	}
	return t
}

// LoadLoanParameters reads and validates LoanParameterNames.
func LoadLoanParameters(p generic.ParameterReader) (LoanParameters, error) {
	l := &paramLoader{p: p}
	zero := decimal.Zero
	out := LoanParameters{
		Denomination:        l.text(ParamDenomination, "", true),
		Principal:           l.decimal(ParamPrincipal, zero, false),
		TotalTerm:           l.int(ParamTotalRepaymentCount, 0, true),
		FixedRate:           l.decimal(ParamFixedInterestRate, zero, false),
		FixedTermMonths:     l.int(ParamFixedInterestTerm, 0, false),
		VariableRate:        l.decimal(ParamVariableInterestRate, zero, true),
		VariableAdjustment:  l.decimal(ParamVariableRateAdjustment, zero, false),
		Balloon:             l.decimal(ParamBalloonPaymentAmount, zero, false),
		PredefinedEMI:       l.decimal(ParamPredefinedEMI, zero, false),
		DueDay:              l.int(ParamDueAmountCalculationDay, 0, true),
		RepaymentPeriodDays: l.int(ParamRepaymentPeriod, 1, false),
		GracePeriodDays:     l.int(ParamGracePeriod, 15, false),
		PenaltyRate:         l.decimal(ParamPenaltyInterestRate, zero, false),
		PenaltyIncludesBase: l.bool(ParamPenaltyIncludesBaseRate, false),
		LateRepaymentFee:    l.decimal(ParamLateRepaymentFee, zero, false),
		AllowancePct:        l.decimal(ParamOverpaymentAllowancePercentage, zero, false),
		OverpaymentFeePct:   l.decimal(ParamOverpaymentFeePercentage, zero, false),
		EarlyRepaymentPct:   l.decimal(ParamEarlyRepaymentFeePercentage, zero, false),
		AccrualPrecision:    int32(l.int(ParamInterestAccrualPrecision, 5, false)),
		FulfilmentPrecision: int32(l.int(ParamFulfillmentPrecision, 2, false)),
	}
	method := l.text(ParamAmortisationMethod, string(DecliningPrincipal), false)
	overpayment := l.text(ParamOverpaymentImpactPreference, string(ReduceTerm), false)
	holiday := l.text(ParamHolidayImpactPreference, string(IncreaseTerm), false)
	days := l.text(ParamDaysInYear, string(generic.DaysInYearActual), false)
	rounding := l.text(ParamRoundingMode, string(generic.RoundHalfUp), false)
	deposit := l.text(ParamDepositAccount, "", true)
	interestIncome := l.text(ParamInterestReceivedAccount, "", true)
	penaltyIncome := l.text(ParamPenaltyIncomeAccount, interestIncome, false)
	feeIncome := l.text(ParamFeeIncomeAccount, interestIncome, false)

	variableChanged := l.lastChanged(ParamVariableInterestRate)
	adjustmentChanged := l.lastChanged(ParamVariableRateAdjustment)
	if l.err != nil {
		return LoanParameters{}, l.err
	}

	out.LastRateChange = variableChanged
	if adjustmentChanged.After(variableChanged) {
		out.LastRateChange = adjustmentChanged
	}
	out.DepositAccount = generic.AccountID(deposit)
	out.InterestReceivedAccount = generic.AccountID(interestIncome)
	out.PenaltyIncomeAccount = generic.AccountID(penaltyIncome)
	out.FeeIncomeAccount = generic.AccountID(feeIncome)

	var err error
	if out.Method, err = ParseAmortisationMethod(method); err != nil {
		return LoanParameters{}, generic.ConfigError(ParamAmortisationMethod, "%v", err)
	}
	if out.OverpaymentImpact, err = ParseOverpaymentImpact(overpayment); err != nil {
		return LoanParameters{}, generic.ConfigError(ParamOverpaymentImpactPreference, "%v", err)
	}
	if out.HolidayImpact, err = ParseHolidayImpact(holiday); err != nil {
		return LoanParameters{}, generic.ConfigError(ParamHolidayImpactPreference, "%v", err)
	}
	if out.DaysInYear, err = generic.ParseDaysInYear(days); err != nil {
		return LoanParameters{}, generic.ConfigError(ParamDaysInYear, "%v", err)
	}
	if out.Rounding, err = generic.ParseRoundingMode(rounding); err != nil {
		return LoanParameters{}, generic.ConfigError(ParamRoundingMode, "%v", err)
	}
	if err := out.Validate(); err != nil {
		return LoanParameters{}, err
	}
	return out, nil
}

// MinRepaymentCycleDays is the shortest gap between two due dates. The
// overdue and delinquency checks of one instalment must run inside it,
// otherwise the next instalment's checks replace them before they fire.
const MinRepaymentCycleDays = 28

// Validate checks ranges that parsing alone cannot.
func (lp LoanParameters) Validate() error {
	switch {
	case lp.Denomination == "":
		return generic.ConfigError(ParamDenomination, "must not be empty")
	case lp.TotalTerm <= 0:
		return generic.ConfigError(ParamTotalRepaymentCount, "must be positive, got %d", lp.TotalTerm)
	case lp.DueDay < 1 || lp.DueDay > 31:
		return generic.ConfigError(ParamDueAmountCalculationDay, "must be between 1 and 31, got %d", lp.DueDay)
	case lp.Principal.IsNegative():
		return generic.ConfigError(ParamPrincipal, "must not be negative")
	case lp.PredefinedEMI.IsNegative():
		return generic.ConfigError(ParamPredefinedEMI, "must not be negative")
	case lp.Balloon.IsNegative() || (lp.Principal.IsPositive() && lp.Balloon.GreaterThan(lp.Principal)):
		return generic.ConfigError(ParamBalloonPaymentAmount, "must be between 0 and the principal")
	case lp.RepaymentPeriodDays < 0 || lp.RepaymentPeriodDays >= MinRepaymentCycleDays:
		return generic.ConfigError(ParamRepaymentPeriod, "must be between 0 and %d days, got %d",
			MinRepaymentCycleDays-1, lp.RepaymentPeriodDays)
	case lp.GracePeriodDays < 0 || lp.GracePeriodDays >= MinRepaymentCycleDays:
		return generic.ConfigError(ParamGracePeriod, "must be between 0 and %d days, got %d",
			MinRepaymentCycleDays-1, lp.GracePeriodDays)
	case lp.AccrualPrecision < 0 || lp.FulfilmentPrecision < 0:
		return generic.ConfigError(ParamInterestAccrualPrecision, "precisions must not be negative")
	}
	return nil
}

// Rate returns the regime in force at a time.
func (lp LoanParameters) Rate(openedAt, at time.Time) RateRegime {
	return RateAt(openedAt, at, lp.FixedRate, lp.FixedTermMonths, lp.VariableRate, lp.VariableAdjustment)
}

// Allowance returns the overpayment allowance terms.
func (lp LoanParameters) Allowance() AllowanceTerms {
	return AllowanceTerms{
		OriginalPrincipal:    lp.Principal,
		AllowancePercentage:  lp.AllowancePct,
		FeePercentage:        lp.OverpaymentFeePct,
		EarlyRepaymentFeePct: lp.EarlyRepaymentPct,
		Precision:            lp.FulfilmentPrecision,
		Rounding:             lp.Rounding,
	}
}

// Terms returns the loan terms at a time for a position.
func (lp LoanParameters) Terms(openedAt, at time.Time, pos Position) LoanTerms {
	regime := lp.Rate(openedAt, at)
	return LoanTerms{
		Principal:     pos.ActualPrincipal(),
		AnnualRate:    regime.AnnualRate,
		TotalTerm:     lp.TotalTerm,
		RemainingTerm: pos.RemainingTerm(lp.TotalTerm),
		FixedRate:     regime.Fixed,
		Method:        lp.Method,
		Balloon:       lp.Balloon,
		Precision:     lp.FulfilmentPrecision,
		Rounding:      lp.Rounding,
		DaysInYear:    lp.DaysInYear,
	}
}

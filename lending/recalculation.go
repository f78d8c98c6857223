package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECALCULATION CONDITIONS
// =============================================================================

// RecalculationConditionInput bundles the signals evaluated once per due
// event.
type RecalculationConditionInput struct {
	CurrentEMI        decimal.Decimal
	PredefinedEMI     bool
	HolidayImpact     HolidayImpact
	OverpaymentImpact OverpaymentImpact

	// PreviousDueBlocked is true when the previous due event fell in a
	// repayment holiday.
	PreviousDueBlocked bool

	PreviousOverpayment decimal.Decimal
	CurrentOverpayment  decimal.Decimal

	PreviousRateFixed bool
	CurrentRateFixed  bool

	// PreviousScheduleDate is the previous due event, zero before the first.
	PreviousScheduleDate time.Time
	LastRateChange       time.Time
}

// RecalculationReason says why the EMI must be recalculated.
type RecalculationReason string

const (
	RecalculateNone               RecalculationReason = ""
	RecalculateEMIUnset           RecalculationReason = "emi_unset"
	RecalculateRateRegimeChange   RecalculationReason = "rate_regime_change"
	RecalculateVariableRateChange RecalculationReason = "variable_rate_change"
	RecalculateHolidayEnded       RecalculationReason = "holiday_ended"
	RecalculateOverpayment        RecalculationReason = "overpayment"
)

// ShouldRecalculate evaluates the conditions in order and returns the first
// that holds. A predefined EMI is never recalculated once set.
//
// Any change of the cumulative overpayment counts, including a reduction
// caused by a reversal.
func ShouldRecalculate(in RecalculationConditionInput) (bool, RecalculationReason) {
	if in.CurrentEMI.IsZero() {
		return true, RecalculateEMIUnset
	}
	if in.PredefinedEMI {
		return false, RecalculateNone
	}

	if !in.PreviousScheduleDate.IsZero() {
		if in.PreviousRateFixed != in.CurrentRateFixed {
			return true, RecalculateRateRegimeChange
		}
		if !in.CurrentRateFixed && in.LastRateChange.After(in.PreviousScheduleDate) {
			return true, RecalculateVariableRateChange
		}
	}

	if in.PreviousDueBlocked && in.HolidayImpact == IncreaseEMI {
		return true, RecalculateHolidayEnded
	}

	if in.OverpaymentImpact == ReduceEMI && !in.CurrentOverpayment.Equal(in.PreviousOverpayment) {
		return true, RecalculateOverpayment
	}

	return false, RecalculateNone
}

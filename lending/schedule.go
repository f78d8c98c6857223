package lending

import (
	"time"

	"github.com/warp/product-engine/generic"
)

// =============================================================================
// EVENTS, FLAGS, OBSERVATIONS
// =============================================================================

const (
	EventAccrueInterest            generic.EventType = "ACCRUE_INTEREST"
	EventDueAmountCalculation      generic.EventType = "DUE_AMOUNT_CALCULATION"
	EventCheckOverdue              generic.EventType = "CHECK_OVERDUE"
	EventCheckDelinquency          generic.EventType = "CHECK_DELINQUENCY"
	EventCheckOverpaymentAllowance generic.EventType = "CHECK_OVERPAYMENT_ALLOWANCE"
)

const (
	FlagRepaymentHoliday  = "REPAYMENT_HOLIDAY"
	FlagBlockRepayments   = "BLOCK_REPAYMENTS"
	FlagAccountDelinquent = "ACCOUNT_DELINQUENT"
)

// Observation names for balances at the last run of an event.
const (
	ObservationPreviousDue        = "previous_due"
	ObservationLastAllowanceCheck = "last_allowance_check"
)

// Events run a minute apart on the same day so their order is fixed:
// accrual, due amounts, overdue, delinquency, allowance.
func accrualSchedule() generic.ScheduleDescriptor { return generic.Daily(0, 0, 0) }

func dueSchedule(day time.Time) generic.ScheduleDescriptor { return generic.At(day, 0, 1, 0) }

func overdueSchedule(day time.Time) generic.ScheduleDescriptor { return generic.At(day, 0, 2, 0) }

func delinquencySchedule(day time.Time) generic.ScheduleDescriptor { return generic.At(day, 0, 3, 0) }

// allowanceSchedule runs yearly on the anniversary of opening.
func allowanceSchedule(openedAt time.Time) generic.ScheduleDescriptor {
	month, day := int(openedAt.Month()), openedAt.Day()
	h, m, s := 0, 4, 0
	return generic.ScheduleDescriptor{Month: &month, Day: &day, Hour: &h, Minute: &m, Second: &s}
}

// =============================================================================
// REPAYMENT SCHEDULE
// =============================================================================

// NextDueDate returns the first occurrence of the anchor day strictly after
// the calendar day of after, clipped to the end of short months.
func NextDueDate(anchorDay int, after time.Time) time.Time {
	today := generic.StartOfDay(after)
	candidate := generic.ClipDay(today.Year(), today.Month(), anchorDay)
	if candidate.After(today) {
		return candidate
	}
	return generic.ClipDay(today.Year(), today.Month()+1, anchorDay)
}

// FirstDueDate is the first occurrence of the anchor day at least one month
// after activation.
func FirstDueDate(anchorDay int, openedAt time.Time) time.Time {
	opened := generic.StartOfDay(openedAt)
	earliest := generic.AddMonthsClipped(opened, 1)
	candidate := generic.ClipDay(opened.Year(), opened.Month()+1, anchorDay)
	if candidate.Before(earliest) {
		candidate = generic.ClipDay(opened.Year(), opened.Month()+2, anchorDay)
	}
	return candidate
}

// ChangeRepaymentDay returns the next due date after the anchor moves to
// newDay. The new day is used this month if it is still ahead and nothing
// was made due this month; otherwise next month. Before the first due
// event the one-month minimum after activation still applies. The result
// is never on or before now.
func ChangeRepaymentDay(newDay int, now, lastDue, openedAt time.Time) time.Time {
	today := generic.StartOfDay(now)

	if lastDue.IsZero() {
		if first := FirstDueDate(newDay, openedAt); first.After(today) {
			return first
		}
	}

	thisMonth := generic.ClipDay(today.Year(), today.Month(), newDay)
	dueThisMonth := !lastDue.IsZero() && lastDue.Year() == today.Year() && lastDue.Month() == today.Month()
	if thisMonth.After(today) && !dueThisMonth {
		return thisMonth
	}
	return generic.ClipDay(today.Year(), today.Month()+1, newDay)
}

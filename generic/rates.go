package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS IN YEAR - product parameter for daily accrual
// =============================================================================

// DaysInYear is the "days_in_year" parameter: "actual" means 365 or 366
// depending on the year of the accrual date.
type DaysInYear string

const (
	DaysInYearActual DaysInYear = "actual"
	DaysInYear365    DaysInYear = "365"
	DaysInYear366    DaysInYear = "366"
	DaysInYear360    DaysInYear = "360"
)

func ParseDaysInYear(s string) (DaysInYear, error) {
	switch d := DaysInYear(s); d {
	case DaysInYearActual, DaysInYear365, DaysInYear366, DaysInYear360:
		return d, nil
	}
	return "", fmt.Errorf("unknown days_in_year %q", s)
}

// Days returns the divisor for the year containing at.
func (d DaysInYear) Days(at time.Time) int {
	switch d {
	case DaysInYear365:
		return 365
	case DaysInYear366:
		return 366
	case DaysInYear360:
		return 360
	default:
		if IsLeapYear(at.Year()) {
			return 366
		}
		return 365
	}
}

func IsLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// =============================================================================
// PERIODIC RATES
// =============================================================================

// RatePeriod is the period an annual rate is converted to.
type RatePeriod string

const (
	RatePeriodDaily   RatePeriod = "daily"
	RatePeriodMonthly RatePeriod = "monthly"
	RatePeriodYearly  RatePeriod = "yearly"
)

// YearlyToDailyRate divides an annual rate by the days in the year of at.
func YearlyToDailyRate(annual decimal.Decimal, days DaysInYear, at time.Time) decimal.Decimal {
	return annual.Div(decimal.NewFromInt(int64(days.Days(at))))
}

// YearlyToMonthlyRate divides an annual rate by twelve.
func YearlyToMonthlyRate(annual decimal.Decimal) decimal.Decimal {
	return annual.Div(decimal.NewFromInt(12))
}

// YearlyToPeriodicRate converts an annual rate for the given period.
func YearlyToPeriodicRate(annual decimal.Decimal, period RatePeriod, days DaysInYear, at time.Time) decimal.Decimal {
	switch period {
	case RatePeriodDaily:
		return YearlyToDailyRate(annual, days, at)
	case RatePeriodMonthly:
		return YearlyToMonthlyRate(annual)
	default:
		return annual
	}
}

// =============================================================================
// DAY-COUNT CONVENTIONS - year fraction between two dates
// =============================================================================

type DayCountConvention string

const (
	DayCount30360US    DayCountConvention = "30/360"
	DayCount30E360     DayCountConvention = "30E/360"
	DayCountAct360     DayCountConvention = "ACT/360"
	DayCountAct365     DayCountConvention = "ACT/365"
	DayCountActActISDA DayCountConvention = "ACT/ACT"
	DayCountAFB        DayCountConvention = "AFB"
)

func ParseDayCountConvention(s string) (DayCountConvention, error) {
	switch c := DayCountConvention(s); c {
	case DayCount30360US, DayCount30E360, DayCountAct360, DayCountAct365, DayCountActActISDA, DayCountAFB:
		return c, nil
	}
	return "", fmt.Errorf("unknown day count convention %q", s)
}

// YearFraction returns the fraction of a year between start and end.
// ACT/ACT splits the period at year boundaries and sums each piece over
// its own year length.
func YearFraction(start, end time.Time, conv DayCountConvention) (decimal.Decimal, error) {
	switch conv {
	case DayCount30360US:
		return fraction(days360(start, end, false), 360), nil
	case DayCount30E360:
		return fraction(days360(start, end, true), 360), nil
	case DayCountAct360:
		return fraction(DaysBetween(start, end), 360), nil
	case DayCountAct365:
		return fraction(DaysBetween(start, end), 365), nil
	case DayCountAFB:
		return decimal.NewFromInt(int64(DaysBetween(start, end))).Div(decimal.RequireFromString("365.25")), nil
	case DayCountActActISDA:
		total := decimal.Zero
		cursor := StartOfDay(start)
		last := StartOfDay(end)
		for cursor.Before(last) {
			next := time.Date(cursor.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
			if next.After(last) {
				next = last
			}
			yearDays := 365
			if IsLeapYear(cursor.Year()) {
				yearDays = 366
			}
			total = total.Add(fraction(DaysBetween(cursor, next), yearDays))
			cursor = next
		}
		return total, nil
	}
	return decimal.Zero, fmt.Errorf("unsupported day count convention %q", conv)
}

func fraction(days, base int) decimal.Decimal {
	return decimal.NewFromInt(int64(days)).Div(decimal.NewFromInt(int64(base)))
}

// days360 implements 30/360 US (euro=false) and 30E/360 (euro=true).
func days360(start, end time.Time, euro bool) int {
	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()
	if d1 == 31 {
		d1 = 30
	}
	if d2 == 31 && (euro || d1 >= 30) {
		d2 = 30
	}
	return (y2-y1)*360 + int(m2-m1)*30 + (d2 - d1)
}

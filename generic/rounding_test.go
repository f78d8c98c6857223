package generic_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/generic"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// =============================================================================
// ROUNDING
// =============================================================================

func TestRound_Modes(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		places int32
		mode   generic.RoundingMode
		want   string
	}{
		{"half up keeps 5 places", "15.455555", 5, generic.RoundHalfUp, "15.45556"},
		{"floor", "15.456", 2, generic.RoundFloor, "15.45"},
		{"half up", "15.456", 2, generic.RoundHalfUp, "15.46"},
		{"half up tie", "2.345", 2, generic.RoundHalfUp, "2.35"},
		{"half down tie", "2.345", 2, generic.RoundHalfDown, "2.34"},
		{"half down above tie", "2.346", 2, generic.RoundHalfDown, "2.35"},
		{"half down negative tie", "-2.345", 2, generic.RoundHalfDown, "-2.34"},
		{"half even tie down", "2.345", 2, generic.RoundHalfEven, "2.34"},
		{"half even tie up", "2.355", 2, generic.RoundHalfEven, "2.36"},
		{"ceiling negative", "-1.231", 2, generic.RoundCeiling, "-1.23"},
		{"down negative", "-1.239", 2, generic.RoundDown, "-1.23"},
		{"up", "1.231", 2, generic.RoundUp, "1.24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.want, generic.Round(dec(tt.value), tt.places, tt.mode))
		})
	}
}

func TestParseRoundingMode(t *testing.T) {
	m, err := generic.ParseRoundingMode("ROUND_HALF_EVEN")
	require.NoError(t, err)
	assert.Equal(t, generic.RoundHalfEven, m)

	_, err = generic.ParseRoundingMode("ROUND_SIDEWAYS")
	assert.Error(t, err)
}

// =============================================================================
// RATES AND DAY COUNTS
// =============================================================================

func TestYearlyToDailyRate_ActualFollowsLeapYears(t *testing.T) {
	annual := dec("0.0365")

	got := generic.YearlyToDailyRate(annual, generic.DaysInYearActual, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assertDecimal(t, "0.0001", got)

	leap := generic.YearlyToDailyRate(annual, generic.DaysInYearActual, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, annual.Div(decimal.NewFromInt(366)).Equal(leap))

	fixed := generic.YearlyToDailyRate(dec("0.036"), generic.DaysInYear360, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assertDecimal(t, "0.0001", fixed)
}

func TestYearlyToPeriodicRate(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assertDecimal(t, "0.01", generic.YearlyToPeriodicRate(dec("0.12"), generic.RatePeriodMonthly, generic.DaysInYear365, at))
	assertDecimal(t, "0.12", generic.YearlyToPeriodicRate(dec("0.12"), generic.RatePeriodYearly, generic.DaysInYear365, at))
}

func TestYearFraction(t *testing.T) {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

	got, err := generic.YearFraction(d(2025, 1, 1), d(2025, 7, 1), generic.DayCountAct360)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(181).Div(decimal.NewFromInt(360)).Equal(got))

	// 30/360 US: Jan 31 counts as the 30th
	got, err = generic.YearFraction(d(2025, 1, 31), d(2025, 2, 28), generic.DayCount30360US)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(28).Div(decimal.NewFromInt(360)).Equal(got))

	// ACT/ACT splits at the year boundary
	got, err = generic.YearFraction(d(2023, 7, 1), d(2024, 7, 1), generic.DayCountActActISDA)
	require.NoError(t, err)
	want := decimal.NewFromInt(184).Div(decimal.NewFromInt(365)).Add(decimal.NewFromInt(182).Div(decimal.NewFromInt(366)))
	assert.True(t, want.Equal(got), "got %s", got)

	_, err = generic.YearFraction(d(2025, 1, 1), d(2025, 2, 1), "BUS/252")
	assert.Error(t, err)
}

func TestParseDaysInYear(t *testing.T) {
	d, err := generic.ParseDaysInYear("actual")
	require.NoError(t, err)
	assert.Equal(t, 366, d.Days(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 365, d.Days(time.Date(2100, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, err = generic.ParseDaysInYear("364")
	assert.Error(t, err)
}

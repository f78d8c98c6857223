package lending_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/product-engine/lending"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestNextDueDate_ClipsToMonthEnd(t *testing.T) {
	tests := []struct {
		name   string
		anchor int
		after  time.Time
		want   time.Time
	}{
		{"later this month", 15, day(2025, time.January, 10), day(2025, time.January, 15)},
		{"same day moves to next month", 15, day(2025, time.January, 15).Add(time.Minute), day(2025, time.February, 15)},
		{"31st in february", 31, day(2025, time.February, 10), day(2025, time.February, 28)},
		{"31st in leap february", 31, day(2024, time.February, 10), day(2024, time.February, 29)},
		{"after clipped date", 31, day(2025, time.February, 28), day(2025, time.March, 31)},
		{"year end", 5, day(2025, time.December, 20), day(2026, time.January, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lending.NextDueDate(tt.anchor, tt.after))
		})
	}
}

func TestFirstDueDate_AtLeastOneMonthAfterOpening(t *testing.T) {
	tests := []struct {
		name   string
		anchor int
		opened time.Time
		want   time.Time
	}{
		{"anchor after opening day", 25, day(2025, time.January, 20), day(2025, time.February, 25)},
		{"anchor before opening day", 5, day(2025, time.January, 20), day(2025, time.March, 5)},
		{"same day", 20, day(2025, time.January, 20), day(2025, time.February, 20)},
		{"opened on the 31st", 31, day(2025, time.January, 31), day(2025, time.February, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lending.FirstDueDate(tt.anchor, tt.opened))
		})
	}
}

func TestChangeRepaymentDay(t *testing.T) {
	opened := day(2024, time.June, 1)
	now := day(2025, time.March, 10).Add(9 * time.Hour)

	tests := []struct {
		name    string
		newDay  int
		lastDue time.Time
		opened  time.Time
		want    time.Time
	}{
		{"not yet passed this month", 20, day(2025, time.February, 5), opened, day(2025, time.March, 20)},
		{"already made due this month", 20, day(2025, time.March, 5), opened, day(2025, time.April, 20)},
		{"already passed this month", 8, day(2025, time.February, 5), opened, day(2025, time.April, 8)},
		{"today counts as passed", 10, day(2025, time.February, 5), opened, day(2025, time.April, 10)},
		{"before the first due event", 15, time.Time{}, day(2025, time.March, 1), day(2025, time.April, 15)},
		{"clipped next month", 31, day(2025, time.March, 5), opened, day(2025, time.April, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lending.ChangeRepaymentDay(tt.newDay, now, tt.lastDue, tt.opened)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(now), "never in the past")
		})
	}
}

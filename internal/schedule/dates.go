// Package schedule contains the pure calculators behind installment
// generation: normalizing a pledge start date onto its recurrence pattern,
// advancing it by whole periods with calendar-correct clamping, and
// splitting the pledged amount across installments.
package schedule

import (
	"time"

	"github.com/openpledge/pledged/internal/domain"
)

// BaseDate normalizes a pledge's nominal start date onto the configured
// period pattern. For monthly (and longer month-based) frequencies it snaps
// to the configured day-of-month, clamped to the last valid day of that
// month. For weekly frequencies it snaps to the configured day-of-week
// within the same week. Daily and yearly frequencies use the start date
// as-is. Time-of-day is always truncated.
func BaseDate(cfg domain.ScheduleConfig) time.Time {
	year, month, day := cfg.StartDate.Date()

	switch cfg.FrequencyUnit {
	case domain.FrequencyMonth:
		day = cfg.FrequencyDay
		if last := lastDayOfMonth(year, month); day > last {
			day = last
		}
		if day < 1 {
			day = 1
		}
	case domain.FrequencyWeek:
		weekday := int(cfg.StartDate.Weekday())
		day += cfg.FrequencyDay - weekday
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NextDate returns the scheduled date of installment number n (0 = the
// base date itself), advancing base by n × interval whole periods.
//
// Month arithmetic never overflows into an unintended month: a day anchor
// of 29, 30 or 31 is re-clamped per target month. When the target month is
// February, or the anchor is 31, the date becomes the last day of the
// target month, so a run of monthly installments anchored at month-end
// stays strictly increasing instead of collapsing onto duplicate dates.
func NextDate(cfg domain.ScheduleConfig, n int, base time.Time) time.Time {
	steps := n * cfg.FrequencyInterval
	year, month, day := base.Date()

	switch cfg.FrequencyUnit {
	case domain.FrequencyDay:
		return base.AddDate(0, 0, steps)

	case domain.FrequencyWeek:
		return base.AddDate(0, 0, 7*steps)

	case domain.FrequencyMonth:
		ty, tm := addMonths(year, month, steps)
		last := lastDayOfMonth(ty, tm)
		d := day
		if anchor := cfg.FrequencyDay; anchor >= 29 {
			d = anchor
			// February, or an anchor of 31, means the anchor cannot
			// exist in every month; land on the month's last day.
			if last <= 29 || anchor == 31 {
				d = last
			}
		}
		if d > last {
			d = last
		}
		return time.Date(ty, tm, d, 0, 0, 0, 0, time.UTC)

	case domain.FrequencyYear:
		last := lastDayOfMonth(year+steps, month)
		d := day
		if d > last {
			d = last
		}
		return time.Date(year+steps, month, d, 0, 0, 0, 0, time.UTC)
	}

	return base
}

// NextAfter returns the date one interval after t, for appending a new
// trailing installment behind an existing schedule.
func NextAfter(cfg domain.ScheduleConfig, t time.Time) time.Time {
	return NextDate(cfg, 1, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	m := int(month) - 1 + n
	return year + m/12, time.Month(m%12 + 1)
}

// lastDayOfMonth uses day-zero normalization of the following month.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

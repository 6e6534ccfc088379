package schedule_test

import (
	"testing"
	"time"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/schedule"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBaseDate_MonthlySnapsToFrequencyDay(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit: domain.FrequencyMonth,
		FrequencyDay:  15,
		StartDate:     date(2026, time.March, 3),
	}

	got := schedule.BaseDate(cfg)
	if !got.Equal(date(2026, time.March, 15)) {
		t.Errorf("expected 2026-03-15, got %s", got.Format("2006-01-02"))
	}
}

func TestBaseDate_MonthlyClampsToLastDay(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit: domain.FrequencyMonth,
		FrequencyDay:  31,
		StartDate:     date(2026, time.April, 10),
	}

	got := schedule.BaseDate(cfg)
	if !got.Equal(date(2026, time.April, 30)) {
		t.Errorf("expected clamp to 2026-04-30, got %s", got.Format("2006-01-02"))
	}
}

func TestBaseDate_WeeklySnapsWithinWeek(t *testing.T) {
	// 2026-03-04 is a Wednesday (weekday 3); anchor on Friday (5).
	cfg := domain.ScheduleConfig{
		FrequencyUnit: domain.FrequencyWeek,
		FrequencyDay:  5,
		StartDate:     date(2026, time.March, 4),
	}

	got := schedule.BaseDate(cfg)
	if !got.Equal(date(2026, time.March, 6)) {
		t.Errorf("expected 2026-03-06, got %s", got.Format("2006-01-02"))
	}
}

func TestNextDate_DailyAndWeekly(t *testing.T) {
	daily := domain.ScheduleConfig{FrequencyUnit: domain.FrequencyDay, FrequencyInterval: 10}
	got := schedule.NextDate(daily, 3, date(2026, time.January, 1))
	if !got.Equal(date(2026, time.January, 31)) {
		t.Errorf("daily: expected 2026-01-31, got %s", got.Format("2006-01-02"))
	}

	weekly := domain.ScheduleConfig{FrequencyUnit: domain.FrequencyWeek, FrequencyInterval: 2}
	got = schedule.NextDate(weekly, 1, date(2026, time.January, 5))
	if !got.Equal(date(2026, time.January, 19)) {
		t.Errorf("weekly: expected 2026-01-19, got %s", got.Format("2006-01-02"))
	}
}

func TestNextDate_MonthEndAnchor31StaysMonotonic(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit:     domain.FrequencyMonth,
		FrequencyInterval: 1,
		FrequencyDay:      31,
		StartDate:         date(2026, time.January, 31),
	}
	base := schedule.BaseDate(cfg)

	want := []time.Time{
		date(2026, time.January, 31),
		date(2026, time.February, 28),
		date(2026, time.March, 31),
		date(2026, time.April, 30),
		date(2026, time.May, 31),
		date(2026, time.June, 30),
		date(2026, time.July, 31),
		date(2026, time.August, 31),
		date(2026, time.September, 30),
		date(2026, time.October, 31),
		date(2026, time.November, 30),
		date(2026, time.December, 31),
	}

	var prev time.Time
	for i := 0; i < 12; i++ {
		got := schedule.NextDate(cfg, i, base)
		if !got.Equal(want[i]) {
			t.Errorf("installment %d: expected %s, got %s",
				i+1, want[i].Format("2006-01-02"), got.Format("2006-01-02"))
		}
		if i > 0 && !got.After(prev) {
			t.Errorf("installment %d date %s not after installment %d date %s",
				i+1, got.Format("2006-01-02"), i, prev.Format("2006-01-02"))
		}
		prev = got
	}
}

func TestNextDate_Anchor29HandlesFebruary(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit:     domain.FrequencyMonth,
		FrequencyInterval: 1,
		FrequencyDay:      29,
		StartDate:         date(2026, time.January, 29),
	}
	base := schedule.BaseDate(cfg)

	// 2026 is not a leap year: February clamps to 28, March returns to 29.
	if got := schedule.NextDate(cfg, 1, base); !got.Equal(date(2026, time.February, 28)) {
		t.Errorf("feb: expected 2026-02-28, got %s", got.Format("2006-01-02"))
	}
	if got := schedule.NextDate(cfg, 2, base); !got.Equal(date(2026, time.March, 29)) {
		t.Errorf("mar: expected 2026-03-29, got %s", got.Format("2006-01-02"))
	}
}

func TestNextDate_Anchor29LeapFebruary(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit:     domain.FrequencyMonth,
		FrequencyInterval: 1,
		FrequencyDay:      29,
		StartDate:         date(2028, time.January, 29),
	}
	base := schedule.BaseDate(cfg)

	if got := schedule.NextDate(cfg, 1, base); !got.Equal(date(2028, time.February, 29)) {
		t.Errorf("expected 2028-02-29, got %s", got.Format("2006-01-02"))
	}
}

func TestNextDate_YearlyClampsLeapDay(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit:     domain.FrequencyYear,
		FrequencyInterval: 1,
	}

	got := schedule.NextDate(cfg, 1, date(2028, time.February, 29))
	if !got.Equal(date(2029, time.February, 28)) {
		t.Errorf("expected 2029-02-28, got %s", got.Format("2006-01-02"))
	}
}

func TestNextAfter_AdvancesOneInterval(t *testing.T) {
	cfg := domain.ScheduleConfig{
		FrequencyUnit:     domain.FrequencyMonth,
		FrequencyInterval: 1,
		FrequencyDay:      15,
	}

	got := schedule.NextAfter(cfg, date(2026, time.November, 15))
	if !got.Equal(date(2026, time.December, 15)) {
		t.Errorf("expected 2026-12-15, got %s", got.Format("2006-01-02"))
	}
}

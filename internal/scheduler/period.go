// internal/scheduler/period.go
package scheduler

import (
	"time"

	"report-worker/internal/models"
)

// PeriodBounds computes the reporting period [start, end] that a schedule of
// the given type covers when it fires at "now". Every cadence reports on the
// previous complete period:
//
//   - daily: yesterday. Start and end are both yesterday 00:00:00 — the end
//     bound is a single-day marker, not end-of-day, unlike the other cadences.
//   - weekly: the previous ISO week, Monday 00:00:00 through Sunday 23:59:59.
//   - monthly: the previous calendar month.
//   - yearly: the previous calendar year.
func PeriodBounds(st models.ScheduleType, now time.Time) (start, end time.Time) {
	loc := now.Location()

	switch st {
	case models.ScheduleDaily:
		y := now.AddDate(0, 0, -1)
		start = time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, loc)
		end = start

	case models.ScheduleWeekly:
		// Monday of the current ISO week, then back one week.
		offset := (int(now.Weekday()) + 6) % 7
		currentMonday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -offset)
		start = currentMonday.AddDate(0, 0, -7)
		sunday := currentMonday.AddDate(0, 0, -1)
		end = time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 0, loc)

	case models.ScheduleMonthly:
		start = time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, loc)
		// Day 0 of the current month normalizes to the last day of the previous one.
		end = time.Date(now.Year(), now.Month(), 0, 23, 59, 59, 0, loc)

	case models.ScheduleYearly:
		start = time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, loc)
		end = time.Date(now.Year()-1, time.December, 31, 23, 59, 59, 0, loc)
	}

	return start, end
}

// IsDue reports whether a schedule should fire at "now". The schedule's
// time-of-day must match to the second, and the recurrence predicate must
// hold. A nil last_run is treated as one period before now, which makes a
// never-yet-run schedule fire on its first matching tick.
func IsDue(s *models.ScheduledReportItem, now time.Time) (bool, error) {
	if s.Status != models.ScheduleActive {
		return false, nil
	}

	hour, min, sec, err := s.TimeOfDay()
	if err != nil {
		return false, err
	}
	if now.Hour() != hour || now.Minute() != min || now.Second() != sec {
		return false, nil
	}

	switch s.ScheduleType {
	case models.ScheduleDaily:
		return true, nil

	case models.ScheduleWeekly:
		base := coalesceLastRun(s.LastRun, now.AddDate(0, 0, -7))
		return now.Weekday() == base.AddDate(0, 0, 7).Weekday(), nil

	case models.ScheduleMonthly:
		base := coalesceLastRun(s.LastRun, now.AddDate(0, -1, 0))
		return now.Day() == base.AddDate(0, 1, 0).Day(), nil

	case models.ScheduleYearly:
		base := coalesceLastRun(s.LastRun, now.AddDate(-1, 0, 0))
		return now.YearDay() == base.AddDate(1, 0, 0).YearDay(), nil
	}

	return false, nil
}

func coalesceLastRun(lastRun *time.Time, fallback time.Time) time.Time {
	if lastRun != nil {
		return *lastRun
	}
	return fallback
}

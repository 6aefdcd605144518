// Package cron вычисляет время следующего запуска schedule.
//
// next_run детерминированно выводится из Frequency + TimeSpec + момента
// "from": для одного и того же входа результат всегда одинаков на любом
// инстансе scheduler'а. Все вычисления в UTC.
package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/shaiso/Vigil/internal/domain"
)

// cronParser — парсер стандартных 5-полевых cron-выражений.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// NextRun вычисляет следующий запуск строго после from.
func NextRun(freq domain.Frequency, spec domain.TimeSpec, from time.Time) (time.Time, error) {
	from = from.UTC()

	switch freq {
	case domain.FrequencyHourly:
		next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), spec.Minute, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
		return next, nil

	case domain.FrequencyDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), spec.Hour, spec.Minute, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case domain.FrequencyWeekly:
		next := time.Date(from.Year(), from.Month(), from.Day(), spec.Hour, spec.Minute, 0, 0, time.UTC)
		days := (spec.DayOfWeek - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case domain.FrequencyMonthly:
		next := monthlyOccurrence(from.Year(), from.Month(), spec)
		if !next.After(from) {
			y, m := from.Year(), from.Month()+1
			next = monthlyOccurrence(y, m, spec)
		}
		return next, nil

	case domain.FrequencyCustom:
		schedule, err := cronParser.Parse(spec.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec.CronExpr, err)
		}
		return schedule.Next(from).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unsupported frequency %q", freq)
}

// monthlyOccurrence возвращает occurrence для конкретного месяца.
// day_of_month усекается до последнего дня месяца (31 → 28/29/30 где нужно).
func monthlyOccurrence(year int, month time.Month, spec domain.TimeSpec) time.Time {
	day := spec.DayOfMonth
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, spec.Hour, spec.Minute, 0, 0, time.UTC)
}

// daysIn возвращает число дней в месяце.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Validate проверяет, что TimeSpec корректен для данного frequency.
// Некорректная комбинация — DefinitionError: отклоняется при create/update
// и никогда не доходит до Scheduling Engine.
func Validate(freq domain.Frequency, spec domain.TimeSpec) error {
	if !freq.IsValid() {
		return fmt.Errorf("unsupported frequency %q", freq)
	}

	if spec.Minute < 0 || spec.Minute > 59 {
		return fmt.Errorf("minute must be in [0,59], got %d", spec.Minute)
	}

	switch freq {
	case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly:
		if spec.Hour < 0 || spec.Hour > 23 {
			return fmt.Errorf("hour must be in [0,23], got %d", spec.Hour)
		}
	}

	switch freq {
	case domain.FrequencyWeekly:
		if spec.DayOfWeek < 0 || spec.DayOfWeek > 6 {
			return fmt.Errorf("day_of_week must be in [0,6], got %d", spec.DayOfWeek)
		}
	case domain.FrequencyMonthly:
		if spec.DayOfMonth < 1 || spec.DayOfMonth > 31 {
			return fmt.Errorf("day_of_month must be in [1,31], got %d", spec.DayOfMonth)
		}
	case domain.FrequencyCustom:
		if _, err := cronParser.Parse(spec.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec.CronExpr, err)
		}
	}

	return nil
}

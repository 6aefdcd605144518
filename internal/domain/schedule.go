package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frequency — класс периодичности расписания.
type Frequency string

// Поддерживаемые классы периодичности.
const (
	// FrequencyHourly — каждый час в заданную минуту.
	FrequencyHourly Frequency = "hourly"

	// FrequencyDaily — каждый день в заданное время.
	FrequencyDaily Frequency = "daily"

	// FrequencyWeekly — каждую неделю в заданный день и время.
	FrequencyWeekly Frequency = "weekly"

	// FrequencyMonthly — каждый месяц в заданный день и время.
	FrequencyMonthly Frequency = "monthly"

	// FrequencyCustom — произвольное cron-выражение.
	FrequencyCustom Frequency = "custom"
)

// IsValid проверяет, что frequency — один из поддерживаемых классов.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	default:
		return false
	}
}

// ScanType — тип сканирования.
type ScanType string

const (
	// ScanTypeQuick — быстрое сканирование.
	ScanTypeQuick ScanType = "quick"

	// ScanTypeDeep — глубокое сканирование.
	ScanTypeDeep ScanType = "deep"
)

// IsValid проверяет, что scan type поддерживается.
func (t ScanType) IsValid() bool {
	return t == ScanTypeQuick || t == ScanTypeDeep
}

// TimeSpec — структурированное описание времени запуска.
//
// Заполняемые поля зависят от Frequency:
//   - hourly:  Minute
//   - daily:   Hour, Minute
//   - weekly:  DayOfWeek (0 = воскресенье), Hour, Minute
//   - monthly: DayOfMonth (1..31, усекается до конца месяца), Hour, Minute
//   - custom:  CronExpr (стандартный 5-полевой формат)
type TimeSpec struct {
	Minute     int    `json:"minute"`
	Hour       int    `json:"hour,omitempty"`
	DayOfWeek  int    `json:"day_of_week,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	CronExpr   string `json:"cron_expr,omitempty"`
}

// Schedule — расписание автоматического сканирования домена.
//
// Scheduler вычисляет next_run из Frequency + TimeSpec и создаёт
// execution, когда время подошло. next_run всегда пересчитывается
// на стороне store при создании, обновлении и успешном срабатывании —
// клиенты никогда не задают его напрямую.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Domain — целевой домен для сканирования.
	Domain string `json:"domain"`

	// ProfileID — ссылка на scan profile (опционально).
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`

	// Frequency — класс периодичности (hourly/daily/weekly/monthly/custom).
	Frequency Frequency `json:"frequency"`

	// TimeSpec — время запуска в рамках периода.
	TimeSpec TimeSpec `json:"time_spec"`

	// Enabled — флаг активности расписания.
	// Если false, Scheduling Engine не держит таймер для этого schedule,
	// независимо от сохранённого next_run.
	Enabled bool `json:"enabled"`

	// ScanType — quick или deep.
	ScanType ScanType `json:"scan_type"`

	// Params — opaque-параметры сканирования.
	// Передаются задаче сканирования без интерпретации.
	Params map[string]any `json:"params,omitempty"`

	// NextRunAt — время следующего запуска.
	// Вычисляется store-слоем, не задаётся клиентами.
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	// LastRunAt — время последнего срабатывания.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastStatus — терминальный статус последнего execution.
	LastStatus ExecutionStatus `json:"last_status,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCustom возвращает true, если расписание задано cron-выражением.
func (s *Schedule) IsCustom() bool {
	return s.Frequency == FrequencyCustom
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextRunAt == nil {
		return false
	}
	return now.After(*s.NextRunAt) || now.Equal(*s.NextRunAt)
}

// JobKey возвращает стабильный идентификатор job для конкретного
// occurrence: "{schedule_id}_{unix}". Один и тот же occurrence всегда
// даёт один и тот же ключ, что позволяет дедуплицировать запуски.
func (s *Schedule) JobKey(occurrence time.Time) string {
	return fmt.Sprintf("%s_%d", s.ID, occurrence.Unix())
}

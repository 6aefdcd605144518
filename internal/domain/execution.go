package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — запись об одной попытке выполнения запланированного
// сканирования.
//
// Создаётся в статусе STARTED, когда lease выигран и задача вот-вот
// будет запущена. Ровно один раз переводится в терминальный статус,
// когда задача завершилась или была брошена (timeout, потеря lease).
//
// Инвариант: CompletedAt >= StartedAt, если оба заданы.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// ScheduleID — ссылка на schedule. Nullable: история переживает
	// удаление schedule.
	ScheduleID *uuid.UUID `json:"schedule_id,omitempty"`

	// JobKey — стабильный идентификатор job (schedule + occurrence).
	JobKey string `json:"job_key"`

	// Domain — целевой домен на момент запуска.
	Domain string `json:"domain"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения. Nil, пока execution не терминален.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScanID — идентификатор созданного scan. Nullable: задача могла
	// упасть до того, как scan был создан.
	ScanID *string `json:"scan_id,omitempty"`

	// Error — текст ошибки, если execution завершился с FAILED.
	Error string `json:"error,omitempty"`

	// ErrorDetails — структурированные детали ошибки.
	ErrorDetails map[string]any `json:"error_details,omitempty"`

	// Metadata — произвольные метаданные запуска (scan type, instance id).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// IsFinished возвращает true, если execution терминален.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkSuccess переводит execution в статус SUCCESS.
func (e *Execution) MarkSuccess(scanID string) {
	now := time.Now().UTC()
	e.Status = ExecutionStatusSuccess
	e.CompletedAt = &now
	if scanID != "" {
		e.ScanID = &scanID
	}
}

// MarkFailed переводит execution в статус FAILED с ошибкой.
func (e *Execution) MarkFailed(errMsg string, details map[string]any) {
	now := time.Now().UTC()
	e.Status = ExecutionStatusFailed
	e.CompletedAt = &now
	e.Error = errMsg
	e.ErrorDetails = details
}

// MarkCancelled переводит execution в статус CANCELLED.
func (e *Execution) MarkCancelled() {
	now := time.Now().UTC()
	e.Status = ExecutionStatusCancelled
	e.CompletedAt = &now
}

// ExecutionStats — агрегированная статистика по executions за период.
type ExecutionStats struct {
	Total       int           `json:"total"`
	Success     int           `json:"success"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

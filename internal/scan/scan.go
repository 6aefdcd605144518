// Package scan определяет границу вызова задачи сканирования.
//
// Scheduler относится к задаче как к чёрному ящику: передаёт домен,
// тип сканирования и параметры, получает scan_id и статус. Сама логика
// сканирования живёт за этой границей и может быть асинхронной и долгой.
package scan

import (
	"context"

	"github.com/google/uuid"
)

// Request — параметры запуска сканирования.
type Request struct {
	// Domain — целевой домен.
	Domain string `json:"domain"`

	// ScanType — quick или deep.
	ScanType string `json:"scan_type"`

	// Params — opaque-конфигурация сканирования.
	Params map[string]any `json:"params,omitempty"`

	// ProfileID — scan profile (опционально).
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
}

// Result — результат задачи сканирования.
type Result struct {
	// ScanID — идентификатор созданного scan.
	ScanID string `json:"scan_id"`

	// Status — статус, который сообщила сама задача.
	Status string `json:"status"`

	// Error — ошибка, о которой сообщила задача (TaskExecutionError).
	// Непустое значение — терминальный FAILED для execution; retry-политика,
	// если она есть, принадлежит слою задачи, не scheduler'у.
	Error string `json:"error,omitempty"`
}

// Runner выполняет задачу сканирования.
//
// Вызов обязан уважать ctx: по истечении soft timeout scheduler отменяет
// контекст и фиксирует FAILED, не дожидаясь фактической остановки задачи
// (best-effort cancellation).
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// RunnerFunc адаптирует функцию к интерфейсу Runner.
type RunnerFunc func(ctx context.Context, req Request) (*Result, error)

// Run вызывает f.
func (f RunnerFunc) Run(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

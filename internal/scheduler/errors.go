package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrAlreadyStarted — координатор уже запущен.
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrExecutionTimeout — задача сканирования превысила soft timeout.
	ErrExecutionTimeout = errors.New("scan execution timeout")
)

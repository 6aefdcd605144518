package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	STARTED → SUCCESS
//	        ↘ FAILED
//	        ↘ CANCELLED
//
// Переходы только вперёд: терминальный статус никогда не меняется.
type ExecutionStatus string

const (
	// ExecutionStatusStarted — lease выигран, задача сканирования запущена.
	ExecutionStatusStarted ExecutionStatus = "STARTED"

	// ExecutionStatusSuccess — сканирование успешно завершено.
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"

	// ExecutionStatusFailed — сканирование завершилось ошибкой
	// (включая timeout и потерю lease).
	ExecutionStatusFailed ExecutionStatus = "FAILED"

	// ExecutionStatusCancelled — запуск отменён до завершения задачи.
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

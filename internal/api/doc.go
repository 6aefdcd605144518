// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (репозитории, publisher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - schedule_handler.go  — обработчики для /schedules
//   - execution_handler.go — обработчики для /executions
//
// API предоставляет REST endpoints для управления schedules и
// чтения истории executions. Мутации schedules публикуют событие
// schedule.changed, чтобы инстансы планировщика подхватили изменение
// без ожидания очередного poll-цикла.
package api

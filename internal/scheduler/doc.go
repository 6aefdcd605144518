// Package scheduler реализует ядро распределённого планировщика
// сканирований.
//
// Структура:
//   - engine.go      — Scheduling Engine: in-memory таймеры occurrences,
//     запуск задач под distributed lease
//   - watcher.go     — Change Watcher: fingerprint-diff persisted schedules
//     против in-memory набора
//   - coordinator.go — Coordinator: lifecycle (Stopped → Starting → Running
//     → Stopping), initial load, применение дельт watcher'а к engine
//   - errors.go      — ошибки уровня планировщика
//
// Несколько инстансов scheduler'а работают одновременно против общего
// стора: не более одного запуска на occurrence гарантирует lease
// (см. пакет lease), продублированный локальным in-flight guard'ом.
//
// Изменения schedules распространяются с ограниченной задержкой:
// интервал watcher'а — максимальная задержка применения правки.
// Событие schedule.changed из RabbitMQ сокращает её, запуская
// внеочередной цикл, но корректность от MQ не зависит.
package scheduler

// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - schedule.changed     — определение schedule создано/изменено/удалено
//   - execution.completed  — execution завершён терминальным статусом
//
// Exchanges:
//   - vigil.schedules   — события изменения schedules
//   - vigil.executions  — события завершения executions
//
// MQ — быстрый путь доставки: scheduler подхватывает правки schedules
// по событию раньше, чем их увидит polling Change Watcher'а. Недоступный
// RabbitMQ ничего не ломает — polling остаётся fallback'ом.
package mq

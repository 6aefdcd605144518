// Package cli реализует инструмент командной строки Vigil.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Vigil API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления schedules и просмотра истории
// executions.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Vigil API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	schedules, err := client.ListSchedules(cli.ListSchedulesOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: vigil schedule list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - schedule: list, create, show, update, delete, enable, disable
//   - history:  recent, show, for-schedule, stats
//
// Каждая группа создаётся через фабричную функцию (NewScheduleCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli

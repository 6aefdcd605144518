package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики scheduler'а. Регистрируются в default registry и отдаются
// через promhttp на /metrics каждого бинаря.
var (
	// ExecutionsTotal — количество завершённых executions по статусам.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_executions_total",
		Help: "Completed scan executions by terminal status.",
	}, []string{"status"})

	// ExecutionsInFlight — текущее количество выполняющихся сканирований.
	ExecutionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_executions_in_flight",
		Help: "Scan executions currently running on this instance.",
	})

	// LeaseContentionTotal — occurrences, пропущенные из-за занятого lease.
	// Это видимость skip-событий: другой инстанс взял occurrence себе.
	LeaseContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_lease_contention_total",
		Help: "Occurrences skipped because another instance held the lease.",
	})

	// LeaseLostTotal — lease'ы, потерянные во время выполнения задачи.
	LeaseLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_lease_lost_total",
		Help: "Leases lost mid-execution (expired or taken over).",
	})

	// WatcherCyclesTotal — выполненные циклы Change Watcher.
	WatcherCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_watcher_cycles_total",
		Help: "Completed change watcher cycles.",
	})

	// WatcherFailuresTotal — циклы, пропущенные из-за ошибки стора.
	WatcherFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_watcher_failures_total",
		Help: "Change watcher cycles skipped due to store errors.",
	})

	// ScheduledGauge — количество schedules с активным таймером в engine.
	ScheduledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_scheduled_occurrences",
		Help: "Schedules currently held in the in-memory timer structure.",
	})

	// ExecutionDuration — длительность выполнения задач сканирования.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vigil_execution_duration_seconds",
		Help:    "Scan task execution duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)

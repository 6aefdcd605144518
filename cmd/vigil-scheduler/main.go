// Vigil Scheduler — инстанс планировщика сканирований.
//
// Scheduler:
//   - Загружает enabled schedules из Postgres и держит их таймеры
//   - Захватывает lease перед каждым запуском (дедупликация между инстансами)
//   - Запускает задачи сканирования и ведёт историю executions
//   - Подхватывает изменения schedules через polling и RabbitMQ
//
// Инстансов может быть несколько: каждый occurrence выполняет ровно один.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Vigil/internal/lease"
	"github.com/shaiso/Vigil/internal/mq"
	"github.com/shaiso/Vigil/internal/repo"
	"github.com/shaiso/Vigil/internal/scan"
	"github.com/shaiso/Vigil/internal/scheduler"
	"github.com/shaiso/Vigil/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting vigil-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	scheduleRepo := repo.NewScheduleRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	leaseRepo := repo.NewLeaseRepo(pool)

	// RabbitMQ (опционально: без него работает polling-only режим)
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	instanceID, _ := os.Hostname()
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		instanceID = v
	}

	// Lease manager
	leases := lease.NewManager(leaseRepo, envDuration("LEASE_TTL", lease.DefaultTTL), logger)

	// Scan runner
	scannerURL := os.Getenv("SCANNER_URL")
	if scannerURL == "" {
		scannerURL = "http://localhost:8090"
	}
	runner := scan.NewHTTPRunner(scannerURL, nil)

	// Engine + watcher + coordinator
	engine := scheduler.NewEngine(scheduler.EngineConfig{
		Schedules:     scheduleRepo,
		Executions:    executionRepo,
		Leases:        leases,
		Runner:        runner,
		Publisher:     publisher,
		SoftTimeout:   envDuration("SOFT_TIMEOUT", 30*time.Minute),
		MaxConcurrent: envInt("MAX_CONCURRENT", 8),
		InstanceID:    instanceID,
		Logger:        logger,
	})

	watcher := scheduler.NewWatcher(scheduleRepo, logger)

	coord := scheduler.NewCoordinator(scheduler.CoordinatorConfig{
		Engine:        engine,
		Watcher:       watcher,
		Conn:          mqConn,
		WatchInterval: envDuration("WATCH_INTERVAL", 30*time.Second),
		StopGrace:     envDuration("STOP_GRACE", 30*time.Second),
		Logger:        logger,
	})

	if err := coord.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !coord.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(string(coord.State())))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	coord.Stop()
	logger.Info("vigil-scheduler stopped")
}

// envDuration читает duration из окружения (например "10m").
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envInt читает int из окружения.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

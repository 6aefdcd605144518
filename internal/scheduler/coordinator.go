package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Vigil/internal/cron"
	"github.com/shaiso/Vigil/internal/domain"
	"github.com/shaiso/Vigil/internal/mq"
)

// Default coordinator configuration values.
const (
	defaultWatchInterval = 30 * time.Second
	defaultStopGrace     = 30 * time.Second

	backoffInitial = time.Second
	backoffMax     = time.Minute
)

// State — состояние жизненного цикла Coordinator.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// Coordinator связывает watcher и engine в работающий инстанс планировщика.
//
// Coordinator:
//   - Выполняет начальную полную синхронизацию со стором (с exponential
//     backoff при недоступности: процесс не падает, а ждёт стор)
//   - Периодически опрашивает watcher и применяет дельты к engine
//     (polling fallback, bounded staleness)
//   - Слушает schedules.changed из RabbitMQ и запускает внеочередную
//     синхронизацию (event-driven fast path)
//
// Переходы состояний: STOPPED → STARTING → RUNNING → STOPPING → STOPPED.
type Coordinator struct {
	engine  *Engine
	watcher *Watcher

	// MQ (опционально: без соединения остаётся только polling)
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	watchInterval time.Duration
	stopGrace     time.Duration

	// kick — сигнал внеочередной синхронизации (коалесцируется).
	kick chan struct{}

	// Lifecycle
	state      State
	stateMu    sync.RWMutex
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// CoordinatorConfig — конфигурация Coordinator.
type CoordinatorConfig struct {
	Engine  *Engine
	Watcher *Watcher

	// Conn — соединение с RabbitMQ для fast path (опционально).
	Conn *mq.Connection

	// WatchInterval — период polling-синхронизации (default: 30s).
	WatchInterval time.Duration

	// StopGrace — сколько Stop ждёт in-flight executions (default: 30s).
	StopGrace time.Duration

	Logger *slog.Logger
}

// NewCoordinator создаёт новый Coordinator в состоянии STOPPED.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	watchInterval := cfg.WatchInterval
	if watchInterval <= 0 {
		watchInterval = defaultWatchInterval
	}

	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		engine:        cfg.Engine,
		watcher:       cfg.Watcher,
		conn:          cfg.Conn,
		watchInterval: watchInterval,
		stopGrace:     stopGrace,
		kick:          make(chan struct{}, 1),
		state:         StateStopped,
		logger:        logger,
	}
}

// Start запускает Coordinator.
//
// Возвращает управление сразу: начальная синхронизация идёт в фоне
// с exponential backoff, переход в RUNNING — после её успеха.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.transition(StateStopped, StateStarting) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	c.logger.Info("starting coordinator",
		"watch_interval", c.watchInterval,
		"mq_enabled", c.conn != nil,
	)

	c.engine.Start(ctx)

	if c.conn != nil {
		c.consumer = mq.NewConsumer(c.conn, c.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueSchedulesChanged),
			Handler:  c.handleScheduleChanged,
			Prefetch: 10,
		})

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("schedule change consumer error", "error", err)
			}
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()

	return nil
}

// Stop останавливает Coordinator: прекращает синхронизацию, затем ждёт
// in-flight executions до stopGrace.
func (c *Coordinator) Stop() {
	c.stateMu.Lock()
	if c.state == StateStopped || c.state == StateStopping {
		c.stateMu.Unlock()
		return
	}
	c.state = StateStopping
	c.stateMu.Unlock()

	c.logger.Info("stopping coordinator...")

	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	if c.consumer != nil {
		c.consumer.Stop()
	}
	c.wg.Wait()

	c.engine.Stop(c.stopGrace)

	c.setState(StateStopped)
	c.logger.Info("coordinator stopped")
}

// State возвращает текущее состояние Coordinator.
func (c *Coordinator) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Healthy сообщает, находится ли Coordinator в рабочем состоянии.
func (c *Coordinator) Healthy() bool {
	return c.State() == StateRunning
}

// run — основной цикл: начальная синхронизация, затем polling + kick.
func (c *Coordinator) run(ctx context.Context) {
	if !c.initialSync(ctx) {
		return
	}
	c.setState(StateRunning)
	c.logger.Info("coordinator running", "schedules", c.engine.Len())

	ticker := time.NewTicker(c.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sync(ctx)
		case <-c.kick:
			c.sync(ctx)
		}
	}
}

// initialSync выполняет полную загрузку schedules с exponential backoff.
// Возвращает false только при отмене ctx: недоступность стора —
// причина ждать, а не падать.
func (c *Coordinator) initialSync(ctx context.Context) bool {
	c.watcher.Reset()

	backoff := backoffInitial
	for {
		delta, err := c.watcher.Diff(ctx)
		if err == nil {
			c.applyDelta(delta)
			return true
		}

		c.logger.Warn("initial sync failed, retrying",
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// sync выполняет один цикл синхронизации.
func (c *Coordinator) sync(ctx context.Context) {
	delta, err := c.watcher.Diff(ctx)
	if err != nil {
		// Transient: engine продолжает работать на известном состоянии,
		// дельта доберётся на следующем цикле (bounded staleness).
		c.logger.Warn("schedule sync failed", "error", err)
		return
	}
	c.applyDelta(delta)
}

// applyDelta применяет дельту watcher'а к engine.
func (c *Coordinator) applyDelta(delta *Delta) {
	if delta.Empty() {
		return
	}

	for _, s := range delta.Added {
		c.ensureNextRun(s)
		c.engine.Schedule(s)
	}
	for _, s := range delta.Updated {
		c.ensureNextRun(s)
		c.engine.Reschedule(s)
	}
	for _, id := range delta.Removed {
		c.engine.Unschedule(id)
	}

	c.logger.Info("schedule changes applied",
		"added", len(delta.Added),
		"updated", len(delta.Updated),
		"removed", len(delta.Removed),
	)
}

// ensureNextRun достраивает next_run_at, если стор его не содержит
// (schedule создан в обход валидации или очень старая запись).
func (c *Coordinator) ensureNextRun(s *domain.Schedule) {
	if s.NextRunAt != nil {
		return
	}
	next, err := cron.NextRun(s.Frequency, s.TimeSpec, time.Now().UTC())
	if err != nil {
		c.logger.Error("schedule has no computable next run",
			"schedule_id", s.ID,
			"error", err,
		)
		return
	}
	s.NextRunAt = &next
}

// handleScheduleChanged обрабатывает событие schedules.changed.
//
// Содержимое события не применяется напрямую: оно лишь запускает
// внеочередной цикл watcher'а. Стор — единственный источник истины,
// события только сокращают задержку его опроса.
func (c *Coordinator) handleScheduleChanged(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ScheduleChangedPayload](&delivery.Message)
	if err != nil {
		c.logger.Error("invalid schedule.changed payload", "error", err)
		return delivery.Nack(false)
	}

	c.logger.Debug("schedule change event received",
		"schedule_id", payload.ScheduleID,
		"change", payload.Change,
	)

	select {
	case c.kick <- struct{}{}:
	default:
	}

	return delivery.Ack()
}

// transition выполняет переход from → to, если текущее состояние from.
func (c *Coordinator) transition(from, to State) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state != from {
		return false
	}
	c.state = to
	return true
}

func (c *Coordinator) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

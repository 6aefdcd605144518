package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/cron"
	"github.com/shaiso/Vigil/internal/domain"
	"github.com/shaiso/Vigil/internal/lease"
	"github.com/shaiso/Vigil/internal/mq"
	"github.com/shaiso/Vigil/internal/scan"
	"github.com/shaiso/Vigil/internal/telemetry"
)

// Default configuration values.
const (
	defaultSoftTimeout   = 30 * time.Minute
	defaultMaxConcurrent = 8
	recordTimeout        = 10 * time.Second
)

// Engine — Scheduling Engine: держит in-memory min-heap occurrences
// и запускает задачи сканирования в их due time.
//
// Путь срабатывания:
//  1. Попытка lease по schedule id. Busy — occurrence целиком
//     пропускается (его выполняет другой инстанс), локально вычисляется
//     следующий occurrence, чтобы таймер не перестрелял.
//  2. Успех — запись execution (STARTED), асинхронный запуск задачи
//     с soft timeout, периодический renew lease на TTL/2.
//  3. Завершение — терминальная запись, release lease, обновление
//     last_run/last_status/next_run schedule'а, повторное планирование.
//
// Таймеры schedules независимы: выполнение уходит с таймерного потока
// в отдельную горутину, долгая задача одного schedule не задерживает
// другие. Локальный in-flight guard дублирует lease (defense in depth
// против двойного локального срабатывания).
type Engine struct {
	schedules  ScheduleStore
	executions ExecutionStore
	leases     LeaseService
	runner     scan.Runner
	publisher  *mq.Publisher // опционально; nil — события не публикуются

	softTimeout   time.Duration
	maxConcurrent int
	instanceID    string
	logger        *slog.Logger

	mu       sync.Mutex
	heap     occurrenceHeap
	byID     map[uuid.UUID]*occurrence
	inFlight map[uuid.UUID]bool
	wake     chan struct{}

	sem    chan struct{}
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	execWG sync.WaitGroup
}

// EngineConfig — конфигурация Engine.
type EngineConfig struct {
	Schedules  ScheduleStore
	Executions ExecutionStore
	Leases     LeaseService
	Runner     scan.Runner
	Publisher  *mq.Publisher // опционально

	// SoftTimeout — мягкий дедлайн задачи сканирования (default: 30m).
	// Превышение фиксируется как FAILED с признаком timeout; сигнал
	// отмены задаче best-effort.
	SoftTimeout time.Duration

	// MaxConcurrent — максимум одновременных локальных запусков (default: 8).
	MaxConcurrent int

	// InstanceID — идентификатор инстанса для metadata executions.
	InstanceID string

	Logger *slog.Logger
}

// NewEngine создаёт новый Engine.
func NewEngine(cfg EngineConfig) *Engine {
	softTimeout := cfg.SoftTimeout
	if softTimeout <= 0 {
		softTimeout = defaultSoftTimeout
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		schedules:     cfg.Schedules,
		executions:    cfg.Executions,
		leases:        cfg.Leases,
		runner:        cfg.Runner,
		publisher:     cfg.Publisher,
		softTimeout:   softTimeout,
		maxConcurrent: maxConcurrent,
		instanceID:    cfg.InstanceID,
		logger:        logger,
		byID:          make(map[uuid.UUID]*occurrence),
		inFlight:      make(map[uuid.UUID]bool),
		wake:          make(chan struct{}, 1),
		sem:           make(chan struct{}, maxConcurrent),
	}
}

// Start запускает таймерный цикл.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		e.loop(ctx)
	}()

	e.logger.Info("scheduling engine started",
		"soft_timeout", e.softTimeout,
		"max_concurrent", e.maxConcurrent,
	)
}

// Stop останавливает таймерный цикл и ждёт in-flight executions
// до истечения grace. Уже запущенные задачи не прерываются: они
// дорабатывают до завершения или до своего soft timeout.
func (e *Engine) Stop(grace time.Duration) {
	if e.cancel != nil {
		e.cancel()
	}
	e.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		e.execWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("scheduling engine stopped")
	case <-time.After(grace):
		e.logger.Warn("grace period expired, abandoning in-flight executions")
	}
}

// Schedule — идемпотентный upsert occurrence для schedule.
// Выключенный schedule или schedule без next_run снимается с таймера.
func (e *Engine) Schedule(s *domain.Schedule) {
	if !s.Enabled || s.NextRunAt == nil {
		e.Unschedule(s.ID)
		return
	}
	e.upsert(s, *s.NextRunAt)
}

// Reschedule заменяет определение и время occurrence.
// next_run в прошлом допустим: occurrence сработает немедленно —
// ровно один catch-up, дальше время вычисляется по frequency-правилам.
func (e *Engine) Reschedule(s *domain.Schedule) {
	e.Schedule(s)
}

// Unschedule снимает schedule с таймера. Идемпотентен.
// Уже запущенное выполнение не прерывает: оно дорабатывает и
// записывает терминальный статус обычным порядком.
func (e *Engine) Unschedule(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	occ, ok := e.byID[id]
	if !ok {
		return
	}
	heap.Remove(&e.heap, occ.index)
	delete(e.byID, id)
	telemetry.ScheduledGauge.Set(float64(len(e.byID)))
	e.kick()
}

// Len возвращает количество schedules с активным таймером.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byID)
}

// NextFireTime возвращает время ближайшего occurrence schedule'а.
func (e *Engine) NextFireTime(id uuid.UUID) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	occ, ok := e.byID[id]
	if !ok {
		return time.Time{}, false
	}
	return occ.fireAt, true
}

// upsert вставляет или заменяет occurrence.
func (e *Engine) upsert(s *domain.Schedule, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if occ, ok := e.byID[s.ID]; ok {
		occ.schedule = s
		occ.fireAt = at
		heap.Fix(&e.heap, occ.index)
	} else {
		occ := &occurrence{schedule: s, fireAt: at}
		heap.Push(&e.heap, occ)
		e.byID[s.ID] = occ
	}
	telemetry.ScheduledGauge.Set(float64(len(e.byID)))
	e.kick()
}

// scheduleIfAbsent планирует occurrence, только если для schedule
// нет записи в heap. Пути завершения/пропуска используют его, чтобы
// не затирать более свежее определение, положенное watcher'ом
// во время выполнения.
func (e *Engine) scheduleIfAbsent(s *domain.Schedule, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byID[s.ID]; ok {
		return
	}
	occ := &occurrence{schedule: s, fireAt: at}
	heap.Push(&e.heap, occ)
	e.byID[s.ID] = occ
	telemetry.ScheduledGauge.Set(float64(len(e.byID)))
	e.kick()
}

// scheduleNext вычисляет следующий occurrence от from и планирует его.
func (e *Engine) scheduleNext(s *domain.Schedule, from time.Time) {
	next, err := cron.NextRun(s.Frequency, s.TimeSpec, from)
	if err != nil {
		// Не должно случаться: определение валидируется при create/update.
		e.logger.Error("failed to compute next occurrence",
			"schedule_id", s.ID,
			"error", err,
		)
		return
	}
	e.scheduleIfAbsent(s, next)
}

// kick будит таймерный цикл, чтобы тот пересчитал ближайший дедлайн.
func (e *Engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// loop — таймерный цикл: спит до ближайшего occurrence, просыпается
// на wake при изменении heap.
func (e *Engine) loop(ctx context.Context) {
	const idleWait = time.Hour

	for {
		e.mu.Lock()
		wait := idleWait
		if next := e.heap.peek(); next != nil {
			wait = time.Until(next.fireAt)
			if wait < 0 {
				wait = 0
			}
		}
		e.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
			e.fireDue(ctx)
		}
	}
}

// fireDue извлекает все occurrences с наступившим временем
// и отправляет их на выполнение.
func (e *Engine) fireDue(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	var due []*occurrence
	for {
		next := e.heap.peek()
		if next == nil || next.fireAt.After(now) {
			break
		}
		occ := heap.Pop(&e.heap).(*occurrence)
		delete(e.byID, occ.schedule.ID)
		due = append(due, occ)
	}
	telemetry.ScheduledGauge.Set(float64(len(e.byID)))
	e.mu.Unlock()

	for _, occ := range due {
		e.dispatch(ctx, occ)
	}
}

// dispatch отправляет occurrence на выполнение в отдельной горутине.
func (e *Engine) dispatch(ctx context.Context, occ *occurrence) {
	id := occ.schedule.ID

	e.mu.Lock()
	if e.inFlight[id] {
		e.mu.Unlock()
		// Локальный дубликат триггера: предыдущее выполнение ещё идёт.
		e.logger.Debug("occurrence skipped, execution already in flight",
			"schedule_id", id,
		)
		e.scheduleNext(occ.schedule, time.Now())
		return
	}
	e.inFlight[id] = true
	e.mu.Unlock()

	e.execWG.Add(1)
	go func() {
		defer e.execWG.Done()
		defer func() {
			e.mu.Lock()
			delete(e.inFlight, id)
			e.mu.Unlock()
		}()
		e.execute(ctx, occ)
	}()
}

// execute выполняет один occurrence: lease, запись истории, задача,
// терминальная запись, следующий occurrence.
func (e *Engine) execute(ctx context.Context, occ *occurrence) {
	sched := occ.schedule
	logger := e.logger.With("schedule_id", sched.ID, "domain", sched.Domain)

	// Локальный лимит параллельных запусков.
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		e.scheduleIfAbsent(sched, occ.fireAt)
		return
	}
	defer func() { <-e.sem }()

	l, err := e.leases.TryAcquire(ctx, sched.ID)
	if errors.Is(err, lease.ErrBusy) {
		// Occurrence взял другой инстанс. Не ошибка: вычисляем следующий
		// occurrence, чтобы таймер не сработал по нему повторно.
		telemetry.LeaseContentionTotal.Inc()
		logger.Debug("occurrence taken by another instance")
		e.scheduleNext(sched, time.Now())
		return
	}
	if err != nil {
		logger.Error("lease acquire failed", "error", err)
		e.scheduleNext(sched, time.Now())
		return
	}

	jobKey := sched.JobKey(occ.fireAt)

	// Backstop к lease: если история уже содержит запись с этим job key,
	// occurrence выполнил инстанс, чей lease успел истечь. Повторно не
	// запускаем. Ошибку поиска игнорируем — дедупликацию гарантирует lease.
	if prior, err := e.executions.GetByJobKey(ctx, jobKey); err == nil && prior != nil {
		logger.Info("occurrence already recorded, skipping",
			"job_key", jobKey,
			"execution_id", prior.ID,
		)
		e.releaseLease(l, logger)
		e.scheduleNext(sched, time.Now())
		return
	}

	startedAt := time.Now().UTC()
	scheduleID := sched.ID
	exec := &domain.Execution{
		ID:         uuid.New(),
		ScheduleID: &scheduleID,
		JobKey:     jobKey,
		Domain:     sched.Domain,
		Status:     domain.ExecutionStatusStarted,
		StartedAt:  startedAt,
		Metadata: map[string]any{
			"scan_type": string(sched.ScanType),
			"instance":  e.instanceID,
		},
	}

	if err := e.executions.Create(ctx, exec); err != nil {
		// История обязана содержать запись о каждом запуске —
		// без стартовой записи задачу не запускаем.
		logger.Error("failed to record execution start", "error", err)
		e.releaseLease(l, logger)
		e.scheduleNext(sched, time.Now())
		return
	}

	if err := e.schedules.MarkRunStart(ctx, sched.ID, startedAt); err != nil {
		logger.Warn("failed to mark run start", "error", err)
	}

	logger.Info("execution started",
		"execution_id", exec.ID,
		"job_key", exec.JobKey,
		"scan_type", sched.ScanType,
	)
	telemetry.ExecutionsInFlight.Inc()
	defer telemetry.ExecutionsInFlight.Dec()

	// Контекст задачи отвязан от ctx engine'а: при Stop уже запущенные
	// задачи дорабатывают (до grace/soft timeout), их не обрывает отмена
	// таймерного цикла.
	taskCtx, cancelTask := context.WithTimeout(context.Background(), e.softTimeout)
	defer cancelTask()

	// Renew lease на TTL/2, пока задача работает. Потеря lease —
	// best-effort отмена задачи.
	renewCtx, stopRenew := context.WithCancel(context.Background())
	defer stopRenew()

	lost := make(chan struct{})
	var lostOnce sync.Once
	go e.renewLoop(renewCtx, l, logger, func() {
		lostOnce.Do(func() {
			close(lost)
			cancelTask()
		})
	})

	result, runErr := e.runner.Run(taskCtx, scan.Request{
		Domain:    sched.Domain,
		ScanType:  string(sched.ScanType),
		Params:    sched.Params,
		ProfileID: sched.ProfileID,
	})
	stopRenew()

	leaseLost := false
	select {
	case <-lost:
		leaseLost = true
	default:
	}

	completedAt := time.Now().UTC()

	switch {
	case leaseLost:
		// Владение утрачено во время выполнения: execution помечается
		// orphaned/FAILED, поздний результат задачи игнорируется
		// (Finish-guard не даст перезаписать). Lease дедуплицирует
		// триггеры, не результаты.
		exec.MarkFailed("lease lost during execution", map[string]any{"orphaned": true})
	case runErr != nil && errors.Is(runErr, context.DeadlineExceeded),
		runErr != nil && taskCtx.Err() == context.DeadlineExceeded:
		exec.MarkFailed(
			fmt.Sprintf("%v: exceeded %s", ErrExecutionTimeout, e.softTimeout),
			map[string]any{"timeout": true},
		)
	case runErr != nil:
		exec.MarkFailed(runErr.Error(), nil)
	case result == nil:
		exec.MarkFailed("scan runner returned no result", nil)
	case result.Error != "":
		exec.MarkFailed(result.Error, map[string]any{"task_status": result.Status})
		if result.ScanID != "" {
			exec.ScanID = &result.ScanID
		}
	default:
		exec.MarkSuccess(result.ScanID)
	}

	e.finalize(exec, sched, l, leaseLost, completedAt, logger)
}

// finalize записывает терминальный статус, освобождает lease,
// обновляет schedule и планирует следующий occurrence.
func (e *Engine) finalize(exec *domain.Execution, sched *domain.Schedule, l *lease.Lease, leaseLost bool, completedAt time.Time, logger *slog.Logger) {
	// Отдельный контекст: терминальная запись должна лечь в стор
	// даже во время shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := e.executions.Finish(ctx, exec); err != nil {
		logger.Error("failed to record execution result",
			"execution_id", exec.ID,
			"error", err,
		)
	}

	telemetry.ExecutionsTotal.WithLabelValues(string(exec.Status)).Inc()
	telemetry.ExecutionDuration.Observe(exec.Duration().Seconds())

	if leaseLost {
		// Не владеем ни lease, ни правом обновлять schedule.
		logger.Warn("execution orphaned after lease loss", "execution_id", exec.ID)
		e.scheduleNext(sched, completedAt)
		return
	}

	e.releaseLease(l, logger)

	next, err := cron.NextRun(sched.Frequency, sched.TimeSpec, completedAt)
	if err != nil {
		logger.Error("failed to compute next run", "error", err)
	} else {
		if err := e.schedules.MarkRunResult(ctx, sched.ID, completedAt, exec.Status, next); err != nil {
			logger.Warn("failed to mark run result", "error", err)
		}
		e.scheduleIfAbsent(sched, next)
	}

	if e.publisher != nil {
		scanID := ""
		if exec.ScanID != nil {
			scanID = *exec.ScanID
		}
		err := e.publisher.PublishExecutionCompleted(ctx, mq.ExecutionCompletedPayload{
			ExecutionID: exec.ID,
			ScheduleID:  exec.ScheduleID,
			Domain:      exec.Domain,
			Status:      string(exec.Status),
			ScanID:      scanID,
			Error:       exec.Error,
		})
		if err != nil {
			// Не фатально: история уже в сторе.
			logger.Warn("failed to publish execution.completed", "error", err)
		}
	}

	logger.Info("execution finished",
		"execution_id", exec.ID,
		"status", exec.Status,
		"duration", exec.Duration(),
	)
}

// renewLoop продлевает lease каждые TTL/2 до отмены ctx.
// Потеря владения — onLost (ровно один раз).
func (e *Engine) renewLoop(ctx context.Context, l *lease.Lease, logger *slog.Logger, onLost func()) {
	interval := e.leases.TTL() / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			err := e.leases.Renew(renewCtx, l)
			cancel()

			if errors.Is(err, lease.ErrLost) {
				telemetry.LeaseLostTotal.Inc()
				logger.Warn("lease lost mid-execution", "key", l.Key)
				onLost()
				return
			}
			if err != nil {
				// Transient: lease ещё может быть жив, пробуем на следующем тике.
				logger.Warn("lease renew failed", "key", l.Key, "error", err)
			}
		}
	}
}

// releaseLease снимает lease best-effort.
func (e *Engine) releaseLease(l *lease.Lease, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := e.leases.Release(ctx, l); err != nil {
		if errors.Is(err, lease.ErrLost) {
			telemetry.LeaseLostTotal.Inc()
		}
		logger.Warn("lease release failed", "key", l.Key, "error", err)
	}
}

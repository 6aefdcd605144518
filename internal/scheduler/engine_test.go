package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
	"github.com/shaiso/Vigil/internal/lease"
	"github.com/shaiso/Vigil/internal/scan"
)

// --- Fakes ---

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules []domain.Schedule
	listErr   error

	runStarts  []uuid.UUID
	runResults []runResult
}

type runResult struct {
	id      uuid.UUID
	status  domain.ExecutionStatus
	nextRun time.Time
}

func (f *fakeScheduleStore) ListEnabled(_ context.Context) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Schedule, len(f.schedules))
	copy(out, f.schedules)
	return out, nil
}

func (f *fakeScheduleStore) MarkRunStart(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runStarts = append(f.runStarts, id)
	return nil
}

func (f *fakeScheduleStore) MarkRunResult(_ context.Context, id uuid.UUID, _ time.Time, status domain.ExecutionStatus, nextRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runResults = append(f.runResults, runResult{id: id, status: status, nextRun: nextRun})
	return nil
}

func (f *fakeScheduleStore) results() []runResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runResult, len(f.runResults))
	copy(out, f.runResults)
	return out
}

var errExecNotFound = errors.New("execution not found")

type fakeExecutionStore struct {
	mu       sync.Mutex
	created  []*domain.Execution
	finished []*domain.Execution
	byJobKey map[string]*domain.Execution
}

func (f *fakeExecutionStore) Create(_ context.Context, exec *domain.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *exec
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeExecutionStore) Finish(_ context.Context, exec *domain.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *exec
	f.finished = append(f.finished, &cp)
	return nil
}

func (f *fakeExecutionStore) GetByJobKey(_ context.Context, jobKey string) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exec, ok := f.byJobKey[jobKey]; ok {
		return exec, nil
	}
	return nil, errExecNotFound
}

func (f *fakeExecutionStore) lastFinished() *domain.Execution {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finished) == 0 {
		return nil
	}
	return f.finished[len(f.finished)-1]
}

type fakeLeases struct {
	mu       sync.Mutex
	ttl      time.Duration
	busy     bool
	renewErr error

	acquired []uuid.UUID
	released []uuid.UUID
}

func (f *fakeLeases) TryAcquire(_ context.Context, key uuid.UUID) (*lease.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return nil, lease.ErrBusy
	}
	f.acquired = append(f.acquired, key)
	return &lease.Lease{Key: key, Token: uuid.New().String(), TTL: f.ttl}, nil
}

func (f *fakeLeases) Renew(_ context.Context, l *lease.Lease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewErr
}

func (f *fakeLeases) Release(_ context.Context, l *lease.Lease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, l.Key)
	return nil
}

func (f *fakeLeases) TTL() time.Duration {
	if f.ttl > 0 {
		return f.ttl
	}
	return time.Minute
}

func (f *fakeLeases) releasedKeys() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uuid.UUID, len(f.released))
	copy(out, f.released)
	return out
}

// --- Helpers ---

func dailySchedule() *domain.Schedule {
	next := time.Now().UTC().Add(time.Hour)
	return &domain.Schedule{
		ID:        uuid.New(),
		Domain:    "example.com",
		Frequency: domain.FrequencyDaily,
		TimeSpec:  domain.TimeSpec{Hour: 2},
		Enabled:   true,
		ScanType:  domain.ScanTypeQuick,
		NextRunAt: &next,
	}
}

type testEngine struct {
	engine     *Engine
	schedules  *fakeScheduleStore
	executions *fakeExecutionStore
	leases     *fakeLeases
}

func newTestEngine(t *testing.T, runner scan.Runner, opts ...func(*EngineConfig)) *testEngine {
	t.Helper()

	schedules := &fakeScheduleStore{}
	executions := &fakeExecutionStore{}
	leases := &fakeLeases{ttl: time.Minute}

	cfg := EngineConfig{
		Schedules:  schedules,
		Executions: executions,
		Leases:     leases,
		Runner:     runner,
		InstanceID: "test-instance",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &testEngine{
		engine:     NewEngine(cfg),
		schedules:  schedules,
		executions: executions,
		leases:     leases,
	}
}

func okRunner() scan.Runner {
	return scan.RunnerFunc(func(_ context.Context, _ scan.Request) (*scan.Result, error) {
		return &scan.Result{ScanID: "scan-1", Status: "completed"}, nil
	})
}

// --- Schedule/Unschedule ---

func TestEngine_Schedule(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()

	te.engine.Schedule(s)

	if te.engine.Len() != 1 {
		t.Fatalf("len = %d, want 1", te.engine.Len())
	}
	fireAt, ok := te.engine.NextFireTime(s.ID)
	if !ok {
		t.Fatal("schedule should have a fire time")
	}
	if !fireAt.Equal(*s.NextRunAt) {
		t.Errorf("fireAt = %v, want %v", fireAt, *s.NextRunAt)
	}
}

func TestEngine_Schedule_UpsertIdempotent(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()

	te.engine.Schedule(s)
	te.engine.Schedule(s)

	if te.engine.Len() != 1 {
		t.Errorf("len = %d, want 1 after duplicate Schedule", te.engine.Len())
	}
}

func TestEngine_Reschedule_ReplacesTime(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()
	te.engine.Schedule(s)

	later := time.Now().UTC().Add(5 * time.Hour)
	s.NextRunAt = &later
	te.engine.Reschedule(s)

	if te.engine.Len() != 1 {
		t.Fatalf("len = %d, want 1", te.engine.Len())
	}
	fireAt, _ := te.engine.NextFireTime(s.ID)
	if !fireAt.Equal(later) {
		t.Errorf("fireAt = %v, want %v", fireAt, later)
	}
}

func TestEngine_Schedule_DisabledIsRemoved(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()
	te.engine.Schedule(s)

	s.Enabled = false
	te.engine.Schedule(s)

	if te.engine.Len() != 0 {
		t.Errorf("disabled schedule should be removed, len = %d", te.engine.Len())
	}
}

func TestEngine_Unschedule(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()
	te.engine.Schedule(s)

	te.engine.Unschedule(s.ID)
	if te.engine.Len() != 0 {
		t.Errorf("len = %d, want 0", te.engine.Len())
	}

	// Повторный Unschedule — no-op
	te.engine.Unschedule(s.ID)
}

// --- Execute ---

func TestEngine_Execute_Success(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()
	fireAt := time.Now().UTC()

	te.engine.execute(context.Background(), &occurrence{schedule: s, fireAt: fireAt})

	if len(te.executions.created) != 1 {
		t.Fatalf("created = %d, want 1", len(te.executions.created))
	}
	created := te.executions.created[0]
	if created.Status != domain.ExecutionStatusStarted {
		t.Errorf("created status = %s, want STARTED", created.Status)
	}
	if created.JobKey != s.JobKey(fireAt) {
		t.Errorf("job key = %q, want %q", created.JobKey, s.JobKey(fireAt))
	}

	finished := te.executions.lastFinished()
	if finished == nil {
		t.Fatal("execution should be finished")
	}
	if finished.Status != domain.ExecutionStatusSuccess {
		t.Errorf("finished status = %s, want SUCCESS", finished.Status)
	}
	if finished.ScanID == nil || *finished.ScanID != "scan-1" {
		t.Error("scan_id should be recorded")
	}

	if len(te.leases.releasedKeys()) != 1 {
		t.Error("lease should be released")
	}

	results := te.schedules.results()
	if len(results) != 1 {
		t.Fatalf("run results = %d, want 1", len(results))
	}
	if results[0].status != domain.ExecutionStatusSuccess {
		t.Errorf("recorded status = %s, want SUCCESS", results[0].status)
	}
	if !results[0].nextRun.After(time.Now()) {
		t.Error("next run should be in the future")
	}

	// Следующий occurrence запланирован локально
	if te.engine.Len() != 1 {
		t.Errorf("len = %d, want 1 after completion", te.engine.Len())
	}
}

func TestEngine_Execute_Busy_SkipsWithoutHistory(t *testing.T) {
	te := newTestEngine(t, okRunner())
	te.leases.busy = true
	s := dailySchedule()

	te.engine.execute(context.Background(), &occurrence{schedule: s, fireAt: time.Now().UTC()})

	// Occurrence взял другой инстанс: ни записи истории, ни обновления стора
	if len(te.executions.created) != 0 {
		t.Error("busy skip must not create an execution record")
	}
	if len(te.schedules.runStarts) != 0 {
		t.Error("busy skip must not mark run start")
	}

	// Но следующий occurrence вычислен, таймер не перестрелит
	if te.engine.Len() != 1 {
		t.Errorf("len = %d, want 1 after busy skip", te.engine.Len())
	}
}

func TestEngine_Execute_DuplicateJobKeySkips(t *testing.T) {
	ran := false
	runner := scan.RunnerFunc(func(_ context.Context, _ scan.Request) (*scan.Result, error) {
		ran = true
		return &scan.Result{ScanID: "scan-dup"}, nil
	})
	te := newTestEngine(t, runner)
	s := dailySchedule()
	fireAt := time.Now().UTC().Truncate(time.Second)

	// Occurrence уже записан другим инстансом (его lease успел истечь)
	te.executions.byJobKey = map[string]*domain.Execution{
		s.JobKey(fireAt): {
			ID:     uuid.New(),
			JobKey: s.JobKey(fireAt),
			Status: domain.ExecutionStatusSuccess,
		},
	}

	te.engine.execute(context.Background(), &occurrence{schedule: s, fireAt: fireAt})

	if ran {
		t.Error("duplicate occurrence must not run the scanner")
	}
	if len(te.executions.created) != 0 {
		t.Error("duplicate occurrence must not create a second execution record")
	}
	if len(te.leases.releasedKeys()) != 1 {
		t.Error("lease must be released after duplicate skip")
	}
	// Следующий occurrence вычислен, таймер не перестрелит
	if te.engine.Len() != 1 {
		t.Errorf("len = %d, want 1 after duplicate skip", te.engine.Len())
	}
}

func TestEngine_Execute_RunnerError(t *testing.T) {
	runner := scan.RunnerFunc(func(_ context.Context, _ scan.Request) (*scan.Result, error) {
		return nil, errors.New("scanner unreachable")
	})
	te := newTestEngine(t, runner)
	s := dailySchedule()

	te.engine.execute(context.Background(), &occurrence{schedule: s, fireAt: time.Now().UTC()})

	finished := te.executions.lastFinished()
	if finished == nil {
		t.Fatal("execution should be finished")
	}
	if finished.Status != domain.ExecutionStatusFailed {
		t.Errorf("status = %s, want FAILED", finished.Status)
	}
	if finished.Error != "scanner unreachable" {
		t.Errorf("error = %q", finished.Error)
	}
	if len(te.leases.releasedKeys()) != 1 {
		t.Error("lease should be released after failure")
	}
}

func TestEngine_Execute_TaskReportedError(t *testing.T) {
	runner := scan.RunnerFunc(func(_ context.Context, _ scan.Request) (*scan.Result, error) {
		return &scan.Result{Status: "error", Error: "target resolved to nothing"}, nil
	})
	te := newTestEngine(t, runner)

	te.engine.execute(context.Background(), &occurrence{schedule: dailySchedule(), fireAt: time.Now().UTC()})

	finished := te.executions.lastFinished()
	if finished == nil || finished.Status != domain.ExecutionStatusFailed {
		t.Fatal("task-level error should yield FAILED")
	}
	if finished.Error != "target resolved to nothing" {
		t.Errorf("error = %q", finished.Error)
	}
}

func TestEngine_Execute_SoftTimeout(t *testing.T) {
	runner := scan.RunnerFunc(func(ctx context.Context, _ scan.Request) (*scan.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	te := newTestEngine(t, runner, func(cfg *EngineConfig) {
		cfg.SoftTimeout = 30 * time.Millisecond
	})

	te.engine.execute(context.Background(), &occurrence{schedule: dailySchedule(), fireAt: time.Now().UTC()})

	finished := te.executions.lastFinished()
	if finished == nil {
		t.Fatal("execution should be finished")
	}
	if finished.Status != domain.ExecutionStatusFailed {
		t.Errorf("status = %s, want FAILED", finished.Status)
	}
	if finished.ErrorDetails["timeout"] != true {
		t.Error("timeout should be flagged in error details")
	}
	if len(te.leases.releasedKeys()) != 1 {
		t.Error("lease should be released after timeout")
	}
}

func TestEngine_Execute_LeaseLost(t *testing.T) {
	runner := scan.RunnerFunc(func(ctx context.Context, _ scan.Request) (*scan.Result, error) {
		// Задача "работает", пока её не отменит потеря lease
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &scan.Result{ScanID: "late"}, nil
		}
	})
	te := newTestEngine(t, runner)
	te.leases.ttl = 40 * time.Millisecond // renew на ~20ms
	te.leases.renewErr = lease.ErrLost

	te.engine.execute(context.Background(), &occurrence{schedule: dailySchedule(), fireAt: time.Now().UTC()})

	finished := te.executions.lastFinished()
	if finished == nil {
		t.Fatal("execution should be finished")
	}
	if finished.Status != domain.ExecutionStatusFailed {
		t.Errorf("status = %s, want FAILED", finished.Status)
	}
	if finished.ErrorDetails["orphaned"] != true {
		t.Error("orphaned should be flagged in error details")
	}

	// Владение утрачено: ни release, ни обновления schedule
	if len(te.leases.releasedKeys()) != 0 {
		t.Error("lost lease must not be released")
	}
	if len(te.schedules.results()) != 0 {
		t.Error("lost lease must not mark run result")
	}
}

func TestEngine_Dispatch_InFlightGuard(t *testing.T) {
	te := newTestEngine(t, okRunner())
	s := dailySchedule()

	te.engine.mu.Lock()
	te.engine.inFlight[s.ID] = true
	te.engine.mu.Unlock()

	te.engine.dispatch(context.Background(), &occurrence{schedule: s, fireAt: time.Now().UTC()})
	te.engine.execWG.Wait()

	if len(te.executions.created) != 0 {
		t.Error("in-flight guard should suppress a second execution")
	}
	if te.engine.Len() != 1 {
		t.Errorf("skipped occurrence should be rescheduled, len = %d", te.engine.Len())
	}
}

// --- Timer loop ---

func TestEngine_FiresDueOccurrence(t *testing.T) {
	done := make(chan struct{})
	runner := scan.RunnerFunc(func(_ context.Context, req scan.Request) (*scan.Result, error) {
		close(done)
		return &scan.Result{ScanID: "scan-loop"}, nil
	})
	te := newTestEngine(t, runner)

	te.engine.Start(context.Background())
	defer te.engine.Stop(time.Second)

	s := dailySchedule()
	past := time.Now().UTC().Add(-time.Second)
	s.NextRunAt = &past
	te.engine.Schedule(s)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("due occurrence was not fired")
	}
}

func TestEngine_Stop_WaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	runner := scan.RunnerFunc(func(_ context.Context, _ scan.Request) (*scan.Result, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return &scan.Result{ScanID: "slow"}, nil
	})
	te := newTestEngine(t, runner)

	te.engine.Start(context.Background())

	s := dailySchedule()
	past := time.Now().UTC().Add(-time.Second)
	s.NextRunAt = &past
	te.engine.Schedule(s)

	<-started
	te.engine.Stop(time.Second)

	if te.executions.lastFinished() == nil {
		t.Error("in-flight execution should finish within the grace period")
	}
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Vigil/internal/domain"
)

func newTestCoordinator(t *testing.T, te *testEngine) *Coordinator {
	t.Helper()
	return NewCoordinator(CoordinatorConfig{
		Engine:        te.engine,
		Watcher:       NewWatcher(te.schedules, nil),
		WatchInterval: 20 * time.Millisecond,
		StopGrace:     time.Second,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCoordinator_StartSyncsSchedules(t *testing.T) {
	te := newTestEngine(t, okRunner())
	te.schedules.schedules = []domain.Schedule{*dailySchedule(), *dailySchedule()}
	coord := newTestCoordinator(t, te)

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer coord.Stop()

	waitFor(t, time.Second, func() bool {
		return coord.State() == StateRunning && te.engine.Len() == 2
	})
}

func TestCoordinator_StartTwice(t *testing.T) {
	te := newTestEngine(t, okRunner())
	coord := newTestCoordinator(t, te)

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer coord.Stop()

	if err := coord.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start = %v, want ErrAlreadyStarted", err)
	}
}

func TestCoordinator_PicksUpRemoval(t *testing.T) {
	te := newTestEngine(t, okRunner())
	te.schedules.schedules = []domain.Schedule{*dailySchedule()}
	coord := newTestCoordinator(t, te)

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer coord.Stop()

	waitFor(t, time.Second, func() bool { return te.engine.Len() == 1 })

	// Disable/удаление: schedule пропадает из ListEnabled
	te.schedules.mu.Lock()
	te.schedules.schedules = nil
	te.schedules.mu.Unlock()

	waitFor(t, time.Second, func() bool { return te.engine.Len() == 0 })
}

func TestCoordinator_PicksUpUpdate(t *testing.T) {
	s := dailySchedule()
	te := newTestEngine(t, okRunner())
	te.schedules.schedules = []domain.Schedule{*s}
	coord := newTestCoordinator(t, te)

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer coord.Stop()

	waitFor(t, time.Second, func() bool { return te.engine.Len() == 1 })

	// Новое определение с другим next_run
	later := time.Now().UTC().Add(48 * time.Hour)
	te.schedules.mu.Lock()
	te.schedules.schedules[0].TimeSpec.Hour = 7
	te.schedules.schedules[0].NextRunAt = &later
	te.schedules.mu.Unlock()

	waitFor(t, time.Second, func() bool {
		fireAt, ok := te.engine.NextFireTime(s.ID)
		return ok && fireAt.Equal(later)
	})
}

func TestCoordinator_RetriesInitialSync(t *testing.T) {
	te := newTestEngine(t, okRunner())
	te.schedules.listErr = errors.New("connection refused")
	coord := newTestCoordinator(t, te)

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer coord.Stop()

	// Недоступный стор держит координатор в STARTING, процесс не падает
	time.Sleep(50 * time.Millisecond)
	if coord.State() != StateStarting {
		t.Fatalf("state = %s, want STARTING while store is down", coord.State())
	}

	// Стор ожил — координатор доходит до RUNNING
	te.schedules.mu.Lock()
	te.schedules.listErr = nil
	te.schedules.schedules = []domain.Schedule{*dailySchedule()}
	te.schedules.mu.Unlock()

	waitFor(t, 5*time.Second, func() bool {
		return coord.State() == StateRunning && te.engine.Len() == 1
	})
}

func TestCoordinator_StopTransitionsToStopped(t *testing.T) {
	te := newTestEngine(t, okRunner())
	coord := newTestCoordinator(t, te)

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return coord.State() == StateRunning })

	coord.Stop()
	if coord.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", coord.State())
	}
	if coord.Healthy() {
		t.Error("stopped coordinator should not be healthy")
	}

	// Повторный Stop — no-op
	coord.Stop()
}

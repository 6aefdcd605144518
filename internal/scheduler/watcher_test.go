package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Vigil/internal/domain"
)

func TestWatcher_FirstDiffReturnsAllAsAdded(t *testing.T) {
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*dailySchedule(), *dailySchedule()}

	w := NewWatcher(store, nil)

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Added) != 2 {
		t.Errorf("added = %d, want 2", len(delta.Added))
	}
	if len(delta.Updated) != 0 || len(delta.Removed) != 0 {
		t.Error("first diff should contain only additions")
	}
}

func TestWatcher_NoChangesYieldsEmptyDelta(t *testing.T) {
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*dailySchedule()}

	w := NewWatcher(store, nil)
	if _, err := w.Diff(context.Background()); err != nil {
		t.Fatalf("first diff: %v", err)
	}

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("second diff: %v", err)
	}
	if !delta.Empty() {
		t.Errorf("delta should be empty, got %+v", delta)
	}
}

func TestWatcher_DetectsUpdate(t *testing.T) {
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*dailySchedule()}

	w := NewWatcher(store, nil)
	if _, err := w.Diff(context.Background()); err != nil {
		t.Fatalf("first diff: %v", err)
	}

	store.mu.Lock()
	store.schedules[0].TimeSpec.Hour = 5
	store.mu.Unlock()

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(delta.Updated) != 1 {
		t.Errorf("updated = %d, want 1", len(delta.Updated))
	}
	if len(delta.Added) != 0 || len(delta.Removed) != 0 {
		t.Errorf("unexpected additions/removals: %+v", delta)
	}
}

func TestWatcher_IgnoresRunBookkeeping(t *testing.T) {
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*dailySchedule()}

	w := NewWatcher(store, nil)
	if _, err := w.Diff(context.Background()); err != nil {
		t.Fatalf("first diff: %v", err)
	}

	// Запуск на другом инстансе двигает next_run/last_run/last_status.
	// Для watcher'а это не изменение определения.
	store.mu.Lock()
	now := time.Now().UTC()
	store.schedules[0].NextRunAt = &now
	store.schedules[0].LastRunAt = &now
	store.schedules[0].LastStatus = "SUCCESS"
	store.mu.Unlock()

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !delta.Empty() {
		t.Errorf("run bookkeeping must not produce a delta, got %+v", delta)
	}
}

func TestWatcher_DetectsRemoval(t *testing.T) {
	s := dailySchedule()
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*s}

	w := NewWatcher(store, nil)
	if _, err := w.Diff(context.Background()); err != nil {
		t.Fatalf("first diff: %v", err)
	}

	// Disable и удаление неразличимы: schedule пропадает из ListEnabled
	store.mu.Lock()
	store.schedules = nil
	store.mu.Unlock()

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != s.ID {
		t.Errorf("removed = %v, want [%s]", delta.Removed, s.ID)
	}
}

func TestWatcher_ErrorPreservesKnownState(t *testing.T) {
	s := dailySchedule()
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*s}

	w := NewWatcher(store, nil)
	if _, err := w.Diff(context.Background()); err != nil {
		t.Fatalf("first diff: %v", err)
	}

	store.mu.Lock()
	store.listErr = errors.New("connection refused")
	store.mu.Unlock()

	if _, err := w.Diff(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	// Стор ожил: известное состояние не сброшено, дельты нет
	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("diff after recovery: %v", err)
	}
	if !delta.Empty() {
		t.Errorf("failed cycle must not reset known state, got %+v", delta)
	}
}

func TestWatcher_Reset(t *testing.T) {
	store := &fakeScheduleStore{}
	store.schedules = []domain.Schedule{*dailySchedule()}

	w := NewWatcher(store, nil)
	if _, err := w.Diff(context.Background()); err != nil {
		t.Fatalf("first diff: %v", err)
	}

	w.Reset()

	delta, err := w.Diff(context.Background())
	if err != nil {
		t.Fatalf("diff after reset: %v", err)
	}
	if len(delta.Added) != 1 {
		t.Errorf("after reset everything is Added again, got %+v", delta)
	}
}

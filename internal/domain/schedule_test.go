package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFrequency_IsValid(t *testing.T) {
	valid := []Frequency{FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom}
	for _, f := range valid {
		if !f.IsValid() {
			t.Errorf("%s should be valid", f)
		}
	}

	if Frequency("yearly").IsValid() {
		t.Error("yearly should not be valid")
	}
	if Frequency("").IsValid() {
		t.Error("empty frequency should not be valid")
	}
}

func TestSchedule_JobKey(t *testing.T) {
	s := &Schedule{ID: uuid.New()}
	occurrence := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)

	got := s.JobKey(occurrence)
	want := fmt.Sprintf("%s_%d", s.ID, occurrence.Unix())

	if got != want {
		t.Errorf("JobKey = %q, want %q", got, want)
	}
}

func TestSchedule_JobKey_SameOccurrenceSameKey(t *testing.T) {
	// Два инстанса, один и тот же occurrence — один и тот же ключ
	s := &Schedule{ID: uuid.New()}
	occurrence := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

	if s.JobKey(occurrence) != s.JobKey(occurrence) {
		t.Error("same occurrence should produce the same job key")
	}

	other := occurrence.Add(time.Hour)
	if s.JobKey(occurrence) == s.JobKey(other) {
		t.Error("different occurrences should produce different job keys")
	}
}

func TestSchedule_IsDue(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	s := &Schedule{Enabled: true, NextRunAt: &past}
	if !s.IsDue(now) {
		t.Error("schedule with past next_run should be due")
	}

	s.NextRunAt = &future
	if s.IsDue(now) {
		t.Error("schedule with future next_run should not be due")
	}

	s.NextRunAt = &past
	s.Enabled = false
	if s.IsDue(now) {
		t.Error("disabled schedule should never be due")
	}

	s.Enabled = true
	s.NextRunAt = nil
	if s.IsDue(now) {
		t.Error("schedule without next_run should not be due")
	}
}

func TestExecution_Duration(t *testing.T) {
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)

	e := &Execution{StartedAt: started, CompletedAt: &completed}
	if e.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", e.Duration())
	}
}

func TestExecution_MarkSuccess(t *testing.T) {
	e := &Execution{ID: uuid.New(), Status: ExecutionStatusStarted}
	e.MarkSuccess("scan-123")

	if e.Status != ExecutionStatusSuccess {
		t.Errorf("status = %s, want SUCCESS", e.Status)
	}
	if e.ScanID == nil || *e.ScanID != "scan-123" {
		t.Error("scan_id should be set")
	}
	if e.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
}

func TestExecution_MarkFailed(t *testing.T) {
	e := &Execution{ID: uuid.New(), Status: ExecutionStatusStarted}
	e.MarkFailed("scanner unreachable", map[string]any{"attempt": 1})

	if e.Status != ExecutionStatusFailed {
		t.Errorf("status = %s, want FAILED", e.Status)
	}
	if e.Error != "scanner unreachable" {
		t.Errorf("error = %q", e.Error)
	}
	if e.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if !e.IsFinished() {
		t.Error("failed execution should be finished")
	}
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	if ExecutionStatusStarted.IsTerminal() {
		t.Error("STARTED should not be terminal")
	}
	for _, s := range []ExecutionStatus{ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

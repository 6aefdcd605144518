package api

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
)

func TestScheduleFromDomain(t *testing.T) {
	lastRun := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	nextRun := lastRun.Add(24 * time.Hour)
	s := &domain.Schedule{
		ID:         uuid.New(),
		Domain:     "example.com",
		Frequency:  domain.FrequencyDaily,
		TimeSpec:   domain.TimeSpec{Hour: 2},
		Enabled:    true,
		ScanType:   domain.ScanTypeQuick,
		NextRunAt:  &nextRun,
		LastRunAt:  &lastRun,
		LastStatus: domain.ExecutionStatusSuccess,
	}

	resp := ScheduleFromDomain(s)

	if resp.ID != s.ID {
		t.Errorf("id = %s, want %s", resp.ID, s.ID)
	}
	if resp.Frequency != "daily" {
		t.Errorf("frequency = %q, want daily", resp.Frequency)
	}
	if resp.LastStatus != "SUCCESS" {
		t.Errorf("last_status = %q, want SUCCESS", resp.LastStatus)
	}
	if resp.NextRunAt == nil || !resp.NextRunAt.Equal(nextRun) {
		t.Errorf("next_run_at = %v, want %v", resp.NextRunAt, nextRun)
	}
}

func TestScheduleFromDomain_Nil(t *testing.T) {
	resp := ScheduleFromDomain(nil)
	if resp.ID != uuid.Nil {
		t.Errorf("nil schedule should map to zero response, got id %s", resp.ID)
	}
}

func TestExecutionFromDomain(t *testing.T) {
	started := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	scanID := "scan-42"
	e := &domain.Execution{
		ID:          uuid.New(),
		JobKey:      "job-key",
		Domain:      "example.com",
		Status:      domain.ExecutionStatusSuccess,
		StartedAt:   started,
		CompletedAt: &completed,
		ScanID:      &scanID,
	}

	resp := ExecutionFromDomain(e)

	if resp.Status != "SUCCESS" {
		t.Errorf("status = %q, want SUCCESS", resp.Status)
	}
	if resp.DurationSec != 90 {
		t.Errorf("duration_sec = %v, want 90", resp.DurationSec)
	}
	if resp.ScanID == nil || *resp.ScanID != scanID {
		t.Errorf("scan_id = %v, want %s", resp.ScanID, scanID)
	}
}

func TestExecutionFromDomain_NotFinished(t *testing.T) {
	e := &domain.Execution{
		ID:        uuid.New(),
		Status:    domain.ExecutionStatusStarted,
		StartedAt: time.Now().UTC(),
	}

	resp := ExecutionFromDomain(e)

	if resp.DurationSec != 0 {
		t.Errorf("duration_sec = %v, want 0 while running", resp.DurationSec)
	}
	if resp.CompletedAt != nil {
		t.Error("completed_at should be empty while running")
	}
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func baseSchedule() *Schedule {
	return &Schedule{
		ID:        uuid.New(),
		Domain:    "example.com",
		Frequency: FrequencyDaily,
		TimeSpec:  TimeSpec{Hour: 2, Minute: 0},
		Enabled:   true,
		ScanType:  ScanTypeQuick,
		Params:    map[string]any{"depth": 3},
	}
}

func TestFingerprint_Stable(t *testing.T) {
	s := baseSchedule()
	if s.Fingerprint() != s.Fingerprint() {
		t.Error("fingerprint should be stable across calls")
	}
}

func TestFingerprint_ChangesOnSchedulingFields(t *testing.T) {
	changes := map[string]func(*Schedule){
		"domain":    func(s *Schedule) { s.Domain = "other.com" },
		"frequency": func(s *Schedule) { s.Frequency = FrequencyWeekly },
		"time_spec": func(s *Schedule) { s.TimeSpec.Hour = 5 },
		"enabled":   func(s *Schedule) { s.Enabled = false },
		"scan_type": func(s *Schedule) { s.ScanType = ScanTypeDeep },
		"params":    func(s *Schedule) { s.Params = map[string]any{"depth": 5} },
		"profile_id": func(s *Schedule) {
			id := uuid.New()
			s.ProfileID = &id
		},
	}

	for name, mutate := range changes {
		s := baseSchedule()
		before := s.Fingerprint()
		mutate(s)
		if s.Fingerprint() == before {
			t.Errorf("fingerprint should change when %s changes", name)
		}
	}
}

func TestFingerprint_IgnoresExecutionFields(t *testing.T) {
	// Поля выполнения меняются при каждом запуске на любом инстансе;
	// если бы они входили в fingerprint, каждый запуск выглядел бы
	// как update для всех остальных инстансов.
	s := baseSchedule()
	before := s.Fingerprint()

	now := time.Now()
	s.NextRunAt = &now
	s.LastRunAt = &now
	s.LastStatus = "SUCCESS"
	s.UpdatedAt = now

	if s.Fingerprint() != before {
		t.Error("fingerprint should ignore run bookkeeping fields")
	}
}

func TestFingerprint_IndependentOfID(t *testing.T) {
	a := baseSchedule()
	b := baseSchedule()
	b.ID = uuid.New()

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("schedules with identical definitions should share a fingerprint")
	}
}

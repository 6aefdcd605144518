package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
)

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Domain    string          `json:"domain"`
	ProfileID *uuid.UUID      `json:"profile_id,omitempty"`
	Frequency string          `json:"frequency"`
	TimeSpec  domain.TimeSpec `json:"time_spec"`
	Enabled   bool            `json:"enabled"`
	ScanType  string          `json:"scan_type,omitempty"`
	Params    map[string]any  `json:"params,omitempty"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
// Отсутствующие поля не меняются.
type UpdateScheduleRequest struct {
	Domain    *string          `json:"domain,omitempty"`
	ProfileID *uuid.UUID       `json:"profile_id,omitempty"`
	Frequency *string          `json:"frequency,omitempty"`
	TimeSpec  *domain.TimeSpec `json:"time_spec,omitempty"`
	ScanType  *string          `json:"scan_type,omitempty"`
	Params    *map[string]any  `json:"params,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID         uuid.UUID       `json:"id"`
	Domain     string          `json:"domain"`
	ProfileID  *uuid.UUID      `json:"profile_id,omitempty"`
	Frequency  string          `json:"frequency"`
	TimeSpec   domain.TimeSpec `json:"time_spec"`
	Enabled    bool            `json:"enabled"`
	ScanType   string          `json:"scan_type"`
	Params     map[string]any  `json:"params,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	LastStatus string          `json:"last_status,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:         s.ID,
		Domain:     s.Domain,
		ProfileID:  s.ProfileID,
		Frequency:  string(s.Frequency),
		TimeSpec:   s.TimeSpec,
		Enabled:    s.Enabled,
		ScanType:   string(s.ScanType),
		Params:     s.Params,
		NextRunAt:  s.NextRunAt,
		LastRunAt:  s.LastRunAt,
		LastStatus: string(s.LastStatus),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// Execution DTOs

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID          uuid.UUID      `json:"id"`
	ScheduleID  *uuid.UUID     `json:"schedule_id,omitempty"`
	JobKey      string         `json:"job_key"`
	Domain      string         `json:"domain"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationSec float64        `json:"duration_sec,omitempty"`
	ScanID      *string        `json:"scan_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e *domain.Execution) ExecutionResponse {
	if e == nil {
		return ExecutionResponse{}
	}
	resp := ExecutionResponse{
		ID:          e.ID,
		ScheduleID:  e.ScheduleID,
		JobKey:      e.JobKey,
		Domain:      e.Domain,
		Status:      string(e.Status),
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		ScanID:      e.ScanID,
		Error:       e.Error,
		Metadata:    e.Metadata,
	}
	if e.CompletedAt != nil {
		resp.DurationSec = e.Duration().Seconds()
	}
	return resp
}

// StatsResponse — агрегированная статистика executions.
type StatsResponse struct {
	PeriodDays     int     `json:"period_days"`
	Total          int     `json:"total"`
	Success        int     `json:"success"`
	Failed         int     `json:"failed"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDurationSec float64 `json:"avg_duration_sec"`
	MinDurationSec float64 `json:"min_duration_sec"`
	MaxDurationSec float64 `json:"max_duration_sec"`
}

// StatsFromDomain конвертирует domain.ExecutionStats в StatsResponse.
func StatsFromDomain(s *domain.ExecutionStats, days int) StatsResponse {
	return StatsResponse{
		PeriodDays:     days,
		Total:          s.Total,
		Success:        s.Success,
		Failed:         s.Failed,
		SuccessRate:    s.SuccessRate,
		AvgDurationSec: s.AvgDuration.Seconds(),
		MinDurationSec: s.MinDuration.Seconds(),
		MaxDurationSec: s.MaxDuration.Seconds(),
	}
}

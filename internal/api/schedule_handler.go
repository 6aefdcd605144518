package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
	"github.com/shaiso/Vigil/internal/mq"
	"github.com/shaiso/Vigil/internal/repo"
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?domain=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := repo.ScheduleFilter{}

	// Парсим query параметры
	if d := r.URL.Query().Get("domain"); d != "" {
		filter.Domain = d
	}

	if enabledStr := r.URL.Query().Get("enabled"); enabledStr != "" {
		enabled := enabledStr == "true"
		filter.Enabled = &enabled
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	} else {
		filter.Limit = 50
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	schedules, err := h.scheduleRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}

	List(w, result, len(result))
}

// CreateSchedule создаёт новый schedule.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Валидация
	if req.Domain == "" {
		BadRequest(w, "domain is required")
		return
	}

	frequency := domain.Frequency(req.Frequency)
	if !frequency.IsValid() {
		BadRequest(w, "invalid frequency")
		return
	}

	scanType := domain.ScanType(req.ScanType)
	if scanType == "" {
		scanType = domain.ScanTypeQuick
	}

	schedule := &domain.Schedule{
		ID:        uuid.New(),
		Domain:    req.Domain,
		ProfileID: req.ProfileID,
		Frequency: frequency,
		TimeSpec:  req.TimeSpec,
		Enabled:   req.Enabled,
		ScanType:  scanType,
		Params:    req.Params,
	}

	// Create валидирует time_spec и вычисляет next_run_at
	if err := h.scheduleRepo.Create(r.Context(), schedule); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.notifyScheduleChanged(r.Context(), schedule.ID, mq.ScheduleChangeCreated)
	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	schedule, err := h.scheduleRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// UpdateSchedule обновляет schedule.
// PUT /api/v1/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, err := h.scheduleRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	if req.Domain != nil {
		if *req.Domain == "" {
			BadRequest(w, "domain cannot be empty")
			return
		}
		schedule.Domain = *req.Domain
	}
	if req.ProfileID != nil {
		schedule.ProfileID = req.ProfileID
	}
	if req.Frequency != nil {
		frequency := domain.Frequency(*req.Frequency)
		if !frequency.IsValid() {
			BadRequest(w, "invalid frequency")
			return
		}
		schedule.Frequency = frequency
	}
	if req.TimeSpec != nil {
		schedule.TimeSpec = *req.TimeSpec
	}
	if req.ScanType != nil {
		schedule.ScanType = domain.ScanType(*req.ScanType)
	}
	if req.Params != nil {
		schedule.Params = *req.Params
	}

	// Update перевалидирует time_spec и пересчитывает next_run_at
	if err := h.scheduleRepo.Update(r.Context(), schedule); err != nil {
		if HandleRepoError(w, h.logger, err, "schedule not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.notifyScheduleChanged(r.Context(), schedule.ID, mq.ScheduleChangeUpdated)
	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	if err := h.scheduleRepo.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "schedule not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.notifyScheduleChanged(r.Context(), id, mq.ScheduleChangeDeleted)
	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// PUT /api/v1/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.scheduleRepo.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		if HandleRepoError(w, h.logger, err, "schedule not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.notifyScheduleChanged(r.Context(), id, mq.ScheduleChangeUpdated)

	// Возвращаем обновлённый schedule
	schedule, err := h.scheduleRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// notifyScheduleChanged публикует schedule.changed (best-effort).
// Планировщики подхватят изменение через polling и без события.
func (h *Handler) notifyScheduleChanged(ctx context.Context, id uuid.UUID, change mq.ScheduleChange) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishScheduleChanged(ctx, id, change); err != nil {
		h.logger.Warn("failed to publish schedule.changed",
			"schedule_id", id,
			"change", change,
			"error", err,
		)
	}
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return defaultVal
	}
	return v
}

package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListRecentExecutions возвращает executions за последние N часов.
// GET /api/v1/executions?hours=...
func (h *Handler) ListRecentExecutions(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		hours = int(mustParseInt(hoursStr, 24))
	}
	if hours <= 0 {
		BadRequest(w, "hours must be positive")
		return
	}

	executions, err := h.executionRepo.ListRecent(r.Context(), hours)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i := range executions {
		result[i] = ExecutionFromDomain(&executions[i])
	}

	List(w, result, len(result))
}

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	execution, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(execution))
}

// ListScheduleExecutions возвращает историю запусков schedule.
// GET /api/v1/schedules/{id}/executions?limit=...
func (h *Handler) ListScheduleExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit = int(mustParseInt(limitStr, 20))
	}

	// Проверяем, что schedule существует
	if _, err := h.scheduleRepo.GetByID(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "schedule not found") {
			return
		}
	}

	executions, err := h.executionRepo.ListBySchedule(r.Context(), id, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i := range executions {
		result[i] = ExecutionFromDomain(&executions[i])
	}

	List(w, result, len(result))
}

// GetExecutionStats возвращает агрегированную статистику за период.
// GET /api/v1/executions/stats?days=...
func (h *Handler) GetExecutionStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		days = int(mustParseInt(daysStr, 7))
	}
	if days <= 0 {
		BadRequest(w, "days must be positive")
		return
	}

	stats, err := h.executionRepo.Statistics(r.Context(), days)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, StatsFromDomain(stats, days))
}

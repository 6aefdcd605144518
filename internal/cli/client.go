package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TimeSpec — уточнение момента запуска внутри периода.
type TimeSpec struct {
	Minute     int    `json:"minute,omitempty"`
	Hour       int    `json:"hour,omitempty"`
	DayOfWeek  int    `json:"day_of_week,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	CronExpr   string `json:"cron_expr,omitempty"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID         string         `json:"id"`
	Domain     string         `json:"domain"`
	ProfileID  string         `json:"profile_id,omitempty"`
	Frequency  string         `json:"frequency"`
	TimeSpec   TimeSpec       `json:"time_spec"`
	Enabled    bool           `json:"enabled"`
	ScanType   string         `json:"scan_type"`
	Params     map[string]any `json:"params,omitempty"`
	NextRunAt  string         `json:"next_run_at,omitempty"`
	LastRunAt  string         `json:"last_run_at,omitempty"`
	LastStatus string         `json:"last_status,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID          string         `json:"id"`
	ScheduleID  string         `json:"schedule_id,omitempty"`
	JobKey      string         `json:"job_key"`
	Domain      string         `json:"domain"`
	Status      string         `json:"status"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	DurationSec float64        `json:"duration_sec,omitempty"`
	ScanID      string         `json:"scan_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StatsResponse — статистика executions из API.
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

// --- Request types ---

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Domain    string         `json:"domain"`
	ProfileID string         `json:"profile_id,omitempty"`
	Frequency string         `json:"frequency"`
	TimeSpec  TimeSpec       `json:"time_spec"`
	Enabled   bool           `json:"enabled"`
	ScanType  string         `json:"scan_type,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Domain    *string         `json:"domain,omitempty"`
	Frequency *string         `json:"frequency,omitempty"`
	TimeSpec  *TimeSpec       `json:"time_spec,omitempty"`
	ScanType  *string         `json:"scan_type,omitempty"`
	Params    *map[string]any `json:"params,omitempty"`
}

// ListSchedulesOpts — параметры фильтрации schedules.
type ListSchedulesOpts struct {
	Domain  string
	Enabled *bool
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Vigil API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Schedules ---

// ListSchedules возвращает schedules с фильтрацией.
func (c *Client) ListSchedules(opts ListSchedulesOpts) ([]ScheduleResponse, error) {
	params := url.Values{}
	if opts.Domain != "" {
		params.Set("domain", opts.Domain)
	}
	if opts.Enabled != nil {
		params.Set("enabled", fmt.Sprintf("%t", *opts.Enabled))
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает schedule.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает schedule.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- Executions ---

// ListRecentExecutions возвращает executions за последние hours часов.
func (c *Client) ListRecentExecutions(hours int) ([]ExecutionResponse, error) {
	params := url.Values{}
	if hours > 0 {
		params.Set("hours", fmt.Sprintf("%d", hours))
	}

	var executions []ExecutionResponse
	err := c.list("/api/v1/executions", params, &executions)
	return executions, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var execution ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &execution)
	return &execution, err
}

// ListScheduleExecutions возвращает историю запусков schedule.
func (c *Client) ListScheduleExecutions(scheduleID string, limit int) ([]ExecutionResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var executions []ExecutionResponse
	err := c.list("/api/v1/schedules/"+scheduleID+"/executions", params, &executions)
	return executions, err
}

// GetStats возвращает статистику executions за days дней.
func (c *Client) GetStats(days int) (*StatsResponse, error) {
	path := "/api/v1/executions/stats"
	if days > 0 {
		path += fmt.Sprintf("?days=%d", days)
	}

	var stats StatsResponse
	err := c.get(path, &stats)
	return &stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Vigil/internal/cron"
	"github.com/shaiso/Vigil/internal/domain"
)

// ScheduleRepo — репозиторий для работы с schedules.
//
// next_run_at пересчитывается внутри Create/Update из frequency + time_spec:
// клиенты никогда не передают next_run напрямую.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Create валидирует определение, вычисляет первый next_run_at и создаёт
// schedule. Некорректный frequency/time_spec отклоняется здесь и никогда
// не доходит до Scheduling Engine.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *domain.Schedule) error {
	if err := cron.Validate(schedule.Frequency, schedule.TimeSpec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	next, err := cron.NextRun(schedule.Frequency, schedule.TimeSpec, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	schedule.NextRunAt = &next

	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	timeSpecJSON, paramsJSON, err := marshalScheduleJSON(schedule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO schedules (id, domain, profile_id, frequency, time_spec, enabled,
		                       scan_type, params, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		schedule.ID,
		schedule.Domain,
		schedule.ProfileID,
		schedule.Frequency,
		timeSpecJSON,
		schedule.Enabled,
		schedule.ScanType,
		paramsJSON,
		schedule.NextRunAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `
		SELECT id, domain, profile_id, frequency, time_spec, enabled, scan_type,
		       params, next_run_at, last_run_at, last_status, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// ListEnabled возвращает все включённые schedules.
// Основной источник для initial load координатора и циклов Change Watcher.
func (r *ScheduleRepo) ListEnabled(ctx context.Context) ([]domain.Schedule, error) {
	query := `
		SELECT id, domain, profile_id, frequency, time_spec, enabled, scan_type,
		       params, next_run_at, last_run_at, last_status, created_at, updated_at
		FROM schedules
		WHERE enabled = true
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// List возвращает список schedules с фильтрацией.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	query := `
		SELECT id, domain, profile_id, frequency, time_spec, enabled, scan_type,
		       params, next_run_at, last_run_at, last_status, created_at, updated_at
		FROM schedules
		WHERE ($1::text IS NULL OR domain = $1)
		  AND ($2::boolean IS NULL OR enabled = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Domain),
		filter.Enabled,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// Update валидирует новое определение, пересчитывает next_run_at и
// обновляет schedule. Обновление разрешено и для schedule, чей lease
// сейчас занят: новые параметры подхватываются на следующем occurrence.
func (r *ScheduleRepo) Update(ctx context.Context, schedule *domain.Schedule) error {
	if err := cron.Validate(schedule.Frequency, schedule.TimeSpec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	next, err := cron.NextRun(schedule.Frequency, schedule.TimeSpec, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	schedule.NextRunAt = &next
	schedule.UpdatedAt = time.Now().UTC()

	timeSpecJSON, paramsJSON, err := marshalScheduleJSON(schedule)
	if err != nil {
		return err
	}

	query := `
		UPDATE schedules
		SET domain = $2, profile_id = $3, frequency = $4, time_spec = $5,
		    enabled = $6, scan_type = $7, params = $8, next_run_at = $9,
		    updated_at = $10
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		schedule.ID,
		schedule.Domain,
		schedule.ProfileID,
		schedule.Frequency,
		timeSpecJSON,
		schedule.Enabled,
		schedule.ScanType,
		paramsJSON,
		schedule.NextRunAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule. История executions переживает удаление:
// schedule_id в executions обнуляется (FK ON DELETE SET NULL).
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает/выключает schedule.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules SET enabled = $2, updated_at = NOW() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRunStart фиксирует начало запуска.
func (r *ScheduleRepo) MarkRunStart(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules SET last_run_at = $2, updated_at = NOW() WHERE id = $1
	`, id, startedAt)
	if err != nil {
		return fmt.Errorf("mark run start: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRunResult фиксирует результат запуска: терминальный статус и
// заранее вычисленный next_run_at для следующего occurrence.
func (r *ScheduleRepo) MarkRunResult(ctx context.Context, id uuid.UUID, completedAt time.Time, status domain.ExecutionStatus, nextRun time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET last_status = $2, next_run_at = $3, updated_at = $4
		WHERE id = $1
	`, id, status, nextRun, completedAt)
	if err != nil {
		return fmt.Errorf("mark run result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// ScheduleFilter — параметры фильтрации schedules.
type ScheduleFilter struct {
	Domain  string
	Enabled *bool
	Limit   int
	Offset  int
}

func marshalScheduleJSON(s *domain.Schedule) (timeSpec, params []byte, err error) {
	timeSpec, err = json.Marshal(s.TimeSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal time_spec: %w", err)
	}
	if s.Params != nil {
		params, err = json.Marshal(s.Params)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal params: %w", err)
		}
	}
	return timeSpec, params, nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanScheduleFromRows(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	var timeSpecJSON, paramsJSON []byte
	var lastStatus *string

	err := row.Scan(
		&s.ID,
		&s.Domain,
		&s.ProfileID,
		&s.Frequency,
		&timeSpecJSON,
		&s.Enabled,
		&s.ScanType,
		&paramsJSON,
		&s.NextRunAt,
		&s.LastRunAt,
		&lastStatus,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	return finishSchedule(&s, timeSpecJSON, paramsJSON, lastStatus)
}

func scanScheduleFromRows(rows pgx.Rows) (*domain.Schedule, error) {
	var s domain.Schedule
	var timeSpecJSON, paramsJSON []byte
	var lastStatus *string

	err := rows.Scan(
		&s.ID,
		&s.Domain,
		&s.ProfileID,
		&s.Frequency,
		&timeSpecJSON,
		&s.Enabled,
		&s.ScanType,
		&paramsJSON,
		&s.NextRunAt,
		&s.LastRunAt,
		&lastStatus,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	return finishSchedule(&s, timeSpecJSON, paramsJSON, lastStatus)
}

func finishSchedule(s *domain.Schedule, timeSpecJSON, paramsJSON []byte, lastStatus *string) (*domain.Schedule, error) {
	if timeSpecJSON != nil {
		if err := json.Unmarshal(timeSpecJSON, &s.TimeSpec); err != nil {
			return nil, fmt.Errorf("unmarshal time_spec: %w", err)
		}
	}
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &s.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	if lastStatus != nil {
		s.LastStatus = domain.ExecutionStatus(*lastStatus)
	}
	return s, nil
}

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
	"github.com/shaiso/Vigil/internal/domain"
)

// ExecutionRepo — репозиторий истории выполнений.
//
// Лог append-mostly: запись создаётся в STARTED и ровно один раз
// переводится в терминальный статус. Переход назад невозможен —
// Finish обновляет только записи в STARTED.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create создаёт execution в статусе STARTED.
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	detailsJSON, metaJSON, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (id, schedule_id, job_key, domain, status,
		                        started_at, scan_id, error, error_details, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.ScheduleID,
		exec.JobKey,
		exec.Domain,
		exec.Status,
		exec.StartedAt,
		exec.ScanID,
		nullString(exec.Error),
		detailsJSON,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Finish переводит execution в терминальный статус.
// Guard в SQL не даёт перезаписать уже терминальную запись: поздний
// результат задачи, чей lease был потерян, сюда не попадёт.
func (r *ExecutionRepo) Finish(ctx context.Context, exec *domain.Execution) error {
	if !exec.Status.IsTerminal() {
		return fmt.Errorf("%w: finish requires terminal status, got %s", ErrInvalidState, exec.Status)
	}

	detailsJSON, metaJSON, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions
		SET status = $2, completed_at = $3, scan_id = $4, error = $5,
		    error_details = $6, metadata = $7
		WHERE id = $1 AND status = 'STARTED'
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.Status,
		exec.CompletedAt,
		exec.ScanID,
		nullString(exec.Error),
		detailsJSON,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := selectExecution + ` WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// GetByJobKey возвращает execution по стабильному идентификатору job.
// Используется для дедупликации запусков одного occurrence.
func (r *ExecutionRepo) GetByJobKey(ctx context.Context, jobKey string) (*domain.Execution, error) {
	query := selectExecution + ` WHERE job_key = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, jobKey))
}

// ListRecent возвращает executions за последние hours часов.
func (r *ExecutionRepo) ListRecent(ctx context.Context, hours int) ([]domain.Execution, error) {
	query := selectExecution + `
		WHERE started_at >= NOW() - make_interval(hours => $1)
		ORDER BY started_at DESC
	`
	rows, err := r.pool.Query(ctx, query, hours)
	if err != nil {
		return nil, fmt.Errorf("list recent executions: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// ListBySchedule возвращает executions конкретного schedule.
func (r *ExecutionRepo) ListBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.Execution, error) {
	query := selectExecution + `
		WHERE schedule_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions by schedule: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// Statistics возвращает агрегированную статистику за последние days дней.
// success_rate = success / total * 100; длительности считаются только
// по завершённым записям.
func (r *ExecutionRepo) Statistics(ctx context.Context, days int) (*domain.ExecutionStats, error) {
	query := `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'SUCCESS'),
		       count(*) FILTER (WHERE status = 'FAILED'),
		       COALESCE(avg(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE completed_at IS NOT NULL), 0),
		       COALESCE(min(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE completed_at IS NOT NULL), 0),
		       COALESCE(max(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE completed_at IS NOT NULL), 0)
		FROM executions
		WHERE started_at >= NOW() - make_interval(days => $1)
	`

	var stats domain.ExecutionStats
	var avgSec, minSec, maxSec float64
	err := r.pool.QueryRow(ctx, query, days).Scan(
		&stats.Total,
		&stats.Success,
		&stats.Failed,
		&avgSec,
		&minSec,
		&maxSec,
	)
	if err != nil {
		return nil, fmt.Errorf("execution statistics: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total) * 100
	}
	stats.AvgDuration = time.Duration(avgSec * float64(time.Second))
	stats.MinDuration = time.Duration(minSec * float64(time.Second))
	stats.MaxDuration = time.Duration(maxSec * float64(time.Second))

	return &stats, nil
}

// --- Helpers ---

const selectExecution = `
	SELECT id, schedule_id, job_key, domain, status, started_at,
	       completed_at, scan_id, error, error_details, metadata
	FROM executions`

func marshalExecutionJSON(e *domain.Execution) (details, meta []byte, err error) {
	if e.ErrorDetails != nil {
		details, err = json.Marshal(e.ErrorDetails)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal error_details: %w", err)
		}
	}
	if e.Metadata != nil {
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return details, meta, nil
}

func collectExecutions(rows pgx.Rows) ([]domain.Execution, error) {
	var execs []domain.Execution
	for rows.Next() {
		exec, err := scanExecutionFromRows(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var errMsg *string
	var detailsJSON, metaJSON []byte

	err := row.Scan(
		&e.ID,
		&e.ScheduleID,
		&e.JobKey,
		&e.Domain,
		&e.Status,
		&e.StartedAt,
		&e.CompletedAt,
		&e.ScanID,
		&errMsg,
		&detailsJSON,
		&metaJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	return finishExecution(&e, errMsg, detailsJSON, metaJSON)
}

func scanExecutionFromRows(rows pgx.Rows) (*domain.Execution, error) {
	var e domain.Execution
	var errMsg *string
	var detailsJSON, metaJSON []byte

	err := rows.Scan(
		&e.ID,
		&e.ScheduleID,
		&e.JobKey,
		&e.Domain,
		&e.Status,
		&e.StartedAt,
		&e.CompletedAt,
		&e.ScanID,
		&errMsg,
		&detailsJSON,
		&metaJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	return finishExecution(&e, errMsg, detailsJSON, metaJSON)
}

func finishExecution(e *domain.Execution, errMsg *string, detailsJSON, metaJSON []byte) (*domain.Execution, error) {
	if errMsg != nil {
		e.Error = *errMsg
	}
	if detailsJSON != nil {
		if err := json.Unmarshal(detailsJSON, &e.ErrorDetails); err != nil {
			return nil, fmt.Errorf("unmarshal error_details: %w", err)
		}
	}
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return e, nil
}

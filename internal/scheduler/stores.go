package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
	"github.com/shaiso/Vigil/internal/lease"
)

// ScheduleStore — операции над schedules, нужные планировщику.
// Реализация: repo.ScheduleRepo.
type ScheduleStore interface {
	ListEnabled(ctx context.Context) ([]domain.Schedule, error)
	MarkRunStart(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	MarkRunResult(ctx context.Context, id uuid.UUID, completedAt time.Time, status domain.ExecutionStatus, nextRun time.Time) error
}

// ExecutionStore — запись истории выполнений.
// Реализация: repo.ExecutionRepo.
type ExecutionStore interface {
	Create(ctx context.Context, exec *domain.Execution) error
	Finish(ctx context.Context, exec *domain.Execution) error
	GetByJobKey(ctx context.Context, jobKey string) (*domain.Execution, error)
}

// LeaseService — распределённые lease'ы вокруг запуска задач.
// Реализация: lease.Manager.
type LeaseService interface {
	TryAcquire(ctx context.Context, key uuid.UUID) (*lease.Lease, error)
	Renew(ctx context.Context, l *lease.Lease) error
	Release(ctx context.Context, l *lease.Lease) error
	TTL() time.Duration
}

package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaseRepo — атомарные операции над таблицей scan_leases.
//
// Все три операции — одиночные conditional write'ы: владение проверяется
// тем же statement'ом, который его меняет. Никаких read-modify-write
// циклов, поэтому гонки между инстансами исключены на уровне БД.
type LeaseRepo struct {
	pool *pgxpool.Pool
}

// NewLeaseRepo создаёт новый LeaseRepo.
func NewLeaseRepo(pool *pgxpool.Pool) *LeaseRepo {
	return &LeaseRepo{pool: pool}
}

// TryAcquire пытается захватить lease: set-if-absent-or-expired.
// Возвращает false, если lease держит другой живой владелец.
// Никогда не блокируется в ожидании освобождения.
func (r *LeaseRepo) TryAcquire(ctx context.Context, key uuid.UUID, token string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO scan_leases (key, owner_token, expires_at)
		VALUES ($1, $2, NOW() + $3)
		ON CONFLICT (key) DO UPDATE
		SET owner_token = EXCLUDED.owner_token, expires_at = EXCLUDED.expires_at
		WHERE scan_leases.expires_at <= NOW()
	`
	result, err := r.pool.Exec(ctx, query, key, token, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Renew продлевает lease, если предъявленный token всё ещё владелец.
// Возвращает false, если lease истёк или перехвачен другим владельцем.
func (r *LeaseRepo) Renew(ctx context.Context, key uuid.UUID, token string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE scan_leases
		SET expires_at = NOW() + $3
		WHERE key = $1 AND owner_token = $2 AND expires_at > NOW()
	`
	result, err := r.pool.Exec(ctx, query, key, token, ttl)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Release снимает lease, если предъявленный token всё ещё владелец.
// Возвращает false, если владение уже утрачено.
func (r *LeaseRepo) Release(ctx context.Context, key uuid.UUID, token string) (bool, error) {
	query := `
		DELETE FROM scan_leases
		WHERE key = $1 AND owner_token = $2
	`
	result, err := r.pool.Exec(ctx, query, key, token)
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

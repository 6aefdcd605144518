// Package lease реализует распределённые краткоживущие lease'ы
// поверх стора с атомарным conditional write.
//
// Lease — best-effort mutual exclusion с авто-восстановлением: истечение
// TTL освобождает ключ после краха владельца без чьего-либо участия.
// Назначение lease — дедупликация триггеров (не более одного запуска
// на occurrence), а не дедупликация результатов.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Сигналы владения. Это не ошибки инфраструктуры, а нормальный
// control flow: busy — ключ держит другой владелец, lost — предъявленный
// token больше не владелец.
var (
	// ErrBusy — lease занят другим живым владельцем.
	ErrBusy = errors.New("lease busy")

	// ErrLost — lease истёк или перехвачен; вызывающий больше не владелец
	// и обязан прервать свои side effects, какие ещё может.
	ErrLost = errors.New("lease lost")
)

// DefaultTTL должен с запасом превышать worst-case длительность задачи
// сканирования; для более длинных задач engine продлевает lease
// периодически.
const DefaultTTL = 10 * time.Minute

// Store — атомарные операции стора над lease-записями.
// Реализация: repo.LeaseRepo (Postgres). Семантика swappable: любой стор
// с conditional write (set-if-absent-or-expired) подходит.
type Store interface {
	TryAcquire(ctx context.Context, key uuid.UUID, token string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, key uuid.UUID, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key uuid.UUID, token string) (bool, error)
}

// Lease — выигранное владение ключом.
type Lease struct {
	// Key — ключ владения (schedule id).
	Key uuid.UUID

	// Token — opaque-токен владельца. Renew/Release проверяют его
	// на стороне стора.
	Token string

	// TTL — срок владения с момента acquire/renew.
	TTL time.Duration
}

// Manager выдаёт и сопровождает lease'ы.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewManager создаёт Manager. ttl <= 0 заменяется на DefaultTTL.
func NewManager(store Store, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, ttl: ttl, logger: logger}
}

// TTL возвращает настроенный срок владения.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// TryAcquire пытается захватить lease для key одной атомарной операцией.
// Возвращает ErrBusy, если ключ держит другой владелец. Не блокируется.
func (m *Manager) TryAcquire(ctx context.Context, key uuid.UUID) (*Lease, error) {
	token := uuid.New().String()

	ok, err := m.store.TryAcquire(ctx, key, token, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("try acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}

	m.logger.Debug("lease acquired", "key", key, "ttl", m.ttl)
	return &Lease{Key: key, Token: token, TTL: m.ttl}, nil
}

// Renew продлевает lease на ещё один TTL.
// Возвращает ErrLost, если token больше не владелец: вызывающий обязан
// считать, что ресурс ему не принадлежит.
func (m *Manager) Renew(ctx context.Context, l *Lease) error {
	ok, err := m.store.Renew(ctx, l.Key, l.Token, m.ttl)
	if err != nil {
		return fmt.Errorf("renew %s: %w", l.Key, err)
	}
	if !ok {
		return ErrLost
	}
	return nil
}

// Release снимает lease. Возвращает ErrLost, если владение уже утрачено
// (lease истёк и, возможно, перехвачен).
func (m *Manager) Release(ctx context.Context, l *Lease) error {
	ok, err := m.store.Release(ctx, l.Key, l.Token)
	if err != nil {
		return fmt.Errorf("release %s: %w", l.Key, err)
	}
	if !ok {
		return ErrLost
	}
	m.logger.Debug("lease released", "key", l.Key)
	return nil
}

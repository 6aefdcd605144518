package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
	"github.com/shaiso/Vigil/internal/telemetry"
)

// Delta — результат одного сравнения стора с известным состоянием.
type Delta struct {
	Added   []*domain.Schedule
	Updated []*domain.Schedule
	Removed []uuid.UUID
}

// Empty сообщает, что изменений нет.
func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Watcher отслеживает изменения enabled schedules в сторе.
//
// Сравнение содержимое-ориентированное: для каждого schedule считается
// fingerprint по scheduling-значимым полям. Изменения last_run_at,
// next_run_at и прочих полей выполнения разницей не считаются — иначе
// каждый запуск на одном инстансе выглядел бы как update для всех
// остальных. Disable и удаление неразличимы и оба дают Removed.
type Watcher struct {
	schedules ScheduleStore
	logger    *slog.Logger

	// known — fingerprint последнего увиденного состояния по id.
	// Доступ только из цикла координатора, без блокировок.
	known map[uuid.UUID]uint64
}

// NewWatcher создаёт Watcher с пустым известным состоянием:
// первый Diff вернёт все enabled schedules как Added.
func NewWatcher(schedules ScheduleStore, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		schedules: schedules,
		logger:    logger,
		known:     make(map[uuid.UUID]uint64),
	}
}

// Diff загружает enabled schedules и возвращает дельту относительно
// предыдущего вызова. Известное состояние обновляется только при
// успешной загрузке; ошибка стора оставляет его нетронутым, и дельта
// доберётся на следующем цикле.
func (w *Watcher) Diff(ctx context.Context) (*Delta, error) {
	current, err := w.schedules.ListEnabled(ctx)
	if err != nil {
		telemetry.WatcherFailuresTotal.Inc()
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	telemetry.WatcherCyclesTotal.Inc()

	delta := &Delta{}
	seen := make(map[uuid.UUID]uint64, len(current))

	for i := range current {
		s := &current[i]
		fp := s.Fingerprint()
		seen[s.ID] = fp

		prev, ok := w.known[s.ID]
		switch {
		case !ok:
			delta.Added = append(delta.Added, s)
		case prev != fp:
			delta.Updated = append(delta.Updated, s)
		}
	}

	for id := range w.known {
		if _, ok := seen[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}

	w.known = seen

	if !delta.Empty() {
		w.logger.Debug("schedule changes detected",
			"added", len(delta.Added),
			"updated", len(delta.Updated),
			"removed", len(delta.Removed),
		)
	}
	return delta, nil
}

// Reset сбрасывает известное состояние: следующий Diff вернёт полную
// картину как Added. Используется координатором при рестарте.
func (w *Watcher) Reset() {
	w.known = make(map[uuid.UUID]uint64)
}

package scheduler

import (
	"time"

	"github.com/shaiso/Vigil/internal/domain"
)

// occurrence — эфемерная пара "schedule + время следующего срабатывания".
// Живёт только в памяти engine'а и всегда восстановима из next_run
// schedule'а.
type occurrence struct {
	schedule *domain.Schedule
	fireAt   time.Time
	index    int // позиция в heap; -1 после извлечения
}

// occurrenceHeap — min-heap occurrences по fireAt.
// Реализует container/heap.Interface.
type occurrenceHeap []*occurrence

func (h occurrenceHeap) Len() int { return len(h) }

func (h occurrenceHeap) Less(i, j int) bool {
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h occurrenceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *occurrenceHeap) Push(x any) {
	occ := x.(*occurrence)
	occ.index = len(*h)
	*h = append(*h, occ)
}

func (h *occurrenceHeap) Pop() any {
	old := *h
	n := len(old)
	occ := old[n-1]
	old[n-1] = nil
	occ.index = -1
	*h = old[:n-1]
	return occ
}

// peek возвращает ближайший occurrence без извлечения.
func (h occurrenceHeap) peek() *occurrence {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

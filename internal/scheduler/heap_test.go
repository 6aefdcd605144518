package scheduler

import (
	"container/heap"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vigil/internal/domain"
)

func TestOccurrenceHeap_PopsInFireOrder(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var h occurrenceHeap
	for _, offset := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		heap.Push(&h, &occurrence{
			schedule: &domain.Schedule{ID: uuid.New()},
			fireAt:   base.Add(offset),
		})
	}

	var got []time.Time
	for h.Len() > 0 {
		got = append(got, heap.Pop(&h).(*occurrence).fireAt)
	}

	for i := 1; i < len(got); i++ {
		if got[i].Before(got[i-1]) {
			t.Fatalf("pop order not sorted: %v", got)
		}
	}
}

func TestOccurrenceHeap_Peek(t *testing.T) {
	var h occurrenceHeap
	if h.peek() != nil {
		t.Error("peek on empty heap should be nil")
	}

	early := &occurrence{schedule: &domain.Schedule{ID: uuid.New()}, fireAt: time.Unix(100, 0)}
	late := &occurrence{schedule: &domain.Schedule{ID: uuid.New()}, fireAt: time.Unix(200, 0)}
	heap.Push(&h, late)
	heap.Push(&h, early)

	if h.peek() != early {
		t.Error("peek should return the earliest occurrence")
	}
	if h.Len() != 2 {
		t.Error("peek must not remove elements")
	}
}

func TestOccurrenceHeap_FixAfterTimeChange(t *testing.T) {
	var h occurrenceHeap
	a := &occurrence{schedule: &domain.Schedule{ID: uuid.New()}, fireAt: time.Unix(100, 0)}
	b := &occurrence{schedule: &domain.Schedule{ID: uuid.New()}, fireAt: time.Unix(200, 0)}
	heap.Push(&h, a)
	heap.Push(&h, b)

	// a сдвигается позже b — Fix восстанавливает порядок по index
	a.fireAt = time.Unix(300, 0)
	heap.Fix(&h, a.index)

	if h.peek() != b {
		t.Error("heap should re-order after Fix")
	}

	heap.Remove(&h, b.index)
	if h.peek() != a {
		t.Error("remove by index should leave the other occurrence")
	}
}

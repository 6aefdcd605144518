package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memStore — in-memory реализация Store для тестов.
// Повторяет семантику set-if-absent-or-expired.
type memStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memEntry
	err     error // если задана, все операции возвращают её
}

type memEntry struct {
	token     string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[uuid.UUID]memEntry)}
}

func (s *memStore) TryAcquire(_ context.Context, key uuid.UUID, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}

	if e, ok := s.entries[key]; ok && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = memEntry{token: token, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *memStore) Renew(_ context.Context, key uuid.UUID, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}

	e, ok := s.entries[key]
	if !ok || e.token != token || !time.Now().Before(e.expiresAt) {
		return false, nil
	}
	e.expiresAt = time.Now().Add(ttl)
	s.entries[key] = e
	return true, nil
}

func (s *memStore) Release(_ context.Context, key uuid.UUID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}

	e, ok := s.entries[key]
	if !ok || e.token != token {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func TestManager_TryAcquire(t *testing.T) {
	m := NewManager(newMemStore(), time.Minute, nil)
	key := uuid.New()

	l, err := m.TryAcquire(context.Background(), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Key != key {
		t.Errorf("key = %s, want %s", l.Key, key)
	}
	if l.Token == "" {
		t.Error("token should be generated")
	}
	if l.TTL != time.Minute {
		t.Errorf("ttl = %v, want 1m", l.TTL)
	}
}

func TestManager_TryAcquire_Busy(t *testing.T) {
	m := NewManager(newMemStore(), time.Minute, nil)
	key := uuid.New()

	if _, err := m.TryAcquire(context.Background(), key); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err := m.TryAcquire(context.Background(), key)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestManager_TryAcquire_AfterExpiry(t *testing.T) {
	store := newMemStore()
	key := uuid.New()

	// Протухшая запись от упавшего владельца
	store.entries[key] = memEntry{token: "dead-owner", expiresAt: time.Now().Add(-time.Second)}

	m := NewManager(store, time.Minute, nil)
	if _, err := m.TryAcquire(context.Background(), key); err != nil {
		t.Errorf("expired lease should be acquirable, got %v", err)
	}
}

func TestManager_TryAcquire_DistinctKeys(t *testing.T) {
	m := NewManager(newMemStore(), time.Minute, nil)

	if _, err := m.TryAcquire(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.TryAcquire(context.Background(), uuid.New()); err != nil {
		t.Errorf("leases on distinct keys should not contend: %v", err)
	}
}

func TestManager_Renew(t *testing.T) {
	m := NewManager(newMemStore(), time.Minute, nil)

	l, err := m.TryAcquire(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := m.Renew(context.Background(), l); err != nil {
		t.Errorf("renew by owner should succeed: %v", err)
	}
}

func TestManager_Renew_Lost(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, time.Minute, nil)
	key := uuid.New()

	l, err := m.TryAcquire(context.Background(), key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Lease истёк и перехвачен другим владельцем
	store.entries[key] = memEntry{token: "new-owner", expiresAt: time.Now().Add(time.Minute)}

	if err := m.Renew(context.Background(), l); !errors.Is(err, ErrLost) {
		t.Errorf("err = %v, want ErrLost", err)
	}
}

func TestManager_Release(t *testing.T) {
	m := NewManager(newMemStore(), time.Minute, nil)
	key := uuid.New()

	l, err := m.TryAcquire(context.Background(), key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := m.Release(context.Background(), l); err != nil {
		t.Fatalf("release: %v", err)
	}

	// После release ключ свободен
	if _, err := m.TryAcquire(context.Background(), key); err != nil {
		t.Errorf("key should be acquirable after release: %v", err)
	}
}

func TestManager_Release_Lost(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, time.Minute, nil)
	key := uuid.New()

	l, err := m.TryAcquire(context.Background(), key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	store.entries[key] = memEntry{token: "new-owner", expiresAt: time.Now().Add(time.Minute)}

	if err := m.Release(context.Background(), l); !errors.Is(err, ErrLost) {
		t.Errorf("err = %v, want ErrLost", err)
	}
}

func TestManager_StoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	m := NewManager(store, time.Minute, nil)

	_, err := m.TryAcquire(context.Background(), uuid.New())
	if err == nil || errors.Is(err, ErrBusy) {
		t.Errorf("infra error must not be reported as ErrBusy, got %v", err)
	}
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m := NewManager(newMemStore(), 0, nil)
	if m.TTL() != DefaultTTL {
		t.Errorf("ttl = %v, want %v", m.TTL(), DefaultTTL)
	}
}

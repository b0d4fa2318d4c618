package audit

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity is how many events a MemoryStore retains by default.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent events in process as a ring buffer. Used by
// tests and by deployments without a database; the oldest event is evicted once
// the store is full.
type MemoryStore struct {
	mu    sync.RWMutex
	buf   []Event
	start int
	size  int
}

func NewMemoryStore() *MemoryStore {
	return NewBoundedMemoryStore(DefaultMemoryCapacity)
}

// NewBoundedMemoryStore retains at most capacity events. A capacity below one
// falls back to DefaultMemoryCapacity.
func NewBoundedMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{buf: make([]Event, capacity)}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = event
		s.size++
		return nil
	}
	s.buf[s.start] = event
	s.start = (s.start + 1) % len(s.buf)
	return nil
}

// at returns the i-th retained event, oldest first. Callers hold mu.
func (s *MemoryStore) at(i int) Event {
	return s.buf[(s.start+i)%len(s.buf)]
}

// ListByUser returns up to limit events for userID, newest first. A limit of
// zero or less returns all of them.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Event{}
	for i := s.size - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if e := s.at(i); e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns every retained event in append order.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, s.size)
	for i := range s.size {
		out = append(out, s.at(i))
	}
	return out
}

// OfType returns retained events of the given type in append order.
func (s *MemoryStore) OfType(t EventType) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for i := range s.size {
		if e := s.at(i); e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Len reports how many events are retained.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

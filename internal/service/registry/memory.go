package registry

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
)

type entry struct {
	userID  string
	session *interview.Session
	touched time.Time
}

// Memory is an in-process Store bounded by capacity (least recently used
// entry evicted first) and by idle TTL.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	ll       *list.List
	items    map[string]*list.Element
}

// NewMemory builds a memory store. capacity <= 0 means unbounded; ttl <= 0
// disables idle expiry.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, userID string, s *interview.Session) error {
	if userID == "" || s == nil {
		return fmt.Errorf("%w: user id and session required", domain.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if el, ok := m.items[userID]; ok {
		e := el.Value.(*entry)
		e.session, e.touched = s, now
		m.ll.MoveToFront(el)
		return nil
	}
	m.items[userID] = m.ll.PushFront(&entry{userID: userID, session: s, touched: now})
	for m.capacity > 0 && m.ll.Len() > m.capacity {
		m.removeElement(m.ll.Back(), "capacity")
	}
	observability.RegistrySessions.Set(float64(m.ll.Len()))
	return nil
}

// Get implements Store. A hit refreshes recency and idle time.
func (m *Memory) Get(_ context.Context, userID string) (*interview.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[userID]
	if !ok {
		return nil, fmt.Errorf("op=registry.get: %w", domain.ErrSessionNotFound)
	}
	e := el.Value.(*entry)
	now := m.now()
	if m.expired(e, now) {
		m.removeElement(el, "ttl")
		observability.RegistrySessions.Set(float64(m.ll.Len()))
		return nil, fmt.Errorf("op=registry.get: %w", domain.ErrSessionNotFound)
	}
	e.touched = now
	m.ll.MoveToFront(el)
	return e.session, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[userID]; ok {
		m.ll.Remove(el)
		delete(m.items, userID)
		observability.RegistrySessions.Set(float64(m.ll.Len()))
	}
	return nil
}

// Len implements Store. Expired entries not yet swept are still counted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// Sweep removes every expired entry and returns how many were dropped.
func (m *Memory) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	// Oldest entries sit at the back.
	for el := m.ll.Back(); el != nil; {
		prev := el.Prev()
		if m.expired(el.Value.(*entry), now) {
			m.removeElement(el, "ttl")
			n++
		}
		el = prev
	}
	observability.RegistrySessions.Set(float64(m.ll.Len()))
	return n
}

// RunJanitor sweeps every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.ttl <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("session registry swept", slog.Int("expired", n))
			}
		}
	}
}

func (m *Memory) expired(e *entry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.touched) > m.ttl
}

func (m *Memory) removeElement(el *list.Element, reason string) {
	e := el.Value.(*entry)
	m.ll.Remove(el)
	delete(m.items, e.userID)
	observability.RegistryEvicted(reason)
}

package session

import (
	"container/heap"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/reportql/reportql/internal/confirm"
)

type memoryEntry struct {
	mu      sync.Mutex
	session Session
	index   int
}

// MemoryStore keeps sessions in process. Expiry is indexed by creation time
// so a sweep only visits expired entries.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	expiry   expiryHeap
	now      func() time.Time
}

func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		now:      clock,
	}
}

func (s *MemoryStore) Create(ctx context.Context, query string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	base := DeriveID(now, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	id := base
	for n := 2; ; n++ {
		if _, exists := s.sessions[id]; !exists {
			break
		}
		id = base + "-" + strconv.Itoa(n)
	}
	entry := &memoryEntry{session: Session{
		ID:        id,
		Query:     query,
		State:     confirm.StateNew,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.sessions[id] = entry
	heap.Push(&s.expiry, entry)
	return entry.session.clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return entry.session.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return Session{}, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	current, ok := s.sessions[id]
	working := entry.session.clone()
	s.mu.Unlock()
	if !ok || current != entry {
		return Session{}, ErrNotFound
	}

	if err := fn(&working); err != nil {
		return Session{}, err
	}
	working.ID = entry.session.ID
	working.CreatedAt = entry.session.CreatedAt
	working.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[id]; !ok || current != entry {
		return Session{}, ErrNotFound
	}
	entry.session = working
	return working.clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	heap.Remove(&s.expiry, entry.index)
	delete(s.sessions, id)
	return nil
}

// SweepExpired removes sessions created before cutoff.
func (s *MemoryStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for s.expiry.Len() > 0 && s.expiry[0].session.CreatedAt.Before(cutoff) {
		entry := heap.Pop(&s.expiry).(*memoryEntry)
		delete(s.sessions, entry.session.ID)
		removed++
	}
	return removed, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

type expiryHeap []*memoryEntry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	return h[i].session.CreatedAt.Before(h[j].session.CreatedAt)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	entry := x.(*memoryEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

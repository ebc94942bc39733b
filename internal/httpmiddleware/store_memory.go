package httpmiddleware

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type hit struct {
	id string
	at time.Time
}

type hitLog struct {
	hits   []hit
	window time.Duration
}

// MemoryStore keeps hit logs in process memory. State is lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string]*hitLog
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*hitLog)}
}

// Allow implements Store.
func (s *MemoryStore) Allow(_ context.Context, key string, window time.Duration, max int, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[key]
	if !ok {
		l = &hitLog{window: window}
		s.logs[key] = l
	}
	l.prune(now)

	if len(l.hits) >= max {
		return Result{Count: len(l.hits), RetryAfter: l.hits[0].at.Add(window).Sub(now)}, nil
	}
	h := hit{id: uuid.NewString(), at: now}
	l.hits = append(l.hits, h)
	return Result{Allowed: true, Count: len(l.hits), HitID: h.id}, nil
}

// Undo implements Store.
func (s *MemoryStore) Undo(_ context.Context, key, hitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[key]
	if !ok {
		return nil
	}
	for i, h := range l.hits {
		if h.id == hitID {
			l.hits = append(l.hits[:i], l.hits[i+1:]...)
			break
		}
	}
	return nil
}

// Sweep drops keys whose hits have all left their window.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, l := range s.logs {
		l.prune(now)
		if len(l.hits) == 0 {
			delete(s.logs, k)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Sweep(now)
		}
	}
}

func (s *MemoryStore) keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// prune removes hits at or before now-window. Hits are appended in time order.
func (l *hitLog) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.hits) && !l.hits[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		l.hits = append(l.hits[:0], l.hits[i:]...)
	}
}

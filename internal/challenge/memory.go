package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSweepInterval is how often the in-memory store drops expired
// entries that were never read back.
const DefaultSweepInterval = time.Minute

// MemoryStore is the single-instance backend: a mutex-guarded map with lazy
// expiry on Get and a periodic sweep so abandoned enrollments cannot grow the
// map unbounded. For multi-instance deployments use RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Challenge

	stop chan struct{}
	once sync.Once
}

// NewMemoryStore creates the store and starts its sweep goroutine.
// Call Stop on shutdown.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	s := &MemoryStore{
		entries: make(map[uuid.UUID]Challenge),
		stop:    make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

func (s *MemoryStore) Put(ctx context.Context, deviceID uuid.UUID, ch Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[deviceID] = ch
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, deviceID uuid.UUID) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.entries[deviceID]
	if !ok {
		return nil, nil
	}
	if ch.Expired(time.Now()) {
		delete(s.entries, deviceID)
		return nil, nil
	}
	out := ch
	return &out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, deviceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, deviceID)
	return nil
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *MemoryStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, ch := range s.entries {
				if ch.Expired(now) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

package usage

import (
	"context"
	"fmt"
	"sync"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
)

type entry struct {
	mu     sync.Mutex
	record Record
	exists bool
}

// MemoryStore keeps records in process memory. The map lock is held only to
// find or create an entry; each entry has its own lock for the
// read-modify-write, so unrelated subscriptions never contend.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     clock.Clock
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(now clock.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     now,
	}
}

func (s *MemoryStore) Increment(
	ctx context.Context,
	inc Increment,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if inc.SubscriptionID == "" {
		return fmt.Errorf("usage increment: subscription id is required")
	}
	inc = inc.Normalized()

	e := s.entry(inc.SubscriptionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record.SubscriptionID = inc.SubscriptionID
	e.record.UserID = inc.UserID
	e.record.ProductID = inc.ProductID
	e.record.InputUnits += inc.InputUnits
	e.record.OutputUnits += inc.OutputUnits
	e.record.UpdatedAt = s.now.Now()
	e.exists = true
	return nil
}

func (s *MemoryStore) Get(
	ctx context.Context,
	subscriptionID string,
) (
	*Record,
	error,
) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	e, ok := s.entries[subscriptionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		return nil, ErrNotFound
	}
	record := e.record
	return &record, nil
}

func (s *MemoryStore) entry(subscriptionID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[subscriptionID]
	if !ok {
		e = &entry{}
		s.entries[subscriptionID] = e
	}
	return e
}

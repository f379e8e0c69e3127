package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
)

// Store keeps call snapshots in process memory: the single-replica and
// simulator setup. Snapshots are copied on the way in and out so a running
// call never shares state with what was stored.
type Store struct {
	mu    sync.RWMutex
	calls map[string]*domain.CallSession
}

func NewStore() *Store {
	return &Store{calls: make(map[string]*domain.CallSession)}
}

func (s *Store) Save(ctx context.Context, callID string, session *domain.CallSession) error {
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[callID] = copied
	return nil
}

func (s *Store) Load(ctx context.Context, callID string) (*domain.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.calls[callID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, callID)
	return nil
}

// List returns the stored call ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calls := make([]string, 0, len(s.calls))
	for id := range s.calls {
		calls = append(calls, id)
	}
	sort.Strings(calls)
	return calls, nil
}

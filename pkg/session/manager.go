package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Manager guards call snapshots. Every read and write of one call runs
// under that call's lock: a process-local mutex, plus the CallLocker when
// replicas share the store.
type Manager struct {
	store   ports.SessionStore
	local   *callMutexes
	locker  ports.CallLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker makes replicas sharing the store agree on who owns a call.
func WithLocker(locker ports.CallLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL bounds how long a crashed replica can keep a call locked.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager wraps store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		local:   newCallMutexes(),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithLock runs fn while callID is owned by the caller.
func (m *Manager) WithLock(ctx context.Context, callID string, fn func(context.Context) error) error {
	unlock := m.local.lock(callID)
	defer unlock()

	if m.locker == nil {
		return fn(ctx)
	}
	release, err := m.locker.Lock(ctx, callID, m.lockTTL)
	if err != nil {
		return fmt.Errorf("lock call %s: %w", callID, err)
	}
	defer func() {
		// ctx may be cancelled by now; the lock still has to go.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			m.logger.Warn("call lock not released, it will expire", "call_id", callID, "ttl", m.lockTTL, "err", err)
		}
	}()
	return fn(ctx)
}

func (m *Manager) Load(ctx context.Context, callID string) (s *domain.CallSession, err error) {
	err = m.WithLock(ctx, callID, func(ctx context.Context) error {
		s, err = m.store.Load(ctx, callID)
		return err
	})
	return s, err
}

// LoadOrStart resumes callID when its stored snapshot is still active.
// Otherwise a fresh session at startNode is saved, replacing an ended one,
// and resumed is false.
func (m *Manager) LoadOrStart(ctx context.Context, callID, startNode string, now time.Time) (s *domain.CallSession, resumed bool, err error) {
	err = m.WithLock(ctx, callID, func(ctx context.Context) error {
		stored, err := m.store.Load(ctx, callID)
		if err == nil && !stored.Ended() {
			s, resumed = stored, true
			return nil
		}
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("load call %s: %w", callID, err)
		}
		s = domain.NewCallSession(callID, startNode, now)
		if err := m.store.Save(ctx, callID, s); err != nil {
			return fmt.Errorf("start call %s: %w", callID, err)
		}
		return nil
	})
	return s, resumed, err
}

func (m *Manager) Save(ctx context.Context, callID string, s *domain.CallSession) error {
	return m.WithLock(ctx, callID, func(ctx context.Context) error {
		return m.store.Save(ctx, callID, s)
	})
}

func (m *Manager) Delete(ctx context.Context, callID string) error {
	return m.WithLock(ctx, callID, func(ctx context.Context) error {
		return m.store.Delete(ctx, callID)
	})
}

// List returns the stored call ids without locking them.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Summary is one line of a store listing. Err is set when the snapshot
// could not be read (a rotated-out encryption key, for instance).
type Summary struct {
	ID        string
	Status    domain.CallStatus
	EndReason string
	NodeID    string
	Turns     int
	UpdatedAt time.Time
	Err       error
}

// Summaries loads every stored call. Unreadable snapshots are reported in
// their Summary instead of failing the listing.
func (m *Manager) Summaries(ctx context.Context) ([]Summary, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		s, err := m.Load(ctx, id)
		if err != nil {
			out = append(out, Summary{ID: id, Err: err})
			continue
		}
		out = append(out, Summary{
			ID:        id,
			Status:    s.Status,
			EndReason: s.EndReason,
			NodeID:    s.CurrentNodeID,
			Turns:     s.Turns,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return out, nil
}

// Prune deletes stored calls that have ended and returns their ids.
// Active calls are never touched.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	var pruned []string
	var errs []error
	for _, id := range ids {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			s, err := m.store.Load(ctx, id)
			if err != nil || !s.Ended() {
				return err
			}
			if err := m.store.Delete(ctx, id); err != nil {
				return err
			}
			pruned = append(pruned, id)
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("call %s: %w", id, err))
		}
	}
	return pruned, errors.Join(errs...)
}

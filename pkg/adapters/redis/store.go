package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/callflow/pkg/domain"
)

const defaultPrefix = "callflow:"

// neverExpires scores index entries of snapshots saved without a TTL.
const neverExpires = 1 << 53

// Store implements ports.SessionStore on redis. Under the prefix each call
// is a JSON value at "call:<id>" and "calls" is a sorted set of call ids
// scored by expiry, which backs List.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL expires snapshots ttl after their last save. Zero keeps them.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix namespaces every key, so several deployments can share a
// redis.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock replaces time.Now for index scores.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewFromClient uses client; closing it stays with the caller.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) callKey(callID string) string { return s.prefix + "call:" + callID }
func (s *Store) indexKey() string             { return s.prefix + "calls" }

func (s *Store) Save(ctx context.Context, callID string, session *domain.CallSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", callID, err)
	}

	score := float64(neverExpires)
	if s.ttl > 0 {
		score = float64(s.now().Add(s.ttl).Unix())
	}

	_, err = s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Set(ctx, s.callKey(callID), data, s.ttl)
		p.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: callID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save call %s: %w", callID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, callID string) (*domain.CallSession, error) {
	data, err := s.client.Get(ctx, s.callKey(callID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load call %s: %w", callID, err)
	}

	var session domain.CallSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode call %s: %w", callID, err)
	}
	return &session, nil
}

func (s *Store) Delete(ctx context.Context, callID string) error {
	_, err := s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Del(ctx, s.callKey(callID))
		p.ZRem(ctx, s.indexKey(), callID)
		return nil
	})
	return err
}

// List returns the ids of stored calls. Index entries past their expiry,
// or whose snapshot redis already evicted, are dropped on the way.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("prune call index: %w", err)
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	exists := make([]*backend.IntCmd, len(ids))
	if _, err := s.client.Pipelined(ctx, func(p backend.Pipeliner) error {
		for i, id := range ids {
			exists[i] = p.Exists(ctx, s.callKey(id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	live := ids[:0]
	var gone []any
	for i, id := range ids {
		if exists[i].Val() == 1 {
			live = append(live, id)
		} else {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), gone...).Err()
	}
	return live, nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

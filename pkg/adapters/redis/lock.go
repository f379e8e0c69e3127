package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/callflow/pkg/ports"
)

// ErrLockAcquire is returned when a call stays owned by another replica
// until the caller gives up.
var ErrLockAcquire = errors.New("call is owned by another replica")

// release deletes the lock only while it still carries our token, so a
// replica whose lock lapsed cannot free the next owner's.
var release = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements ports.CallLocker with SET NX PX keys next to the
// call snapshots.
type Locker struct {
	client      *backend.Client
	prefix      string
	maxInterval time.Duration
}

// NewLocker shares client and key prefix with the session store. Lock
// keys are prefix + "lock:" + call id.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix, maxInterval: 250 * time.Millisecond}
}

// Lock polls with jittered backoff until the call is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, callID string, ttl time.Duration) (ports.UnlockFunc, error) {
	key := l.prefix + "lock:" + callID
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = l.maxInterval
	b.MaxElapsedTime = 0

	busy := errors.New("busy")
	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case err != nil:
			return backoff.Permanent(fmt.Errorf("lock call %s: %w", callID, err))
		case !ok:
			return busy
		}
		return nil
	}, backoff.WithContext(b, ctx))

	if err != nil {
		if errors.Is(err, busy) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: call %s: %v", ErrLockAcquire, callID, ctx.Err())
		}
		return nil, err
	}
	return func(ctx context.Context) error {
		return release.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

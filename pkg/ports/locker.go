package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a call lock. It is safe to call after the lock expired.
type UnlockFunc func(ctx context.Context) error

// CallLocker decides which orchestrator replica owns a call while it runs
// a turn. Without one, ownership is only enforced inside a process.
type CallLocker interface {
	// Lock blocks until callID is owned or ctx is done. The lock lapses on
	// its own after ttl so a crashed replica cannot strand the call.
	Lock(ctx context.Context, callID string, ttl time.Duration) (UnlockFunc, error)
}

package session

import "sync"

// callMutexes hands out one mutex per call id and forgets it once nobody
// holds or waits on it, so the map tracks live calls only.
type callMutexes struct {
	mu      sync.Mutex
	entries map[string]*callMutex
}

type callMutex struct {
	sync.Mutex
	waiters int
}

func newCallMutexes() *callMutexes {
	return &callMutexes{entries: make(map[string]*callMutex)}
}

// lock blocks until callID is free and returns the matching unlock.
func (c *callMutexes) lock(callID string) (unlock func()) {
	c.mu.Lock()
	e, ok := c.entries[callID]
	if !ok {
		e = &callMutex{}
		c.entries[callID] = e
	}
	e.waiters++
	c.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		c.mu.Lock()
		if e.waiters--; e.waiters == 0 {
			delete(c.entries, callID)
		}
		c.mu.Unlock()
	}
}

func (c *callMutexes) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package domain

import (
	"sync/atomic"
	"time"
)

// BackendDescriptor describes one TTS synthesis endpoint.
// It is process-wide state shared by every call; the health fields are
// updated by the health checker and read concurrently by selectors.
type BackendDescriptor struct {
	Endpoint string

	healthy     atomic.Bool
	lastChecked atomic.Int64
}

// NewBackendDescriptor returns a descriptor that starts out healthy.
func NewBackendDescriptor(endpoint string) *BackendDescriptor {
	d := &BackendDescriptor{Endpoint: endpoint}
	d.healthy.Store(true)
	return d
}

// Healthy reports the last known health.
func (d *BackendDescriptor) Healthy() bool {
	return d.healthy.Load()
}

// SetHealth records a health check outcome.
func (d *BackendDescriptor) SetHealth(healthy bool, at time.Time) {
	d.healthy.Store(healthy)
	d.lastChecked.Store(at.UnixNano())
}

// LastCheckedAt returns when health was last recorded, or the zero time.
func (d *BackendDescriptor) LastCheckedAt() time.Time {
	ns := d.lastChecked.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Package tts selects speech synthesis backends and wraps each synthesis
// call with a timeout and a classified error.
package tts

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/aretw0/callflow/pkg/domain"
)

// ErrNoHealthyBackend is returned when every backend of a pool is unhealthy.
var ErrNoHealthyBackend = errors.New("no healthy tts backend")

// Strategy picks how load is spread across a pool.
type Strategy string

const (
	// RoundRobin visits healthy backends in a fixed rotation.
	RoundRobin Strategy = "round_robin"
	// Random picks a healthy backend uniformly at random.
	Random Strategy = "random"
)

// ParseStrategy validates a strategy name. Empty defaults to RoundRobin.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", RoundRobin:
		return RoundRobin, nil
	case Random:
		return Random, nil
	}
	return "", fmt.Errorf("unknown tts strategy %q", s)
}

// Pool is the set of backends serving one logical voice.
// It is shared by every call; the cursor is advanced atomically.
type Pool struct {
	voice    string
	strategy Strategy
	backends []*domain.BackendDescriptor
	cursor   atomic.Uint64
}

// NewPool builds a pool for voice over the given endpoints.
func NewPool(voice string, strategy Strategy, endpoints ...string) *Pool {
	p := &Pool{voice: voice, strategy: strategy}
	for _, ep := range endpoints {
		p.backends = append(p.backends, domain.NewBackendDescriptor(ep))
	}
	return p
}

// Voice returns the logical voice name.
func (p *Pool) Voice() string {
	return p.voice
}

// Backends returns every descriptor, healthy or not.
func (p *Pool) Backends() []*domain.BackendDescriptor {
	return p.backends
}

// Healthy returns the backends currently flagged healthy.
func (p *Pool) Healthy() []*domain.BackendDescriptor {
	out := make([]*domain.BackendDescriptor, 0, len(p.backends))
	for _, b := range p.backends {
		if b.Healthy() {
			out = append(out, b)
		}
	}
	return out
}

// Select picks the backend for the next synthesis.
// A single-backend pool always returns its backend, even when flagged unhealthy.
func (p *Pool) Select() (*domain.BackendDescriptor, error) {
	switch len(p.backends) {
	case 0:
		return nil, fmt.Errorf("voice %q: %w", p.voice, ErrNoHealthyBackend)
	case 1:
		return p.backends[0], nil
	}

	healthy := p.Healthy()
	if len(healthy) == 0 {
		return nil, fmt.Errorf("voice %q: %w", p.voice, ErrNoHealthyBackend)
	}
	return healthy[p.next(len(healthy))], nil
}

// Candidates returns the failover order for one synthesis: the selected
// backend first, then the remaining healthy backends in rotation order.
func (p *Pool) Candidates() ([]*domain.BackendDescriptor, error) {
	if len(p.backends) == 1 {
		return []*domain.BackendDescriptor{p.backends[0]}, nil
	}

	healthy := p.Healthy()
	if len(healthy) == 0 {
		return nil, fmt.Errorf("voice %q: %w", p.voice, ErrNoHealthyBackend)
	}

	first := p.next(len(healthy))
	out := make([]*domain.BackendDescriptor, 0, len(healthy))
	for i := range healthy {
		out = append(out, healthy[(first+i)%len(healthy)])
	}
	return out, nil
}

func (p *Pool) next(n int) int {
	if p.strategy == Random {
		return rand.IntN(n)
	}
	return int((p.cursor.Add(1) - 1) % uint64(n))
}

// Package registry holds the named outbound integrations that flow nodes
// reference through their webhook blocks.
package registry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Integration describes one outbound endpoint.
type Integration struct {
	Name    string            `yaml:"name" json:"name"`
	URL     string            `yaml:"url" json:"url"`
	Method  string            `yaml:"method" json:"method"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout" json:"timeout,omitempty"`
}

// Registry manages the available integrations.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]Integration
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[string]Integration),
	}
}

// Register adds an integration to the registry.
// If one with the same name exists, it is overwritten.
func (r *Registry) Register(in Integration) error {
	if in.Name == "" {
		return fmt.Errorf("integration name is required")
	}
	if in.URL == "" {
		return fmt.Errorf("integration %q: url is required", in.Name)
	}
	in.Method = strings.ToUpper(in.Method)
	if in.Method == "" {
		in.Method = http.MethodPost
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[in.Name] = in
	return nil
}

// Lookup returns the integration registered under name.
func (r *Registry) Lookup(name string) (Integration, error) {
	r.mu.RLock()
	in, ok := r.integrations[name]
	r.mu.RUnlock()

	if !ok {
		return Integration{}, fmt.Errorf("integration not found: %s", name)
	}
	return in, nil
}

// Names lists registered integrations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

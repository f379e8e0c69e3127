package memory

import (
	"fmt"
	"sort"

	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/pkg/domain"
)

// Loader serves node definitions held in memory. Flows parsed from a
// single file and flows built in code both end up here.
type Loader struct {
	order []string
	defs  map[string][]byte
}

// NewLoader serves raw definitions keyed by node id. Ids are listed in
// sorted order since a map carries none.
func NewLoader(defs map[string]string) *Loader {
	l := &Loader{defs: make(map[string][]byte, len(defs))}
	for id, raw := range defs {
		l.order = append(l.order, id)
		l.defs[id] = []byte(raw)
	}
	sort.Strings(l.order)
	return l
}

// NewFromNodes encodes nodes in the definition format the compiler reads.
// Ids are listed in the order the nodes were declared. A missing or
// repeated id makes the flow invalid.
func NewFromNodes(nodes ...domain.Node) (*Loader, error) {
	l := &Loader{defs: make(map[string][]byte, len(nodes))}
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", domain.ErrInvalidFlow, i)
		}
		if _, dup := l.defs[n.ID]; dup {
			return nil, fmt.Errorf("%w: node %q declared twice", domain.ErrInvalidFlow, n.ID)
		}
		raw, err := compiler.Encode(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		l.order = append(l.order, n.ID)
		l.defs[n.ID] = raw
	}
	return l, nil
}

func (l *Loader) GetNode(id string) ([]byte, error) {
	raw, ok := l.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return raw, nil
}

func (l *Loader) ListNodes() ([]string, error) {
	return append([]string(nil), l.order...), nil
}

package domain

import (
	"fmt"
	"strings"
)

// FlowGraph is the immutable node graph loaded once per call.
// Cycles are allowed: a node may transition to itself to re-ask.
type FlowGraph struct {
	start string
	order []string
	nodes map[string]*Node
}

// NewFlowGraph validates the nodes and builds a graph rooted at start.
// The graph never holds a transition to a node that does not exist.
func NewFlowGraph(start string, nodes []Node) (*FlowGraph, error) {
	g := &FlowGraph{
		start: start,
		order: make([]string, 0, len(nodes)),
		nodes: make(map[string]*Node, len(nodes)),
	}

	var problems []string
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			problems = append(problems, fmt.Sprintf("node at position %d has no id", i))
			continue
		}
		if !n.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Kind))
		}
		if _, dup := g.nodes[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
	}

	if _, ok := g.nodes[start]; !ok {
		problems = append(problems, fmt.Sprintf("start node %q not found", start))
	}

	for _, id := range g.order {
		n := g.nodes[id]
		if n.IsTerminal() && len(n.Transitions) > 0 {
			problems = append(problems, fmt.Sprintf("ending node %q declares %d transitions", id, len(n.Transitions)))
		}
		for _, t := range n.Transitions {
			if _, ok := g.nodes[t.TargetNodeID]; !ok {
				problems = append(problems, fmt.Sprintf("node %q transitions to unknown node %q", id, t.TargetNodeID))
			}
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFlow, strings.Join(problems, "; "))
	}
	return g, nil
}

// Start returns the entry node id.
func (g *FlowGraph) Start() string {
	return g.start
}

// Node returns the node with the given id.
func (g *FlowGraph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in declaration order.
func (g *FlowGraph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *FlowGraph) Len() int {
	return len(g.order)
}

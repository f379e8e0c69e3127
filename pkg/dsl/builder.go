package dsl

import (
	"fmt"

	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
)

// Builder manages the flow construction. Nodes keep the order they were
// added in.
type Builder struct {
	start string
	order []string
	nodes map[string]*NodeBuilder
}

// New creates a new flow builder whose calls begin at start.
func New(start string) *Builder {
	return &Builder{
		start: start,
		nodes: make(map[string]*NodeBuilder),
	}
}

func (b *Builder) add(id string, kind domain.NodeKind) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		nb.setKind(kind)
		return nb
	}
	nb := &NodeBuilder{node: domain.Node{ID: id}}
	nb.setKind(kind)
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Conversation adds a node that speaks content as-is on entry and lets the
// model continue from it when the caller does not move on.
func (b *Builder) Conversation(id, content string) *NodeBuilder {
	return b.add(id, domain.KindConversation).Say(content)
}

// Prompt adds a conversation node whose content is a goal for the model.
func (b *Builder) Prompt(id, goal string) *NodeBuilder {
	nb := b.add(id, domain.KindConversation).Say(goal)
	nb.node.Conversation.Mode = domain.ModePrompt
	return nb
}

// Script adds a node that always speaks its content verbatim.
func (b *Builder) Script(id, content string) *NodeBuilder {
	return b.add(id, domain.KindScript).Say(content)
}

// PressDigit adds a node that dials digits to the far end.
func (b *Builder) PressDigit(id, digits string) *NodeBuilder {
	nb := b.add(id, domain.KindPressDigit)
	nb.node.PressDigit.Digits = digits
	return nb
}

// Ending adds a node that says farewell and hangs up.
func (b *Builder) Ending(id, content string) *NodeBuilder {
	return b.add(id, domain.KindEnding).Say(content)
}

// Nodes returns the nodes in the order they were added.
func (b *Builder) Nodes() []domain.Node {
	nodes := make([]domain.Node, 0, len(b.order))
	for _, id := range b.order {
		nodes = append(nodes, b.nodes[id].Build())
	}
	return nodes
}

// Graph compiles the flow, checking that every transition resolves.
func (b *Builder) Graph() (*domain.FlowGraph, error) {
	return domain.NewFlowGraph(b.start, b.Nodes())
}

// Loader encodes the flow into a MemoryLoader, the raw node source the
// validator and the compiler read.
func (b *Builder) Loader() (*memory.Loader, error) {
	loader, err := memory.NewFromNodes(b.Nodes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}

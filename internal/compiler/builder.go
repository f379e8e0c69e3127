package compiler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Build loads every node the loader lists and assembles the flow graph.
func Build(loader ports.GraphLoader, start string) (*domain.FlowGraph, error) {
	ids, err := loader.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	p := NewParser()
	var errs []error
	nodes := make([]domain.Node, 0, len(ids))
	for _, id := range ids {
		raw, err := loader.GetNode(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("load node %q: %w", id, err))
			continue
		}
		n, err := p.Parse(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		nodes = append(nodes, *n)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return domain.NewFlowGraph(start, nodes)
}

// Compile parses a whole flow document and builds its graph. A non-empty
// start overrides the one declared in the document.
func Compile(data []byte, start string) (*domain.FlowGraph, error) {
	declared, nodes, err := NewParser().ParseFlow(data)
	if err != nil {
		return nil, err
	}
	if start == "" {
		start = declared
	}
	return domain.NewFlowGraph(start, nodes)
}

// Encode renders a node in the external definition format.
func Encode(n *domain.Node) ([]byte, error) {
	return json.Marshal(fromDomain(n))
}

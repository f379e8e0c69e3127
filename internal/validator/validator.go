// Package validator crawls a flow from its start node and reports problems
// that would strand a live call.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Severity grades an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single finding.
type Issue struct {
	Severity Severity
	NodeID   string
	Message  string
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.NodeID, i.Message)
}

// Report is the outcome of a validation run. It implements error so a
// failing report can be returned as-is.
type Report struct {
	Start     string
	Nodes     int
	Reachable []string
	Issues    []Issue
	// Seeded lists template variables no node extracts; calls must be
	// started with them or they render empty.
	Seeded []string
}

// Valid reports whether the flow has no error-level issues.
func (r *Report) Valid() bool {
	return len(r.Errors()) == 0
}

// Errors returns the error-level issues.
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-level issues.
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

func (r *Report) Error() string {
	errs := r.Errors()
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Sprintf("found %d errors:\n- %s", len(errs), strings.Join(lines, "\n- "))
}

// Err returns the report as an error when it is not valid.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	return r
}

func (r *Report) add(s Severity, nodeID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: s, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

// ValidateGraph checks for broken links, unreachable nodes, dead ends and
// variable gates that nothing can ever satisfy, starting from startNodeID.
// The returned error is reserved for loader failures.
func ValidateGraph(loader ports.GraphLoader, parser *compiler.Parser, startNodeID string) (*Report, error) {
	all, err := loader.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	report := &Report{Start: startNodeID, Nodes: len(all)}

	nodes := make(map[string]*domain.Node)
	visited := make(map[string]bool)
	referrer := map[string]string{startNodeID: ""}
	queue := []string{startNodeID}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		raw, err := loader.GetNode(currentID)
		if err != nil {
			if from := referrer[currentID]; from != "" {
				report.add(SeverityError, from, "transition to missing node %q", currentID)
			} else {
				report.add(SeverityError, currentID, "start node not found")
			}
			continue
		}
		n, err := parser.Parse(raw)
		if err != nil {
			var pe *compiler.ParseError
			if errors.As(err, &pe) {
				report.add(SeverityError, currentID, "%v", pe.Err)
			} else {
				report.add(SeverityError, currentID, "%v", err)
			}
			continue
		}
		nodes[currentID] = n
		report.Reachable = append(report.Reachable, currentID)

		if !n.IsTerminal() && len(n.Transitions) == 0 {
			report.add(SeverityWarning, currentID, "no transitions and not an ending node; the call can only stay here")
		}
		if n.Mode() == domain.ModePrompt && strings.TrimSpace(n.Content()) == "" {
			report.add(SeverityWarning, currentID, "prompt mode without a goal")
		}

		for _, t := range n.Transitions {
			if strings.TrimSpace(t.Condition) == "" {
				report.add(SeverityWarning, currentID, "transition to %q has an empty condition", t.TargetNodeID)
			}
			if !visited[t.TargetNodeID] {
				if _, seen := referrer[t.TargetNodeID]; !seen {
					referrer[t.TargetNodeID] = currentID
				}
				queue = append(queue, t.TargetNodeID)
			}
		}
	}

	for _, id := range all {
		if !visited[id] {
			report.add(SeverityWarning, id, "unreachable from %q", startNodeID)
		}
	}

	checkGates(report, nodes)
	report.Seeded = seededVariables(nodes)
	return report, nil
}

// seededVariables returns the placeholders of reachable content that no
// node extracts, sorted.
func seededVariables(nodes map[string]*domain.Node) []string {
	extracted := make(map[string]bool)
	for _, n := range nodes {
		for _, v := range n.ExtractVariables {
			extracted[v.Name] = true
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range nodes {
		for _, name := range runtime.Placeholders(n.Content()) {
			if !extracted[name] && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// checkGates warns about required variables no reachable node extracts.
// Nodes that call a webhook may set anything, so their presence silences
// the check.
func checkGates(report *Report, nodes map[string]*domain.Node) {
	extracted := make(map[string]bool)
	for _, n := range nodes {
		if n.Webhook != nil {
			return
		}
		for _, v := range n.ExtractVariables {
			extracted[v.Name] = true
		}
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, t := range nodes[id].Transitions {
			for _, v := range t.RequiredVariables {
				if !extracted[v] {
					report.add(SeverityWarning, id, "transition to %q requires %q but no node extracts it", t.TargetNodeID, v)
				}
			}
		}
	}
}

package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

// GraphOverlay contains call state to highlight on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromSession marks the nodes a call has spoken from and where it is now.
func OverlayFromSession(s *domain.CallSession) *GraphOverlay {
	if s == nil {
		return nil
	}
	o := &GraphOverlay{CurrentNode: s.CurrentNodeID}
	for _, h := range s.History {
		if h.NodeID != "" {
			o.VisitedNodes = append(o.VisitedNodes, h.NodeID)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart for a flow graph.
// Shapes follow the node kind:
// - Start: ((Circle))
// - Ending: (((Double circle)))
// - Press digit: [[Subroutine]]
// - Prompt conversation: [/Parallelogram/]
// - Specialist team: {{Hexagon}}
// - Default: [Rectangle]
// Transition labels carry the condition and any gating variables.
func GenerateMermaid(g *domain.FlowGraph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes() {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case node.ID == g.Start():
			opener, closer = "((", "))"
		case node.IsTerminal():
			opener, closer = "(((", ")))"
		case node.Kind == domain.KindPressDigit:
			opener, closer = "[[", "]]"
		case node.RequiresSpecialistTeam:
			opener, closer = "{{", "}}"
		case node.Mode() == domain.ModePrompt:
			opener, closer = "[/", "/]"
		}

		text := node.ID
		if d := node.Digits(); d != "" {
			text += " <br/> dtmf " + d
		}
		if node.Webhook != nil {
			text += " <br/> webhook " + node.Webhook.Name
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(text), closer)

		for _, t := range node.Transitions {
			label := t.Condition
			if len(t.RequiredVariables) > 0 {
				label += " [" + strings.Join(t.RequiredVariables, ", ") + "]"
			}
			safeTo := sanitizeMermaidID(t.TargetNodeID)
			if label == "" {
				fmt.Fprintf(&sb, "    %s --> %s\n", safeID, safeTo)
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(label), safeTo)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on light fills in either theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] || id == overlay.CurrentNode {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}

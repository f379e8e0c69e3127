package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/internal/validator"
)

// ReportMarkdown formats a validation report as markdown for glamour.
func ReportMarkdown(name string, r *validator.Report) string {
	var sb strings.Builder
	status := "valid"
	if !r.Valid() {
		status = "invalid"
	}
	fmt.Fprintf(&sb, "# Flow %s is %s\n\n", name, status)
	fmt.Fprintf(&sb, "Start node `%s`, %d nodes, %d reachable.\n\n", r.Start, r.Nodes, len(r.Reachable))

	section := func(title string, issues []validator.Issue) {
		if len(issues) == 0 {
			return
		}
		fmt.Fprintf(&sb, "## %s (%d)\n\n", title, len(issues))
		for _, i := range issues {
			if i.NodeID != "" {
				fmt.Fprintf(&sb, "- `%s`: %s\n", i.NodeID, i.Message)
			} else {
				fmt.Fprintf(&sb, "- %s\n", i.Message)
			}
		}
		sb.WriteString("\n")
	}
	if len(r.Seeded) > 0 {
		sb.WriteString("Variables to seed when starting a call:")
		for _, v := range r.Seeded {
			fmt.Fprintf(&sb, " `%s`", v)
		}
		sb.WriteString("\n\n")
	}
	section("Errors", r.Errors())
	section("Warnings", r.Warnings())
	if len(r.Issues) == 0 {
		sb.WriteString("No issues found.\n")
	}
	return sb.String()
}

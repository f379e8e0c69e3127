package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/callflow/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportMarkdown(t *testing.T) {
	r := &validator.Report{
		Start:     "greet",
		Nodes:     3,
		Reachable: []string{"greet", "pitch"},
		Seeded:    []string{"name"},
		Issues: []validator.Issue{
			{Severity: validator.SeverityError, NodeID: "pitch", Message: `transition to missing node "close"`},
			{Severity: validator.SeverityWarning, NodeID: "orphan", Message: `unreachable from "greet"`},
		},
	}

	md := ReportMarkdown("outbound", r)
	assert.Contains(t, md, "# Flow outbound is invalid")
	assert.Contains(t, md, "3 nodes, 2 reachable")
	assert.Contains(t, md, "## Errors (1)\n\n- `pitch`: transition to missing node \"close\"")
	assert.Contains(t, md, "## Warnings (1)")
	assert.Contains(t, md, "seed when starting a call: `name`")

	clean := ReportMarkdown("outbound", &validator.Report{Start: "greet", Nodes: 1, Reachable: []string{"greet"}})
	assert.Contains(t, clean, "is valid")
	assert.Contains(t, clean, "No issues found.")
}

func TestRendererAndBanner(t *testing.T) {
	render, err := NewRenderer(60)
	require.NoError(t, err)
	out, err := render("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")

	var buf bytes.Buffer
	PrintBanner(&buf, "outbound")
	assert.Contains(t, buf.String(), "flow: outbound")
}

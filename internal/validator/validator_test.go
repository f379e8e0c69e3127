package validator

import (
	"strings"
	"testing"

	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/pkg/adapters/memory"
)

func TestValidateGraph(t *testing.T) {
	parser := compiler.NewParser()

	// Scenario A: start -> a -> b (ending), with a self loop on a.
	loader := memory.NewLoader(map[string]string{
		"start": `{"id":"start","type":"script","data":{"content":"hi","transitions":[{"condition":"always","nextNode":"a"}]}}`,
		"a": `{"id":"a","type":"conversation","data":{"mode":"prompt","content":"get a time",
			"extract_variables":[{"name":"slot","mandatory":true}],
			"transitions":[
				{"condition":"user gives a time","nextNode":"b","check_variables":["slot"]},
				{"condition":"user is unsure","nextNode":"a"}
			]}}`,
		"b": `{"id":"b","type":"ending","data":{"content":"bye"}}`,
	})

	report, err := ValidateGraph(loader, parser, "start")
	if err != nil {
		t.Fatalf("unexpected loader error: %v", err)
	}
	if !report.Valid() || len(report.Issues) != 0 {
		t.Errorf("Scenario A (Valid) failed: %v", report.Issues)
	}
	if len(report.Reachable) != 3 {
		t.Errorf("expected 3 reachable nodes, got %v", report.Reachable)
	}
	if report.Err() != nil {
		t.Errorf("expected nil Err, got %v", report.Err())
	}

	// Scenario B: broken link.
	loaderBroken := memory.NewLoader(map[string]string{
		"broken_start": `{"id":"broken_start","data":{"transitions":[{"condition":"c","nextNode":"ghost_node"}]}}`,
	})

	report, err = ValidateGraph(loaderBroken, parser, "broken_start")
	if err != nil {
		t.Fatalf("unexpected loader error: %v", err)
	}
	if report.Valid() {
		t.Fatal("Scenario B (Broken) should have failed")
	}
	if !strings.Contains(report.Error(), `missing node "ghost_node"`) {
		t.Errorf("Expected missing node error, got: %v", report.Error())
	}
}

func TestValidateGraph_Warnings(t *testing.T) {
	loader := memory.NewLoader(map[string]string{
		"start":  `{"id":"start","data":{"content":"hi","transitions":[{"condition":"ok","nextNode":"stuck","check_variables":["email"]}]}}`,
		"stuck":  `{"id":"stuck","type":"conversation","data":{"mode":"prompt"}}`,
		"orphan": `{"id":"orphan","type":"ending","data":{"content":"bye"}}`,
	})

	report, err := ValidateGraph(loader, compiler.NewParser(), "start")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid() {
		t.Fatalf("warnings only expected, got errors: %v", report.Errors())
	}

	var joined []string
	for _, w := range report.Warnings() {
		joined = append(joined, w.String())
	}
	all := strings.Join(joined, "\n")
	for _, want := range []string{
		"stuck: no transitions",
		"stuck: prompt mode without a goal",
		`orphan: unreachable from "start"`,
		`requires "email" but no node extracts it`,
	} {
		if !strings.Contains(all, want) {
			t.Errorf("missing warning %q in:\n%s", want, all)
		}
	}
}

func TestValidateGraph_ParseErrorAndMissingStart(t *testing.T) {
	loader := memory.NewLoader(map[string]string{
		"start": `{"id":"start","type":"ending","data":{"transitions":[{"condition":"c","nextNode":"start"}]}}`,
	})
	report, err := ValidateGraph(loader, compiler.NewParser(), "start")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid() || !strings.Contains(report.Error(), "cannot declare transitions") {
		t.Errorf("expected parse error, got %v", report.Issues)
	}

	report, _ = ValidateGraph(loader, compiler.NewParser(), "nowhere")
	if !strings.Contains(report.Error(), "start node not found") {
		t.Errorf("expected missing start, got %v", report.Issues)
	}
}

func TestValidateGraph_SeededVariables(t *testing.T) {
	loader := memory.NewLoader(map[string]string{
		"start": `{"id":"start","type":"conversation","data":{"mode":"static","content":"Hi {{name}}, what's your email?",
			"extract_variables":[{"name":"email"}],
			"transitions":[{"condition":"user gives email","nextNode":"end"}]}}`,
		"end": `{"id":"end","type":"ending","data":{"content":"Sent to {{email}} for {{ plan }}, {{name}}."}}`,
	})

	report, err := ValidateGraph(loader, compiler.NewParser(), "start")
	if err != nil {
		t.Fatalf("unexpected loader error: %v", err)
	}
	if got, want := strings.Join(report.Seeded, ","), "name,plan"; got != want {
		t.Errorf("Seeded = %q, want %q", got, want)
	}
}

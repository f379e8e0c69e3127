package extractor

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

func extractionPrompt(specs []domain.VariableSpec) string {
	var b strings.Builder
	b.WriteString("Extract the following values from the caller's last message.\n")
	b.WriteString("Answer with one JSON object. Use null for anything the caller did not clearly state.\n")
	b.WriteString("A refusal or a question back is never a value.\n\n")
	for _, s := range specs {
		hint := s.ExtractionHint
		if hint == "" {
			hint = "free text"
		}
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, hint)
	}
	return b.String()
}

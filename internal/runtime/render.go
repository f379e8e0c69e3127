package runtime

import (
	"regexp"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render substitutes {{name}} placeholders with session variables.
// Unknown or empty variables render as nothing and the surrounding
// whitespace is collapsed so the text stays speakable.
func Render(text string, vars domain.Variables) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return vars.String(name)
	})
	return strings.Join(strings.Fields(out), " ")
}

// Placeholders lists the variable names referenced by text, in order of
// first appearance.
func Placeholders(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

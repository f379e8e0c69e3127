package extractor

import "strings"

// ExtractFencedJSON locates the JSON object embedded in free text.
// A ```json fenced block wins; otherwise the first balanced object is used.
func ExtractFencedJSON(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")

	if body, ok := fencedBlock(s); ok {
		if obj, ok := balancedObject(body); ok {
			return obj, true
		}
	}
	return balancedObject(s)
}

// fencedBlock returns the text between the first ```json (or bare ```) fence
// and its closing fence.
func fencedBlock(s string) (string, bool) {
	lower := strings.ToLower(s)
	open := strings.Index(lower, "```json")
	skip := len("```json")
	if open < 0 {
		open = strings.Index(s, "```")
		skip = len("```")
	}
	if open < 0 {
		return "", false
	}

	rest := s[open+skip:]
	end := strings.Index(rest, "```")
	if end < 0 {
		// unterminated fence, take everything after it
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedObject returns the first brace-balanced {...} span, ignoring braces
// inside string literals.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

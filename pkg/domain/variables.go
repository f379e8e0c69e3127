package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Variables holds the named values captured during a call.
// Values come from speech extraction or webhook responses and are
// overwritten, never accumulated.
type Variables map[string]any

// Get returns the raw value of a variable.
func (v Variables) Get(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Set writes a variable, replacing any previous value.
func (v Variables) Set(name string, value any) {
	v[name] = value
}

// Present reports whether the variable holds a non-empty value.
// Blank strings, nil and empty collections do not count.
func (v Variables) Present(name string) bool {
	val, ok := v[name]
	if !ok {
		return false
	}
	return IsPresent(val)
}

// IsPresent reports whether a single value counts as captured.
func IsPresent(val any) bool {
	switch x := val.(type) {
	case nil:
		return false
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return false
		}
		switch strings.ToLower(s) {
		case "null", "none", "unknown", "n/a":
			return false
		}
		return true
	case []any:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// String renders a variable for template substitution.
// Missing variables render as the empty string.
func (v Variables) String(name string) string {
	val, ok := v[name]
	if !ok || val == nil {
		return ""
	}
	return Stringify(val)
}

// Stringify renders any variable value as text.
func Stringify(val any) string {
	switch x := val.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int, int64, int32:
		return fmt.Sprint(x)
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, Stringify(p))
		}
		return strings.Join(parts, ", ")
	}
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprint(val)
	}
	return string(b)
}

// Clone returns a deep copy so a turn can work on private state.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = cloneValue(val)
	}
	return out
}

func cloneValue(val any) any {
	switch x := val.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = cloneValue(v)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, v := range x {
			s[i] = cloneValue(v)
		}
		return s
	case []string:
		s := make([]string, len(x))
		copy(s, x)
		return s
	}
	return val
}

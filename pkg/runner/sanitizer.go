package runner

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EnvMaxInputSize overrides DefaultMaxInputSize, in bytes.
const EnvMaxInputSize = "CALLFLOW_MAX_INPUT_SIZE"

// DefaultMaxInputSize bounds one utterance. A transcript longer than this
// is a stuck recognizer, not a caller.
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("utterance exceeds maximum size")
	ErrInvalidUTF8   = errors.New("utterance is not valid UTF-8")
)

// Terminal escape sequences pasted into the simulator.
var escapeSeq = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// SanitizeInput normalizes a caller utterance before it reaches the turn
// pipeline. Oversized or malformed input is rejected whole so a turn never
// sees half a sentence. Escape sequences and control characters are
// dropped and whitespace runs collapse to one space.
func SanitizeInput(input string) (string, error) {
	if limit := maxInputSize(); len(input) > limit {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	input = escapeSeq.ReplaceAllString(input, "")

	words := strings.FieldsFunc(input, unicode.IsSpace)
	kept := words[:0]
	for _, w := range words {
		w = strings.Map(dropControl, w)
		if w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " "), nil
}

func dropControl(r rune) rune {
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

func maxInputSize() int {
	if n, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && n > 0 {
		return n
	}
	return DefaultMaxInputSize
}

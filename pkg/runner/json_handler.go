package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
)

// JSONHandler implements IOHandler over JSON Lines, for scripted calls and
// harnesses that drive the simulator from another process.
//
// Each input line is either a JSON object {"utterance": "..."}, a JSON
// string, or raw text. Each turn is written as one TurnResult object.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	mu sync.Mutex
}

type jsonInput struct {
	Utterance string `json:"utterance"`
}

type jsonSystem struct {
	System string `json:"system"`
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) encode(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(v)
}

func (h *JSONHandler) Output(ctx context.Context, res *domain.TurnResult) error {
	if res == nil {
		return nil
	}
	return h.encode(res)
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := h.Reader.ReadString('\n')
		text := strings.TrimSpace(line)
		if text == "" {
			if err != nil {
				return "", err
			}
			continue
		}
		return SanitizeInput(decodeUtterance(text))
	}
}

func decodeUtterance(text string) string {
	var in jsonInput
	if err := json.Unmarshal([]byte(text), &in); err == nil {
		return in.Utterance
	}
	var s string
	if err := json.Unmarshal([]byte(text), &s); err == nil {
		return s
	}
	return text
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.encode(jsonSystem{System: msg})
}

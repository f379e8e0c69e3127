package extractor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedPayload is returned when a webhook response yields no usable updates.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrPartialPayload accompanies the updates of an envelope in which
	// some results could not be used.
	ErrPartialPayload = errors.New("webhook payload partly unusable")
)

const toolResultsKey = "tool_calls_results"

// ParseWebhookResponse turns a webhook response into variable updates.
// It accepts a flat JSON object or a tool_calls_results envelope whose
// result strings embed a ```json fenced block. Unusable envelope results
// are skipped; when others succeed their updates come back together with
// an error wrapping ErrPartialPayload.
func ParseWebhookResponse(body []byte) (map[string]any, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is %s, want object", ErrMalformedPayload, root.Type)
	}

	envelope := root.Get(toolResultsKey)
	if !envelope.Exists() {
		return decodeObject(root.Raw)
	}
	if !envelope.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", ErrMalformedPayload, toolResultsKey)
	}

	updates := make(map[string]any)
	var failures []error
	for i, item := range envelope.Array() {
		result := item.Get("result")
		var raw string
		switch {
		case result.IsObject():
			raw = result.Raw
		case result.Type == gjson.String:
			obj, ok := ExtractFencedJSON(result.String())
			if !ok {
				failures = append(failures, fmt.Errorf("result %d: no json block", i))
				continue
			}
			raw = obj
		default:
			failures = append(failures, fmt.Errorf("result %d: unsupported type %s", i, result.Type))
			continue
		}

		part, err := decodeObject(raw)
		if err != nil {
			failures = append(failures, fmt.Errorf("result %d: %w", i, err))
			continue
		}
		for k, v := range part {
			updates[k] = v
		}
	}

	switch {
	case len(failures) == 0:
		return updates, nil
	case len(updates) == 0:
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, errors.Join(failures...))
	default:
		return updates, fmt.Errorf("%w: %w", ErrPartialPayload, errors.Join(failures...))
	}
}

func decodeObject(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: null object", ErrMalformedPayload)
	}
	return out, nil
}

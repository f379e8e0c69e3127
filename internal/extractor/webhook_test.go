package extractor_test

import (
	"testing"

	"github.com/aretw0/callflow/internal/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]any
	}{
		{
			name: "Flat object",
			body: `{"appointment_id":"A-17","confirmed":true,"slots":2}`,
			want: map[string]any{"appointment_id": "A-17", "confirmed": true, "slots": float64(2)},
		},
		{
			name: "Tool call envelope with fenced block",
			body: "{\"tool_calls_results\":[{\"result\":\"I scheduled it.\\n```json\\n{\\\"scheduleTime\\\":\\\"2025-11-03 11:30\\\"}\\n```\"}]}",
			want: map[string]any{"scheduleTime": "2025-11-03 11:30"},
		},
		{
			name: "Envelope with object result and later override",
			body: `{"tool_calls_results":[{"result":{"status":"pending"}},{"result":"` + "```json" + `\n{\"status\":\"booked\"}\n` + "```" + `"}]}`,
			want: map[string]any{"status": "booked"},
		},
		{
			name: "Unfenced object in prose",
			body: `{"tool_calls_results":[{"result":"done {\"room\":\"3B\"} thanks"}]}`,
			want: map[string]any{"room": "3B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.ParseWebhookResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWebhookResponse_PartlyBroken(t *testing.T) {
	body := `{"tool_calls_results":[{"result":"no json here"},{"result":"{\"ok\":\"yes\"}"},{"result":42}]}`

	got, err := extractor.ParseWebhookResponse([]byte(body))
	assert.Equal(t, map[string]any{"ok": "yes"}, got)
	require.ErrorIs(t, err, extractor.ErrPartialPayload)
	assert.False(t, extractor.IsMalformed(err))
	assert.Contains(t, err.Error(), "result 0: no json block")
	assert.Contains(t, err.Error(), "result 2: unsupported type Number")
}

func TestParseWebhookResponse_Malformed(t *testing.T) {
	bodies := []string{
		``,
		`{"scheduleTime": "2025-11-03`,
		`["not", "an", "object"]`,
		`{"tool_calls_results":"nope"}`,
		`{"tool_calls_results":[{"result":"` + "```json" + `\n{\"scheduleTime\": }\n` + "```" + `"}]}`,
	}
	for _, body := range bodies {
		_, err := extractor.ParseWebhookResponse([]byte(body))
		assert.ErrorIs(t, err, extractor.ErrMalformedPayload, "body %q", body)
	}
}

func TestExtractFencedJSON(t *testing.T) {
	obj, ok := extractor.ExtractFencedJSON("text ```JSON\n{\"a\": \"}\"}\n``` more {\"b\":1}")
	require.True(t, ok)
	assert.Equal(t, `{"a": "}"}`, obj)

	obj, ok = extractor.ExtractFencedJSON("```\n{\"a\":{\"b\":2}}\n```")
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":2}}`, obj)

	_, ok = extractor.ExtractFencedJSON("nothing to see")
	assert.False(t, ok)
}

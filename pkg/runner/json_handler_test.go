package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHandler_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	h := NewJSONHandler(strings.NewReader(""), buf)

	require.NoError(t, h.Output(context.Background(), &domain.TurnResult{
		CallID: "c1", Turn: 2, NodeID: "pitch", Reply: "Hello", Audio: []byte{1, 2}, Moved: true,
	}))
	require.NoError(t, h.SystemOutput(context.Background(), "call ended"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"call_id":"c1","turn":2,"previous_node_id":"","node_id":"pitch","reply":"Hello","moved":true,"ended":false}`, lines[0])
	assert.JSONEq(t, `{"system":"call ended"}`, lines[1])
}

func TestJSONHandler_Input(t *testing.T) {
	in := strings.Join([]string{
		`{"utterance":"from object"}`,
		`"from string"`,
		``,
		`plain text`,
		`{"utterance":"bell\u0007"}`,
	}, "\n")
	h := NewJSONHandler(strings.NewReader(in), io.Discard)

	for _, want := range []string{"from object", "from string", "plain text", "bell"} {
		got, err := h.Input(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := h.Input(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

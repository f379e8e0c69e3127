package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
flow:
  path: flows/sales.yaml
  start: greet
persona:
  agent_name: Maya
  company: Acme Solar
tts:
  strategy: random
  timeout: 1500ms
  voices:
    maya:
      - http://tts-a:8000
      - http://tts-b:8000
turn:
  max_consecutive_failures: 2
  closing_line: "I'll have someone call you back."
webhooks:
  - name: calendar
    url: http://calendar.local/book
    timeout: 2s
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "random", cfg.TTS.Strategy)
	assert.Equal(t, 1500*time.Millisecond, cfg.TTS.Timeout)
	assert.Equal(t, "maya", cfg.TTS.Voice, "single voice becomes the default")
	assert.Equal(t, "@every 15s", cfg.TTS.HealthSchedule)
	assert.Equal(t, 2, cfg.Turn.ContextTurns)
	assert.Equal(t, 2, cfg.Turn.MaxConsecutiveFailures)
	assert.Equal(t, 40, cfg.Interruption.Threshold)
	assert.Equal(t, "callflow:", cfg.Redis.Prefix)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, 2*time.Second, cfg.Webhooks[0].Timeout)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvLLMAPIKey, "sk-env")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvAddr, ":9090")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing flow", "tts: {strategy: round_robin}", "flow.path is required"},
		{"bad strategy", "flow: {path: f}\ntts: {strategy: fastest}", "tts.strategy"},
		{"bad schedule", "flow: {path: f}\ntts: {health_schedule: often}", "tts.health_schedule"},
		{"empty voice", "flow: {path: f}\ntts: {voices: {maya: []}}", "needs at least one endpoint"},
		{"unknown default voice", "flow: {path: f}\ntts: {voice: bob, voices: {maya: [http://a]}}", "not declared"},
		{"short key", "flow: {path: f}\nencryption: {key: short}", "encryption.key"},
		{"short previous key", "flow: {path: f}\nencryption: {key: '0123456789abcdef0123456789abcdef', previous_keys: [old]}", "encryption.previous_keys[0]"},
		{"previous without key", "flow: {path: f}\nencryption: {previous_keys: ['0123456789abcdef0123456789abcdef']}", "requires encryption.key"},
		{"duplicate webhook", "flow: {path: f}\nwebhooks: [{name: a, url: http://x}, {name: a, url: http://y}]", "duplicate name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Maya", cfg.Persona.AgentName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

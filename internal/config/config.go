// Package config provides YAML-based configuration loading for callflow.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/callflow/internal/tts"
	"github.com/aretw0/callflow/pkg/registry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Env variable names that override file values.
const (
	EnvAddr          = "CALLFLOW_ADDR"
	EnvLLMBaseURL    = "CALLFLOW_LLM_BASE_URL"
	EnvLLMAPIKey     = "CALLFLOW_LLM_API_KEY"
	EnvLLMModel      = "CALLFLOW_LLM_MODEL"
	EnvTTSAPIKey     = "CALLFLOW_TTS_API_KEY"
	EnvRedisAddr     = "CALLFLOW_REDIS_ADDR"
	EnvEncryptionKey = "CALLFLOW_ENCRYPTION_KEY"
	EnvLogLevel      = "CALLFLOW_LOG_LEVEL"
)

// Config is the top-level callflow configuration, loaded from callflow.yaml.
type Config struct {
	Server       ServerConfig           `yaml:"server"`
	Log          LogConfig              `yaml:"log"`
	Flow         FlowConfig             `yaml:"flow"`
	Persona      PersonaConfig          `yaml:"persona"`
	LLM          LLMConfig              `yaml:"llm"`
	TTS          TTSConfig              `yaml:"tts"`
	Turn         TurnConfig             `yaml:"turn"`
	Interruption InterruptionConfig     `yaml:"interruption"`
	Redis        RedisConfig            `yaml:"redis"`
	Encryption   EncryptionConfig       `yaml:"encryption"`
	PII          PIIConfig              `yaml:"pii"`
	Webhooks     []registry.Integration `yaml:"webhooks"`
	Knowledge    KnowledgeConfig        `yaml:"knowledge"`
}

// ServerConfig holds the operational HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FlowConfig points at the flow definition. Path may be a single JSON/YAML
// file holding a node list or a loam directory with one document per node.
type FlowConfig struct {
	Path  string `yaml:"path"`
	Start string `yaml:"start"`
}

// PersonaConfig describes who the agent is.
type PersonaConfig struct {
	AgentName string `yaml:"agent_name"`
	Company   string `yaml:"company"`
	Style     string `yaml:"style"`
}

// LLMConfig configures the OpenAI-compatible gateway.
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	MaxRetryTime time.Duration `yaml:"max_retry_time"`
}

// TTSConfig configures the backend pools.
type TTSConfig struct {
	Strategy       string              `yaml:"strategy"`
	Timeout        time.Duration       `yaml:"timeout"`
	HealthSchedule string              `yaml:"health_schedule"`
	HealthTimeout  time.Duration       `yaml:"health_timeout"`
	Format         string              `yaml:"format"`
	SampleRate     int                 `yaml:"sample_rate"`
	Speed          float64             `yaml:"speed"`
	APIKey         string              `yaml:"api_key"`
	Voice          string              `yaml:"voice"`
	Voices         map[string][]string `yaml:"voices"`
}

// TurnConfig bounds a single conversational turn.
type TurnConfig struct {
	Timeout                time.Duration `yaml:"timeout"`
	SpeechReserve          time.Duration `yaml:"speech_reserve"`
	SpecialistTimeout      time.Duration `yaml:"specialist_timeout"`
	SynthesisTimeout       time.Duration `yaml:"synthesis_timeout"`
	ClassifierTimeout      time.Duration `yaml:"classifier_timeout"`
	ExtractionTimeout      time.Duration `yaml:"extraction_timeout"`
	ContextTurns           int           `yaml:"context_turns"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	FallbackLine           string        `yaml:"fallback_line"`
	StallLine              string        `yaml:"stall_line"`
	ClosingLine            string        `yaml:"closing_line"`
}

// InterruptionConfig configures the barge-in monitor.
type InterruptionConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Threshold int           `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
	Fallback  string        `yaml:"fallback"`
}

// RedisConfig enables redis-backed session snapshots and call locks.
type RedisConfig struct {
	Addr    string        `yaml:"addr"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// EncryptionConfig enables AES-GCM encryption of stored sessions.
// PreviousKeys still open snapshots sealed before a key rotation.
type EncryptionConfig struct {
	Key          string   `yaml:"key"`
	PreviousKeys []string `yaml:"previous_keys"`
}

// PIIConfig masks sensitive variables before they are stored.
type PIIConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Variables []string `yaml:"variables"`
}

// KnowledgeConfig points the knowledge lookup specialist at a directory of
// .md/.txt passages.
type KnowledgeConfig struct {
	Dir   string `yaml:"dir"`
	Limit int    `yaml:"limit"`
}

// Load reads .env (when present), the YAML config file at path and the
// CALLFLOW_* environment overrides, and returns a validated Config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, EnvAddr)
	set(&c.LLM.BaseURL, EnvLLMBaseURL)
	set(&c.LLM.APIKey, EnvLLMAPIKey)
	set(&c.LLM.Model, EnvLLMModel)
	set(&c.TTS.APIKey, EnvTTSAPIKey)
	set(&c.Redis.Addr, EnvRedisAddr)
	set(&c.Encryption.Key, EnvEncryptionKey)
	set(&c.Log.Level, EnvLogLevel)
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Persona.AgentName == "" {
		c.Persona.AgentName = "Alex"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxRetryTime == 0 {
		c.LLM.MaxRetryTime = 2 * time.Second
	}

	if c.TTS.Strategy == "" {
		c.TTS.Strategy = string(tts.RoundRobin)
	}
	if c.TTS.Timeout == 0 {
		c.TTS.Timeout = 3 * time.Second
	}
	if c.TTS.HealthSchedule == "" {
		c.TTS.HealthSchedule = "@every 15s"
	}
	if c.TTS.HealthTimeout == 0 {
		c.TTS.HealthTimeout = 2 * time.Second
	}
	if c.TTS.Format == "" {
		c.TTS.Format = "pcm"
	}
	if c.TTS.SampleRate == 0 {
		c.TTS.SampleRate = 16000
	}
	if c.TTS.Speed == 0 {
		c.TTS.Speed = 1.0
	}
	if c.TTS.Voice == "" && len(c.TTS.Voices) == 1 {
		for name := range c.TTS.Voices {
			c.TTS.Voice = name
		}
	}

	if c.Turn.Timeout == 0 {
		c.Turn.Timeout = 4 * time.Second
	}
	if c.Turn.SpeechReserve == 0 {
		c.Turn.SpeechReserve = time.Second
	}
	if c.Turn.SpecialistTimeout == 0 {
		c.Turn.SpecialistTimeout = 800 * time.Millisecond
	}
	if c.Turn.SynthesisTimeout == 0 {
		c.Turn.SynthesisTimeout = 2 * time.Second
	}
	if c.Turn.ClassifierTimeout == 0 {
		c.Turn.ClassifierTimeout = 1500 * time.Millisecond
	}
	if c.Turn.ExtractionTimeout == 0 {
		c.Turn.ExtractionTimeout = 2 * time.Second
	}
	if c.Turn.ContextTurns == 0 {
		c.Turn.ContextTurns = 2
	}
	if c.Turn.MaxConsecutiveFailures == 0 {
		c.Turn.MaxConsecutiveFailures = 3
	}

	if c.Interruption.Threshold == 0 {
		c.Interruption.Threshold = 40
	}
	if c.Interruption.Timeout == 0 {
		c.Interruption.Timeout = 700 * time.Millisecond
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "callflow:"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Knowledge.Limit == 0 {
		c.Knowledge.Limit = 2
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Flow.Path == "" {
		errs = append(errs, "flow.path is required")
	}
	if _, err := tts.ParseStrategy(c.TTS.Strategy); err != nil {
		errs = append(errs, "tts.strategy: "+err.Error())
	}
	if err := tts.ValidateSchedule(c.TTS.HealthSchedule); err != nil {
		errs = append(errs, "tts.health_schedule: "+err.Error())
	}
	for voice, endpoints := range c.TTS.Voices {
		if len(endpoints) == 0 {
			errs = append(errs, fmt.Sprintf("tts.voices.%s needs at least one endpoint", voice))
		}
	}
	if c.TTS.Voice != "" && len(c.TTS.Voices) > 0 {
		if _, ok := c.TTS.Voices[c.TTS.Voice]; !ok {
			errs = append(errs, fmt.Sprintf("tts.voice %q is not declared in tts.voices", c.TTS.Voice))
		}
	}
	if c.Turn.ContextTurns < 0 {
		errs = append(errs, "turn.context_turns must not be negative")
	}
	if c.Interruption.Threshold < 1 {
		errs = append(errs, "interruption.threshold must be positive")
	}
	if k := c.Encryption.Key; k != "" && len(k) != 32 {
		errs = append(errs, "encryption.key must be 32 bytes")
	}
	for i, k := range c.Encryption.PreviousKeys {
		if len(k) != 32 {
			errs = append(errs, fmt.Sprintf("encryption.previous_keys[%d] must be 32 bytes", i))
		}
	}
	if len(c.Encryption.PreviousKeys) > 0 && c.Encryption.Key == "" {
		errs = append(errs, "encryption.previous_keys requires encryption.key")
	}
	seen := make(map[string]bool, len(c.Webhooks))
	for i, w := range c.Webhooks {
		if w.Name == "" {
			errs = append(errs, fmt.Sprintf("webhooks[%d].name is required", i))
		}
		if w.URL == "" {
			errs = append(errs, fmt.Sprintf("webhooks[%d].url is required", i))
		}
		if seen[w.Name] {
			errs = append(errs, fmt.Sprintf("webhooks[%d]: duplicate name %q", i, w.Name))
		}
		seen[w.Name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

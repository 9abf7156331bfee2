// Package config provides the configuration schema and loader for the Veyra
// voice assistant.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that reads from YAML as a duration string
// ("1500ms", "2s") or a bare number of seconds.
type Duration time.Duration

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
}

// LogLevel controls log verbosity for the assistant.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Veyra.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus scrape endpoint listens
	// on (e.g., ":9090"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig holds the capture and playback tuning knobs.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz. Whisper models expect
	// 16000.
	SampleRate int `yaml:"sample_rate"`

	// Threshold is the RMS energy above which a frame counts as speech,
	// in the normalized range [0, 1].
	Threshold float64 `yaml:"threshold"`

	// SilenceLimit is how long sustained silence must last before a spoken
	// utterance is considered finished.
	SilenceLimit Duration `yaml:"silence_limit"`

	// Volume is the master playback volume in [0, 1].
	Volume float64 `yaml:"volume"`

	// ChunkSize is the number of samples per playback write. Smaller chunks
	// lower interrupt latency at the cost of more write calls.
	ChunkSize int `yaml:"chunk_size"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "ollama", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "qwen2.5:3b",
	// "ggml-base.en.bin").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above (e.g., a voice identifier for TTS providers).
	Options map[string]any `yaml:"options"`
}

// AssistantConfig holds conversation behaviour settings.
type AssistantConfig struct {
	// SystemPrompt is injected as the system message of every chat request.
	SystemPrompt string `yaml:"system_prompt"`

	// Denylist lists extra transcripts to reject as recognition artifacts,
	// on top of the built-in filler list.
	Denylist []string `yaml:"denylist"`

	// Cooldown is the pause after an interrupt before speech resumes.
	Cooldown Duration `yaml:"cooldown"`
}

// Default returns a Config populated with the built-in defaults: 16 kHz
// capture, speech threshold 0.03, a two-second silence limit, volume 0.8,
// 2048-sample playback chunks, and a 50 ms interrupt cooldown.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel:    LogInfo,
			MetricsAddr: ":9090",
		},
		Audio: AudioConfig{
			SampleRate:   16000,
			Threshold:    0.03,
			SilenceLimit: Duration(2 * time.Second),
			Volume:       0.8,
			ChunkSize:    2048,
		},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{Name: "ollama", Model: "qwen2.5:3b"},
			STT: ProviderEntry{Name: "whisper", Model: "models/ggml-base.en.bin"},
		},
		Assistant: AssistantConfig{
			SystemPrompt: "You are a helpful voice assistant. Answer briefly and " +
				"conversationally, in plain spoken language without lists or headings.",
			Cooldown: Duration(50 * time.Millisecond),
		},
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper"},
	"tts": {"piper", "openai", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Settings absent from the file keep their [Default] values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Threshold < 0 || cfg.Audio.Threshold > 1 {
		errs = append(errs, fmt.Errorf("audio.threshold %.3f is out of range [0, 1]", cfg.Audio.Threshold))
	}
	if cfg.Audio.SilenceLimit <= 0 {
		errs = append(errs, fmt.Errorf("audio.silence_limit %v must be positive", cfg.Audio.SilenceLimit))
	}
	if cfg.Audio.Volume < 0 || cfg.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.volume %.2f is out of range [0, 1]", cfg.Audio.Volume))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}

	// Assistant
	if cfg.Assistant.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("assistant.cooldown %v must not be negative", cfg.Assistant.Cooldown))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the assistant will not be able to respond")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; captured speech cannot be transcribed")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; responses will be printed instead of spoken")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/veyra-ai/veyra/internal/config"
	"gopkg.in/yaml.v3"
)

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	yml := `
server:
  log_level: debug
  metrics_addr: ":9191"
audio:
  sample_rate: 16000
  threshold: 0.05
  silence_limit: 1500ms
  volume: 0.6
  chunk_size: 1024
providers:
  llm:
    name: ollama
    model: qwen2.5:3b
  stt:
    name: whisper
    model: models/ggml-base.en.bin
  tts:
    name: elevenlabs
    api_key: xi-test
    options:
      voice_id: custom-voice
assistant:
  system_prompt: Keep it short.
  denylist: [hmm, uh]
  cooldown: 80ms
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.MetricsAddr != ":9191" {
		t.Errorf("metrics_addr = %q, want :9191", cfg.Server.MetricsAddr)
	}
	if cfg.Audio.Threshold != 0.05 {
		t.Errorf("threshold = %v, want 0.05", cfg.Audio.Threshold)
	}
	if cfg.Audio.SilenceLimit.Std() != 1500*time.Millisecond {
		t.Errorf("silence_limit = %v, want 1.5s", cfg.Audio.SilenceLimit.Std())
	}
	if cfg.Providers.TTS.Name != "elevenlabs" || cfg.Providers.TTS.APIKey != "xi-test" {
		t.Errorf("tts provider = %+v", cfg.Providers.TTS)
	}
	if got := cfg.Providers.TTS.Options["voice_id"]; got != "custom-voice" {
		t.Errorf("tts options voice_id = %v, want custom-voice", got)
	}
	if len(cfg.Assistant.Denylist) != 2 {
		t.Errorf("denylist = %v, want 2 entries", cfg.Assistant.Denylist)
	}
	if cfg.Assistant.Cooldown.Std() != 80*time.Millisecond {
		t.Errorf("cooldown = %v, want 80ms", cfg.Assistant.Cooldown.Std())
	}
}

func TestLoadFromReader_DefaultsPreserved(t *testing.T) {
	t.Parallel()

	// A minimal file overriding one field keeps every other default.
	yml := `
providers:
  llm:
    name: openai
    api_key: sk-test
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	def := config.Default()
	if cfg.Audio.SampleRate != def.Audio.SampleRate {
		t.Errorf("sample_rate = %d, want default %d", cfg.Audio.SampleRate, def.Audio.SampleRate)
	}
	if cfg.Audio.Threshold != def.Audio.Threshold {
		t.Errorf("threshold = %v, want default %v", cfg.Audio.Threshold, def.Audio.Threshold)
	}
	if cfg.Audio.SilenceLimit.Std() != 2*time.Second {
		t.Errorf("silence_limit = %v, want default 2s", cfg.Audio.SilenceLimit.Std())
	}
	if cfg.Assistant.Cooldown.Std() != 50*time.Millisecond {
		t.Errorf("cooldown = %v, want default 50ms", cfg.Assistant.Cooldown.Std())
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("llm name = %q, want openai", cfg.Providers.LLM.Name)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yml := `
audio:
  sample_rte: 16000
`
	if _, err := config.LoadFromReader(strings.NewReader(yml)); err == nil {
		t.Fatal("unknown field must fail to decode")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "verbose"
	cfg.Audio.SampleRate = 0
	cfg.Audio.Threshold = 1.5
	cfg.Audio.Volume = -0.1
	cfg.Audio.ChunkSize = 0

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate: want error, got nil")
	}
	for _, frag := range []string{
		"server.log_level",
		"audio.sample_rate",
		"audio.threshold",
		"audio.volume",
		"audio.chunk_size",
	} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error %q missing fragment %q", err.Error(), frag)
		}
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/veyra.yaml"); err == nil {
		t.Fatal("Load of a missing file must fail")
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "millis string", in: "1500ms", want: 1500 * time.Millisecond},
		{name: "seconds string", in: "2s", want: 2 * time.Second},
		{name: "bare seconds", in: "2", want: 2 * time.Second},
		{name: "fractional seconds", in: "0.05", want: 50 * time.Millisecond},
		{name: "garbage", in: "soon", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var d config.Duration
			err := yaml.Unmarshal([]byte(tc.in), &d)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%q): want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%q): %v", tc.in, err)
			}
			if d.Std() != tc.want {
				t.Errorf("Unmarshal(%q) = %v, want %v", tc.in, d.Std(), tc.want)
			}
		})
	}
}

// Command veyra is the entry point for the Veyra voice assistant.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/veyra-ai/veyra/internal/app"
	"github.com/veyra-ai/veyra/internal/config"
	"github.com/veyra-ai/veyra/internal/observe"
	"github.com/veyra-ai/veyra/pkg/audio/portaudio"
	"github.com/veyra-ai/veyra/pkg/provider/llm"
	"github.com/veyra-ai/veyra/pkg/provider/llm/anyllm"
	"github.com/veyra-ai/veyra/pkg/provider/stt/whisper"
	"github.com/veyra-ai/veyra/pkg/provider/tts"
	"github.com/veyra-ai/veyra/pkg/provider/tts/elevenlabs"
	openaitts "github.com/veyra-ai/veyra/pkg/provider/tts/openai"
	"github.com/veyra-ai/veyra/pkg/provider/tts/piper"
)

const (
	defaultConfigPath = "config.yaml"
	defaultOllamaURL  = "http://localhost:11434"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	model := flag.String("model", "", "chat model override (skips the interactive ollama menu)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veyra: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("veyra starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "veyra"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	if cfg.Server.MetricsAddr != "" {
		srv := observe.NewMetricsServer(cfg.Server.MetricsAddr)
		go func() {
			if err := observe.Serve(ctx, srv); err != nil {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics endpoint up", "addr", cfg.Server.MetricsAddr)
	}

	// ── Chat model selection ──────────────────────────────────────────────────
	if *model != "" {
		cfg.Providers.LLM.Model = *model
	} else if cfg.Providers.LLM.Name == "ollama" {
		chosen, err := chooseOllamaModel(cfg.Providers.LLM.BaseURL, cfg.Providers.LLM.Model)
		if err != nil {
			slog.Warn("ollama model list unavailable; using configured model",
				"model", cfg.Providers.LLM.Model, "err", err)
		} else {
			cfg.Providers.LLM.Model = chosen
		}
	}

	// ── Audio runtime ─────────────────────────────────────────────────────────
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialise audio runtime", "err", err)
		return 1
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("audio runtime terminate error", "err", err)
		}
	}()

	mic, err := portaudio.NewMicrophone(cfg.Audio.SampleRate)
	if err != nil {
		slog.Error("failed to open microphone", "err", err)
		return 1
	}
	speaker := portaudio.NewSpeaker()

	// ── Providers ─────────────────────────────────────────────────────────────
	chat, err := buildChatProvider(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create chat provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}

	trans, err := whisperTranscriber(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to load speech recognition model", "model", cfg.Providers.STT.Model, "err", err)
		return 1
	}
	defer trans.Close()

	synth := buildSynthesizer(cfg.Providers.TTS)

	printStartupSummary(cfg)

	// ── Keyboard interrupts ───────────────────────────────────────────────────
	interrupts := make(chan struct{}, 1)
	go watchKeyboard(ctx, stop, interrupts)

	// ── Conversation loop ─────────────────────────────────────────────────────
	assistant := app.New(cfg, app.Providers{
		Chat:   chat,
		STT:    trans,
		TTS:    synth,
		Source: mic,
		Sink:   speaker,
	},
		app.WithMetrics(metrics),
		app.WithInterrupts(interrupts),
	)

	slog.Info("listening — any key interrupts playback, Esc or Ctrl+C quits")

	if err := assistant.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file at path. When the default path does not
// exist the built-in defaults are used instead; an explicitly given path must
// exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults", "path", path)
		cfg := config.Default()
		if verr := config.Validate(cfg); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}
	return nil, err
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildChatProvider constructs the streaming chat backend named in entry.
func buildChatProvider(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// whisperTranscriber loads the whisper.cpp model named in entry. Speech
// recognition is mandatory; failure here is fatal to startup.
func whisperTranscriber(entry config.ProviderEntry) (*whisper.Transcriber, error) {
	var opts []whisper.Option
	if lang := optString(entry.Options, "language"); lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	return whisper.New(entry.Model, opts...)
}

// buildSynthesizer constructs the TTS backend named in entry. Synthesis is
// optional: on any failure the assistant falls back to printing responses, so
// errors are logged rather than fatal.
func buildSynthesizer(entry config.ProviderEntry) tts.Synthesizer {
	var (
		synth tts.Synthesizer
		err   error
	)
	switch entry.Name {
	case "":
		slog.Warn("no TTS provider configured; responses will be printed")
		return nil
	case "piper":
		var opts []piper.Option
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, piper.WithVoice(voice))
		}
		synth, err = piper.New(entry.BaseURL, opts...)
	case "openai":
		var opts []openaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, openaitts.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, openaitts.WithVoice(voice))
		}
		synth, err = openaitts.New(entry.APIKey, opts...)
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		synth, err = elevenlabs.New(entry.APIKey, opts...)
	default:
		err = fmt.Errorf("unknown tts provider %q", entry.Name)
	}
	if err != nil {
		slog.Warn("TTS provider unavailable; responses will be printed", "name", entry.Name, "err", err)
		return nil
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name)
	return synth
}

// ── Ollama model menu ─────────────────────────────────────────────────────────

// chooseOllamaModel lists the models installed on the local ollama server and
// lets the user pick one from a numbered menu. An empty answer keeps fallback.
func chooseOllamaModel(baseURL, fallback string) (string, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/api/tags")
	if err != nil {
		return "", fmt.Errorf("list ollama models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list ollama models: status %s", resp.Status)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("decode ollama model list: %w", err)
	}
	if len(tags.Models) == 0 {
		return fallback, nil
	}

	fmt.Println("Available models:")
	for i, m := range tags.Models {
		marker := " "
		if m.Name == fallback {
			marker = "*"
		}
		fmt.Printf(" %s %2d. %s\n", marker, i+1, m.Name)
	}
	fmt.Printf("Select a model [%s]: ", fallback)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fallback, nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(tags.Models) {
		return tags.Models[n-1].Name, nil
	}
	// Anything else is taken as a literal model name.
	return line, nil
}

// ── Keyboard interrupts ───────────────────────────────────────────────────────

// watchKeyboard forwards key presses as interrupt requests. Esc and Ctrl+C
// trigger shutdown; every other key interrupts playback. When no terminal is
// available the watcher logs and bows out — the assistant still runs, just
// without keyboard interrupts.
func watchKeyboard(ctx context.Context, stop context.CancelFunc, interrupts chan<- struct{}) {
	if err := keyboard.Open(); err != nil {
		slog.Warn("keyboard unavailable; interrupts disabled", "err", err)
		return
	}
	var closeOnce sync.Once
	closeKeyboard := func() { closeOnce.Do(func() { keyboard.Close() }) }
	defer closeKeyboard()

	// Unblock GetKey on shutdown.
	go func() {
		<-ctx.Done()
		closeKeyboard()
	}()

	for {
		_, key, err := keyboard.GetKey()
		if err != nil {
			return
		}
		switch key {
		case keyboard.KeyEsc, keyboard.KeyCtrlC:
			stop()
			return
		}
		select {
		case interrupts <- struct{}{}:
		default:
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Veyra — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Chat", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Sample rate  : %-20d ║\n", cfg.Audio.SampleRate)
	fmt.Printf("║  Threshold    : %-20.3f ║\n", cfg.Audio.Threshold)
	fmt.Printf("║  Silence      : %-20s ║\n", cfg.Audio.SilenceLimit.Std())
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics      : %-20s ║\n", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 20 {
		value = value[:17] + "…"
	}
	fmt.Printf("║  %-12s : %-20s ║\n", kind, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Package whisper implements [stt.Transcriber] backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all calls; each
// Transcribe creates its own whisper context, so concurrent transcriptions do
// not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/veyra-ai/veyra/pkg/provider/stt"
)

// SampleRate is the sample rate whisper.cpp expects. Capture must be
// configured to match.
const SampleRate = whisperlib.SampleRate

// defaultLanguage is the BCP-47 language code used when none is configured.
const defaultLanguage = "en"

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely.
type Transcriber struct {
	model    whisperlib.Model
	language string
	threads  int
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithThreads sets the number of CPU threads whisper.cpp may use per
// inference. Zero leaves the binding's default in place.
func WithThreads(n int) Option {
	return func(t *Transcriber) { t.threads = n }
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when the transcriber is no longer
// needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe implements stt.Transcriber. It runs whisper.cpp inference on the
// samples using a fresh context and returns the concatenated segment text.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(samples) == 0 {
		return "", nil
	}

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}
	if t.threads > 0 {
		wctx.SetThreads(uint(t.threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

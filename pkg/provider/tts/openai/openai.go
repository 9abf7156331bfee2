// Package openai provides a TTS synthesizer backed by the OpenAI speech API.
// The API is asked for raw PCM output (24 kHz, 16-bit, mono), which streams
// straight into the playback pipeline without container parsing.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/veyra-ai/veyra/pkg/provider/tts"
)

const (
	// DefaultModel is the default OpenAI speech model.
	DefaultModel = oai.SpeechModelGPT4oMiniTTS

	// DefaultVoice is the default OpenAI voice.
	DefaultVoice = oai.AudioSpeechNewParamsVoiceAlloy

	// pcmSampleRate is the fixed sample rate of the API's "pcm" response
	// format.
	pcmSampleRate = 24000

	// pcmChunkBytes is the read size used when streaming the response body.
	pcmChunkBytes = 4096
)

// Compile-time assertion that Synthesizer satisfies tts.Synthesizer.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements tts.Synthesizer using the OpenAI speech API.
type Synthesizer struct {
	client oai.Client
	model  oai.SpeechModel
	voice  oai.AudioSpeechNewParamsVoice
}

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the voice name (e.g., "alloy", "nova", "onyx").
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI speech Synthesizer.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	s := &Synthesizer{
		client: oai.NewClient(reqOpts...),
		model:  DefaultModel,
		voice:  DefaultVoice,
	}
	if cfg.model != "" {
		s.model = oai.SpeechModel(cfg.model)
	}
	if cfg.voice != "" {
		s.voice = oai.AudioSpeechNewParamsVoice(cfg.voice)
	}
	return s, nil
}

// Synthesize implements tts.Synthesizer. The response body is streamed in
// fixed-size reads so playback can begin before synthesis finishes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*tts.SpeechStream, error) {
	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          s.model,
		Voice:          s.voice,
		Input:          text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech request: %w", err)
	}

	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		for {
			buf := make([]byte, pcmChunkBytes)
			n, err := resp.Body.Read(buf)
			if n > 0 {
				select {
				case ch <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Warn("openai tts: response stream ended early", "err", err)
				}
				return
			}
		}
	}()

	return &tts.SpeechStream{Chunks: ch, SampleRate: pcmSampleRate}, nil
}

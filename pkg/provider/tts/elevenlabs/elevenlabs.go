// Package elevenlabs provides an ElevenLabs-backed TTS synthesizer using the
// ElevenLabs streaming WebSocket API (stream-input). One WebSocket connection
// is opened per sentence; the audio arrives as base64-encoded PCM messages
// that are decoded and forwarded on the stream.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/veyra-ai/veyra/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM" // "Rachel"
)

// Compile-time assertion that Synthesizer satisfies tts.Synthesizer.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring the ElevenLabs Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = model }
}

// WithVoice sets the ElevenLabs voice ID.
func WithVoice(voiceID string) Option {
	return func(s *Synthesizer) { s.voiceID = voiceID }
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000",
// "pcm_24000"). Only pcm_* formats are supported.
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Synthesizer struct {
	apiKey       string
	model        string
	voiceID      string
	outputFormat string
}

// New creates a new ElevenLabs Synthesizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		model:        defaultModel,
		voiceID:      defaultVoiceID,
		outputFormat: defaultOutputFmt,
	}
	for _, o := range opts {
		o(s)
	}
	if _, err := sampleRateFromFormat(s.outputFormat); err != nil {
		return nil, err
	}
	return s, nil
}

// ─── WebSocket message types ──────────────────────────────────────────────────

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
// An empty Text signals end of input.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// Synthesize implements tts.Synthesizer. It opens a WebSocket, sends the text
// followed by the end-of-input flush, and forwards decoded PCM until the
// server closes the stream.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*tts.SpeechStream, error) {
	rate, err := sampleRateFromFormat(s.outputFormat)
	if err != nil {
		return nil, err
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, s.voiceID, s.model, s.outputFormat)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// Send the initial BOI message to authenticate and configure the stream.
	boi := boiMessage{
		Text: " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey: s.apiKey,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	// Send the sentence, then the flush message that ends the input.
	payload, _ := json.Marshal(textMessage{Text: text + " "})
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send text")
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	flush, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send flush")
		return nil, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	ch := make(chan []byte, 64)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err == nil && len(pcm) > 0 {
					select {
					case ch <- pcm:
					case <-ctx.Done():
						return
					}
				}
			}
			if resp.IsFinal {
				return
			}
		}
	}()

	return &tts.SpeechStream{Chunks: ch, SampleRate: rate}, nil
}

// sampleRateFromFormat extracts the sample rate from a pcm_* output format
// string (e.g., "pcm_16000" → 16000).
func sampleRateFromFormat(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q; only pcm_* formats are supported", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

package app_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veyra-ai/veyra/internal/app"
	"github.com/veyra-ai/veyra/internal/config"
	"github.com/veyra-ai/veyra/pkg/audio"
	audiomock "github.com/veyra-ai/veyra/pkg/audio/mock"
	"github.com/veyra-ai/veyra/pkg/provider/llm"
	llmmock "github.com/veyra-ai/veyra/pkg/provider/llm/mock"
	sttmock "github.com/veyra-ai/veyra/pkg/provider/stt/mock"
	ttsmock "github.com/veyra-ai/veyra/pkg/provider/tts/mock"
)

// speechFrame returns a frame loud enough to trip the default capture
// threshold.
func speechFrame(n int) audio.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.5
	}
	return audio.Frame{Samples: samples, SampleRate: 16000}
}

// pcm returns n int16 samples of constant value as little-endian PCM.
func pcm(n int, value int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[2*i] = byte(value)
		out[2*i+1] = byte(value >> 8)
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Assistant.Cooldown = config.Duration(time.Millisecond)
	return cfg
}

func TestRun_SingleTurn(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(8)
	sink := &audiomock.Sink{}
	chat := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "It is four. "},
			{Text: "Easy!", FinishReason: "stop"},
		},
	}
	trans := &sttmock.Transcriber{Result: "what is two plus two"}
	synth := &ttsmock.Synthesizer{Chunks: [][]byte{pcm(64, 1000)}}

	var echo bytes.Buffer
	cfg := testConfig()
	a := app.New(cfg, app.Providers{
		Chat:   chat,
		STT:    trans,
		TTS:    synth,
		Source: source,
		Sink:   sink,
	}, app.WithEchoWriter(&echo))

	// One loud frame, then end of capture: the gate returns the partial
	// utterance and the loop exits after the turn.
	source.Push(speechFrame(320))
	source.CloseFrames()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(trans.Calls) != 1 {
		t.Fatalf("transcribe calls: want 1, got %d", len(trans.Calls))
	}
	if len(trans.Calls[0].Samples) != 320 {
		t.Errorf("transcribed samples: want 320, got %d", len(trans.Calls[0].Samples))
	}

	if len(chat.StreamCalls) != 1 {
		t.Fatalf("stream calls: want 1, got %d", len(chat.StreamCalls))
	}
	req := chat.StreamCalls[0].Req
	if req.SystemPrompt != cfg.Assistant.SystemPrompt {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "what is two plus two" {
		t.Errorf("request messages = %+v", req.Messages)
	}

	wantTexts := []string{"It is four.", "Easy!"}
	texts := synth.CallTexts()
	if len(texts) != len(wantTexts) {
		t.Fatalf("synthesized texts = %v, want %v", texts, wantTexts)
	}
	for i := range wantTexts {
		if texts[i] != wantTexts[i] {
			t.Errorf("synthesized[%d] = %q, want %q", i, texts[i], wantTexts[i])
		}
	}
	if got := len(sink.Chunks()); got != 2 {
		t.Errorf("played chunks: want 2, got %d", got)
	}

	hist := a.History()
	if len(hist) != 2 {
		t.Fatalf("history = %+v, want user+assistant", hist)
	}
	if hist[0].Role != "user" || hist[1].Role != "assistant" {
		t.Errorf("history roles = %q, %q", hist[0].Role, hist[1].Role)
	}
	if hist[1].Content != "It is four. Easy!" {
		t.Errorf("assistant history = %q", hist[1].Content)
	}

	out := echo.String()
	if !strings.Contains(out, "you> what is two plus two") {
		t.Errorf("echo missing transcript: %q", out)
	}
	if !strings.Contains(out, "It is four. Easy!") {
		t.Errorf("echo missing response tokens: %q", out)
	}
}

func TestRun_ArtifactDiscarded(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(8)
	chat := &llmmock.Provider{}
	trans := &sttmock.Transcriber{Result: "you"}

	a := app.New(testConfig(), app.Providers{
		Chat:   chat,
		STT:    trans,
		TTS:    &ttsmock.Synthesizer{},
		Source: source,
		Sink:   &audiomock.Sink{},
	}, app.WithEchoWriter(&bytes.Buffer{}))

	source.Push(speechFrame(320))
	source.CloseFrames()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(chat.StreamCalls) != 0 {
		t.Errorf("artifact transcript must not reach the model: %d calls", len(chat.StreamCalls))
	}
	if len(a.History()) != 0 {
		t.Errorf("history = %+v, want empty", a.History())
	}
}

func TestRun_STTErrorKeepsListening(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(8)
	chat := &llmmock.Provider{}
	trans := &sttmock.Transcriber{Err: errors.New("model not loaded")}

	a := app.New(testConfig(), app.Providers{
		Chat:   chat,
		STT:    trans,
		TTS:    &ttsmock.Synthesizer{},
		Source: source,
		Sink:   &audiomock.Sink{},
	}, app.WithEchoWriter(&bytes.Buffer{}))

	source.Push(speechFrame(320))
	source.CloseFrames()

	// The failed turn is swallowed and the loop exits cleanly at end of
	// capture.
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(chat.StreamCalls) != 0 {
		t.Errorf("failed transcription must not reach the model: %d calls", len(chat.StreamCalls))
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(8)
	a := app.New(testConfig(), app.Providers{
		Chat:   &llmmock.Provider{},
		STT:    &sttmock.Transcriber{},
		TTS:    &ttsmock.Synthesizer{},
		Source: source,
		Sink:   &audiomock.Sink{},
	}, app.WithEchoWriter(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_TextFallback(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(8)
	sink := &audiomock.Sink{}
	chat := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "Hello there.", FinishReason: "stop"}},
	}

	var echo bytes.Buffer
	a := app.New(testConfig(), app.Providers{
		Chat:   chat,
		STT:    &sttmock.Transcriber{Result: "say hello"},
		TTS:    nil,
		Source: source,
		Sink:   sink,
	}, app.WithEchoWriter(&echo))

	source.Push(speechFrame(320))
	source.CloseFrames()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.Chunks()) != 0 {
		t.Error("no audio must be played without a synthesizer")
	}
	if !strings.Contains(echo.String(), "Hello there.") {
		t.Errorf("echo missing fallback text: %q", echo.String())
	}
}

func TestRun_MarkdownCleanedBeforeSynthesis(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(8)
	chat := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "This is **bold** advice. ", FinishReason: "stop"},
		},
	}
	synth := &ttsmock.Synthesizer{Chunks: [][]byte{pcm(64, 1000)}}

	a := app.New(testConfig(), app.Providers{
		Chat:   chat,
		STT:    &sttmock.Transcriber{Result: "give me advice"},
		TTS:    synth,
		Source: source,
		Sink:   &audiomock.Sink{},
	}, app.WithEchoWriter(&bytes.Buffer{}))

	source.Push(speechFrame(320))
	source.CloseFrames()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	texts := synth.CallTexts()
	if len(texts) != 1 || texts[0] != "This is bold advice." {
		t.Errorf("synthesized texts = %v, want [This is bold advice.]", texts)
	}
}

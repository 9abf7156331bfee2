// Package app wires the capture, transcription, chat, and speech stages into
// the interactive conversation loop.
//
// One [Assistant] owns the whole pipeline: it listens for an utterance, runs
// speech recognition on it, streams a chat completion, and hands complete
// sentences to the speech engine while tokens are still arriving. A user
// interrupt cancels the in-flight completion and silences the engine, after
// which the loop goes straight back to listening.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veyra-ai/veyra/internal/capture"
	"github.com/veyra-ai/veyra/internal/config"
	"github.com/veyra-ai/veyra/internal/observe"
	"github.com/veyra-ai/veyra/internal/segment"
	"github.com/veyra-ai/veyra/internal/speech"
	"github.com/veyra-ai/veyra/internal/transcript"
	"github.com/veyra-ai/veyra/pkg/audio"
	"github.com/veyra-ai/veyra/pkg/provider/llm"
	"github.com/veyra-ai/veyra/pkg/provider/stt"
	"github.com/veyra-ai/veyra/pkg/provider/tts"
)

// defaultHistoryLimit caps the conversation history. When exceeded, the two
// oldest messages (one exchange) are dropped.
const defaultHistoryLimit = 64

// errSourceClosed signals that the audio source's frame stream ended, which
// terminates the conversation loop cleanly.
var errSourceClosed = errors.New("app: audio source closed")

// Providers bundles the pluggable backends of one assistant instance.
type Providers struct {
	// Chat generates the assistant's responses.
	Chat llm.Provider

	// STT transcribes captured utterances.
	STT stt.Transcriber

	// TTS synthesizes responses. Nil means responses are printed instead of
	// spoken.
	TTS tts.Synthesizer

	// Source delivers microphone frames.
	Source audio.Source

	// Sink plays synthesized audio.
	Sink audio.Sink
}

// Option is a functional option for configuring an Assistant during
// construction.
type Option func(*Assistant)

// WithEchoWriter sets where transcripts and response tokens are echoed.
// Default os.Stdout.
func WithEchoWriter(w io.Writer) Option {
	return func(a *Assistant) { a.echo = w }
}

// WithMetrics wires the assistant's instrumentation. Nil disables it.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithInterrupts sets the channel that delivers user interrupt requests.
// Each received value cancels the in-flight response and silences playback.
func WithInterrupts(ch <-chan struct{}) Option {
	return func(a *Assistant) { a.interrupts = ch }
}

// WithHistoryLimit overrides the conversation history cap. Default 64 messages.
func WithHistoryLimit(n int) Option {
	return func(a *Assistant) { a.historyLimit = n }
}

// Assistant runs the conversation loop. Construct with [New] and drive with
// [Assistant.Run]; all other methods are safe to call concurrently with Run.
type Assistant struct {
	providers Providers
	gate      *capture.Gate
	engine    *speech.Engine
	filter    *transcript.Filter

	systemPrompt string
	echo         io.Writer
	metrics      *observe.Metrics
	interrupts   <-chan struct{}
	historyLimit int

	mu         sync.Mutex
	history    []llm.Message
	turnCancel context.CancelFunc
}

// New constructs an Assistant from the configuration and provider set. The
// speech engine and capture gate are built here so their tuning follows the
// audio section of cfg.
func New(cfg *config.Config, p Providers, opts ...Option) *Assistant {
	a := &Assistant{
		providers:    p,
		systemPrompt: cfg.Assistant.SystemPrompt,
		echo:         os.Stdout,
		historyLimit: defaultHistoryLimit,
		filter:       transcript.NewFilter(transcript.WithDenylist(cfg.Assistant.Denylist...)),
	}
	for _, o := range opts {
		o(a)
	}

	a.gate = capture.New(p.Source, capture.Config{
		Threshold:    cfg.Audio.Threshold,
		SilenceLimit: cfg.Audio.SilenceLimit.Std(),
	})
	a.engine = speech.New(p.TTS, p.Sink,
		speech.WithVolume(cfg.Audio.Volume),
		speech.WithChunkSize(cfg.Audio.ChunkSize),
		speech.WithCooldown(cfg.Assistant.Cooldown.Std()),
		speech.WithFallbackWriter(a.echo),
		speech.WithMetrics(a.metrics),
	)
	return a
}

// Run starts the audio source and drives the conversation loop until ctx is
// cancelled or the source's frame stream ends. It owns the speech engine's
// lifetime; after Run returns the assistant cannot be restarted.
func (a *Assistant) Run(ctx context.Context) error {
	if err := a.providers.Source.Start(ctx); err != nil {
		return fmt.Errorf("app: start audio source: %w", err)
	}
	defer func() {
		if err := a.providers.Source.Stop(); err != nil {
			slog.Warn("app: stop audio source", "err", err)
		}
		if err := a.engine.Close(); err != nil {
			slog.Warn("app: close speech engine", "err", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	if a.interrupts != nil {
		g.Go(func() error { return a.watchInterrupts(ctx) })
	}
	g.Go(func() error { return a.loop(ctx) })

	err := g.Wait()
	if errors.Is(err, errSourceClosed) {
		return nil
	}
	return err
}

// watchInterrupts forwards interrupt requests to the speech engine and
// cancels the in-flight turn so the completion stream stops promptly.
func (a *Assistant) watchInterrupts(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-a.interrupts:
			if !ok {
				return nil
			}
			slog.Info("interrupted")
			a.cancelTurn()
			a.engine.Interrupt()
		}
	}
}

// loop alternates between listening and responding until the context is
// cancelled or the source closes.
func (a *Assistant) loop(ctx context.Context) error {
	for {
		utt, err := a.gate.Listen(ctx)
		if err != nil {
			return err
		}
		if utt == nil {
			return errSourceClosed
		}
		if err := a.turn(ctx, utt); err != nil {
			return err
		}
	}
}

// turn handles one captured utterance end to end. Provider failures are
// logged and swallowed so the loop keeps listening; only context cancellation
// propagates.
func (a *Assistant) turn(ctx context.Context, utt *capture.Utterance) error {
	if a.metrics != nil {
		a.metrics.CaptureDuration.Record(ctx, utt.Duration().Seconds())
	}

	sttStart := time.Now()
	text, err := a.providers.STT.Transcribe(ctx, utt.Samples())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("app: transcription failed", "err", err)
		if a.metrics != nil {
			a.metrics.RecordProviderError(ctx, "stt")
		}
		return nil
	}
	if a.metrics != nil {
		a.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	}

	text = strings.TrimSpace(text)
	if a.filter.IsArtifact(text) {
		slog.Debug("app: transcript discarded as artifact", "text", text)
		if a.metrics != nil && text != "" {
			a.metrics.DiscardedTranscripts.Add(ctx, 1)
		}
		return nil
	}

	fmt.Fprintf(a.echo, "you> %s\n", text)
	req := a.buildRequest(text)

	// A per-turn context lets an interrupt cancel just the completion stream
	// without tearing down the loop.
	turnCtx, cancel := context.WithCancel(ctx)
	a.setTurnCancel(cancel)
	defer func() {
		a.setTurnCancel(nil)
		cancel()
	}()

	llmStart := time.Now()
	ch, err := a.providers.Chat.StreamCompletion(turnCtx, req)
	if err != nil {
		slog.Error("app: completion stream failed", "err", err)
		if a.metrics != nil {
			a.metrics.RecordProviderError(ctx, "llm")
		}
		return nil
	}

	var (
		seg   segment.Segmenter
		full  strings.Builder
		first = true
	)
	fmt.Fprint(a.echo, "veyra> ")
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			slog.Error("app: completion failed mid-stream", "err", chunk.Text)
			if a.metrics != nil {
				a.metrics.RecordProviderError(ctx, "llm")
			}
			break
		}
		if chunk.Text == "" {
			continue
		}
		if first {
			first = false
			if a.metrics != nil {
				a.metrics.LLMFirstToken.Record(ctx, time.Since(llmStart).Seconds())
			}
		}
		fmt.Fprint(a.echo, chunk.Text)
		full.WriteString(chunk.Text)
		for _, sentence := range seg.Push(chunk.Text) {
			a.say(turnCtx, sentence)
		}
	}
	fmt.Fprintln(a.echo)

	if turnCtx.Err() == nil {
		if rest := seg.Flush(); rest != "" {
			a.say(turnCtx, rest)
		}
	}
	a.engine.DrainAndWait()

	if reply := strings.TrimSpace(full.String()); reply != "" {
		a.appendHistory(
			llm.Message{Role: "user", Content: text},
			llm.Message{Role: "assistant", Content: reply},
		)
	}
	if a.metrics != nil {
		a.metrics.Turns.Add(ctx, 1)
	}
	return nil
}

// say cleans one sentence for speech and enqueues it, unless the turn has
// been interrupted.
func (a *Assistant) say(turnCtx context.Context, sentence string) {
	if turnCtx.Err() != nil {
		return
	}
	if cleaned := transcript.CleanForSpeech(sentence); cleaned != "" {
		a.engine.Enqueue(cleaned)
	}
}

// buildRequest snapshots the history plus the new user message into a
// completion request. The user message joins the durable history only after
// the model has replied, so a failed turn does not pollute later requests.
func (a *Assistant) buildRequest(userText string) llm.CompletionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]llm.Message, len(a.history)+1)
	copy(msgs, a.history)
	msgs[len(a.history)] = llm.Message{Role: "user", Content: userText}
	return llm.CompletionRequest{
		SystemPrompt: a.systemPrompt,
		Messages:     msgs,
	}
}

// appendHistory adds messages to the conversation history, dropping the
// oldest exchange while over the limit.
func (a *Assistant) appendHistory(msgs ...llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, msgs...)
	for len(a.history) > a.historyLimit && len(a.history) >= 2 {
		a.history = a.history[2:]
	}
}

// History returns a copy of the conversation history.
func (a *Assistant) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.history))
	copy(out, a.history)
	return out
}

// setTurnCancel records the in-flight turn's cancel function, or clears it
// when nil.
func (a *Assistant) setTurnCancel(cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turnCancel = cancel
}

// cancelTurn cancels the in-flight turn, if any.
func (a *Assistant) cancelTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.turnCancel != nil {
		a.turnCancel()
	}
}

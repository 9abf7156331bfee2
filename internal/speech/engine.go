// Package speech implements the playback side of the voice loop: a
// single-consumer queue of sentences that are synthesized, normalized, and
// played in small fixed-size chunks, plus the interrupt control that can stop
// all of it between any two chunks.
//
// # Concurrency
//
// One background consumer goroutine owns the synthesize→play pipeline. The
// job queue and the active flag are the only state shared with callers:
// [Engine.Enqueue] appends under the queue lock, [Engine.Interrupt] clears the
// flag and the queue, and the consumer re-checks the flag after every
// synthesis chunk and before every playback write. Worst-case interrupt
// latency is therefore one sub-chunk of playback plus one synthesis chunk.
package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veyra-ai/veyra/internal/observe"
	"github.com/veyra-ai/veyra/pkg/audio"
	"github.com/veyra-ai/veyra/pkg/provider/tts"
)

const (
	// DefaultVolume is the master playback volume.
	DefaultVolume = 0.8

	// DefaultChunkSize is the number of samples per playback write.
	DefaultChunkSize = 2048

	// DefaultCooldown is the pause between clearing the queue on interrupt
	// and accepting speech again.
	DefaultCooldown = 50 * time.Millisecond
)

// Engine is the speech playback queue. Construct with [New], feed with
// [Engine.Enqueue], and stop with [Engine.Close]. All methods are safe for
// concurrent use.
type Engine struct {
	synth tts.Synthesizer // nil = text fallback
	sink  audio.Sink

	volume    float64
	chunkSize int
	cooldown  time.Duration
	fallback  io.Writer
	metrics   *observe.Metrics

	// active gates all synthesis and playback. Cleared by Interrupt,
	// restored after the queue drain and cooldown.
	active atomic.Bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	busy   bool // a job is mid-flight in the consumer
	closed bool

	jobCtx    context.Context
	jobCancel context.CancelFunc
	wg        sync.WaitGroup
}

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithVolume sets the master volume in [0, 1]. Default 0.8.
func WithVolume(v float64) Option {
	return func(e *Engine) { e.volume = v }
}

// WithChunkSize sets the number of samples per playback write. Default 2048.
func WithChunkSize(n int) Option {
	return func(e *Engine) { e.chunkSize = n }
}

// WithCooldown sets the post-interrupt pause before reactivation. Default 50 ms.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) { e.cooldown = d }
}

// WithFallbackWriter sets where sentences are printed when no synthesizer is
// configured. Default os.Stdout.
func WithFallbackWriter(w io.Writer) Option {
	return func(e *Engine) { e.fallback = w }
}

// WithMetrics wires the engine's instrumentation. Nil disables it.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an Engine and starts its consumer goroutine. synth may be
// nil, in which case every job is printed to the fallback writer instead of
// being spoken.
func New(synth tts.Synthesizer, sink audio.Sink, opts ...Option) *Engine {
	e := &Engine{
		synth:     synth,
		sink:      sink,
		volume:    DefaultVolume,
		chunkSize: DefaultChunkSize,
		cooldown:  DefaultCooldown,
		fallback:  os.Stdout,
	}
	for _, o := range opts {
		o(e)
	}
	e.cond = sync.NewCond(&e.mu)
	e.active.Store(true)
	e.jobCtx, e.jobCancel = context.WithCancel(context.Background())

	e.wg.Add(1)
	go e.consume()
	return e
}

// Enqueue appends one sentence to the playback queue. Empty text is ignored,
// as is any enqueue after Close.
func (e *Engine) Enqueue(text string) {
	if text == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, text)
	if e.metrics != nil {
		e.metrics.QueueDepth.Add(e.jobCtx, 1)
	}
	e.cond.Broadcast()
}

// DrainAndWait blocks until the queue is empty and no job is mid-flight.
// An interrupt unblocks it too, since the interrupt empties the queue and the
// consumer abandons the in-flight job.
func (e *Engine) DrainAndWait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) > 0 || e.busy {
		e.cond.Wait()
	}
}

// QueueLen returns the number of queued jobs, excluding any job mid-flight.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Active reports whether the engine currently accepts and plays speech.
// It is false only during the interrupt window.
func (e *Engine) Active() bool {
	return e.active.Load()
}

// Close stops the consumer goroutine and waits for it to exit. Queued jobs
// are discarded. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()

	e.jobCancel()
	e.wg.Wait()
	return nil
}

// ─── Consumer ─────────────────────────────────────────────────────────────────

// consume is the single consumer goroutine. It pops jobs while the engine is
// active and runs each through synthesize→normalize→play. Per-job failures
// are logged; the loop only exits on Close.
func (e *Engine) consume() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		// A job popped while inactive would be discarded by the active
		// checks below, so wait out the interrupt window here instead.
		// Jobs enqueued during the cooldown survive and play after
		// reactivation.
		for !e.closed && (len(e.queue) == 0 || !e.active.Load()) {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		text := e.queue[0]
		e.queue = e.queue[1:]
		e.busy = true
		if e.metrics != nil {
			e.metrics.QueueDepth.Add(e.jobCtx, -1)
		}
		e.mu.Unlock()

		e.process(text)

		e.mu.Lock()
		e.busy = false
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}

// process runs one job end to end. It never returns an error: failures are
// logged and the job abandoned so the consumer stays alive.
func (e *Engine) process(text string) {
	if e.synth == nil {
		fmt.Fprintln(e.fallback, text)
		return
	}

	start := time.Now()
	stream, err := e.synth.Synthesize(e.jobCtx, text)
	if err != nil {
		slog.Error("speech: synthesis failed", "err", err)
		if e.metrics != nil {
			e.metrics.RecordProviderError(e.jobCtx, "tts")
		}
		return
	}

	// Collect PCM, re-checking the active flag after every chunk so an
	// interrupt aborts synthesis collection promptly.
	var pcm []byte
	for chunk := range stream.Chunks {
		if !e.active.Load() {
			go drainChunks(stream.Chunks)
			return
		}
		pcm = append(pcm, chunk...)
	}
	if e.metrics != nil {
		e.metrics.TTSDuration.Record(e.jobCtx, time.Since(start).Seconds())
	}
	if len(pcm) == 0 {
		return
	}

	samples := audio.Int16BytesToFloat32(pcm)
	audio.Scale(samples, e.volume)

	e.play(samples, stream.SampleRate)
}

// play writes samples to a freshly opened sink stream in fixed-size chunks,
// re-checking the active flag before each write and padding the final chunk
// with silence. The stream is scoped to this one buffer: it is closed on
// normal completion, on interrupt, and on write error alike.
func (e *Engine) play(samples []float32, sampleRate int) {
	out, err := e.sink.Open(sampleRate, e.chunkSize)
	if err != nil {
		slog.Error("speech: open playback stream failed", "err", err)
		return
	}
	defer out.Close()

	start := time.Now()
	for off := 0; off < len(samples); off += e.chunkSize {
		if !e.active.Load() {
			return
		}
		end := off + e.chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := audio.Pad(samples[off:end], e.chunkSize)
		if err := out.Write(chunk); err != nil {
			slog.Error("speech: playback write failed", "err", err)
			return
		}
	}
	if e.metrics != nil {
		e.metrics.PlaybackDuration.Record(e.jobCtx, time.Since(start).Seconds())
	}
}

// drainChunks discards all remaining chunks from ch so the synthesizer's
// goroutine is not left blocked after an interrupt.
func drainChunks(ch <-chan []byte) {
	for range ch {
	}
}

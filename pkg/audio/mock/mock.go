// Package mock provides in-memory test doubles for the audio device
// interfaces. Source replays a scripted frame sequence; Sink records every
// chunk written to it and can delay writes to widen race windows in tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/veyra-ai/veyra/pkg/audio"
)

// Compile-time assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
	_ audio.Stream = (*Stream)(nil)
)

// Source is a mock audio.Source fed by the test. Push frames with
// [Source.Push] and call [Source.CloseFrames] to signal end of capture.
type Source struct {
	frames chan audio.Frame
	once   sync.Once
}

// NewSource creates a Source with the given channel capacity.
func NewSource(buffer int) *Source {
	return &Source{frames: make(chan audio.Frame, buffer)}
}

// Start implements audio.Source. It is a no-op; the test drives delivery.
func (s *Source) Start(_ context.Context) error { return nil }

// Frames implements audio.Source.
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Stop implements audio.Source and closes the frame channel.
func (s *Source) Stop() error {
	s.CloseFrames()
	return nil
}

// Push delivers one frame to the consumer. Blocks if the channel is full.
func (s *Source) Push(f audio.Frame) { s.frames <- f }

// CloseFrames closes the frame channel. Safe to call more than once.
func (s *Source) CloseFrames() {
	s.once.Do(func() { close(s.frames) })
}

// Sink is a mock audio.Sink. Every opened Stream records its writes into the
// shared Sink so tests can inspect the full playback history.
type Sink struct {
	mu sync.Mutex

	// WriteDelay, when non-zero, makes every Stream.Write sleep before
	// recording. Useful for holding a playback mid-flight while a test
	// fires an interrupt.
	WriteDelay time.Duration

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	opens  []OpenCall
	chunks [][]float32
}

// OpenCall records one invocation of Open.
type OpenCall struct {
	SampleRate int
	ChunkSize  int
}

// Open implements audio.Sink.
func (s *Sink) Open(sampleRate, chunkSize int) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.opens = append(s.opens, OpenCall{SampleRate: sampleRate, ChunkSize: chunkSize})
	return &Stream{sink: s}, nil
}

// Opens returns a copy of all recorded Open calls.
func (s *Sink) Opens() []OpenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OpenCall, len(s.opens))
	copy(out, s.opens)
	return out
}

// Chunks returns a copy of every chunk written across all streams, in order.
func (s *Sink) Chunks() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// record appends one written chunk.
func (s *Sink) record(samples []float32) {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.mu.Lock()
	s.chunks = append(s.chunks, cp)
	s.mu.Unlock()
}

// Stream is a mock audio.Stream bound to its parent Sink.
type Stream struct {
	sink *Sink
}

// Write implements audio.Stream.
func (st *Stream) Write(samples []float32) error {
	if d := st.sink.WriteDelay; d > 0 {
		time.Sleep(d)
	}
	st.sink.record(samples)
	return nil
}

// Close implements audio.Stream.
func (st *Stream) Close() error { return nil }

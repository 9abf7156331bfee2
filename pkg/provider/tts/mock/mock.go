// Package mock provides a test double for the tts.Synthesizer interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/veyra-ai/veyra/pkg/provider/tts"
)

// Call records a single invocation of Synthesize.
type Call struct {
	// Text is the text passed to Synthesize.
	Text string
}

// Synthesizer is a mock implementation of tts.Synthesizer. It emits Chunks on
// every call, optionally delaying between chunks to let tests interrupt a
// synthesis mid-stream.
type Synthesizer struct {
	mu sync.Mutex

	// Chunks is the sequence of PCM chunks emitted per Synthesize call.
	Chunks [][]byte

	// SampleRate reported on every returned stream. Defaults to 16000
	// when zero.
	SampleRate int

	// ChunkDelay, when non-zero, is slept before each chunk is emitted.
	ChunkDelay time.Duration

	// Err, if non-nil, is returned from Synthesize instead of a stream.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Synthesize records the call and returns a stream emitting Chunks.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*tts.SpeechStream, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, Call{Text: text})
	if s.Err != nil {
		err := s.Err
		s.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(s.Chunks))
	copy(chunks, s.Chunks)
	rate := s.SampleRate
	delay := s.ChunkDelay
	s.mu.Unlock()

	if rate == 0 {
		rate = 16000
	}

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if delay > 0 {
				time.Sleep(delay)
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &tts.SpeechStream{Chunks: ch, SampleRate: rate}, nil
}

// CallTexts returns the texts of all recorded calls. Thread-safe.
func (s *Synthesizer) CallTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)

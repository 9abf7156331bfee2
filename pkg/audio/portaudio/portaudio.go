// Package portaudio implements [audio.Source] and [audio.Sink] on top of the
// default system devices using the PortAudio Go bindings.
//
// The PortAudio runtime must be initialised once per process via [Initialize]
// before any device is opened, and released with [Terminate] on shutdown.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	palib "github.com/gordonklaus/portaudio"

	"github.com/veyra-ai/veyra/pkg/audio"
)

const (
	// defaultFrameSize is the number of samples per captured frame. At
	// 16 kHz this is 64 ms of audio, small enough to keep the energy gate
	// responsive.
	defaultFrameSize = 1024

	// defaultQueueDepth bounds the frame channel. When the consumer falls
	// behind, frames are dropped instead of blocking the capture loop.
	defaultQueueDepth = 64
)

// Initialize starts the PortAudio runtime. Call once from main before
// constructing any Microphone or Speaker.
func Initialize() error {
	if err := palib.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio runtime. Call once on shutdown.
func Terminate() error {
	if err := palib.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// ─── Microphone (capture source) ──────────────────────────────────────────────

// Compile-time assertion that Microphone satisfies audio.Source.
var _ audio.Source = (*Microphone)(nil)

// Microphone captures mono float32 frames from the default input device.
// Frames are pushed into a bounded channel; when the consumer is too slow the
// frame is dropped so the device callback never stalls.
type Microphone struct {
	sampleRate int
	frameSize  int

	frames chan audio.Frame

	mu      sync.Mutex
	stream  *palib.Stream
	stopped bool
	once    sync.Once
}

// MicOption is a functional option for configuring a Microphone.
type MicOption func(*Microphone)

// WithFrameSize sets the number of samples per captured frame. Default 1024.
func WithFrameSize(n int) MicOption {
	return func(m *Microphone) { m.frameSize = n }
}

// WithQueueDepth sets the capacity of the frame channel. Default 64.
func WithQueueDepth(n int) MicOption {
	return func(m *Microphone) { m.frames = make(chan audio.Frame, n) }
}

// NewMicrophone creates a Microphone capturing at the given sample rate from
// the default input device. Capture does not begin until [Microphone.Start].
func NewMicrophone(sampleRate int, opts ...MicOption) (*Microphone, error) {
	if sampleRate <= 0 {
		return nil, errors.New("portaudio: sampleRate must be positive")
	}
	m := &Microphone{
		sampleRate: sampleRate,
		frameSize:  defaultFrameSize,
		frames:     make(chan audio.Frame, defaultQueueDepth),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Start implements audio.Source. It opens the default input stream and spawns
// the read loop. The loop exits, closing the Frames channel, when ctx is
// cancelled or Stop is called.
func (m *Microphone) Start(ctx context.Context) error {
	buf := make([]float32, m.frameSize)
	stream, err := palib.OpenDefaultStream(1, 0, float64(m.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}

	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()

	go m.readLoop(ctx, stream, buf)
	return nil
}

// readLoop reads fixed-size buffers from the device and forwards copies as
// frames. Read errors are logged and the frame skipped.
func (m *Microphone) readLoop(ctx context.Context, stream *palib.Stream, buf []float32) {
	defer close(m.frames)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.mu.Lock()
		stopped := m.stopped
		m.mu.Unlock()
		if stopped {
			return
		}

		if err := stream.Read(); err != nil {
			// Overflows happen when the consumer briefly stalls; the
			// buffer still holds valid audio on some platforms, but
			// skipping one frame is harmless either way.
			slog.Warn("portaudio: input read error, skipping frame", "err", err)
			continue
		}

		samples := make([]float32, len(buf))
		copy(samples, buf)
		select {
		case m.frames <- audio.Frame{Samples: samples, SampleRate: m.sampleRate}:
		default:
			// Consumer is behind. Drop the frame.
		}
	}
}

// Frames implements audio.Source.
func (m *Microphone) Frames() <-chan audio.Frame {
	return m.frames
}

// Stop implements audio.Source. It ends capture and closes the device stream.
// Safe to call more than once.
func (m *Microphone) Stop() error {
	var err error
	m.once.Do(func() {
		m.mu.Lock()
		m.stopped = true
		stream := m.stream
		m.mu.Unlock()
		if stream != nil {
			if e := stream.Stop(); e != nil {
				err = fmt.Errorf("portaudio: stop input stream: %w", e)
			}
			if e := stream.Close(); e != nil && err == nil {
				err = fmt.Errorf("portaudio: close input stream: %w", e)
			}
		}
	})
	return err
}

// ─── Speaker (playback sink) ──────────────────────────────────────────────────

// Compile-time assertion that Speaker satisfies audio.Sink.
var _ audio.Sink = (*Speaker)(nil)

// Speaker opens playback streams on the default output device.
type Speaker struct{}

// NewSpeaker creates a Speaker for the default output device.
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Open implements audio.Sink.
func (s *Speaker) Open(sampleRate, chunkSize int) (audio.Stream, error) {
	if sampleRate <= 0 || chunkSize <= 0 {
		return nil, errors.New("portaudio: sampleRate and chunkSize must be positive")
	}
	buf := make([]float32, chunkSize)
	stream, err := palib.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	return &playbackStream{stream: stream, buf: buf}, nil
}

// playbackStream is one open output stream. Write copies the chunk into the
// stream's device buffer and blocks until PortAudio has consumed it.
type playbackStream struct {
	stream *palib.Stream
	buf    []float32
	once   sync.Once
}

// Write implements audio.Stream.
func (p *playbackStream) Write(samples []float32) error {
	if len(samples) != len(p.buf) {
		return fmt.Errorf("portaudio: write chunk size %d, stream expects %d", len(samples), len(p.buf))
	}
	copy(p.buf, samples)
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: write output: %w", err)
	}
	return nil
}

// Close implements audio.Stream. Safe to call more than once.
func (p *playbackStream) Close() error {
	var err error
	p.once.Do(func() {
		if e := p.stream.Stop(); e != nil {
			err = fmt.Errorf("portaudio: stop output stream: %w", e)
		}
		if e := p.stream.Close(); e != nil && err == nil {
			err = fmt.Errorf("portaudio: close output stream: %w", e)
		}
	})
	return err
}

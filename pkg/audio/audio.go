// Package audio defines the core audio types and device abstractions used by
// the Veyra voice pipeline: mono float32 frames, PCM conversion helpers, and
// the [Source]/[Sink] interfaces that decouple the pipeline from PortAudio.
//
// All audio inside the pipeline is mono float32 in the range [-1, 1].
// Providers that speak 16-bit PCM (whisper.cpp, TTS backends) are converted at
// the package boundary via [Int16BytesToFloat32] and friends.
package audio

import (
	"context"
	"math"
)

// Frame is one block of captured audio. Samples are mono float32 in [-1, 1].
type Frame struct {
	// Samples holds the frame's audio data. The slice is owned by the
	// receiver; sources must hand out copies, never their internal buffer.
	Samples []float32

	// SampleRate is the sampling frequency in Hz.
	SampleRate int
}

// RMS returns the root-mean-square energy of the frame's samples.
// An empty frame has zero energy.
func (f Frame) RMS() float64 {
	return RMS(f.Samples)
}

// Source delivers captured audio frames. Implementations push fixed-size
// frames into the channel returned by [Source.Frames]; when the channel would
// block (consumer too slow) the frame is dropped rather than stalling the
// capture callback.
type Source interface {
	// Start begins capture. Frames are delivered until Stop or ctx
	// cancellation, after which the Frames channel is closed.
	Start(ctx context.Context) error

	// Frames returns the channel on which captured frames arrive. The same
	// channel is returned for the lifetime of the source.
	Frames() <-chan Frame

	// Stop ends capture and closes the Frames channel. Safe to call more
	// than once.
	Stop() error
}

// Sink opens playback streams. A fresh [Stream] is opened per playback
// buffer and closed when the buffer has been written or abandoned.
type Sink interface {
	// Open creates a playback stream for mono float32 audio at the given
	// sample rate. The chunkSize is the fixed number of samples per Write.
	Open(sampleRate, chunkSize int) (Stream, error)
}

// Stream is a single open playback stream. Write blocks until the device has
// consumed the chunk, which is what makes per-chunk cancellation checks
// effective upstream.
type Stream interface {
	// Write plays one fixed-size chunk of samples. The slice length must
	// equal the chunkSize the stream was opened with.
	Write(samples []float32) error

	// Close releases the stream. Safe to call more than once.
	Close() error
}

// RMS returns the root-mean-square energy of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

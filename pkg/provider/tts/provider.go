// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A synthesizer converts one sentence of text into a stream of raw 16-bit
// little-endian signed PCM chunks. The playback engine owns the int16→float
// conversion, volume scaling, and chunked output; backends only produce PCM
// at a known sample rate.
//
// Implementors must be safe for concurrent use. The Chunks channel of a
// returned [SpeechStream] must be closed by the implementation when synthesis
// ends or when the supplied context is cancelled; callers must drain it.
package tts

import "context"

// SpeechStream carries the synthesized audio for one piece of text.
type SpeechStream struct {
	// Chunks emits raw 16-bit little-endian signed mono PCM as it is
	// produced. Closed by the synthesizer when the stream ends. Callers
	// must drain the channel to avoid goroutine leaks.
	Chunks <-chan []byte

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int
}

// Synthesizer converts text into speech audio.
type Synthesizer interface {
	// Synthesize starts synthesis of text and returns the resulting stream.
	// The error return is non-nil only for failures that prevent synthesis
	// from starting; mid-stream failures end the Chunks channel early.
	Synthesize(ctx context.Context, text string) (*SpeechStream, error)
}

// Package stt defines the Transcriber interface for speech-to-text backends.
//
// The pipeline hands a transcriber one complete utterance — mono float32
// samples at the capture sample rate — and expects the spoken text back.
// Implementors must be safe for concurrent use.
package stt

import "context"

// Transcriber converts a complete utterance into text.
type Transcriber interface {
	// Transcribe runs speech recognition on samples (mono float32 at the
	// rate the transcriber was configured for) and returns the recognised
	// text, trimmed, with segments joined by single spaces. An utterance
	// that contains no recognisable speech yields "" and a nil error.
	//
	// Implementations must return promptly when ctx is cancelled.
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

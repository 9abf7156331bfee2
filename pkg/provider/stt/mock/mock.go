// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/veyra-ai/veyra/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []float32
}

// Transcriber is a mock implementation of stt.Transcriber. Set Result (or
// Results, consumed in order) before use; Err is returned instead when set.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned from every Transcribe call when Results is empty.
	Result string

	// Results, when non-empty, is consumed one entry per call. After the
	// last entry, Result is returned.
	Results []string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Transcribe records the call and returns the configured result.
func (t *Transcriber) Transcribe(_ context.Context, samples []float32) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]float32, len(samples))
	copy(cp, samples)
	t.Calls = append(t.Calls, Call{Samples: cp})

	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Results) > 0 {
		r := t.Results[0]
		t.Results = t.Results[1:]
		return r, nil
	}
	return t.Result, nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

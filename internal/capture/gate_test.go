package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veyra-ai/veyra/internal/capture"
	"github.com/veyra-ai/veyra/pkg/audio"
	audiomock "github.com/veyra-ai/veyra/pkg/audio/mock"
)

// frame builds a mono frame whose every sample has the given amplitude.
func frame(amplitude float32, n int) audio.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{Samples: samples, SampleRate: 16000}
}

// testConfig uses a short silence limit so tests run in milliseconds.
func testConfig() capture.Config {
	return capture.Config{
		Threshold:    0.03,
		SilenceLimit: 40 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func TestListen_SilenceOnlyYieldsNil(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(16)
	gate := capture.New(src, testConfig())

	for i := 0; i < 5; i++ {
		src.Push(frame(0.001, 160))
	}
	src.CloseFrames()

	utt, err := gate.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: unexpected error: %v", err)
	}
	if utt != nil {
		t.Errorf("silence-only capture should yield nil utterance, got %d samples", len(utt.Samples()))
	}
}

func TestListen_SpeechThenSilence(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(64)
	gate := capture.New(src, testConfig())

	done := make(chan struct{})
	var utt *capture.Utterance
	var err error
	go func() {
		defer close(done)
		utt, err = gate.Listen(context.Background())
	}()

	// Pre-speech silence is discarded.
	src.Push(frame(0.001, 160))
	// Speech: three loud frames with a quiet dip in the middle — the dip
	// belongs to the utterance.
	src.Push(frame(0.5, 160))
	src.Push(frame(0.01, 160))
	src.Push(frame(0.5, 160))
	// Trailing silence past the limit ends the utterance.
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case <-done:
			break loop
		case <-deadline:
			t.Fatal("Listen did not return after trailing silence")
		case <-time.After(10 * time.Millisecond):
			src.Push(frame(0.001, 160))
		}
	}

	if err != nil {
		t.Fatalf("Listen: unexpected error: %v", err)
	}
	if utt == nil {
		t.Fatal("expected an utterance")
	}
	// At least the three speech frames plus the mid-speech dip: 4 * 160
	// samples. Pre-speech silence must not be included beyond trailing
	// frames appended while the silence clock ran.
	if got := len(utt.Samples()); got < 4*160 {
		t.Errorf("utterance too short: got %d samples", got)
	}
	if utt.SampleRate() != 16000 {
		t.Errorf("sample rate: want 16000, got %d", utt.SampleRate())
	}
	if utt.Duration() <= 0 {
		t.Errorf("duration should be positive, got %v", utt.Duration())
	}
}

func TestListen_ContextCancellation(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(4)
	gate := capture.New(src, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := gate.Listen(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not observe cancellation")
	}
}

func TestListen_PartialUtteranceOnSourceClose(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource(8)
	gate := capture.New(src, testConfig())

	src.Push(frame(0.5, 160))
	src.Push(frame(0.5, 160))
	src.CloseFrames()

	utt, err := gate.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: unexpected error: %v", err)
	}
	if utt == nil {
		t.Fatal("speech before source close should yield a partial utterance")
	}
	if got := len(utt.Samples()); got != 2*160 {
		t.Errorf("want 320 samples, got %d", got)
	}
}

func TestListen_PostCutoffFrameExcluded(t *testing.T) {
	t.Parallel()

	// A long poll interval forces the cutoff to be observed on the frame
	// path, not the ticker.
	cfg := capture.Config{
		Threshold:    0.03,
		SilenceLimit: 60 * time.Millisecond,
		PollInterval: 500 * time.Millisecond,
	}
	src := audiomock.NewSource(8)
	gate := capture.New(src, cfg)

	done := make(chan struct{})
	var utt *capture.Utterance
	var err error
	go func() {
		defer close(done)
		utt, err = gate.Listen(context.Background())
	}()

	src.Push(frame(0.5, 160))
	// Starts the silence clock; still part of the utterance.
	src.Push(frame(0.001, 7))
	// Delivered well past the limit: this frame ends the utterance and must
	// not be part of it.
	time.Sleep(100 * time.Millisecond)
	src.Push(frame(0.001, 7))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after the silence cutoff")
	}
	if err != nil {
		t.Fatalf("Listen: unexpected error: %v", err)
	}
	if utt == nil {
		t.Fatal("expected an utterance")
	}
	if got := len(utt.Samples()); got != 167 {
		t.Errorf("utterance samples = %d; want 167 (frame past the cutoff must be excluded)", got)
	}
}

func TestListen_SilenceClockClearedBySpeech(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SilenceLimit = 60 * time.Millisecond
	src := audiomock.NewSource(64)
	gate := capture.New(src, cfg)

	done := make(chan struct{})
	var utt *capture.Utterance
	go func() {
		defer close(done)
		utt, _ = gate.Listen(context.Background())
	}()

	// Speech, then a silence run shorter than the limit, then speech again:
	// the clock must reset and the utterance must not terminate early.
	src.Push(frame(0.5, 160))
	time.Sleep(20 * time.Millisecond)
	src.Push(frame(0.001, 160))
	time.Sleep(20 * time.Millisecond)
	src.Push(frame(0.5, 160))

	select {
	case <-done:
		t.Fatal("utterance terminated although silence never exceeded the limit")
	case <-time.After(30 * time.Millisecond):
	}

	// Now let the silence run past the limit.
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case <-done:
			break loop
		case <-deadline:
			t.Fatal("Listen did not return after extended silence")
		case <-time.After(15 * time.Millisecond):
			src.Push(frame(0.001, 160))
		}
	}
	if utt == nil {
		t.Fatal("expected an utterance")
	}
}

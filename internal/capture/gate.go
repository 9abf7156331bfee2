// Package capture implements the energy-gated utterance capture stage: an RMS
// threshold decides when speech starts, and a silence timeout decides when the
// utterance is complete.
//
// Frames arrive from an [audio.Source]; everything from the first
// over-threshold frame up to the silence cutoff — including sub-threshold
// frames in the middle of speech — is accumulated into one [Utterance].
// Pre-speech silence is discarded.
package capture

import (
	"context"
	"time"

	"github.com/veyra-ai/veyra/pkg/audio"
)

const (
	// DefaultThreshold is the RMS energy above which a frame counts as
	// speech.
	DefaultThreshold = 0.03

	// DefaultSilenceLimit is how long energy must stay below the threshold
	// before an utterance is considered finished.
	DefaultSilenceLimit = 2 * time.Second

	// defaultPollInterval is the wake-up interval used when no frames are
	// arriving, so context cancellation and silence expiry are still
	// observed promptly.
	defaultPollInterval = 100 * time.Millisecond
)

// Config holds the gate's tuning parameters. Zero values select the defaults
// above.
type Config struct {
	// Threshold is the RMS speech threshold in [0, 1].
	Threshold float64

	// SilenceLimit is the trailing-silence duration that ends an utterance.
	SilenceLimit time.Duration

	// PollInterval is the idle wake-up interval of the listen loop.
	PollInterval time.Duration
}

// withDefaults returns cfg with zero fields replaced by the defaults.
func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.SilenceLimit == 0 {
		c.SilenceLimit = DefaultSilenceLimit
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Gate segments the source's frame stream into utterances. A Gate is used by
// a single goroutine at a time.
type Gate struct {
	source audio.Source
	cfg    Config
}

// New creates a Gate reading from source.
func New(source audio.Source, cfg Config) *Gate {
	return &Gate{source: source, cfg: cfg.withDefaults()}
}

// Listen blocks until one complete utterance has been captured.
//
// It returns (nil, nil) when the source's frame stream ends without any
// speech having been detected — the caller decides whether to keep listening.
// Context cancellation is propagated as ctx.Err().
//
// State transitions: energy above the threshold marks speech and clears the
// silence clock; energy below the threshold while speaking starts the silence
// clock once, and the utterance terminates when the clock exceeds the silence
// limit. While speaking, every frame is appended, sub-threshold ones
// included; a frame arriving after the cutoff is excluded.
func (g *Gate) Listen(ctx context.Context) (*Utterance, error) {
	var (
		utt          *Utterance
		speaking     bool
		silenceStart time.Time
	)

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	silenceExpired := func(now time.Time) bool {
		return speaking && !silenceStart.IsZero() && now.Sub(silenceStart) > g.cfg.SilenceLimit
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case frame, ok := <-g.source.Frames():
			if !ok {
				// Source ended. A partial utterance is still worth
				// transcribing; silence-only capture yields nil.
				if speaking {
					return utt, nil
				}
				return nil, nil
			}

			if frame.RMS() > g.cfg.Threshold {
				if !speaking {
					speaking = true
					utt = newUtterance(frame.SampleRate)
				}
				silenceStart = time.Time{}
				utt.append(frame.Samples)
			} else if speaking {
				// The cutoff is checked before the append: a frame arriving
				// after the silence limit has passed is not part of the
				// utterance.
				now := time.Now()
				if silenceExpired(now) {
					return utt, nil
				}
				utt.append(frame.Samples)
				if silenceStart.IsZero() {
					silenceStart = now
				}
			}

		case <-ticker.C:
			// Frame starvation must not stall the silence cutoff.
			if silenceExpired(time.Now()) {
				return utt, nil
			}
		}
	}
}

// Utterance is the ordered audio of one speech segment.
type Utterance struct {
	sampleRate int
	samples    []float32
}

// newUtterance creates an empty utterance at the given sample rate.
func newUtterance(sampleRate int) *Utterance {
	return &Utterance{sampleRate: sampleRate}
}

// append adds one frame's samples.
func (u *Utterance) append(samples []float32) {
	u.samples = append(u.samples, samples...)
}

// Samples returns the utterance's full sample buffer.
func (u *Utterance) Samples() []float32 {
	return u.samples
}

// SampleRate returns the sampling frequency of the utterance in Hz.
func (u *Utterance) SampleRate() int {
	return u.sampleRate
}

// Duration returns the utterance length in wall-clock time.
func (u *Utterance) Duration() time.Duration {
	if u.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.samples)) * time.Second / time.Duration(u.sampleRate)
}

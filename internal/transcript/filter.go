// Package transcript post-processes text on both sides of the conversation
// loop: it rejects speech-to-text artifacts before they reach the chat model,
// and it strips markdown from model output before it reaches synthesis.
//
// # Artifact filtering
//
// Speech recognizers hallucinate short filler transcripts from breathing,
// room noise, and the tail of the assistant's own playback: "you", "thanks",
// "okay" and similar. The [Filter] holds a denylist of such fillers and
// rejects short transcripts that match one exactly or phonetically.
//
// Phonetic matching follows a two-stage scheme: Double Metaphone codes are
// compared for overlap first, and overlapping pairs are confirmed with
// Jaro-Winkler similarity on the original strings. This catches spelling
// variants the recognizer produces for the same sound ("okey", "m b c")
// without a combinatorial denylist.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// defaultPhoneticThreshold is the minimum Jaro-Winkler score required to
	// confirm a Double Metaphone overlap as an artifact match.
	defaultPhoneticThreshold = 0.85

	// defaultMaxArtifactWords bounds the filter to short transcripts. A real
	// utterance of four or more words is never treated as an artifact, even
	// if it starts with a filler.
	defaultMaxArtifactWords = 3
)

// DefaultDenylist lists the filler transcripts the recognizer is known to
// hallucinate from silence and playback bleed.
var DefaultDenylist = []string{
	"you",
	"and",
	"thanks",
	"okay",
	"mbc",
	"thank you",
}

// FilterOption is a functional option for configuring a [Filter].
type FilterOption func(*Filter)

// WithDenylist appends extra entries to the default denylist.
func WithDenylist(entries ...string) FilterOption {
	return func(f *Filter) {
		f.denylist = append(f.denylist, entries...)
	}
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetic denylist match. Default: 0.85.
func WithPhoneticThreshold(threshold float64) FilterOption {
	return func(f *Filter) {
		f.phoneticThreshold = threshold
	}
}

// WithMaxArtifactWords sets the word count above which a transcript is never
// treated as an artifact. Default: 3.
func WithMaxArtifactWords(n int) FilterOption {
	return func(f *Filter) {
		f.maxArtifactWords = n
	}
}

// Filter rejects recognition artifacts. All methods are safe for concurrent
// use — the Filter is read-only after construction.
type Filter struct {
	denylist          []string
	phoneticThreshold float64
	maxArtifactWords  int

	// codes caches the Double Metaphone code set per denylist entry.
	codes []map[string]struct{}
}

// NewFilter returns a [Filter] seeded with [DefaultDenylist] and configured
// with the supplied options.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		denylist:          append([]string(nil), DefaultDenylist...),
		phoneticThreshold: defaultPhoneticThreshold,
		maxArtifactWords:  defaultMaxArtifactWords,
	}
	for _, o := range opts {
		o(f)
	}
	f.codes = make([]map[string]struct{}, len(f.denylist))
	for i, entry := range f.denylist {
		f.codes[i] = codesForTokens(strings.Fields(strings.ToLower(entry)))
	}
	return f
}

// IsArtifact reports whether text should be discarded instead of being sent
// to the chat model. Empty and whitespace-only transcripts are artifacts.
func (f *Filter) IsArtifact(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return true
	}

	tokens := strings.Fields(norm)
	if len(tokens) > f.maxArtifactWords {
		return false
	}

	for i, entry := range f.denylist {
		entryLower := strings.ToLower(entry)
		if norm == entryLower {
			return true
		}
		if !codesOverlap(codesForTokens(tokens), f.codes[i]) {
			continue
		}
		if matchr.JaroWinkler(norm, entryLower, false) >= f.phoneticThreshold {
			return true
		}
	}
	return false
}

// normalize lowercases text and strips everything that is not a letter,
// digit, or space, collapsing runs of whitespace to single spaces.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true // swallow leading whitespace
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

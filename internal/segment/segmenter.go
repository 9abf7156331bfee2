// Package segment implements incremental sentence splitting of a streamed
// text response. Deltas are appended to an internal buffer; every complete
// sentence — text ending with '.', '!', or '?' immediately followed by
// whitespace — is emitted as soon as it exists, and the trailing remainder is
// retained across pushes until the stream ends.
package segment

import "strings"

// Segmenter accumulates streamed text deltas and emits complete sentences.
// A Segmenter is used by a single producer goroutine; it is not safe for
// concurrent use.
type Segmenter struct {
	buf strings.Builder
}

// New returns an empty Segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Push appends delta to the buffer and returns all sentences completed by it,
// in order. A single delta containing several terminators yields several
// sentences in one call. Sentences are returned with surrounding whitespace
// trimmed; the unfinished remainder stays buffered.
func (s *Segmenter) Push(delta string) []string {
	if delta == "" {
		return nil
	}
	s.buf.WriteString(delta)

	var out []string
	text := s.buf.String()
	for {
		idx := sentenceBoundary(text)
		if idx < 0 {
			break
		}
		sentence := strings.TrimSpace(text[:idx+1])
		if sentence != "" {
			out = append(out, sentence)
		}
		text = strings.TrimLeft(text[idx+1:], " \t\n\r")
	}

	s.buf.Reset()
	s.buf.WriteString(text)
	return out
}

// Flush returns the buffered remainder, trimmed, and resets the segmenter.
// Call once at end of stream; returns "" when nothing is pending.
func (s *Segmenter) Flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest
}

// Pending reports whether unemitted text is buffered.
func (s *Segmenter) Pending() bool {
	return strings.TrimSpace(s.buf.String()) != ""
}

// sentenceBoundary returns the index of the first '.', '!', or '?' character
// that is immediately followed by a whitespace character (' ', '\n', '\r', or
// '\t'). Returns -1 if no such boundary exists in s.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

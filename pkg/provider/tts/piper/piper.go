// Package piper provides a TTS synthesizer backed by a local Piper HTTP
// server (piper --http). The server accepts a text payload and responds with
// a complete WAV file; the RIFF header is stripped and the raw PCM is emitted
// in fixed-size chunks.
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veyra-ai/veyra/pkg/provider/tts"
)

const (
	// defaultTimeout bounds one synthesis request. Piper runs locally, so a
	// sentence should never take this long.
	defaultTimeout = 30 * time.Second

	// pcmChunkBytes is the size of PCM chunks emitted on the stream.
	pcmChunkBytes = 4096
)

// Compile-time assertion that Synthesizer satisfies tts.Synthesizer.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements tts.Synthesizer against a Piper HTTP server.
type Synthesizer struct {
	baseURL    string
	voice      string
	httpClient *http.Client
}

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the Piper voice model name sent with each request. Empty
// uses the server's default voice.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.httpClient = c }
}

// New creates a Synthesizer talking to the Piper server at baseURL
// (e.g., "http://localhost:5000").
func New(baseURL string, opts ...Option) (*Synthesizer, error) {
	if baseURL == "" {
		return nil, errors.New("piper: baseURL must not be empty")
	}
	s := &Synthesizer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// synthesisRequest is the JSON payload sent to the Piper server.
type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize implements tts.Synthesizer. The whole WAV response is fetched,
// parsed, and then emitted as PCM chunks so the caller can abandon playback
// between chunks.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*tts.SpeechStream, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, Voice: s.voice})
	if err != nil {
		return nil, fmt.Errorf("piper: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("piper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: unexpected status %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}
	pcm := wav[info.DataOffset:]
	if info.DataSize < len(pcm) {
		// Chunks trailing the data chunk are metadata, not audio.
		pcm = pcm[:info.DataSize]
	}
	switch info.Channels {
	case 1:
	case 2:
		pcm = downmixStereo(pcm)
	default:
		return nil, fmt.Errorf("piper: unsupported channel count %d", info.Channels)
	}

	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		for off := 0; off < len(pcm); off += pcmChunkBytes {
			end := off + pcmChunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			select {
			case ch <- pcm[off:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &tts.SpeechStream{Chunks: ch, SampleRate: info.SampleRate}, nil
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	DataSize   int // declared length of the data chunk in bytes
	SampleRate int // samples per second (e.g., 16000, 22050)
	Channels   int // 1 = mono, 2 = stereo
}

// downmixStereo averages interleaved stereo 16-bit little-endian PCM into
// mono. A trailing partial sample pair is dropped.
func downmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int16(pcm[4*i]) | int16(pcm[4*i+1])<<8
		r := int16(pcm[4*i+2]) | int16(pcm[4*i+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		out[2*i] = byte(m)
		out[2*i+1] = byte(m >> 8)
	}
	return out
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("piper: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("piper: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("piper: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			info.DataSize = chunkSize
			if !foundFmt {
				// fmt chunk should appear before data; assume Piper's
				// usual output format if it did not.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("piper: WAV response missing data chunk")
}

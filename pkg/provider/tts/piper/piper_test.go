package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// buildWAV constructs a minimal RIFF/WAVE container around pcm.
func buildWAV(sampleRate, channels int, pcm []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// collect drains a chunk channel into one buffer.
func collect(ch <-chan []byte) []byte {
	var out []byte
	for c := range ch {
		out = append(out, c...)
	}
	return out
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 10000)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	var gotBody synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(buildWAV(22050, 1, pcm))
	}))
	defer srv.Close()

	s, err := New(srv.URL, WithVoice("en_US-amy-medium"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stream, err := s.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if stream.SampleRate != 22050 {
		t.Errorf("SampleRate: want 22050, got %d", stream.SampleRate)
	}
	if got := collect(stream.Chunks); !bytes.Equal(got, pcm) {
		t.Errorf("PCM mismatch: want %d bytes, got %d", len(pcm), len(got))
	}
	if gotBody.Text != "Hello there." {
		t.Errorf("request text: want %q, got %q", "Hello there.", gotBody.Text)
	}
	if gotBody.Voice != "en_US-amy-medium" {
		t.Errorf("request voice: want %q, got %q", "en_US-amy-medium", gotBody.Voice)
	}
}

func TestSynthesize_TrailingChunkNotPlayed(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := buildWAV(22050, 1, pcm)
	// A LIST chunk after the data chunk holds metadata, not audio.
	wav = append(wav, "LIST"...)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], 8)
	wav = append(wav, size[:]...)
	wav = append(wav, "INFOjunk"...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	s, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stream, err := s.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := collect(stream.Chunks); !bytes.Equal(got, pcm) {
		t.Errorf("PCM = %v, want %v (trailing chunk must not be played)", got, pcm)
	}
}

func TestSynthesize_StereoDownmixedToMono(t *testing.T) {
	t.Parallel()

	// Two stereo sample pairs: (100, 300) and (-200, -400).
	var stereo bytes.Buffer
	for _, s := range []int16{100, 300, -200, -400} {
		binary.Write(&stereo, binary.LittleEndian, s)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(buildWAV(22050, 2, stereo.Bytes()))
	}))
	defer srv.Close()

	s, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stream, err := s.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	got := collect(stream.Chunks)
	want := []int16{200, -300}
	if len(got) != len(want)*2 {
		t.Fatalf("mono PCM length = %d bytes, want %d", len(got), len(want)*2)
	}
	for i, w := range want {
		if m := int16(binary.LittleEndian.Uint16(got[2*i:])); m != w {
			t.Errorf("mono sample %d = %d, want %d", i, m, w)
		}
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}

func TestParseWAV(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		wav     []byte
		wantErr bool
		rate    int
	}{
		{name: "valid", wav: buildWAV(16000, 1, []byte{1, 2, 3, 4}), rate: 16000},
		{name: "too short", wav: []byte("RIFF"), wantErr: true},
		{name: "not riff", wav: bytes.Repeat([]byte{0}, 64), wantErr: true},
		{name: "missing data chunk", wav: buildWAV(16000, 1, nil)[:20], wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			info, err := parseWAV(tc.wav)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWAV: %v", err)
			}
			if info.SampleRate != tc.rate {
				t.Errorf("SampleRate: want %d, got %d", tc.rate, info.SampleRate)
			}
		})
	}
}

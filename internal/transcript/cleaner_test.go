package transcript_test

import (
	"testing"

	"github.com/veyra-ai/veyra/internal/transcript"
)

func TestCleanForSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "The capital of France is Paris.",
			want: "The capital of France is Paris.",
		},
		{
			name: "bold markers stripped",
			in:   "This is **very** important and __so__ is this.",
			want: "This is very important and so is this.",
		},
		{
			name: "italic markers stripped",
			in:   "An *emphasized* word.",
			want: "An emphasized word.",
		},
		{
			name: "inline code keeps content",
			in:   "Run `go version` to check.",
			want: "Run go version to check.",
		},
		{
			name: "fenced code block replaced",
			in:   "Here is an example:\n```go\nfmt.Println(\"hi\")\n```\nThat prints hi.",
			want: "Here is an example: Code block omitted. That prints hi.",
		},
		{
			name: "unterminated fence replaced",
			in:   "Sure:\n```python\nprint('hi')",
			want: "Sure: Code block omitted.",
		},
		{
			name: "heading prefix dropped",
			in:   "## Summary\nAll good.",
			want: "Summary All good.",
		},
		{
			name: "whitespace collapsed",
			in:   "One.\n\n   Two.\tThree.",
			want: "One. Two. Three.",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := transcript.CleanForSpeech(tc.in); got != tc.want {
				t.Errorf("CleanForSpeech(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

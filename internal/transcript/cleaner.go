package transcript

import (
	"regexp"
	"strings"
)

// codeBlockPlaceholder replaces fenced code blocks so the synthesizer does
// not read source code aloud.
const codeBlockPlaceholder = "Code block omitted."

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?(```|$)")
	inlineCodeRe = regexp.MustCompile("`([^`\n]*)`")
	boldRe       = regexp.MustCompile(`\*\*|__`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips markdown formatting from model output so it reads
// naturally when spoken: fenced code blocks become a short placeholder
// sentence, inline code keeps its content without backticks, bold and italic
// markers and heading prefixes are dropped, and whitespace is collapsed to
// single spaces.
func CleanForSpeech(text string) string {
	out := fencedCodeRe.ReplaceAllString(text, codeBlockPlaceholder)
	out = inlineCodeRe.ReplaceAllString(out, "$1")
	out = headingRe.ReplaceAllString(out, "")
	out = boldRe.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "*", "")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

package record

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultNarrativeLimit is the length, in characters, that free-text
// narratives are compacted to.
const DefaultNarrativeLimit = 350

const ellipsis = "…"

var sentenceBoundary = regexp.MustCompile(`\.\s+`)

// CompactNarrative shortens text to at most maxLength characters. Text that
// already fits is returned unchanged. Longer text has its whitespace
// collapsed and keeps the longest run of whole leading sentences that fits;
// when not even the first sentence fits, it is cut to maxLength-1
// characters and an ellipsis is appended.
func CompactNarrative(text string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	s := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}

	var kept string
	for _, sentence := range splitSentences(s) {
		candidate := sentence
		if kept != "" {
			candidate = kept + " " + sentence
		}
		if utf8.RuneCountInString(candidate) > maxLength {
			break
		}
		kept = candidate
	}
	if kept != "" {
		return kept
	}

	runes := []rune(s)
	cut := maxLength - 1
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " ") + ellipsis
}

// splitSentences splits after each period that is followed by whitespace.
// Input must already have collapsed whitespace.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(s, -1) {
		out = append(out, s[start:loc[0]+1])
		start = loc[1]
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// CompactPresentIllness compacts a free-text present illness in place.
// Structured narratives are left as they are.
func (r *Record) CompactPresentIllness(maxLength int) {
	if r.PresentIllness.Structured() {
		return
	}
	r.PresentIllness.Text = CompactNarrative(r.PresentIllness.Text, maxLength)
}

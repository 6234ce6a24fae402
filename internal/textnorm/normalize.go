// Package textnorm cleans recognizer output before it reaches sinks.
//
// Recognition engines tokenize CJK text and commonly rejoin the tokens with
// ASCII spaces, which is wrong for scripts that carry no inter-word spacing.
// The normalizer strips those artifacts while leaving Latin text untouched,
// and can optionally close a final utterance with sentence-ending punctuation
// appropriate for the configured language.
package textnorm

import (
	"strings"
	"unicode"
)

// Options configures a [Normalizer].
type Options struct {
	// Language is a BCP 47-ish language hint ("ja", "zh", "en", ...). It only
	// influences which terminal punctuation mark is appended; space collapsing
	// is driven by the script of the surrounding runes, not by Language.
	Language string

	// EnsurePunctuation appends a sentence-terminal mark to final results that
	// end without one. Partial results should not use this.
	EnsurePunctuation bool
}

// Normalizer applies the configured normalization steps. The zero value
// collapses CJK spaces and nothing else. Safe for concurrent use.
type Normalizer struct {
	opts Options
}

// New creates a normalizer with the given options.
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize trims surrounding whitespace, collapses spaces between CJK runes
// and, when enabled, appends terminal punctuation. The function is idempotent:
// normalizing an already-normalized string returns it unchanged.
func (n *Normalizer) Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = CollapseCJKSpaces(s)
	if n.opts.EnsurePunctuation {
		s = ensureTerminal(s, n.opts.Language)
	}
	return s
}

// CollapseCJKSpaces removes runs of ASCII spaces whose immediate neighbors on
// both sides are CJK runes. Spaces adjacent to Latin (or any non-CJK) text are
// preserved, so mixed-script strings keep their word boundaries.
func CollapseCJKSpaces(s string) string {
	if !strings.ContainsRune(s, ' ') {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(runes) {
		r := runes[i]
		if r != ' ' {
			b.WriteRune(r)
			i++
			continue
		}
		// Consume the whole run of spaces and decide once.
		j := i
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		prevCJK := i > 0 && isCJK(runes[i-1])
		nextCJK := j < len(runes) && isCJK(runes[j])
		if !(prevCJK && nextCJK) {
			for n := 0; n < j-i; n++ {
				b.WriteByte(' ')
			}
		}
		i = j
	}
	return b.String()
}

// isCJK reports whether r belongs to a script written without inter-word
// spaces. Fullwidth forms and CJK punctuation count so that a space next to
// "。" or "？" is collapsed too.
func isCJK(r rune) bool {
	if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
		return true
	}
	switch {
	case r >= 0x3000 && r <= 0x303F: // CJK symbols and punctuation
		return true
	case r >= 0xFF00 && r <= 0xFF9F: // full- and halfwidth forms
		return true
	}
	return false
}

// terminalMarks are runes already accepted as sentence endings; text ending in
// one of these is left alone.
const terminalMarks = ".!?。！？…♪"

func ensureTerminal(s string, lang string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	last := runes[len(runes)-1]
	if strings.ContainsRune(terminalMarks, last) {
		return s
	}
	base, _, _ := strings.Cut(lang, "-")
	switch strings.ToLower(base) {
	case "ja", "zh":
		return s + "。"
	default:
		return s + "."
	}
}

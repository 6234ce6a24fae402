package engine

import (
	"encoding/json"
	"strings"
)

// Result is one recognition hypothesis.
type Result struct {
	// Text is the transcribed text.
	Text string

	// Confidence is the backend's confidence in [0,1]. Backends that report
	// none get a heuristic default from ParseResult.
	Confidence float64

	// Partial marks an interim hypothesis that may still change.
	Partial bool
}

// Default confidences assigned when a backend reports text without one.
// Finals are trusted more than interim hypotheses.
const (
	DefaultFinalConfidence   = 0.8
	DefaultPartialConfidence = 0.5
)

// wireResult mirrors the JSON shapes recognition backends actually emit:
// {"text": ..., "confidence": ...} for finals and {"partial": ...} for
// interim hypotheses. Pointer fields distinguish absent from empty.
type wireResult struct {
	Text       *string  `json:"text"`
	Partial    *string  `json:"partial"`
	Confidence *float64 `json:"confidence"`
}

// ParseResult decodes a backend response into a Result. It tolerates the two
// common wire shapes as well as plain non-JSON text, and fills in a default
// confidence when the backend omits one. An empty or whitespace-only payload
// yields a zero Result.
func ParseResult(raw []byte) Result {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Result{}
	}

	var w wireResult
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil || (w.Text == nil && w.Partial == nil) {
		// Not the expected shape: treat the whole payload as final text.
		return Result{Text: trimmed, Confidence: DefaultFinalConfidence}
	}

	r := Result{}
	switch {
	case w.Partial != nil:
		r.Text = strings.TrimSpace(*w.Partial)
		r.Partial = true
		r.Confidence = DefaultPartialConfidence
	default:
		r.Text = strings.TrimSpace(*w.Text)
		r.Confidence = DefaultFinalConfidence
	}
	if w.Confidence != nil && *w.Confidence >= 0 && *w.Confidence <= 1 {
		r.Confidence = *w.Confidence
	}
	return r
}

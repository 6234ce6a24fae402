package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"
)

// Writer is a Sink that prints results to an io.Writer, either as plain text
// lines or as JSON objects. Partials are rewritten in place on terminals via
// carriage return; in JSON mode every result is its own line.
type Writer struct {
	name string
	json bool

	mu          sync.Mutex
	w           io.Writer
	lastPartial int // rune length of the last printed partial, for overwrite
}

// WriterOption configures a [Writer].
type WriterOption func(*Writer)

// WithJSON switches the writer to JSON-lines output.
func WithJSON() WriterOption {
	return func(w *Writer) { w.json = true }
}

// NewWriter creates a writer sink with the given name.
func NewWriter(name string, w io.Writer, opts ...WriterOption) *Writer {
	s := &Writer{name: name, w: w}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name identifies the sink.
func (s *Writer) Name() string { return s.name }

type jsonResult struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	DurationMs int64   `json:"duration_ms,omitempty"`
}

// WriteFinal prints the committed transcription on its own line.
func (s *Writer) WriteFinal(_ context.Context, rec Final) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.json {
		return json.NewEncoder(s.w).Encode(jsonResult{
			Type:       "final",
			Text:       rec.Text,
			Confidence: rec.Confidence,
			DurationMs: rec.Duration.Milliseconds(),
		})
	}
	s.clearPartialLocked()
	_, err := fmt.Fprintf(s.w, "%s\n", rec.Text)
	return err
}

// WritePartial prints the interim hypothesis, overwriting the previous one.
func (s *Writer) WritePartial(_ context.Context, rec Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.json {
		return json.NewEncoder(s.w).Encode(jsonResult{
			Type:       "partial",
			Text:       rec.Text,
			Confidence: rec.Confidence,
		})
	}
	s.clearPartialLocked()
	_, err := fmt.Fprintf(s.w, "%s\r", rec.Text)
	if err == nil {
		s.lastPartial = utf8.RuneCountInString(rec.Text)
	}
	return err
}

// clearPartialLocked blanks out a previously printed partial line.
func (s *Writer) clearPartialLocked() {
	if s.lastPartial == 0 {
		return
	}
	for n := 0; n < s.lastPartial; n++ {
		fmt.Fprint(s.w, " ")
	}
	fmt.Fprint(s.w, "\r")
	s.lastPartial = 0
}

// Close flushes nothing; writer lifetime belongs to the caller.
func (s *Writer) Close() error { return nil }

var _ Sink = (*Writer)(nil)

// Package sink delivers recognition results to their destinations.
//
// The recognition core emits final and partial results; where they go (a
// terminal, a file, a downstream service) is this package's concern. The
// Dispatcher composes multiple sinks with per-sink circuit breakers so that a
// broken destination does not stall or crash the pipeline.
package sink

import (
	"context"
	"time"
)

// Final is a committed transcription for one completed utterance.
type Final struct {
	// Text is the normalized transcription.
	Text string

	// Confidence is the engine's confidence in [0,1].
	Confidence float64

	// Duration is the length of the utterance audio.
	Duration time.Duration
}

// Partial is an interim hypothesis that may still change.
type Partial struct {
	// Text is the normalized interim text.
	Text string

	// Confidence is the engine's confidence in [0,1].
	Confidence float64
}

// Sink receives recognition results. Implementations must be safe for
// concurrent use; WriteFinal and WritePartial may be called from different
// goroutines.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// WriteFinal delivers a committed transcription.
	WriteFinal(ctx context.Context, rec Final) error

	// WritePartial delivers an interim hypothesis. Sinks that have no use for
	// partials should return nil without doing work.
	WritePartial(ctx context.Context, rec Partial) error

	// Close releases sink resources.
	Close() error
}

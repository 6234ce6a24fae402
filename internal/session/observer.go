package session

import (
	"context"
	"log/slog"

	"github.com/voxkit/voxkit/internal/sink"
)

// Observer receives recognition events from a [Session]. Observers are
// notified in registration order. Callbacks run on session goroutines and
// must not block for long; slow delivery belongs behind a sink dispatcher.
type Observer interface {
	// OnPartial delivers an interim hypothesis. Only emitted in streaming
	// mode, and only when the normalized text differs from the previous
	// partial of the same utterance.
	OnPartial(ctx context.Context, rec sink.Partial)

	// OnFinal delivers the committed transcription of a completed utterance.
	OnFinal(ctx context.Context, rec sink.Final)

	// OnError reports a recoverable engine failure. The session has already
	// reset to a fresh engine; the event is informational.
	OnError(ctx context.Context, err error)
}

// DispatchObserver adapts a [sink.Dispatcher] to the [Observer] interface so
// recognition results flow straight into the configured sinks.
type DispatchObserver struct {
	Dispatcher *sink.Dispatcher
}

// OnPartial forwards the hypothesis to the primary sink.
func (o *DispatchObserver) OnPartial(ctx context.Context, rec sink.Partial) {
	o.Dispatcher.DispatchPartial(ctx, rec)
}

// OnFinal forwards the transcription through the sink fallback chain. A
// delivery failure is logged; the session keeps running.
func (o *DispatchObserver) OnFinal(ctx context.Context, rec sink.Final) {
	if err := o.Dispatcher.DispatchFinal(ctx, rec); err != nil {
		slog.Error("final result delivery failed", "err", err)
	}
}

// OnError logs the engine failure.
func (o *DispatchObserver) OnError(_ context.Context, err error) {
	slog.Warn("recognition engine error", "err", err)
}

var _ Observer = (*DispatchObserver)(nil)

package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxkit/voxkit/internal/resilience"
)

// Dispatcher fans recognition results out to a primary sink with ordered
// fallbacks. Each sink sits behind its own circuit breaker: a sink that keeps
// failing is skipped until its breaker half-opens again.
//
// Finals fail over: delivery succeeds as soon as any healthy sink accepts the
// result. Partials are best-effort and only offered to the primary; losing an
// interim hypothesis is harmless and not worth waking fallback sinks for.
type Dispatcher struct {
	group   *resilience.FallbackGroup[Sink]
	primary Sink
	all     []Sink
}

// NewDispatcher builds a dispatcher over the given sinks. The first sink is
// the primary; the rest are fallbacks in order. At least one sink is
// required.
func NewDispatcher(cfg resilience.FallbackConfig, sinks ...Sink) (*Dispatcher, error) {
	if len(sinks) == 0 {
		return nil, errors.New("sink: dispatcher needs at least one sink")
	}
	group := resilience.NewFallbackGroup(sinks[0], sinks[0].Name(), cfg)
	for _, s := range sinks[1:] {
		group.AddFallback(s.Name(), s)
	}
	return &Dispatcher{group: group, primary: sinks[0], all: sinks}, nil
}

// DispatchFinal delivers a committed transcription to the first healthy sink.
func (d *Dispatcher) DispatchFinal(ctx context.Context, rec Final) error {
	err := d.group.Execute(func(s Sink) error {
		return s.WriteFinal(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("sink: deliver final: %w", err)
	}
	return nil
}

// DispatchPartial offers an interim hypothesis to the primary sink. Failures
// are logged, not returned; partials carry no durable state.
func (d *Dispatcher) DispatchPartial(ctx context.Context, rec Partial) {
	if err := d.primary.WritePartial(ctx, rec); err != nil {
		slog.Debug("partial delivery failed", "sink", d.primary.Name(), "error", err)
	}
}

// Close closes every sink, joining errors.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range d.all {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

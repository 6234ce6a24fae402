// Package mock provides a test double for the sink package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/voxkit/voxkit/internal/sink"
)

// Sink is a mock implementation of sink.Sink that records everything
// delivered to it.
type Sink struct {
	mu sync.Mutex

	// SinkName is returned by Name. Defaults to "mock".
	SinkName string

	// WriteFinalErr, if non-nil, is returned by every WriteFinal call.
	WriteFinalErr error

	// WritePartialErr, if non-nil, is returned by every WritePartial call.
	WritePartialErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// Finals records every Final delivered, in order.
	Finals []sink.Final

	// Partials records every Partial delivered, in order.
	Partials []sink.Partial

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Name returns SinkName or "mock".
func (s *Sink) Name() string {
	if s.SinkName == "" {
		return "mock"
	}
	return s.SinkName
}

// WriteFinal records the result and returns WriteFinalErr.
func (s *Sink) WriteFinal(_ context.Context, rec sink.Final) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteFinalErr != nil {
		return s.WriteFinalErr
	}
	s.Finals = append(s.Finals, rec)
	return nil
}

// WritePartial records the result and returns WritePartialErr.
func (s *Sink) WritePartial(_ context.Context, rec sink.Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WritePartialErr != nil {
		return s.WritePartialErr
	}
	s.Partials = append(s.Partials, rec)
	return nil
}

// Close records the call and returns CloseErr.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// FinalCount returns the number of finals delivered. Thread-safe.
func (s *Sink) FinalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Finals)
}

// PartialCount returns the number of partials delivered. Thread-safe.
func (s *Sink) PartialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Partials)
}

// LastFinal returns the most recent Final and whether one exists.
// Thread-safe.
func (s *Sink) LastFinal() (sink.Final, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Finals) == 0 {
		return sink.Final{}, false
	}
	return s.Finals[len(s.Finals)-1], true
}

// Ensure Sink implements sink.Sink at compile time.
var _ sink.Sink = (*Sink)(nil)

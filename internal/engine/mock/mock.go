// Package mock provides test doubles for the engine package interfaces.
//
// Use Provider to verify that sessions create instances with the expected
// Config, and Engine to feed controlled hypotheses and inspect which audio
// chunks were delivered.
package mock

import (
	"context"
	"sync"

	"github.com/voxkit/voxkit/internal/engine"
)

// NewEngineCall records a single invocation of Provider.NewEngine.
type NewEngineCall struct {
	// Ctx is the context passed to NewEngine.
	Ctx context.Context
	// Cfg is the Config passed to NewEngine.
	Cfg engine.Config
}

// Provider is a mock implementation of engine.Provider.
type Provider struct {
	mu sync.Mutex

	// Engine is the instance returned by NewEngine. If nil, each call returns
	// a fresh default Engine.
	Engine engine.Engine

	// NewEngineErr, if non-nil, is returned as the error from NewEngine.
	NewEngineErr error

	// NewEngineCalls records every call to NewEngine.
	NewEngineCalls []NewEngineCall

	// Created collects every fresh Engine handed out when Engine is nil, in
	// creation order. Tests use this to assert one instance per utterance.
	Created []*Engine
}

// NewEngine records the call and returns Engine or a fresh mock instance.
func (p *Provider) NewEngine(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NewEngineCalls = append(p.NewEngineCalls, NewEngineCall{Ctx: ctx, Cfg: cfg})
	if p.NewEngineErr != nil {
		return nil, p.NewEngineErr
	}
	if p.Engine != nil {
		return p.Engine, nil
	}
	e := &Engine{}
	p.Created = append(p.Created, e)
	return e, nil
}

// CreatedCount returns how many fresh instances were handed out. Thread-safe.
func (p *Provider) CreatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Created)
}

// Reset clears all recorded calls and created instances. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NewEngineCalls = nil
	p.Created = nil
}

// Ensure Provider implements engine.Provider at compile time.
var _ engine.Provider = (*Provider)(nil)

// Engine is a mock implementation of engine.Engine.
// Pre-populate Partials with the interim hypotheses Push should announce and
// FinalResult with the transcription Final should return.
type Engine struct {
	mu sync.Mutex

	// Partials is a queue of interim hypotheses. Each Push that finds the
	// queue non-empty reports a new result; Partial pops the head.
	Partials []engine.Result

	// FinalResult is returned by Final.
	FinalResult engine.Result

	// FinalFunc, if set, is called by Final instead of returning FinalResult.
	// It receives all audio pushed so far.
	FinalFunc func(ctx context.Context, pushed []byte) (engine.Result, error)

	// PushErr, if non-nil, is returned by every Push call.
	PushErr error

	// PartialErr, if non-nil, is returned by every Partial call.
	PartialErr error

	// FinalErr, if non-nil, is returned by Final.
	FinalErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// PushCalls records a copy of every chunk passed to Push, in order.
	PushCalls [][]byte

	// FinalCallCount is the number of times Final was called.
	FinalCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
}

// Push records the chunk and reports whether an interim hypothesis is queued.
func (e *Engine) Push(chunk []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, engine.ErrClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	e.PushCalls = append(e.PushCalls, cp)
	if e.PushErr != nil {
		return false, e.PushErr
	}
	return len(e.Partials) > 0, nil
}

// Partial pops and returns the head of the Partials queue.
func (e *Engine) Partial() (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Result{}, engine.ErrClosed
	}
	if e.PartialErr != nil {
		return engine.Result{}, e.PartialErr
	}
	if len(e.Partials) == 0 {
		return engine.Result{}, engine.ErrNoResult
	}
	r := e.Partials[0]
	e.Partials = e.Partials[1:]
	return r, nil
}

// Final records the call and returns FinalResult (or delegates to FinalFunc).
func (e *Engine) Final(ctx context.Context) (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Result{}, engine.ErrClosed
	}
	e.FinalCallCount++
	if e.FinalErr != nil {
		return engine.Result{}, e.FinalErr
	}
	if e.FinalFunc != nil {
		var pushed []byte
		for _, c := range e.PushCalls {
			pushed = append(pushed, c...)
		}
		return e.FinalFunc(ctx, pushed)
	}
	return e.FinalResult, nil
}

// PushCallCount returns the number of Push calls. Thread-safe.
func (e *Engine) PushCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.PushCalls)
}

// PushedBytes returns the total number of audio bytes pushed. Thread-safe.
func (e *Engine) PushedBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.PushCalls {
		n += len(c)
	}
	return n
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	e.closed = true
	return e.CloseErr
}

// Ensure Engine implements engine.Engine at compile time.
var _ engine.Engine = (*Engine)(nil)

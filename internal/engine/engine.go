// Package engine defines the narrow contract between the recognition session
// and a speech-to-text backend.
//
// An Engine consumes raw 16-bit little-endian PCM and produces text. The
// contract is deliberately small: push a chunk, ask for the current partial
// hypothesis, ask for the final transcription. Sessions create one engine
// instance per utterance (or one long-lived instance for streaming backends)
// through a Provider; they never run two recognition operations concurrently
// on the same instance.
//
// Implementations must be safe for concurrent use.
package engine

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on an engine after Close.
var ErrClosed = errors.New("engine: closed")

// ErrNoResult is returned by Partial when the engine has no hypothesis yet.
var ErrNoResult = errors.New("engine: no result available")

// ErrNotSupported is returned by engines that cannot serve an optional
// operation, e.g. partial results from a batch-only backend.
var ErrNotSupported = errors.New("engine: operation not supported")

// Config describes the audio format and backend settings for a new engine
// instance. Backend-specific fields are ignored by engines that do not use
// them.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Defaults to 16000.
	SampleRate int

	// Channels is the PCM channel count. Defaults to 1.
	Channels int

	// Language is the recognition language hint ("ja", "en-US", ...). Empty
	// lets the backend auto-detect where supported.
	Language string

	// ModelPath points at a local model file for in-process backends.
	ModelPath string

	// Command is the shell-style command line for exec backends.
	Command string

	// URL is the server endpoint for websocket backends.
	URL string
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// Engine is one recognition instance. Push feeds audio and reports whether a
// new partial hypothesis is available; Partial fetches it; Final blocks until
// the backend commits a transcription for everything pushed so far.
//
// After Final or Close the instance is spent; sessions obtain a fresh one from
// the Provider for the next utterance.
type Engine interface {
	// Push delivers a chunk of raw PCM. The returned bool reports whether a
	// new partial result is available since the last Partial call.
	Push(chunk []byte) (bool, error)

	// Partial returns the current interim hypothesis. Engines without
	// streaming support return ErrNotSupported; engines that simply have
	// nothing yet return ErrNoResult.
	Partial() (Result, error)

	// Final blocks until the backend produces the final transcription for all
	// pushed audio. It may run model inference and should be called off the
	// audio path.
	Final(ctx context.Context) (Result, error)

	// Close releases the instance. Safe to call more than once.
	Close() error
}

// Provider creates engine instances. Implementations may share heavyweight
// state (a loaded model, a connection pool) across instances.
type Provider interface {
	// NewEngine creates an instance ready to accept audio.
	NewEngine(ctx context.Context, cfg Config) (Engine, error)
}

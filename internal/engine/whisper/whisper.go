// Package whisper runs speech-to-text in process through the whisper.cpp CGO
// bindings. The static library (libwhisper.a) and headers must be available
// at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once per Provider and shared across engine instances;
// each instance gets its own whisper context because contexts are not
// thread-safe.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxkit/voxkit/internal/engine"
)

// Provider loads a whisper.cpp model and hands out buffer-then-finalize
// engine instances backed by it. Close releases the model; instances created
// before Close stay valid until their own Close.
type Provider struct {
	model whisperlib.Model
}

// NewProvider loads the model from modelPath.
func NewProvider(modelPath string) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Provider{model: model}, nil
}

// Close releases the shared model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// NewEngine returns a fresh buffering instance for one utterance.
func (p *Provider) NewEngine(_ context.Context, cfg engine.Config) (engine.Engine, error) {
	return &Engine{model: p.model, cfg: cfg.WithDefaults()}, nil
}

var _ engine.Provider = (*Provider)(nil)

// Engine buffers pushed PCM and runs one inference in Final.
type Engine struct {
	model whisperlib.Model
	cfg   engine.Config

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// Push appends the chunk to the utterance buffer. Whisper inference is
// batch-only here, so no interim hypotheses are announced.
func (e *Engine) Push(chunk []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, engine.ErrClosed
	}
	e.buf = append(e.buf, chunk...)
	return false, nil
}

// Partial is not supported by the batch whisper backend.
func (e *Engine) Partial() (engine.Result, error) {
	return engine.Result{}, engine.ErrNotSupported
}

// Final runs whisper.cpp inference on everything pushed so far.
func (e *Engine) Final(_ context.Context) (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Result{}, engine.ErrClosed
	}
	if len(e.buf) == 0 {
		return engine.Result{}, nil
	}

	samples := pcmToFloat32Mono(e.buf, e.cfg.Channels)

	wctx, err := e.model.NewContext()
	if err != nil {
		return engine.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if e.cfg.Language != "" {
		if err := wctx.SetLanguage(e.cfg.Language); err != nil {
			slog.Warn("whisper language not accepted, using model default",
				"language", e.cfg.Language, "error", err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return engine.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return engine.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return engine.Result{
		Text:       strings.Join(parts, " "),
		Confidence: engine.DefaultFinalConfidence,
	}, nil
}

// Close drops the buffered audio. The shared model stays loaded.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf = nil
	e.closed = true
	return nil
}

var _ engine.Engine = (*Engine)(nil)

// pcmToFloat32Mono converts 16-bit signed little-endian PCM to float32 in
// [-1, 1], averaging channels down to mono when needed. A trailing odd byte
// is ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		n := len(pcm) / 2
		out := make([]float32, n)
		for i := range n {
			out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		}
		return out
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}

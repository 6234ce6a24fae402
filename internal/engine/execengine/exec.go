// Package execengine runs an external speech-to-text command per utterance.
//
// The engine buffers all pushed PCM, writes it to a temporary WAV file on
// Final, and invokes the configured command with --audio (plus --model and
// --language when set). The command must print its result to stdout, either
// as {"text": ..., "confidence": ...} JSON or as plain text.
package execengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/voxkit/voxkit/internal/engine"
)

// Provider creates exec engines from a parsed command line. The command is
// parsed once at construction so a malformed configuration fails fast.
type Provider struct {
	argv []string
}

// NewProvider parses the shell-style command line and returns a provider.
func NewProvider(command string) (*Provider, error) {
	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("execengine: parse command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("execengine: command is empty")
	}
	return &Provider{argv: argv}, nil
}

// NewEngine returns a fresh buffering engine for one utterance.
func (p *Provider) NewEngine(_ context.Context, cfg engine.Config) (engine.Engine, error) {
	return &Engine{argv: p.argv, cfg: cfg.WithDefaults()}, nil
}

var _ engine.Provider = (*Provider)(nil)

// Engine is a buffer-then-finalize engine instance. It never produces
// partials; all recognition happens in Final.
type Engine struct {
	argv []string
	cfg  engine.Config

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// Push appends the chunk to the utterance buffer. Exec engines have no
// streaming hypothesis, so the result flag is always false.
func (e *Engine) Push(chunk []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, engine.ErrClosed
	}
	e.buf = append(e.buf, chunk...)
	return false, nil
}

// Partial is not supported by batch exec backends.
func (e *Engine) Partial() (engine.Result, error) {
	return engine.Result{}, engine.ErrNotSupported
}

// Final writes the buffered audio to a temporary WAV file, runs the command,
// and parses its stdout.
func (e *Engine) Final(ctx context.Context) (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Result{}, engine.ErrClosed
	}
	if len(e.buf) == 0 {
		return engine.Result{}, nil
	}

	file, err := os.CreateTemp("", "voxkit_stt_*.wav")
	if err != nil {
		return engine.Result{}, fmt.Errorf("execengine: temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, e.buf, e.cfg.SampleRate, e.cfg.Channels); err != nil {
		return engine.Result{}, err
	}

	args := append([]string{}, e.argv[1:]...)
	args = append(args, "--audio", file.Name())
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}

	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return engine.Result{}, fmt.Errorf("execengine: command failed: %w: %s", err, stderr.String())
	}

	return engine.ParseResult(stdout.Bytes()), nil
}

// Close drops the buffered audio.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf = nil
	e.closed = true
	return nil
}

var _ engine.Engine = (*Engine)(nil)

// writePCMToWav encodes raw 16-bit little-endian PCM as a WAV file.
func writePCMToWav(file *os.File, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("execengine: pcm payload not 16-bit aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("execengine: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("execengine: close wav encoder: %w", err)
	}
	return nil
}

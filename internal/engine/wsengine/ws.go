// Package wsengine streams PCM to a websocket speech-to-text server.
//
// The wire protocol is the one spoken by Vosk-style servers: binary messages
// carry raw PCM, text messages carry JSON results. Interim hypotheses arrive
// as {"partial": ...}; the final transcription arrives as {"text": ...} after
// the client sends {"eof": 1}.
package wsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxkit/voxkit/internal/engine"
)

const (
	writeTimeout = 5 * time.Second
	finalTimeout = 30 * time.Second
)

// Provider creates websocket engines that dial the configured server per
// utterance.
type Provider struct {
	// DialOptions are passed through to websocket.Dial. Nil is fine.
	DialOptions *websocket.DialOptions
}

// NewEngine dials cfg.URL and returns a streaming engine bound to the
// connection. The server is told the sample rate via the conventional
// {"config": {"sample_rate": ...}} opening message.
func (p *Provider) NewEngine(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	cfg = cfg.WithDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("wsengine: server URL is empty")
	}

	conn, _, err := websocket.Dial(ctx, cfg.URL, p.DialOptions)
	if err != nil {
		return nil, fmt.Errorf("wsengine: dial %s: %w", cfg.URL, err)
	}
	// Recognition results for long utterances exceed the 32 KiB default.
	conn.SetReadLimit(1 << 20)

	open := map[string]any{"config": map[string]any{
		"sample_rate": cfg.SampleRate,
	}}
	if cfg.Language != "" {
		open["config"].(map[string]any)["language"] = cfg.Language
	}
	payload, err := json.Marshal(open)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "config marshal failed")
		return nil, fmt.Errorf("wsengine: marshal config: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "config write failed")
		return nil, fmt.Errorf("wsengine: send config: %w", err)
	}

	e := &Engine{
		conn:  conn,
		final: make(chan engine.Result, 1),
		done:  make(chan struct{}),
	}
	go e.readLoop()
	return e, nil
}

var _ engine.Provider = (*Provider)(nil)

// Engine is one live websocket session. A single reader goroutine owns all
// inbound messages; Push and Final only write.
type Engine struct {
	conn *websocket.Conn

	mu         sync.Mutex
	partial    engine.Result
	hasPartial bool // set by readLoop, cleared by Partial
	readErr    error
	closed     bool

	final chan engine.Result
	done  chan struct{}
	once  sync.Once
}

// Push writes one binary PCM message. The result flag reports whether the
// server announced a new interim hypothesis since the last Partial call.
func (e *Engine) Push(chunk []byte) (bool, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, engine.ErrClosed
	}
	if e.readErr != nil {
		err := e.readErr
		e.mu.Unlock()
		return false, err
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		return false, fmt.Errorf("wsengine: write audio: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasPartial, nil
}

// Partial returns the most recent interim hypothesis.
func (e *Engine) Partial() (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Result{}, engine.ErrClosed
	}
	if !e.hasPartial {
		return engine.Result{}, engine.ErrNoResult
	}
	e.hasPartial = false
	return e.partial, nil
}

// Final asks the server to commit by sending the EOF marker, then waits for
// the closing {"text": ...} message.
func (e *Engine) Final(ctx context.Context) (engine.Result, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engine.Result{}, engine.ErrClosed
	}
	e.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := e.conn.Write(wctx, websocket.MessageText, []byte(`{"eof": 1}`)); err != nil {
		return engine.Result{}, fmt.Errorf("wsengine: send eof: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancelWait context.CancelFunc
		ctx, cancelWait = context.WithTimeout(ctx, finalTimeout)
		defer cancelWait()
	}
	select {
	case res := <-e.final:
		return res, nil
	case <-e.done:
		e.mu.Lock()
		err := e.readErr
		e.mu.Unlock()
		if err != nil {
			return engine.Result{}, fmt.Errorf("wsengine: connection lost before final: %w", err)
		}
		return engine.Result{}, engine.ErrClosed
	case <-ctx.Done():
		return engine.Result{}, fmt.Errorf("wsengine: waiting for final: %w", ctx.Err())
	}
}

// Close tears down the connection and stops the reader.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.conn.Close(websocket.StatusNormalClosure, "session closed")
		<-e.done
	})
	return nil
}

// readLoop parses every inbound message into the partial slot or the final
// channel until the connection dies.
func (e *Engine) readLoop() {
	defer close(e.done)
	for {
		typ, data, err := e.conn.Read(context.Background())
		if err != nil {
			e.mu.Lock()
			if !e.closed {
				e.readErr = fmt.Errorf("wsengine: read: %w", err)
			}
			e.mu.Unlock()
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		res := engine.ParseResult(data)
		if res.Partial {
			e.mu.Lock()
			e.partial = res
			e.hasPartial = true
			e.mu.Unlock()
			continue
		}
		select {
		case e.final <- res:
		default:
			slog.Warn("recognition server sent unexpected extra final", "text", res.Text)
		}
	}
}

var _ engine.Engine = (*Engine)(nil)

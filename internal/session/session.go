// Package session binds the recognition pipeline together: one VAD, one
// endpoint detector and one engine adapter per session, driven by pushed
// audio frames and delivering results to registered observers.
//
// Frames are processed synchronously on the caller's goroutine; blocking
// engine finalization is offloaded to a single worker so a slow model never
// stalls capture. The bounded finalize queue provides back-pressure: when a
// finalize is still in flight and the queue is full, the newest utterance is
// dropped rather than running two engine operations at once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voxkit/voxkit/internal/endpoint"
	"github.com/voxkit/voxkit/internal/engine"
	"github.com/voxkit/voxkit/internal/observe"
	"github.com/voxkit/voxkit/internal/sink"
	"github.com/voxkit/voxkit/internal/textnorm"
	"github.com/voxkit/voxkit/internal/vad"
	"github.com/voxkit/voxkit/pkg/audio"
)

// Mode selects how utterance audio reaches the engine.
type Mode string

const (
	// ModeBuffered accumulates the whole utterance, then creates a fresh
	// engine instance at the endpoint, feeds it the buffer in fixed-size
	// chunks and requests one final result.
	ModeBuffered Mode = "buffered"

	// ModeStreaming feeds a long-lived engine instance per utterance as
	// frames arrive, polls for partial hypotheses, and forces a final result
	// at the endpoint before recreating the instance.
	ModeStreaming Mode = "streaming"
)

// Default tunables.
const (
	defaultChunkBytes = 4096
	defaultQueueSize  = 4
)

// Config assembles a recognition session. The VAD, endpoint and engine
// sections are validated when the session starts; invalid settings are
// surfaced before any audio is accepted.
type Config struct {
	// ID labels the session in logs. Generated when empty.
	ID string

	// Mode is the engine-binding strategy. Default buffered.
	Mode Mode

	// ChunkBytes is the feed size used when replaying a buffered utterance
	// into the engine. Default 4096.
	ChunkBytes int

	// QueueSize bounds the pending-finalize queue. Default 4.
	QueueSize int

	// VAD configures the voice activity detector.
	VAD vad.Config

	// Endpoint configures the utterance boundary policy.
	Endpoint endpoint.Config

	// Engine is passed to the provider for every engine instance.
	Engine engine.Config

	// Text configures output normalization. Terminal punctuation, when
	// enabled, is applied to finals only.
	Text textnorm.Options
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Mode == "" {
		c.Mode = ModeBuffered
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = defaultChunkBytes
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	c.Engine = c.Engine.WithDefaults()
	return c
}

// finalizeJob is one utterance handed to the finalize worker. Exactly one of
// audio (buffered mode) or eng (streaming mode) carries the utterance.
type finalizeJob struct {
	audio []byte
	eng   engine.Engine
	res   endpoint.Result
}

// Session is one recognition pipeline instance. It owns its VAD, endpoint
// detector and engine instances exclusively; nothing is shared between
// sessions. Safe for concurrent use, though frames are expected from a single
// capture goroutine.
type Session struct {
	cfg      Config
	provider engine.Provider
	log      *slog.Logger
	metrics  *observe.Metrics

	finalNorm   *textnorm.Normalizer
	partialNorm *textnorm.Normalizer

	mu        sync.Mutex
	running   bool
	queueOpen bool
	vad       *vad.Detector
	ep        *endpoint.Detector
	strat     strategy
	finalizeQ chan finalizeJob
	observers []Observer

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a [Session].
type Option func(*Session)

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithObserver registers an observer. Observers are notified in registration
// order.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// New creates a session. The engine provider is required; detector settings
// are validated by Start.
func New(cfg Config, provider engine.Provider, logger *slog.Logger, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, errors.New("session: engine provider is required")
	}
	cfg = cfg.withDefaults()
	if cfg.Mode != ModeBuffered && cfg.Mode != ModeStreaming {
		return nil, fmt.Errorf("session: unknown mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		provider:  provider,
		log:       logger.With("session_id", cfg.ID),
		finalNorm: textnorm.New(cfg.Text),
		partialNorm: textnorm.New(textnorm.Options{
			Language: cfg.Text.Language,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.ID }

// Running reports whether the session is accepting frames.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// UtteranceCount returns the number of completed utterances since the last
// Start.
func (s *Session) UtteranceCount() int {
	s.mu.Lock()
	ep := s.ep
	s.mu.Unlock()
	if ep == nil {
		return 0
	}
	return ep.UtteranceCount()
}

// AddObserver registers an observer after construction.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Start validates the configuration, builds fresh detectors and launches the
// finalize worker and the endpoint timer. A stopped session can be started
// again; counters and detector state begin from zero.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("session: already running")
	}

	vd, err := vad.New(s.cfg.VAD, vad.Hooks{
		OnVoiceStart: s.onVoiceStart,
	}, s.log)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	ed, err := endpoint.New(s.cfg.Endpoint, endpoint.Hooks{
		OnUtteranceStart: s.onUtteranceStart,
		OnUtteranceEnd:   s.onUtteranceEnd,
	}, s.log)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.vad = vd
	s.ep = ed
	switch s.cfg.Mode {
	case ModeStreaming:
		s.strat = &streamingStrategy{s: s}
	default:
		s.strat = &bufferedStrategy{s: s}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.finalizeQ = make(chan finalizeJob, s.cfg.QueueSize)
	s.queueOpen = true

	q := s.finalizeQ
	s.group = &errgroup.Group{}
	s.group.Go(func() error {
		for job := range q {
			s.finalize(job)
		}
		return nil
	})

	s.ep.Start()
	s.running = true
	s.metrics.ActiveSessions.Add(s.ctx, 1)
	s.log.Info("session started", "mode", s.cfg.Mode)
	return nil
}

// Stop halts the session: the endpoint timer is stopped, any in-flight
// utterance is force-finalized, queued finalizations drain, and the engine is
// released. After Stop the session can be started again. Safe to call more
// than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ep := s.ep
	s.mu.Unlock()

	// Flush the in-flight utterance, then join the timer goroutine. After
	// Stop returns no endpoint hooks fire, so the queue can close.
	ep.TriggerManual()
	ep.Stop()

	s.mu.Lock()
	s.queueOpen = false
	close(s.finalizeQ)
	serr := s.strat.release()
	s.mu.Unlock()

	werr := s.group.Wait()
	s.cancel()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	s.log.Info("session stopped")
	return errors.Join(serr, werr)
}

// Finalize forces an endpoint for the current utterance, the push-to-talk
// path. A no-op when no utterance is in progress.
func (s *Session) Finalize() {
	s.mu.Lock()
	ep := s.ep
	running := s.running
	s.mu.Unlock()
	if !running || ep == nil {
		return
	}
	ep.TriggerManual()
}

// ProcessFrame pushes one captured audio frame through the pipeline. Frames
// must arrive in timestamp order. Calls after Stop are ignored.
func (s *Session) ProcessFrame(frame audio.Frame) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	vd, ep := s.vad, s.ep
	s.mu.Unlock()

	dec := vd.ProcessFrame(frame)
	s.metrics.RecordFrame(s.ctx, dec.IsVoice, dec.Confidence)

	// The strategy mutates session-owned state, so it runs under the lock;
	// the events it produces are emitted after release so observers may call
	// back into the session.
	s.mu.Lock()
	partial, ferr := s.strat.onFrame(frame)
	s.mu.Unlock()
	if ferr != nil {
		s.emitError(ferr)
	}
	if partial != nil {
		s.emitPartial(*partial)
	}

	ep.ProcessFrame(dec.Features.EnergyDB, dec.IsVoice, frame.Timestamp)
}

// onVoiceStart runs inside the VAD frame path and opens the utterance on the
// endpoint detector.
func (s *Session) onVoiceStart(confidence float64, at time.Duration) {
	s.mu.Lock()
	ep := s.ep
	s.mu.Unlock()
	ep.VoiceStarted(confidence, at)
}

// onUtteranceStart runs inside the endpoint detector with its lock held.
func (s *Session) onUtteranceStart(at time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strat.onStart()
	s.log.Debug("utterance started", "at", at)
}

// onUtteranceEnd runs inside the endpoint detector (frame path or timer
// goroutine). It snapshots the utterance from the strategy and hands it to
// the finalize worker.
func (s *Session) onUtteranceEnd(res endpoint.Result) {
	s.mu.Lock()
	job := s.strat.take()
	job.res = res
	// The send stays under the lock: Stop closes the queue under the same
	// lock, so the channel cannot close between the open check and the send.
	// The send is non-blocking, so holding the lock here cannot deadlock
	// against the finalize worker.
	delivered, dropped := false, false
	if s.queueOpen {
		select {
		case s.finalizeQ <- job:
			delivered = true
		default:
			dropped = true
		}
	}
	s.mu.Unlock()

	s.metrics.RecordEndpoint(s.ctx, res.Type.String(), res.UtteranceDuration.Seconds())
	s.log.Debug("utterance ended",
		"type", res.Type.String(),
		"duration", res.UtteranceDuration,
		"confidence", res.Confidence,
	)

	if dropped {
		s.metrics.FinalizesDropped.Add(s.ctx, 1)
		s.log.Warn("finalize queue full, dropping utterance",
			"duration", res.UtteranceDuration)
	}
	if !delivered {
		s.discard(job)
	}
}

// discard releases a job that will never be finalized.
func (s *Session) discard(job finalizeJob) {
	if job.eng != nil {
		if err := job.eng.Close(); err != nil {
			s.log.Warn("engine close failed", "err", err)
		}
	}
}

// finalize runs one utterance through the engine and emits the result. Runs
// on the worker goroutine; a panicking engine is reported as an error event
// and the pipeline keeps going.
func (s *Session) finalize(job finalizeJob) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordEngineError(s.ctx, "final")
			s.emitError(fmt.Errorf("engine finalize panic: %v", r))
		}
	}()

	eng := job.eng
	if eng == nil {
		if len(job.audio) == 0 {
			return
		}
		var err error
		eng, err = s.provider.NewEngine(s.ctx, s.cfg.Engine)
		if err != nil {
			s.metrics.RecordEngineError(s.ctx, "create")
			s.emitError(fmt.Errorf("engine create: %w", err))
			return
		}
		if err := s.feed(eng, job.audio); err != nil {
			s.metrics.RecordEngineError(s.ctx, "push")
			s.emitError(fmt.Errorf("engine push: %w", err))
			s.discard(finalizeJob{eng: eng})
			return
		}
	}
	defer s.discard(finalizeJob{eng: eng})

	start := time.Now()
	res, err := eng.Final(s.ctx)
	s.metrics.FinalizeDuration.Record(s.ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordEngineError(s.ctx, "final")
		s.emitError(fmt.Errorf("engine finalize: %w", err))
		return
	}

	text := s.finalNorm.Normalize(res.Text)
	if text == "" {
		s.log.Debug("empty final result, skipping",
			"duration", job.res.UtteranceDuration)
		return
	}
	s.emitFinal(sink.Final{
		Text:       text,
		Confidence: res.Confidence,
		Duration:   job.res.UtteranceDuration,
	})
}

// feed replays buffered utterance audio into the engine in fixed-size chunks.
func (s *Session) feed(eng engine.Engine, buf []byte) error {
	for len(buf) > 0 {
		n := s.cfg.ChunkBytes
		if n > len(buf) {
			n = len(buf)
		}
		if _, err := eng.Push(buf[:n]); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (s *Session) snapshotObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

func (s *Session) emitFinal(rec sink.Final) {
	for _, o := range s.snapshotObservers() {
		o.OnFinal(s.ctx, rec)
	}
}

func (s *Session) emitPartial(rec sink.Partial) {
	for _, o := range s.snapshotObservers() {
		o.OnPartial(s.ctx, rec)
	}
}

func (s *Session) emitError(err error) {
	s.log.Warn("recognition error", "err", err)
	for _, o := range s.snapshotObservers() {
		o.OnError(s.ctx, err)
	}
}

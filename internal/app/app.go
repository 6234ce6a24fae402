// Package app wires the voxkit recognition pipeline into a running
// application.
//
// The App struct owns the full lifecycle: New builds the sinks, the result
// dispatcher and the recognition session from configuration, Run pumps audio
// frames from the input source through the session, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSource,
// WithDispatcher). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxkit/voxkit/internal/config"
	"github.com/voxkit/voxkit/internal/engine"
	"github.com/voxkit/voxkit/internal/health"
	"github.com/voxkit/voxkit/internal/observe"
	"github.com/voxkit/voxkit/internal/resilience"
	"github.com/voxkit/voxkit/internal/session"
	"github.com/voxkit/voxkit/internal/sink"
	"github.com/voxkit/voxkit/pkg/audio"
)

// FrameSource yields ordered audio frames until io.EOF.
type FrameSource interface {
	Next() (audio.Frame, error)
	Close() error
}

// App owns the pipeline lifetime: input source, recognition session, result
// dispatcher and the optional observability HTTP server.
type App struct {
	cfg *config.Config

	source     FrameSource
	dispatcher *sink.Dispatcher
	session    *session.Session
	httpSrv    *http.Server

	// realtime paces frame delivery at capture cadence instead of reading
	// the input as fast as possible.
	realtime bool

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects the frame source instead of opening the configured
// input file.
func WithSource(s FrameSource) Option {
	return func(a *App) { a.source = s }
}

// WithDispatcher injects a result dispatcher instead of building sinks from
// config.
func WithDispatcher(d *sink.Dispatcher) Option {
	return func(a *App) { a.dispatcher = d }
}

// WithRealtime paces input frames at capture cadence.
func WithRealtime() Option {
	return func(a *App) { a.realtime = true }
}

// New assembles the application: output sinks with fallback dispatch, the
// recognition session bound to the given engine provider, and the health +
// metrics HTTP server when server.listen_addr is set. inputPath names a WAV
// or raw PCM file ("-" for stdin); it is ignored when a source is injected.
func New(cfg *config.Config, provider engine.Provider, inputPath string, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initSource(inputPath); err != nil {
		return nil, fmt.Errorf("app: init source: %w", err)
	}
	if err := a.initSinks(); err != nil {
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}
	if err := a.initSession(provider); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}
	a.initHTTP()

	return a, nil
}

func (a *App) initSource(inputPath string) error {
	if a.source != nil {
		return nil
	}
	es := a.cfg.EngineSettings()
	target := audio.Format{
		SampleRate: es.SampleRate,
		Channels:   es.Channels,
	}
	src, err := NewFileSource(inputPath, target)
	if err != nil {
		return err
	}
	a.source = src
	a.closers = append(a.closers, src.Close)
	return nil
}

// initSinks builds one writer sink per configured destination. The first sink
// is the primary; later ones are fallbacks behind per-sink circuit breakers.
// With no sinks configured, finals go to stdout.
func (a *App) initSinks() error {
	if a.dispatcher != nil {
		return nil
	}

	var sinks []sink.Sink
	for _, sc := range a.cfg.Sinks {
		var opts []sink.WriterOption
		if sc.JSON {
			opts = append(opts, sink.WithJSON())
		}
		switch sc.Type {
		case "stderr":
			sinks = append(sinks, sink.NewWriter(sc.Name, os.Stderr, opts...))
		case "file":
			f, err := os.OpenFile(sc.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open sink %q: %w", sc.Name, err)
			}
			a.closers = append(a.closers, f.Close)
			sinks = append(sinks, sink.NewWriter(sc.Name, f, opts...))
		default:
			sinks = append(sinks, sink.NewWriter(sc.Name, os.Stdout, opts...))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, sink.NewWriter("stdout", os.Stdout))
	}

	d, err := sink.NewDispatcher(resilience.FallbackConfig{}, sinks...)
	if err != nil {
		return err
	}
	a.dispatcher = d
	a.closers = append(a.closers, d.Close)
	return nil
}

func (a *App) initSession(provider engine.Provider) error {
	sessCfg := session.Config{
		Mode:       session.Mode(a.cfg.Session.Mode),
		ChunkBytes: a.cfg.Session.ChunkBytes,
		QueueSize:  a.cfg.Session.QueueSize,
		VAD:        a.cfg.VADDetector(),
		Endpoint:   a.cfg.EndpointDetector(),
		Engine:     a.cfg.EngineSettings(),
		Text:       a.cfg.TextOptions(),
	}
	s, err := session.New(sessCfg, provider, slog.Default(),
		session.WithObserver(&session.DispatchObserver{Dispatcher: a.dispatcher}),
	)
	if err != nil {
		return err
	}
	a.session = s
	return nil
}

// initHTTP builds the observability server when a listen address is
// configured: Prometheus metrics under /metrics, liveness and readiness
// probes from the health package, all behind the tracing middleware.
func (a *App) initHTTP() {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return
	}

	checker := health.Checker{
		Name: "session",
		Check: func(context.Context) error {
			if !a.session.Running() {
				return errors.New("recognition session not running")
			}
			return nil
		},
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checker).Register(mux)

	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the session and pumps frames from the source until the input is
// exhausted or ctx is cancelled. It returns once all audio has been
// processed; call Shutdown to flush in-flight recognition and stop serving.
func (a *App) Run(ctx context.Context) error {
	if err := a.session.Start(ctx); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	// runCtx ends when the input is exhausted or the caller cancels; the
	// HTTP server serves exactly that long.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &errgroup.Group{}

	if a.httpSrv != nil {
		g.Go(func() error {
			slog.Info("observability server listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		defer slog.Info("input exhausted")
		return a.pump(runCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pump reads frames and pushes them through the session. In realtime mode
// delivery is paced at the frame duration, mimicking a live capture device.
func (a *App) pump(ctx context.Context) error {
	var ticker *time.Ticker
	if a.realtime {
		ticker = time.NewTicker(frameDuration)
		defer ticker.Stop()
	}

	for {
		frame, err := a.source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: read input: %w", err)
		}

		a.session.ProcessFrame(frame)

		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Finalize forces an endpoint for the current utterance.
func (a *App) Finalize() {
	a.session.Finalize()
}

// Shutdown stops the session (flushing any in-flight utterance), closes the
// HTTP server and runs the remaining closers in order. It respects the ctx
// deadline: once it expires, remaining closers are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.session.Stop(); err != nil {
			slog.Warn("session stop error", "err", err)
		}

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Command voxkit runs the voice-to-text recognition pipeline over a WAV or
// raw PCM input and writes transcription results to the configured sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxkit/voxkit/internal/app"
	"github.com/voxkit/voxkit/internal/config"
	"github.com/voxkit/voxkit/internal/engine"
	"github.com/voxkit/voxkit/internal/engine/execengine"
	"github.com/voxkit/voxkit/internal/engine/whisper"
	"github.com/voxkit/voxkit/internal/engine/wsengine"
	"github.com/voxkit/voxkit/internal/observe"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "-", `input WAV or raw PCM file ("-" reads PCM from stdin)`)
	realtime := flag.Bool("realtime", false, "pace input frames at capture cadence instead of reading as fast as possible")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxkit: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxkit: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxkit starting",
		"version", version,
		"config", *configPath,
		"input", *inputPath,
		"backend", cfg.Engine.Backend,
		"mode", cfg.Session.Mode,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxkit",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	provider, err := reg.Create(cfg.Engine)
	if err != nil {
		slog.Error("failed to create engine backend",
			"backend", cfg.Engine.Backend,
			"available", reg.Names(),
			"err", err,
		)
		return 1
	}
	slog.Info("engine backend created", "backend", cfg.Engine.Backend)

	// Reloads take effect for the next run; a running pipeline keeps the
	// config it started with.
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config) {
		slog.Info("configuration changed on disk; restart to apply")
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	var opts []app.Option
	if *realtime {
		opts = append(opts, app.WithRealtime())
	}

	application, err := app.New(cfg, provider, *inputPath, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		shutdownApp(application)
		return 1
	}

	if err := shutdownApp(application); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// shutdownApp flushes in-flight recognition and tears the pipeline down
// within a fixed grace period.
func shutdownApp(application *app.App) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return application.Shutdown(shutdownCtx)
}

// registerBuiltinBackends wires the engine backends that ship with voxkit
// into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.Register("exec", func(c config.EngineConfig) (engine.Provider, error) {
		return execengine.NewProvider(c.Command)
	})
	reg.Register("websocket", func(_ config.EngineConfig) (engine.Provider, error) {
		return &wsengine.Provider{}, nil
	})
	reg.Register("whisper", func(c config.EngineConfig) (engine.Provider, error) {
		return whisper.NewProvider(c.ModelPath)
	})
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackends lists the engine backend names the loader recognises. Unknown
// names are rejected because there is nothing to fall back to.
var ValidBackends = []string{"exec", "websocket", "whisper"}

// validSinkTypes lists the sink type names the loader recognises.
var validSinkTypes = []string{"stdout", "stderr", "file"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be 1 or 2", cfg.Audio.Channels))
	}

	// VAD
	if t := cfg.VAD.VoiceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.voice_threshold %.2f is out of range [0, 1]", t))
	}
	w := cfg.VAD.Weights
	if w.Energy < 0 || w.ZCR < 0 || w.Spectral < 0 || w.Temporal < 0 {
		errs = append(errs, fmt.Errorf("vad.weights must not be negative"))
	}
	if cfg.VAD.ZCRMin > cfg.VAD.ZCRMax {
		errs = append(errs, fmt.Errorf("vad.zcr_min %.2f exceeds vad.zcr_max %.2f", cfg.VAD.ZCRMin, cfg.VAD.ZCRMax))
	}
	if cfg.VAD.CentroidMinHz > cfg.VAD.CentroidMaxHz {
		errs = append(errs, fmt.Errorf("vad.centroid_min_hz %.0f exceeds vad.centroid_max_hz %.0f", cfg.VAD.CentroidMinHz, cfg.VAD.CentroidMaxHz))
	}

	// Endpoint
	e := cfg.Endpoint
	if e.SilenceTimeoutMs < 0 || e.MaxUtteranceMs < 0 || e.MaxSessionMs < 0 || e.InactivityTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("endpoint timeouts must not be negative"))
	}
	if e.MaxUtteranceMs > 0 && e.MaxSessionMs > 0 && e.MaxUtteranceMs > e.MaxSessionMs {
		errs = append(errs, fmt.Errorf("endpoint.max_utterance_ms %d exceeds endpoint.max_session_ms %d", e.MaxUtteranceMs, e.MaxSessionMs))
	}
	if e.EnergyThresholdDB > 0 {
		errs = append(errs, fmt.Errorf("endpoint.energy_threshold_db %.1f must not be positive (dBFS)", e.EnergyThresholdDB))
	}

	// Engine
	switch backend := cfg.Engine.Backend; backend {
	case "":
		// Resolved at startup; the registry rejects an unset backend.
	case "exec":
		if cfg.Engine.Command == "" {
			errs = append(errs, fmt.Errorf("engine.command is required for the exec backend"))
		}
	case "websocket":
		if cfg.Engine.URL == "" {
			errs = append(errs, fmt.Errorf("engine.url is required for the websocket backend"))
		}
	case "whisper":
		if cfg.Engine.ModelPath == "" {
			errs = append(errs, fmt.Errorf("engine.model_path is required for the whisper backend"))
		}
	default:
		if !slices.Contains(ValidBackends, backend) {
			errs = append(errs, fmt.Errorf("engine.backend %q is unknown; valid values: %v", backend, ValidBackends))
		}
	}

	// Session
	if cfg.Session.Mode != "" && !cfg.Session.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("session.mode %q is invalid; valid values: buffered, streaming", cfg.Session.Mode))
	}
	if cfg.Session.ChunkBytes < 0 {
		errs = append(errs, fmt.Errorf("session.chunk_bytes must not be negative"))
	}
	if cfg.Session.Mode == ModeStreaming && cfg.Engine.Backend == "exec" {
		slog.Warn("streaming mode with the exec backend produces no partials; recognition still runs at endpoints")
	}

	// Sinks
	seen := make(map[string]int, len(cfg.Sinks))
	for i, s := range cfg.Sinks {
		prefix := fmt.Sprintf("sinks[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[s.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sinks[%d]", prefix, s.Name, prev))
			}
			seen[s.Name] = i
		}
		if s.Type != "" && !slices.Contains(validSinkTypes, s.Type) {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: %v", prefix, s.Type, validSinkTypes))
		}
		if s.Type == "file" && s.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required when type is file", prefix))
		}
	}

	return errors.Join(errs...)
}

// Package config provides the configuration schema, loader, file watcher, and
// engine backend registry for the voxkit recognition pipeline.
package config

import (
	"time"

	"github.com/voxkit/voxkit/internal/endpoint"
	"github.com/voxkit/voxkit/internal/engine"
	"github.com/voxkit/voxkit/internal/textnorm"
	"github.com/voxkit/voxkit/internal/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SessionMode selects how audio reaches the recognition engine.
type SessionMode string

const (
	// ModeBuffered accumulates the whole utterance and runs recognition once
	// at the endpoint.
	ModeBuffered SessionMode = "buffered"

	// ModeStreaming feeds a long-lived engine continuously and emits partial
	// hypotheses between endpoints.
	ModeStreaming SessionMode = "streaming"
)

// IsValid reports whether m is a recognised session mode.
func (m SessionMode) IsValid() bool {
	return m == ModeBuffered || m == ModeStreaming
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]. A new recognition session picks
// up the values current at its creation; running sessions are not
// reconfigured in place.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Engine   EngineConfig   `yaml:"engine"`
	Session  SessionConfig  `yaml:"session"`
	Text     TextConfig     `yaml:"text"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the /metrics and /healthz endpoints
	// (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the PCM format the pipeline operates on. Capture
// input in other formats is converted to this target.
type AudioConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels of the target format. Default 1 (mono).
	Channels int `yaml:"channels"`
}

// VADConfig holds the voice activity detection tunables. Zero fields keep
// their built-in defaults.
type VADConfig struct {
	// VoiceThreshold is the confidence at or above which a frame counts as
	// voice. Default 0.6.
	VoiceThreshold float64 `yaml:"voice_threshold"`

	// NoiseMarginDB is added to the tracked noise floor to form the energy
	// decision threshold. Default 10.
	NoiseMarginDB float64 `yaml:"noise_margin_db"`

	// DebounceMs is how long the detector stays voiced after the last voice
	// frame. Default 100.
	DebounceMs int `yaml:"debounce_ms"`

	// Weights of the four feature scores.
	Weights WeightsConfig `yaml:"weights"`

	// ZCRPeak, ZCRMin and ZCRMax shape the zero-crossing score band.
	ZCRPeak float64 `yaml:"zcr_peak"`
	ZCRMin  float64 `yaml:"zcr_min"`
	ZCRMax  float64 `yaml:"zcr_max"`

	// CentroidMinHz and CentroidMaxHz bound the speech-like spectral band.
	CentroidMinHz float64 `yaml:"centroid_min_hz"`
	CentroidMaxHz float64 `yaml:"centroid_max_hz"`

	// TemporalWindow is how many recent frames feed the temporal consistency
	// score. Default 10.
	TemporalWindow int `yaml:"temporal_window"`

	// HistorySize bounds the per-frame feature history. Default 50.
	HistorySize int `yaml:"history_size"`
}

// WeightsConfig mirrors vad.Weights for YAML.
type WeightsConfig struct {
	Energy   float64 `yaml:"energy"`
	ZCR      float64 `yaml:"zcr"`
	Spectral float64 `yaml:"spectral"`
	Temporal float64 `yaml:"temporal"`
}

// EndpointConfig holds the utterance endpoint tunables. Pointer booleans
// distinguish "absent" (default on) from an explicit false.
type EndpointConfig struct {
	// SilenceTimeoutMs is the trailing silence that ends an utterance.
	// Default 800.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// EnergyEnabled turns the sustained-low-energy rule on. Default true.
	EnergyEnabled *bool `yaml:"energy_enabled"`

	// EnergyThresholdDB is the energy ceiling for the energy rule.
	// Default -40.
	EnergyThresholdDB float64 `yaml:"energy_threshold_db"`

	// EnergyWindowMs is the averaging window for the energy rule. Default 500.
	EnergyWindowMs int `yaml:"energy_window_ms"`

	// MaxUtteranceMs force-ends an utterance regardless of silence.
	// Default 30000.
	MaxUtteranceMs int `yaml:"max_utterance_ms"`

	// MaxSessionMs force-ends an utterance once the session has run this
	// long. Default 300000.
	MaxSessionMs int `yaml:"max_session_ms"`

	// InactivityTimeoutMs ends an utterance when no voice arrives for this
	// long. Default 10000.
	InactivityTimeoutMs int `yaml:"inactivity_timeout_ms"`

	// AdaptiveEnabled turns the utterance-pattern heuristic on. Default true.
	AdaptiveEnabled *bool `yaml:"adaptive_enabled"`

	// AdaptiveMinHistory is how many completed utterances the heuristic
	// needs. Default 2.
	AdaptiveMinHistory int `yaml:"adaptive_min_history"`

	// HistorySize bounds the endpoint event log. Default 1000.
	HistorySize int `yaml:"history_size"`
}

// EngineConfig selects and configures the recognition backend.
type EngineConfig struct {
	// Backend names the registered engine backend: "exec", "websocket" or
	// "whisper".
	Backend string `yaml:"backend"`

	// Command is the shell-style command line for the exec backend.
	Command string `yaml:"command"`

	// URL is the server endpoint for the websocket backend.
	URL string `yaml:"url"`

	// ModelPath points at a local model file for the whisper backend.
	ModelPath string `yaml:"model_path"`

	// Language is the recognition language hint.
	Language string `yaml:"language"`
}

// SessionConfig controls the recognition session strategy.
type SessionConfig struct {
	// Mode selects buffered or streaming recognition. Default buffered.
	Mode SessionMode `yaml:"mode"`

	// ChunkBytes is the feed size for buffered finalize. Default 4096.
	ChunkBytes int `yaml:"chunk_bytes"`

	// QueueSize bounds the pending-finalize queue. When full, the newest
	// utterance is dropped rather than starting concurrent recognitions.
	// Default 4.
	QueueSize int `yaml:"queue_size"`
}

// TextConfig controls output text normalization.
type TextConfig struct {
	// Punctuation appends sentence-terminal punctuation to finals that lack
	// it. Default false.
	Punctuation bool `yaml:"punctuation"`

	// Language drives which terminal mark is used. Defaults to
	// engine.language when empty.
	Language string `yaml:"language"`
}

// SinkConfig declares one output destination. The first sink is the primary;
// later sinks are fallbacks.
type SinkConfig struct {
	// Name labels the sink in logs and metrics.
	Name string `yaml:"name"`

	// Type is "stdout", "stderr" or "file".
	Type string `yaml:"type"`

	// Path is the output file for type "file".
	Path string `yaml:"path"`

	// JSON switches the sink to JSON-lines output.
	JSON bool `yaml:"json"`
}

// enabled resolves a pointer boolean with a default of true.
func enabled(b *bool) bool {
	return b == nil || *b
}

// VADDetector converts the YAML sections into a vad.Config.
func (c *Config) VADDetector() vad.Config {
	return vad.Config{
		SampleRate: c.Audio.SampleRate,
		Weights: vad.Weights{
			Energy:   c.VAD.Weights.Energy,
			ZCR:      c.VAD.Weights.ZCR,
			Spectral: c.VAD.Weights.Spectral,
			Temporal: c.VAD.Weights.Temporal,
		},
		VoiceThreshold:   c.VAD.VoiceThreshold,
		MinVoiceDuration: time.Duration(c.VAD.DebounceMs) * time.Millisecond,
		EndpointSilence:  time.Duration(c.Endpoint.SilenceTimeoutMs) * time.Millisecond,
		ZCRPeak:          c.VAD.ZCRPeak,
		ZCRMin:           c.VAD.ZCRMin,
		ZCRMax:           c.VAD.ZCRMax,
		CentroidMinHz:    c.VAD.CentroidMinHz,
		CentroidMaxHz:    c.VAD.CentroidMaxHz,
		NoiseMarginDB:    c.VAD.NoiseMarginDB,
		TemporalWindow:   c.VAD.TemporalWindow,
		HistorySize:      c.VAD.HistorySize,
	}
}

// EndpointDetector converts the YAML section into an endpoint.Config,
// starting from the package defaults.
func (c *Config) EndpointDetector() endpoint.Config {
	out := endpoint.DefaultConfig()
	e := c.Endpoint
	if e.SilenceTimeoutMs > 0 {
		out.SilenceTimeout = time.Duration(e.SilenceTimeoutMs) * time.Millisecond
	}
	out.EnergyEnabled = enabled(e.EnergyEnabled)
	if e.EnergyThresholdDB != 0 {
		out.EnergyThresholdDB = e.EnergyThresholdDB
	}
	if e.EnergyWindowMs > 0 {
		out.EnergyWindow = time.Duration(e.EnergyWindowMs) * time.Millisecond
	}
	if e.MaxUtteranceMs > 0 {
		out.MaxUtterance = time.Duration(e.MaxUtteranceMs) * time.Millisecond
	}
	if e.MaxSessionMs > 0 {
		out.MaxSession = time.Duration(e.MaxSessionMs) * time.Millisecond
	}
	if e.InactivityTimeoutMs > 0 {
		out.InactivityTimeout = time.Duration(e.InactivityTimeoutMs) * time.Millisecond
	}
	out.AdaptiveEnabled = enabled(e.AdaptiveEnabled)
	if e.AdaptiveMinHistory > 0 {
		out.AdaptiveMinHistory = e.AdaptiveMinHistory
	}
	if e.HistorySize > 0 {
		out.HistorySize = e.HistorySize
	}
	return out
}

// EngineSettings converts the YAML sections into an engine.Config.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		Language:   c.Engine.Language,
		ModelPath:  c.Engine.ModelPath,
		Command:    c.Engine.Command,
		URL:        c.Engine.URL,
	}.WithDefaults()
}

// TextLanguage returns the normalization language, falling back to the
// engine language.
func (c *Config) TextLanguage() string {
	if c.Text.Language != "" {
		return c.Text.Language
	}
	return c.Engine.Language
}

// TextOptions converts the text section into textnorm options.
func (c *Config) TextOptions() textnorm.Options {
	return textnorm.Options{
		Language:          c.TextLanguage(),
		EnsurePunctuation: c.Text.Punctuation,
	}
}

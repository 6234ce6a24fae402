package config_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voxkit/voxkit/internal/config"
	"github.com/voxkit/voxkit/internal/engine"
	"github.com/voxkit/voxkit/internal/engine/mock"
)

func TestVADDetector_Conversion(t *testing.T) {
	yaml := `
audio:
  sample_rate: 48000
vad:
  voice_threshold: 0.75
  debounce_ms: 200
  noise_margin_db: 8
endpoint:
  silence_timeout_ms: 600
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	vc := cfg.VADDetector()
	if vc.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", vc.SampleRate)
	}
	if vc.VoiceThreshold != 0.75 {
		t.Errorf("VoiceThreshold = %v, want 0.75", vc.VoiceThreshold)
	}
	if vc.MinVoiceDuration != 200*time.Millisecond {
		t.Errorf("MinVoiceDuration = %v, want 200ms", vc.MinVoiceDuration)
	}
	if vc.EndpointSilence != 600*time.Millisecond {
		t.Errorf("EndpointSilence = %v, want 600ms", vc.EndpointSilence)
	}
	if vc.NoiseMarginDB != 8 {
		t.Errorf("NoiseMarginDB = %v, want 8", vc.NoiseMarginDB)
	}
}

func TestEndpointDetector_Defaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ec := cfg.EndpointDetector()
	if ec.SilenceTimeout != 800*time.Millisecond {
		t.Errorf("SilenceTimeout = %v, want default 800ms", ec.SilenceTimeout)
	}
	if !ec.EnergyEnabled || !ec.AdaptiveEnabled {
		t.Error("energy and adaptive rules should default to enabled")
	}
	if ec.MaxSession != 5*time.Minute {
		t.Errorf("MaxSession = %v, want default 5m", ec.MaxSession)
	}
}

func TestEndpointDetector_ExplicitDisable(t *testing.T) {
	yaml := "endpoint:\n  energy_enabled: false\n  adaptive_enabled: false\n"
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ec := cfg.EndpointDetector()
	if ec.EnergyEnabled || ec.AdaptiveEnabled {
		t.Errorf("explicit false must win: %+v", ec)
	}
}

func TestEngineSettings(t *testing.T) {
	yaml := `
engine:
  backend: websocket
  url: ws://localhost:2700
  language: ja
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	es := cfg.EngineSettings()
	if es.URL != "ws://localhost:2700" || es.Language != "ja" {
		t.Errorf("engine settings = %+v", es)
	}
	// Unset audio fields pick up the engine defaults.
	if es.SampleRate != 16000 || es.Channels != 1 {
		t.Errorf("defaults not applied: %+v", es)
	}
}

func TestTextLanguage_Fallback(t *testing.T) {
	cfg := &config.Config{}
	cfg.Engine.Language = "ja"
	if got := cfg.TextLanguage(); got != "ja" {
		t.Errorf("TextLanguage = %q, want engine fallback ja", got)
	}
	cfg.Text.Language = "en"
	if got := cfg.TextLanguage(); got != "en" {
		t.Errorf("TextLanguage = %q, want explicit en", got)
	}
}

func TestRegistry(t *testing.T) {
	r := config.NewRegistry()
	r.Register("mock", func(config.EngineConfig) (engine.Provider, error) {
		return &mock.Provider{}, nil
	})

	p, err := r.Create(config.EngineConfig{Backend: "mock"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := p.NewEngine(context.Background(), engine.Config{}); err != nil {
		t.Errorf("created provider unusable: %v", err)
	}

	if _, err := r.Create(config.EngineConfig{Backend: "missing"}); err == nil {
		t.Error("unknown backend should error")
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "mock" {
		t.Errorf("Names = %v, want [mock]", names)
	}
}

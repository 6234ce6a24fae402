// Package vad implements frame-level voice activity detection: an adaptive
// noise-floor tracker and a weighted multi-feature classifier with a debounced
// Silent⇄Voiced state machine.
//
// The detector consumes audio frames in capture order and produces one
// Decision per frame. State transitions surface through Hooks; the raw
// per-frame classification is returned to the caller. All timing is derived
// from frame capture timestamps so behaviour is independent of processing
// speed.
package vad

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxkit/voxkit/internal/dsp"
	"github.com/voxkit/voxkit/pkg/audio"
)

// energyScoreRangeDB is the dB span over which excess energy above the
// threshold maps linearly onto the [0,1] energy score.
const energyScoreRangeDB = 10.0

// Weights control the contribution of each feature score to the combined
// confidence. They need not sum to 1; the combination normalises by their sum.
type Weights struct {
	Energy   float64
	ZCR      float64
	Spectral float64
	Temporal float64
}

// sum returns the total weight mass.
func (w Weights) sum() float64 {
	return w.Energy + w.ZCR + w.Spectral + w.Temporal
}

// DefaultWeights returns the stock feature weighting. Spectral shape carries
// the most mass: in-band harmonic content is the strongest single indicator
// of speech against both silence and broadband noise.
func DefaultWeights() Weights {
	return Weights{Energy: 0.5, ZCR: 1.0, Spectral: 2.0, Temporal: 0.5}
}

// Config holds the VAD tunables. The zero value of any field is replaced by
// its documented default; call Validate before use.
type Config struct {
	// SampleRate of the incoming mono PCM frames in Hz. Default 16000.
	SampleRate int

	// Weights for the four feature scores. Zero value uses DefaultWeights.
	Weights Weights

	// VoiceThreshold is the confidence at or above which a frame counts as
	// voice. Default 0.6.
	VoiceThreshold float64

	// MinVoiceDuration is the debounce window: once voiced, the detector only
	// returns to silent after this much time without a voice frame.
	// Default 100ms.
	MinVoiceDuration time.Duration

	// EndpointSilence is the continuous-silence duration after the last voice
	// frame at which the silence endpoint hook fires. Default 800ms.
	EndpointSilence time.Duration

	// ZCRPeak is the zero-crossing rate at which the ZCR score peaks.
	// Default 0.1.
	ZCRPeak float64

	// ZCRMin and ZCRMax bound the valid ZCR band; rates outside score 0.
	// Defaults 0.0 and 0.5.
	ZCRMin, ZCRMax float64

	// CentroidMinHz and CentroidMaxHz bound the spectral band considered
	// speech-like. Defaults 200 and 4000.
	CentroidMinHz, CentroidMaxHz float64

	// NoiseMarginDB is the margin added to the noise floor to form the
	// decision threshold. Default 10.
	NoiseMarginDB float64

	// TemporalWindow is how many recent frames feed the temporal consistency
	// score. Default 10.
	TemporalWindow int

	// HistorySize bounds the per-frame feature history ring. Default 50.
	HistorySize int
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.VoiceThreshold == 0 {
		c.VoiceThreshold = 0.6
	}
	if c.MinVoiceDuration == 0 {
		c.MinVoiceDuration = 100 * time.Millisecond
	}
	if c.EndpointSilence == 0 {
		c.EndpointSilence = 800 * time.Millisecond
	}
	if c.ZCRPeak == 0 {
		c.ZCRPeak = 0.1
	}
	if c.ZCRMax == 0 {
		c.ZCRMax = 0.5
	}
	if c.CentroidMinHz == 0 {
		c.CentroidMinHz = 200
	}
	if c.CentroidMaxHz == 0 {
		c.CentroidMaxHz = 4000
	}
	if c.NoiseMarginDB == 0 {
		c.NoiseMarginDB = 10
	}
	if c.TemporalWindow == 0 {
		c.TemporalWindow = 10
	}
	if c.HistorySize == 0 {
		c.HistorySize = 50
	}
	return c
}

// Validate reports configuration errors after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.SampleRate < 0 {
		return fmt.Errorf("vad: sample rate %d is negative", c.SampleRate)
	}
	if c.VoiceThreshold < 0 || c.VoiceThreshold > 1 {
		return fmt.Errorf("vad: voice threshold %.2f out of range [0,1]", c.VoiceThreshold)
	}
	if c.Weights.sum() <= 0 {
		return fmt.Errorf("vad: feature weights sum to %.2f, need > 0", c.Weights.sum())
	}
	if c.ZCRMin >= c.ZCRMax || c.ZCRPeak <= c.ZCRMin || c.ZCRPeak >= c.ZCRMax {
		return fmt.Errorf("vad: zcr band [%.2f, %.2f] with peak %.2f is not ordered", c.ZCRMin, c.ZCRMax, c.ZCRPeak)
	}
	if c.CentroidMinHz >= c.CentroidMaxHz {
		return fmt.Errorf("vad: centroid band [%.0f, %.0f] Hz is not ordered", c.CentroidMinHz, c.CentroidMaxHz)
	}
	return nil
}

// Decision is the per-frame classification result.
type Decision struct {
	IsVoice    bool
	Confidence float64

	EnergyScore   float64
	ZCRScore      float64
	SpectralScore float64
	TemporalScore float64

	// Features are the raw signal measurements behind the scores.
	Features dsp.Features

	// NoiseFloor and Threshold are the tracker values in effect when the
	// frame was scored.
	NoiseFloor float64
	Threshold  float64

	// Timestamp is the capture time of the classified frame.
	Timestamp time.Duration
}

// Hooks are the detector's edge-triggered notifications. All hooks are
// invoked synchronously from ProcessFrame while internal state is held; they
// must be fast and must not call back into the Detector. Nil hooks are
// skipped.
type Hooks struct {
	// OnVoiceStart fires on the Silent→Voiced transition.
	OnVoiceStart func(confidence float64, at time.Duration)

	// OnVoiceStop fires on the Voiced→Silent transition, after the debounce
	// window has elapsed without voice.
	OnVoiceStop func(at time.Duration)

	// OnSilence fires immediately after OnVoiceStop with the duration of the
	// voiced span that just ended.
	OnSilence func(voiceDuration time.Duration)

	// OnSilenceEndpoint fires once per silence span when continuous silence
	// since the last voice frame reaches Config.EndpointSilence. It is a
	// duration-only signal and is independent of the state transition above.
	OnSilenceEndpoint func(silence time.Duration)
}

type historyEntry struct {
	energyDB       float64
	aboveThreshold bool
}

// Detector is the VAD state machine. Safe for concurrent use; a single mutex
// guards all mutable state.
type Detector struct {
	cfg   Config
	hooks Hooks
	log   *slog.Logger

	mu        sync.Mutex
	extractor *dsp.Extractor
	tracker   *ThresholdTracker

	voiceActive   bool
	voiceStartTS  time.Duration
	lastVoiceTS   time.Duration
	lastSilenceTS time.Duration
	endpointFired bool
	sawVoice      bool

	history   []historyEntry
	histNext  int
	histCount int
}

// New creates a Detector. cfg is validated after defaults are applied; a nil
// logger falls back to slog.Default().
func New(cfg Config, hooks Hooks, logger *slog.Logger) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:       cfg,
		hooks:     hooks,
		log:       logger,
		extractor: dsp.NewExtractor(),
		tracker:   NewThresholdTracker(cfg.NoiseMarginDB),
		history:   make([]historyEntry, cfg.HistorySize),
	}, nil
}

// ProcessFrame classifies one audio frame. Any internal failure degrades to a
// silence decision with zero confidence; detection never stops the pipeline.
func (d *Detector) ProcessFrame(frame audio.Frame) (dec Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("vad: frame processing panic, treating frame as silence",
				"panic", r, "timestamp", frame.Timestamp)
			dec = Decision{Timestamp: frame.Timestamp}
		}
	}()

	return d.process(frame)
}

// process holds the real frame logic. Must be called with d.mu held.
func (d *Detector) process(frame audio.Frame) Decision {
	samples := frame.Samples()
	feats := d.extractor.Compute(samples, d.cfg.SampleRate)

	floor := d.tracker.NoiseFloor()
	threshold := d.tracker.Threshold()

	dec := Decision{
		Features:   feats,
		NoiseFloor: floor,
		Threshold:  threshold,
		Timestamp:  frame.Timestamp,
	}

	dec.EnergyScore = energyScore(feats.EnergyDB, threshold)
	dec.ZCRScore = d.zcrScore(feats.ZCR)
	dec.SpectralScore = d.spectralScore(feats.SpectralCentroid)
	dec.TemporalScore = d.temporalScore()

	w := d.cfg.Weights
	dec.Confidence = (w.Energy*dec.EnergyScore +
		w.ZCR*dec.ZCRScore +
		w.Spectral*dec.SpectralScore +
		w.Temporal*dec.TemporalScore) / w.sum()
	dec.IsVoice = dec.Confidence >= d.cfg.VoiceThreshold

	d.recordHistory(feats.EnergyDB, feats.EnergyDB > threshold)
	d.transition(dec)
	d.tracker.Observe(feats.EnergyDB, d.voiceActive)
	return dec
}

// transition applies the edge-triggered state machine. Must be called with
// d.mu held.
func (d *Detector) transition(dec Decision) {
	now := dec.Timestamp

	if dec.IsVoice {
		if !d.voiceActive {
			d.voiceActive = true
			d.voiceStartTS = now
			d.endpointFired = false
			if d.hooks.OnVoiceStart != nil {
				d.hooks.OnVoiceStart(dec.Confidence, now)
			}
		}
		d.lastVoiceTS = now
		d.sawVoice = true
		d.endpointFired = false
		return
	}

	d.lastSilenceTS = now

	if d.voiceActive && now-d.lastVoiceTS >= d.cfg.MinVoiceDuration {
		d.voiceActive = false
		if d.hooks.OnVoiceStop != nil {
			d.hooks.OnVoiceStop(now)
		}
		if d.hooks.OnSilence != nil {
			d.hooks.OnSilence(d.lastVoiceTS - d.voiceStartTS)
		}
	}

	if d.sawVoice && !d.endpointFired {
		if silence := now - d.lastVoiceTS; silence >= d.cfg.EndpointSilence {
			d.endpointFired = true
			if d.hooks.OnSilenceEndpoint != nil {
				d.hooks.OnSilenceEndpoint(silence)
			}
		}
	}
}

// VoiceActive reports whether the detector currently considers voice present.
func (d *Detector) VoiceActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voiceActive
}

// LastVoiceAt returns the capture timestamp of the most recent voice frame.
func (d *Detector) LastVoiceAt() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastVoiceTS
}

// NoiseFloor returns the current noise-floor estimate in dB.
func (d *Detector) NoiseFloor() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker.NoiseFloor()
}

// Threshold returns the current adaptive decision threshold in dB.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker.Threshold()
}

// Reset returns the detector to its initial state: silent, empty history,
// untrained noise floor. Used between independent recording sessions.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voiceActive = false
	d.voiceStartTS = 0
	d.lastVoiceTS = 0
	d.lastSilenceTS = 0
	d.endpointFired = false
	d.sawVoice = false
	d.histNext = 0
	d.histCount = 0
	d.tracker.Reset()
	d.extractor = dsp.NewExtractor()
}

// energyScore maps excess energy above the threshold linearly onto [0,1].
func energyScore(energyDB, thresholdDB float64) float64 {
	excess := energyDB - thresholdDB
	if excess <= 0 {
		return 0
	}
	if excess >= energyScoreRangeDB {
		return 1
	}
	return excess / energyScoreRangeDB
}

// zcrScore applies triangular scoring over the valid ZCR band, peaking at
// cfg.ZCRPeak.
func (d *Detector) zcrScore(zcr float64) float64 {
	c := d.cfg
	if zcr <= c.ZCRMin || zcr >= c.ZCRMax {
		return 0
	}
	if zcr <= c.ZCRPeak {
		return (zcr - c.ZCRMin) / (c.ZCRPeak - c.ZCRMin)
	}
	return (c.ZCRMax - zcr) / (c.ZCRMax - c.ZCRPeak)
}

// spectralScore is binary: 1 when the centroid falls in the speech band.
func (d *Detector) spectralScore(centroidHz float64) float64 {
	if centroidHz >= d.cfg.CentroidMinHz && centroidHz <= d.cfg.CentroidMaxHz {
		return 1
	}
	return 0
}

// temporalScore returns the fraction of the most recent TemporalWindow
// history entries whose energy exceeded the threshold in effect at the time.
func (d *Detector) temporalScore() float64 {
	n := d.cfg.TemporalWindow
	if n > d.histCount {
		n = d.histCount
	}
	if n == 0 {
		return 0
	}
	above := 0
	for i := 1; i <= n; i++ {
		idx := (d.histNext - i + len(d.history)) % len(d.history)
		if d.history[idx].aboveThreshold {
			above++
		}
	}
	return float64(above) / float64(n)
}

// recordHistory appends one entry to the bounded ring. Must be called with
// d.mu held.
func (d *Detector) recordHistory(energyDB float64, above bool) {
	d.history[d.histNext] = historyEntry{energyDB: energyDB, aboveThreshold: above}
	d.histNext = (d.histNext + 1) % len(d.history)
	if d.histCount < len(d.history) {
		d.histCount++
	}
}

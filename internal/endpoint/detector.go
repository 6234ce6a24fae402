// Package endpoint decides utterance boundaries on top of frame-level voice
// activity decisions.
//
// The detector is a two-state policy machine (Idle ⇄ InUtterance). While an
// utterance is open, every processed frame is checked against five endpoint
// rules: trailing silence, sustained low energy, utterance timeout, session
// timeout, and an adaptive heuristic over recent utterance statistics. The
// rule with the highest confidence wins; exact ties keep the earliest rule in
// check order. A background timer re-checks the timeout rules so endpoints
// still fire when audio capture stalls.
//
// Frame-path timing uses capture timestamps; only the background timer
// consults the wall clock.
package endpoint

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Type identifies what caused an endpoint.
type Type int

const (
	// TypeSilence is a trailing-silence endpoint (includes the adaptive
	// pattern heuristic, which is a silence-pattern rule).
	TypeSilence Type = iota

	// TypeEnergy is a sustained-low-energy endpoint.
	TypeEnergy

	// TypeTimeout is an utterance, session, or inactivity timeout.
	TypeTimeout

	// TypeManual is a caller-forced endpoint (push-to-talk release).
	TypeManual
)

// String returns the endpoint type name.
func (t Type) String() string {
	switch t {
	case TypeSilence:
		return "silence"
	case TypeEnergy:
		return "energy"
	case TypeTimeout:
		return "timeout"
	case TypeManual:
		return "manual"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Config holds the endpoint policy tunables.
type Config struct {
	// SilenceTimeout is the trailing silence that ends an utterance.
	SilenceTimeout time.Duration

	// EnergyEnabled turns the sustained-low-energy rule on.
	EnergyEnabled bool

	// EnergyThresholdDB is the energy ceiling for the energy rule.
	EnergyThresholdDB float64

	// EnergyWindow is the averaging window for the energy rule.
	EnergyWindow time.Duration

	// MaxUtterance force-ends an utterance regardless of silence.
	MaxUtterance time.Duration

	// MaxSession force-ends an utterance once the session has run this long.
	MaxSession time.Duration

	// InactivityTimeout ends an utterance when no voice has been seen for
	// this long, checked from the background timer.
	InactivityTimeout time.Duration

	// AdaptiveEnabled turns the pattern heuristic on. It needs at least
	// AdaptiveMinHistory completed utterances before it can fire.
	AdaptiveEnabled    bool
	AdaptiveMinHistory int

	// HistorySize bounds the event history log.
	HistorySize int

	// TickInterval is the background timer period.
	TickInterval time.Duration
}

// DefaultConfig returns the stock endpoint policy.
func DefaultConfig() Config {
	return Config{
		SilenceTimeout:     800 * time.Millisecond,
		EnergyEnabled:      true,
		EnergyThresholdDB:  -40,
		EnergyWindow:       500 * time.Millisecond,
		MaxUtterance:       30 * time.Second,
		MaxSession:         5 * time.Minute,
		InactivityTimeout:  10 * time.Second,
		AdaptiveEnabled:    true,
		AdaptiveMinHistory: 2,
		HistorySize:        1000,
		TickInterval:       time.Second,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("endpoint: silence timeout %v must be positive", c.SilenceTimeout)
	}
	if c.MaxUtterance <= 0 || c.MaxSession <= 0 {
		return fmt.Errorf("endpoint: utterance timeout %v and session timeout %v must be positive", c.MaxUtterance, c.MaxSession)
	}
	if c.MaxUtterance > c.MaxSession {
		return fmt.Errorf("endpoint: utterance timeout %v exceeds session timeout %v", c.MaxUtterance, c.MaxSession)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("endpoint: tick interval %v must be positive", c.TickInterval)
	}
	return nil
}

// Result describes a fired endpoint.
type Result struct {
	Type       Type
	Confidence float64

	// UtteranceDuration is the span from utterance start to the endpoint.
	UtteranceDuration time.Duration

	// SilenceDuration is the trailing silence at the endpoint.
	SilenceDuration time.Duration

	// IsSessionTimeout marks an endpoint caused by the session ceiling.
	IsSessionTimeout bool
}

// Hooks are the detector's notifications, invoked synchronously while
// detector state is held. They must not call back into the Detector.
type Hooks struct {
	// OnUtteranceStart fires on Idle→InUtterance.
	OnUtteranceStart func(at time.Duration)

	// OnUtteranceEnd fires on InUtterance→Idle with the winning rule's result.
	OnUtteranceEnd func(Result)

	// OnEndpoint fires after OnUtteranceEnd for every endpoint.
	OnEndpoint func(Result)

	// OnSessionTimeout fires after OnEndpoint when the endpoint was caused by
	// the session ceiling.
	OnSessionTimeout func()
}

type energySample struct {
	at       time.Duration
	energyDB float64
}

// Detector is the endpoint policy machine. Safe for concurrent use: one
// mutex serialises the frame path, the background timer, and manual triggers.
type Detector struct {
	cfg   Config
	hooks Hooks
	log   *slog.Logger

	mu             sync.Mutex
	inUtterance    bool
	utteranceStart time.Duration
	utteranceCount int
	sessionStart   time.Duration
	sessionOpen    bool
	lastVoiceTS    time.Duration
	lastFrameTS    time.Duration
	lastFrameWall  time.Time
	history        *History
	energyWin      []energySample
	lowEnergy      bool
	lowEnergySince time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	done      chan struct{}

	// now is overridable for timer tests.
	now func() time.Time
}

// New creates a Detector with the given policy. The background timer does not
// run until Start is called.
func New(cfg Config, hooks Hooks, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:     cfg,
		hooks:   hooks,
		log:     logger,
		history: NewHistory(cfg.HistorySize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}, nil
}

// Start launches the background timer that re-checks the session and
// inactivity timeouts. Call Stop to halt it. Safe to call more than once.
func (d *Detector) Start() {
	d.startOnce.Do(func() {
		d.started = true
		go d.timerLoop()
	})
}

// Stop halts the background timer and waits for it to exit. Safe to call
// more than once, or without a prior Start.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	if d.started {
		<-d.done
	}
}

func (d *Detector) timerLoop() {
	defer close(d.done)
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.checkTimeouts()
		}
	}
}

// checkTimeouts runs the timer-driven timeout rules against estimated stream
// time. Capture may have stalled, so current stream time is approximated as
// the last frame timestamp plus wall time elapsed since that frame.
func (d *Detector) checkTimeouts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inUtterance {
		return
	}

	est := d.lastFrameTS + d.now().Sub(d.lastFrameWall)

	if est-d.sessionStart >= d.cfg.MaxSession {
		d.endUtterance(Result{
			Type:              TypeTimeout,
			Confidence:        1,
			UtteranceDuration: est - d.utteranceStart,
			SilenceDuration:   est - d.lastVoiceTS,
			IsSessionTimeout:  true,
		}, est)
		return
	}

	if est-d.lastVoiceTS >= d.cfg.InactivityTimeout {
		d.endUtterance(Result{
			Type:              TypeTimeout,
			Confidence:        1,
			UtteranceDuration: est - d.utteranceStart,
			SilenceDuration:   est - d.lastVoiceTS,
		}, est)
	}
}

// VoiceStarted opens an utterance. Wire it to the VAD's voice-start hook.
func (d *Detector) VoiceStarted(confidence float64, at time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sessionOpen {
		d.sessionOpen = true
		d.sessionStart = at
	}
	if d.inUtterance {
		return
	}
	d.inUtterance = true
	d.utteranceStart = at
	d.lastVoiceTS = at
	d.utteranceCount++
	d.history.Add(Event{Timestamp: at, Kind: EventUtteranceStarted})

	d.log.Debug("utterance started",
		"at", at, "count", d.utteranceCount, "vad_confidence", confidence)
	if d.hooks.OnUtteranceStart != nil {
		d.hooks.OnUtteranceStart(at)
	}
}

// ProcessFrame feeds one classified frame into the policy. While an utterance
// is open the five endpoint rules are evaluated and the best one fires.
func (d *Detector) ProcessFrame(energyDB float64, isVoice bool, at time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sessionOpen {
		d.sessionOpen = true
		d.sessionStart = at
	}
	d.lastFrameTS = at
	d.lastFrameWall = d.now()
	d.history.Add(Event{Timestamp: at, Kind: EventAudioProcessed})
	d.pushEnergy(energyDB, at)
	if isVoice {
		d.lastVoiceTS = at
	}

	if !d.inUtterance {
		return
	}

	if res, ok := d.evaluate(at); ok {
		d.endUtterance(res, at)
	}
}

// TriggerManual force-fires an endpoint, used for push-to-talk release.
// No-op when no utterance is open.
func (d *Detector) TriggerManual() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inUtterance {
		return
	}
	at := d.lastFrameTS
	d.endUtterance(Result{
		Type:              TypeManual,
		Confidence:        1,
		UtteranceDuration: at - d.utteranceStart,
		SilenceDuration:   at - d.lastVoiceTS,
	}, at)
}

// Reset clears all counters, timers, and history, returning the detector to
// Idle with a fresh session. The background timer keeps running.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inUtterance = false
	d.utteranceStart = 0
	d.utteranceCount = 0
	d.sessionStart = 0
	d.sessionOpen = false
	d.lastVoiceTS = 0
	d.lastFrameTS = 0
	d.lastFrameWall = time.Time{}
	d.history.Reset()
	d.energyWin = d.energyWin[:0]
	d.lowEnergy = false
	d.lowEnergySince = 0
}

// InUtterance reports whether an utterance is currently open.
func (d *Detector) InUtterance() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUtterance
}

// UtteranceCount returns how many utterances have started this session.
func (d *Detector) UtteranceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.utteranceCount
}

// HistoryLen returns the current event history length.
func (d *Detector) HistoryLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.Len()
}

// evaluate runs the five endpoint rules in check order and returns the
// highest-confidence result. Later rules replace earlier ones only on
// strictly greater confidence, so exact ties keep the earliest rule.
// Must be called with d.mu held.
func (d *Detector) evaluate(at time.Duration) (Result, bool) {
	var best Result
	found := false
	consider := func(r Result, ok bool) {
		if !ok {
			return
		}
		if !found || r.Confidence > best.Confidence {
			best = r
			found = true
		}
	}

	consider(d.silenceRule(at))
	consider(d.energyRule(at))
	consider(d.utteranceTimeoutRule(at))
	consider(d.sessionTimeoutRule(at))
	consider(d.adaptiveRule(at))
	return best, found
}

// silenceRule fires once trailing silence reaches the timeout, with
// confidence growing from 0.5 toward 1.0 as the silence stretches past it.
func (d *Detector) silenceRule(at time.Duration) (Result, bool) {
	silence := at - d.lastVoiceTS
	if silence < d.cfg.SilenceTimeout {
		return Result{}, false
	}
	overshoot := float64(silence-d.cfg.SilenceTimeout) / float64(d.cfg.SilenceTimeout)
	if overshoot > 1 {
		overshoot = 1
	}
	return Result{
		Type:              TypeSilence,
		Confidence:        0.5 + 0.5*overshoot,
		UtteranceDuration: at - d.utteranceStart,
		SilenceDuration:   silence,
	}, true
}

// energyRule is the backstop for utterances the VAD refuses to let go of:
// when the current frame and the recent window average have stayed below the
// energy ceiling for a full silence-timeout span, the utterance ends even if
// frame classification still reports voice. Confidence scales with how far
// below the ceiling the window average sits.
func (d *Detector) energyRule(at time.Duration) (Result, bool) {
	if !d.cfg.EnergyEnabled || !d.lowEnergy || len(d.energyWin) == 0 {
		return Result{}, false
	}
	if at-d.lowEnergySince < d.cfg.SilenceTimeout {
		return Result{}, false
	}
	var sum float64
	for _, s := range d.energyWin {
		sum += s.energyDB
	}
	avg := sum / float64(len(d.energyWin))
	if avg >= d.cfg.EnergyThresholdDB {
		return Result{}, false
	}
	conf := 0.5 + (d.cfg.EnergyThresholdDB-avg)/40
	if conf > 1 {
		conf = 1
	}
	return Result{
		Type:              TypeEnergy,
		Confidence:        conf,
		UtteranceDuration: at - d.utteranceStart,
		SilenceDuration:   at - d.lastVoiceTS,
	}, true
}

// utteranceTimeoutRule force-ends over-long utterances.
func (d *Detector) utteranceTimeoutRule(at time.Duration) (Result, bool) {
	dur := at - d.utteranceStart
	if dur < d.cfg.MaxUtterance {
		return Result{}, false
	}
	return Result{
		Type:              TypeTimeout,
		Confidence:        1,
		UtteranceDuration: dur,
		SilenceDuration:   at - d.lastVoiceTS,
	}, true
}

// sessionTimeoutRule force-ends the utterance when the whole session has
// exceeded its ceiling.
func (d *Detector) sessionTimeoutRule(at time.Duration) (Result, bool) {
	if at-d.sessionStart < d.cfg.MaxSession {
		return Result{}, false
	}
	return Result{
		Type:              TypeTimeout,
		Confidence:        1,
		UtteranceDuration: at - d.utteranceStart,
		SilenceDuration:   at - d.lastVoiceTS,
		IsSessionTimeout:  true,
	}, true
}

// adaptiveRule compares the open utterance against historical averages: an
// utterance much longer than usual with above-average trailing silence is
// probably finished even before the fixed silence timeout.
func (d *Detector) adaptiveRule(at time.Duration) (Result, bool) {
	if !d.cfg.AdaptiveEnabled {
		return Result{}, false
	}
	avgDur, avgSil, completed := d.history.Stats()
	if completed < d.cfg.AdaptiveMinHistory || avgDur <= 0 {
		return Result{}, false
	}
	dur := at - d.utteranceStart
	silence := at - d.lastVoiceTS
	if float64(dur) <= 1.5*float64(avgDur) {
		return Result{}, false
	}
	if avgSil > 0 && float64(silence) <= 0.5*float64(avgSil) {
		return Result{}, false
	}
	if avgSil <= 0 && silence <= 0 {
		return Result{}, false
	}
	return Result{
		Type:              TypeSilence,
		Confidence:        0.7,
		UtteranceDuration: dur,
		SilenceDuration:   silence,
	}, true
}

// endUtterance closes the open utterance and fires the end hooks.
// Must be called with d.mu held.
func (d *Detector) endUtterance(res Result, at time.Duration) {
	d.inUtterance = false
	d.history.Add(Event{
		Timestamp:         at,
		Kind:              EventUtteranceEnded,
		UtteranceDuration: res.UtteranceDuration,
		TrailingSilence:   res.SilenceDuration,
	})

	d.log.Debug("utterance ended",
		"type", res.Type.String(),
		"confidence", res.Confidence,
		"duration", res.UtteranceDuration,
		"silence", res.SilenceDuration,
	)

	if d.hooks.OnUtteranceEnd != nil {
		d.hooks.OnUtteranceEnd(res)
	}
	if d.hooks.OnEndpoint != nil {
		d.hooks.OnEndpoint(res)
	}
	if res.IsSessionTimeout && d.hooks.OnSessionTimeout != nil {
		d.hooks.OnSessionTimeout()
	}
}

// pushEnergy appends one energy sample, tracks how long energy has stayed
// continuously below the endpoint ceiling, and drops samples older than the
// averaging window. Must be called with d.mu held.
func (d *Detector) pushEnergy(energyDB float64, at time.Duration) {
	if energyDB < d.cfg.EnergyThresholdDB {
		if !d.lowEnergy {
			d.lowEnergy = true
			d.lowEnergySince = at
		}
	} else {
		d.lowEnergy = false
	}

	d.energyWin = append(d.energyWin, energySample{at: at, energyDB: energyDB})
	cutoff := at - d.cfg.EnergyWindow
	start := 0
	for start < len(d.energyWin) && d.energyWin[start].at < cutoff {
		start++
	}
	if start > 0 {
		d.energyWin = append(d.energyWin[:0], d.energyWin[start:]...)
	}
}

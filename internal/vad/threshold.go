package vad

import "math"

// DefaultAssumedFloorDB is the ambient level assumed before the tracker has
// observed any audio. The first real measurement replaces it.
const DefaultAssumedFloorDB = -60.0

// thresholdHistorySize bounds the energy history used for margin widening.
const thresholdHistorySize = 50

// marginWidenMinSamples is how many above-floor observations must exist
// before the margin widening rule applies.
const marginWidenMinSamples = 10

// ThresholdTracker maintains an exponentially smoothed noise-floor estimate
// and derives the voice/silence decision threshold from it.
//
// The floor adapts slowly while voice is active so speech does not get
// absorbed into the noise estimate, and faster during silence so the tracker
// follows changing ambient conditions. Not safe for concurrent use; the
// owning detector serialises access.
type ThresholdTracker struct {
	marginDB float64

	floor       float64
	initialized bool

	// aboveFloor is a ring of recent energies that exceeded the floor when
	// observed, used to widen the margin in consistently loud environments.
	aboveFloor []float64
	next       int
	count      int
}

const (
	alphaVoiced = 0.001
	alphaSilent = 0.01
)

// NewThresholdTracker creates a tracker with the given margin in dB above the
// noise floor. A non-positive margin falls back to 10 dB.
func NewThresholdTracker(marginDB float64) *ThresholdTracker {
	if marginDB <= 0 {
		marginDB = 10
	}
	return &ThresholdTracker{
		marginDB:   marginDB,
		aboveFloor: make([]float64, thresholdHistorySize),
	}
}

// Observe folds one energy measurement into the noise-floor estimate.
// voiceActive selects the adaptation rate: slow while speech is present,
// faster during silence.
func (t *ThresholdTracker) Observe(energyDB float64, voiceActive bool) {
	if !t.initialized {
		t.floor = energyDB
		t.initialized = true
		return
	}

	alpha := alphaSilent
	if voiceActive {
		alpha = alphaVoiced
	}
	t.floor = alpha*energyDB + (1-alpha)*t.floor

	if energyDB > t.floor {
		t.aboveFloor[t.next] = energyDB
		t.next = (t.next + 1) % len(t.aboveFloor)
		if t.count < len(t.aboveFloor) {
			t.count++
		}
	}
}

// NoiseFloor returns the current floor estimate in dB. Before any observation
// it returns DefaultAssumedFloorDB.
func (t *ThresholdTracker) NoiseFloor() float64 {
	if !t.initialized {
		return DefaultAssumedFloorDB
	}
	return t.floor
}

// Threshold returns the adaptive decision threshold: noise floor plus margin.
// Once enough above-floor history exists the margin widens to track loud
// environments, preventing false triggers when the ambient level sits well
// above the floor.
func (t *ThresholdTracker) Threshold() float64 {
	margin := t.marginDB
	if t.count > marginWidenMinSamples {
		var sum float64
		for i := 0; i < t.count; i++ {
			sum += t.aboveFloor[i]
		}
		avg := sum / float64(t.count)
		margin = math.Max(margin, 0.3*(avg-t.NoiseFloor()))
	}
	return t.NoiseFloor() + margin
}

// Reset clears all accumulated state, returning the tracker to its
// pre-observation condition.
func (t *ThresholdTracker) Reset() {
	t.floor = 0
	t.initialized = false
	t.next = 0
	t.count = 0
}

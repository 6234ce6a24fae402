package endpoint

import "time"

// EventKind classifies entries in the detector's event history.
type EventKind int

const (
	// EventAudioProcessed records one processed audio frame.
	EventAudioProcessed EventKind = iota

	// EventUtteranceStarted records an Idle→InUtterance transition.
	EventUtteranceStarted

	// EventUtteranceEnded records a completed utterance with its duration and
	// trailing silence.
	EventUtteranceEnded
)

// Event is one entry in the bounded history log.
type Event struct {
	// Timestamp is the stream time at which the event occurred.
	Timestamp time.Duration

	// Kind classifies the event.
	Kind EventKind

	// UtteranceDuration is set for EventUtteranceEnded entries.
	UtteranceDuration time.Duration

	// TrailingSilence is the silence span that closed the utterance, set for
	// EventUtteranceEnded entries.
	TrailingSilence time.Duration
}

// History is an append-only bounded event log. Oldest entries are evicted
// once capacity is exceeded. It exists solely to feed the adaptive endpoint
// heuristic with recent utterance statistics.
//
// History is not safe for concurrent use; the owning detector serialises
// access under its own mutex.
type History struct {
	entries []Event
	maxSize int
}

// NewHistory creates a history retaining at most maxSize entries.
// Non-positive sizes fall back to 1000.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &History{
		entries: make([]Event, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an event, evicting the oldest entries beyond capacity.
func (h *History) Add(e Event) {
	h.entries = append(h.entries, e)
	if len(h.entries) > h.maxSize {
		keep := h.entries[len(h.entries)-h.maxSize:]
		// Copy to a fresh slice so evicted entries can be collected instead
		// of pinning the old backing array.
		fresh := make([]Event, len(keep), h.maxSize)
		copy(fresh, keep)
		h.entries = fresh
	}
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Stats returns the average utterance duration and average trailing silence
// across retained completed utterances, and how many there are.
func (h *History) Stats() (avgUtterance, avgSilence time.Duration, completed int) {
	var durSum, silSum time.Duration
	for _, e := range h.entries {
		if e.Kind != EventUtteranceEnded {
			continue
		}
		durSum += e.UtteranceDuration
		silSum += e.TrailingSilence
		completed++
	}
	if completed == 0 {
		return 0, 0, 0
	}
	return durSum / time.Duration(completed), silSum / time.Duration(completed), completed
}

// Reset drops all entries.
func (h *History) Reset() {
	h.entries = h.entries[:0]
}

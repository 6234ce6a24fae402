// Package dsp computes the per-frame signal features that feed voice activity
// detection: energy in dB, zero-crossing rate, and spectral shape via a cached
// radix-2 FFT.
//
// The package is stateless apart from two pure performance caches: the
// process-wide twiddle-factor/window tables and the per-Extractor short-lived
// spectrum cache. A correct caller may always recompute; caching only affects
// latency, never results.
package dsp

import (
	"hash/fnv"
	"math"
	"time"
)

// EnergyFloorDB is the energy reported for empty or all-zero input. Keeping a
// finite floor avoids -Inf propagating into the adaptive threshold tracker.
const EnergyFloorDB = -100.0

// spectrumReuseWindow bounds how long a cached spectrum may be served for a
// window whose strided hash matches the previous input.
const spectrumReuseWindow = 50 * time.Millisecond

// Features holds the signal measurements for one audio frame.
type Features struct {
	// EnergyDB is the RMS energy in decibels relative to int16 full scale.
	EnergyDB float64

	// ZCR is the zero-crossing rate: fraction of adjacent sample pairs that
	// change sign. Range [0, 1].
	ZCR float64

	// SpectralCentroid is the magnitude-weighted mean frequency in Hz.
	SpectralCentroid float64

	// SpectralRolloff is the frequency in Hz below which 85% of the spectral
	// energy lies.
	SpectralRolloff float64
}

// Extractor computes Features from raw samples. It carries only the spectrum
// reuse cache; create one per stream. Not safe for concurrent use.
type Extractor struct {
	lastHash     uint64
	lastSpectrum []float64
	lastAt       time.Time

	// now is overridable for tests.
	now func() time.Time
}

// NewExtractor returns a ready Extractor.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Compute returns the features of the given sample window. Short or empty
// input degrades to safe defaults (energy floor, zero rates) rather than
// returning an error; detection must never stall the capture path.
func (e *Extractor) Compute(samples []int16, sampleRate int) Features {
	f := Features{
		EnergyDB: EnergyDB(samples),
		ZCR:      ZeroCrossingRate(samples),
	}

	mags := e.spectrum(samples)
	if len(mags) == 0 {
		return f
	}
	f.SpectralCentroid = SpectralCentroid(mags, sampleRate)
	f.SpectralRolloff = SpectralRolloff(mags, sampleRate)
	return f
}

// spectrum returns the magnitude spectrum for samples, serving the cached
// result when the same window recurs within spectrumReuseWindow.
func (e *Extractor) spectrum(samples []int16) []float64 {
	h := stridedHash(samples)
	now := e.now()
	if e.lastSpectrum != nil && h == e.lastHash && now.Sub(e.lastAt) <= spectrumReuseWindow {
		return e.lastSpectrum
	}
	mags := magnitudeSpectrum(samples)
	e.lastHash = h
	e.lastSpectrum = mags
	e.lastAt = now
	return mags
}

// stridedHash hashes at most 16 sample points spread evenly across the window
// plus the length. Coarse by design: it only needs to distinguish "same frame
// again" from new audio.
func stridedHash(samples []int16) uint64 {
	h := fnv.New64a()
	var b [2]byte
	b[0] = byte(len(samples))
	b[1] = byte(len(samples) >> 8)
	h.Write(b[:])

	stride := len(samples) / 16
	if stride == 0 {
		stride = 1
	}
	for i := 0; i < len(samples); i += stride {
		b[0] = byte(samples[i])
		b[1] = byte(uint16(samples[i]) >> 8)
		h.Write(b[:])
	}
	return h.Sum64()
}

// EnergyDB returns the RMS energy of samples in decibels relative to int16
// full scale: 20*log10(rms/32768). Empty or silent input returns
// EnergyFloorDB.
func EnergyDB(samples []int16) float64 {
	if len(samples) == 0 {
		return EnergyFloorDB
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return EnergyFloorDB
	}
	db := 20 * math.Log10(rms/32768.0)
	if db < EnergyFloorDB {
		return EnergyFloorDB
	}
	return db
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs
// differ, over (n-1) comparisons. Fewer than two samples yields 0.
func ZeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// SpectralCentroid returns the magnitude-weighted mean frequency in Hz of the
// given half spectrum, or 0 when the total magnitude is 0.
func SpectralCentroid(mags []float64, sampleRate int) float64 {
	var weighted, total float64
	n := len(mags) * 2 // full FFT size
	for i, m := range mags {
		freq := float64(i) * float64(sampleRate) / float64(n)
		weighted += m * freq
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// SpectralRolloff returns the frequency in Hz at which the cumulative spectral
// energy (magnitude squared) first reaches 85% of the total, defaulting to
// Nyquist when the threshold is never reached.
func SpectralRolloff(mags []float64, sampleRate int) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	nyquist := float64(sampleRate) / 2
	if total == 0 {
		return nyquist
	}

	n := len(mags) * 2
	target := 0.85 * total
	var cum float64
	for i, m := range mags {
		cum += m * m
		if cum >= target {
			return float64(i) * float64(sampleRate) / float64(n)
		}
	}
	return nyquist
}

package dsp

import (
	"math"
	"sync"
)

// maxFFTSize caps the transform length. Larger analysis windows are truncated;
// frequency resolution beyond 512 points buys nothing for voice detection.
const maxFFTSize = 512

// twiddleCache holds precomputed roots of unity keyed by FFT size. The same
// frame size recurs on every capture callback, so each size is computed once
// per process and reused thereafter.
var twiddleCache = struct {
	mu    sync.Mutex
	roots map[int][]complex128
}{roots: make(map[int][]complex128)}

// windowCache holds precomputed Hamming window coefficients keyed by size.
var windowCache = struct {
	mu      sync.Mutex
	windows map[int][]float64
}{windows: make(map[int][]float64)}

// fftSize returns the largest power of two that is ≤ min(n, maxFFTSize),
// or 0 when n < 2.
func fftSize(n int) int {
	if n > maxFFTSize {
		n = maxFFTSize
	}
	if n < 2 {
		return 0
	}
	size := 1
	for size*2 <= n {
		size *= 2
	}
	return size
}

// twiddles returns the cached twiddle factors exp(-2πik/size) for k in
// [0, size/2).
func twiddles(size int) []complex128 {
	twiddleCache.mu.Lock()
	defer twiddleCache.mu.Unlock()
	if w, ok := twiddleCache.roots[size]; ok {
		return w
	}
	w := make([]complex128, size/2)
	for k := range w {
		angle := -2 * math.Pi * float64(k) / float64(size)
		w[k] = complex(math.Cos(angle), math.Sin(angle))
	}
	twiddleCache.roots[size] = w
	return w
}

// hammingWindow returns the cached Hamming coefficients for the given size.
func hammingWindow(size int) []float64 {
	windowCache.mu.Lock()
	defer windowCache.mu.Unlock()
	if w, ok := windowCache.windows[size]; ok {
		return w
	}
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
	} else {
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(size-1))
		}
	}
	windowCache.windows[size] = w
	return w
}

// fft computes an in-place iterative radix-2 Cooley-Tukey transform.
// len(buf) must be a power of two.
func fft(buf []complex128) {
	n := len(buf)
	if n < 2 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	w := twiddles(n)
	for length := 2; length <= n; length <<= 1 {
		step := n / length
		half := length / 2
		for start := 0; start < n; start += length {
			for k := 0; k < half; k++ {
				even := buf[start+k]
				odd := buf[start+k+half] * w[k*step]
				buf[start+k] = even + odd
				buf[start+k+half] = even - odd
			}
		}
	}
}

// magnitudeSpectrum windows the leading fftSize(len(samples)) samples with a
// Hamming window, transforms them, and returns the magnitude of the first
// half of the spectrum (the rest mirrors it for real input). Returns nil when
// the input is too short for any transform.
func magnitudeSpectrum(samples []int16) []float64 {
	size := fftSize(len(samples))
	if size == 0 {
		return nil
	}

	window := hammingWindow(size)
	buf := make([]complex128, size)
	for i := range buf {
		buf[i] = complex(float64(samples[i])*window[i], 0)
	}
	fft(buf)

	mags := make([]float64, size/2)
	for i := range mags {
		mags[i] = math.Hypot(real(buf[i]), imag(buf[i]))
	}
	return mags
}

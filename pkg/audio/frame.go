// Package audio defines the frame type and PCM format utilities shared by the
// capture front-end and the recognition pipeline.
//
// Frames are the atomic unit of audio transport: a capture collaborator pushes
// them into a session, the feature extractor and VAD consume them, and the
// engine adapter accumulates their payload. A Frame is immutable once
// produced; components that need to retain audio past the current call must
// copy Data.
package audio

import (
	"encoding/binary"
	"time"
)

// Frame is a single chunk of raw PCM audio.
type Frame struct {
	// Data is raw little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (e.g. 16000 for recognition input, 48000 for capture).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's payload, or zero when the
// format fields are unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples decodes the frame payload into int16 samples. Interleaved channel
// layout is preserved. A trailing odd byte is ignored.
func (f Frame) Samples() []int16 {
	return BytesToSamples(f.Data)
}

// BytesToSamples decodes little-endian 16-bit PCM bytes into samples.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// SamplesToBytes encodes int16 samples as little-endian 16-bit PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

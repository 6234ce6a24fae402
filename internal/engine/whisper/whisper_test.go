package whisper

import (
	"math"
	"testing"
)

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Error("empty model path should be rejected")
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	// Samples: 0, 16384, -16384, 32767 little-endian.
	pcm := []byte{
		0x00, 0x00,
		0x00, 0x40,
		0x00, 0xC0,
		0xFF, 0x7F,
	}
	got := pcmToFloat32Mono(pcm, 1)
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPCMToFloat32Mono_Downmix(t *testing.T) {
	// One stereo frame: L=16384, R=-16384 → average 0.
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	got := pcmToFloat32Mono(pcm, 2)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0] != 0 {
		t.Errorf("downmixed sample = %f, want 0", got[0])
	}
}

func TestPCMToFloat32Mono_OddTrailingByte(t *testing.T) {
	got := pcmToFloat32Mono([]byte{0x00, 0x40, 0x7F}, 1)
	if len(got) != 1 {
		t.Errorf("len = %d, want 1 (trailing byte ignored)", len(got))
	}
}

package audio_test

import (
	"testing"
	"time"

	"github.com/voxkit/voxkit/pkg/audio"
)

func TestMonoToStereo(t *testing.T) {
	mono := audio.SamplesToBytes([]int16{100, 200, 300})
	got := audio.BytesToSamples(audio.MonoToStereo(mono))
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := audio.SamplesToBytes([]int16{100, 200, -100, -200})
	got := audio.BytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	stereo := audio.SamplesToBytes([]int16{32767, 32767, -32768, -32768})
	got := audio.BytesToSamples(audio.StereoToMono(stereo))
	if got[0] != 32767 {
		t.Errorf("positive clamp = %d, want 32767", got[0])
	}
	if got[1] != -32768 {
		t.Errorf("negative clamp = %d, want -32768", got[1])
	}
}

func TestResample16_Downsample(t *testing.T) {
	// 8 samples at 32 kHz → 4 samples at 16 kHz.
	src := audio.SamplesToBytes([]int16{0, 100, 200, 300, 400, 500, 600, 700})
	out := audio.Resample16(src, 1, 32000, 16000)
	got := audio.BytesToSamples(out)
	if len(got) != 4 {
		t.Fatalf("length = %d, want 4", len(got))
	}
	// Every second sample survives with linear interpolation at exact indices.
	want := []int16{0, 200, 400, 600}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResample16_SameRateIsIdentity(t *testing.T) {
	src := audio.SamplesToBytes([]int16{1, 2, 3})
	out := audio.Resample16(src, 1, 16000, 16000)
	if &out[0] != &src[0] {
		t.Error("same-rate resample should return input unchanged")
	}
}

func TestConverter_FastPath(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.Frame{
		Data:       audio.SamplesToBytes([]int16{5, 6}),
		SampleRate: 16000,
		Channels:   1,
		Timestamp:  time.Second,
	}
	got := conv.Convert(frame)
	if &got.Data[0] != &frame.Data[0] {
		t.Error("matching format should pass through without copying")
	}
}

func TestConverter_StereoHighRateToMonoLowRate(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 48 kHz stereo, 96 stereo frames (2 ms).
	samples := make([]int16, 96*2)
	for i := range samples {
		samples[i] = int16(i)
	}
	got := conv.Convert(audio.Frame{
		Data:       audio.SamplesToBytes(samples),
		SampleRate: 48000,
		Channels:   2,
	})
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("format = %dHz/%dch, want 16000Hz/1ch", got.SampleRate, got.Channels)
	}
	if len(got.Data) != 32*2 {
		t.Errorf("payload = %d bytes, want %d", len(got.Data), 32*2)
	}
}

func TestConverter_OddByteCountDropsFrame(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	got := conv.Convert(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if len(got.Data) != 0 {
		t.Errorf("corrupt frame should produce empty payload, got %d bytes", len(got.Data))
	}
}

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		name  string
		frame audio.Frame
		want  time.Duration
	}{
		{"mono 16k 100ms", audio.Frame{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1}, 100 * time.Millisecond},
		{"stereo 48k 10ms", audio.Frame{Data: make([]byte, 1920), SampleRate: 48000, Channels: 2}, 10 * time.Millisecond},
		{"zero format", audio.Frame{Data: make([]byte, 3200)}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.frame.Duration(); got != tc.want {
				t.Errorf("Duration() = %v, want %v", got, tc.want)
			}
		})
	}
}

package execengine

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/go-audio/wav"

	"github.com/voxkit/voxkit/internal/engine"
)

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Error("empty command should be rejected")
	}
	if _, err := NewProvider(`cmd "unterminated`); err == nil {
		t.Error("malformed quoting should be rejected")
	}
	p, err := NewProvider(`whisper-cli --threads 4`)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if len(p.argv) != 3 {
		t.Errorf("argv = %v, want 3 elements", p.argv)
	}
}

func TestEngine_PushAfterCloseFails(t *testing.T) {
	p, err := NewProvider("true")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	e, err := p.NewEngine(context.Background(), engine.Config{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := e.Push([]byte{0, 0}); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Push after Close = %v, want ErrClosed", err)
	}
}

func TestEngine_PartialNotSupported(t *testing.T) {
	p, _ := NewProvider("true")
	e, _ := p.NewEngine(context.Background(), engine.Config{})
	if _, err := e.Partial(); !errors.Is(err, engine.ErrNotSupported) {
		t.Errorf("Partial = %v, want ErrNotSupported", err)
	}
}

func TestEngine_FinalEmptyBuffer(t *testing.T) {
	p, _ := NewProvider("false") // would fail if actually executed
	e, _ := p.NewEngine(context.Background(), engine.Config{})
	res, err := e.Final(context.Background())
	if err != nil {
		t.Fatalf("Final on empty buffer: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Final on empty buffer returned text %q", res.Text)
	}
}

func TestEngine_FinalRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on a POSIX shell")
	}
	// The stand-in recognizer ignores its audio and prints a fixed response.
	p, err := NewProvider(`sh -c 'printf "{\"text\": \"ok\", \"confidence\": 0.9}"' stt`)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	e, err := p.NewEngine(context.Background(), engine.Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.Push(make([]byte, 3200)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	res, err := e.Final(context.Background())
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if res.Text != "ok" || res.Confidence != 0.9 {
		t.Errorf("Final = %+v, want text ok confidence 0.9", res)
	}
}

func TestEngine_FinalCommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on a POSIX shell")
	}
	p, _ := NewProvider("false")
	e, _ := p.NewEngine(context.Background(), engine.Config{})
	e.(*Engine).buf = make([]byte, 320)
	if _, err := e.Final(context.Background()); err == nil {
		t.Error("failing command should surface an error")
	}
}

func TestWritePCMToWav(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "out_*.wav")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer file.Close()

	pcm := make([]byte, 640) // 320 samples, 20 ms at 16 kHz
	if err := writePCMToWav(file, pcm, 16000, 1); err != nil {
		t.Fatalf("writePCMToWav: %v", err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		t.Fatal("encoded file is not a valid WAV")
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("wav header = %d Hz %d ch %d bit, want 16000/1/16",
			dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
}

func TestWritePCMToWav_RejectsOddLength(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "out_*.wav")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer file.Close()
	if err := writePCMToWav(file, make([]byte, 3), 16000, 1); err == nil {
		t.Error("odd-length pcm should be rejected")
	}
}

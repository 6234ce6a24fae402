package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/voxkit/voxkit/pkg/audio"
)

// frameDuration is the cadence at which the source slices audio into frames,
// matching a typical capture callback interval.
const frameDuration = 20 * time.Millisecond

// Source yields fixed-duration audio frames from a WAV or raw PCM input,
// converted to the pipeline's target format. Timestamps are stream-relative
// and strictly increasing.
type Source struct {
	next func() (audio.Frame, error)
	conv *audio.Converter
	ts   time.Duration

	closers []io.Closer
}

// NewFileSource opens path and prepares it for frame-by-frame reading. Files
// ending in .wav are decoded; anything else is treated as raw little-endian
// 16-bit PCM already in the target format. Pass "-" to read raw PCM from
// stdin.
func NewFileSource(path string, target audio.Format) (*Source, error) {
	if path == "-" {
		return newPCMSource(os.Stdin, target, nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("app: open input: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		src, err := newWavSource(f, target)
		if err != nil {
			f.Close()
			return nil, err
		}
		src.closers = append(src.closers, f)
		return src, nil
	}
	return newPCMSource(f, target, []io.Closer{f}), nil
}

// newPCMSource reads raw PCM assumed to already be in the target format.
func newPCMSource(r io.Reader, target audio.Format, closers []io.Closer) *Source {
	samplesPerFrame := int(frameDuration.Seconds()*float64(target.SampleRate)) * target.Channels
	buf := make([]byte, samplesPerFrame*2)
	return &Source{
		conv:    &audio.Converter{Target: target},
		closers: closers,
		next: func() (audio.Frame, error) {
			n, err := io.ReadFull(r, buf)
			if n == 0 {
				if err == io.ErrUnexpectedEOF {
					err = io.EOF
				}
				return audio.Frame{}, err
			}
			data := make([]byte, n&^1)
			copy(data, buf[:n&^1])
			return audio.Frame{
				Data:       data,
				SampleRate: target.SampleRate,
				Channels:   target.Channels,
			}, nil
		},
	}
}

// newWavSource decodes WAV data and converts it to the target format.
func newWavSource(rs io.ReadSeeker, target audio.Format) (*Source, error) {
	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("app: read wav header: %w", err)
	}
	if !dec.IsValidFile() {
		return nil, errors.New("app: input is not a valid wav file")
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("app: unsupported wav bit depth %d, want 16", dec.BitDepth)
	}

	srcRate := int(dec.SampleRate)
	srcCh := int(dec.NumChans)
	samplesPerFrame := int(frameDuration.Seconds()*float64(srcRate)) * srcCh

	buf := &goaudio.IntBuffer{Data: make([]int, samplesPerFrame)}
	return &Source{
		conv: &audio.Converter{Target: target},
		next: func() (audio.Frame, error) {
			n, err := dec.PCMBuffer(buf)
			if n == 0 {
				if err == nil {
					err = io.EOF
				}
				return audio.Frame{}, err
			}
			samples := make([]int16, n)
			for i := range samples {
				samples[i] = int16(buf.Data[i])
			}
			return audio.Frame{
				Data:       audio.SamplesToBytes(samples),
				SampleRate: srcRate,
				Channels:   srcCh,
			}, nil
		},
	}, nil
}

// Next returns the next frame in the target format. The final frame may be
// shorter than frameDuration. Returns io.EOF when the input is exhausted.
func (s *Source) Next() (audio.Frame, error) {
	frame, err := s.next()
	if err != nil && len(frame.Data) == 0 {
		return audio.Frame{}, err
	}
	out := s.conv.Convert(frame)
	if len(out.Data) == 0 {
		return audio.Frame{}, io.EOF
	}
	out.Timestamp = s.ts
	s.ts += out.Duration()
	return out, nil
}

// Close releases the underlying input.
func (s *Source) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

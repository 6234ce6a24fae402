package session

import (
	"errors"
	"fmt"

	"github.com/voxkit/voxkit/internal/engine"
	"github.com/voxkit/voxkit/internal/sink"
	"github.com/voxkit/voxkit/pkg/audio"
)

// strategy is the engine-binding policy selected at construction time. All
// methods are invoked with the session lock held; onFrame returns any events
// for the session to emit after the lock is released.
type strategy interface {
	// onStart opens a new utterance.
	onStart()

	// onFrame consumes one frame of an open utterance. It may return an
	// interim hypothesis and/or a recoverable engine error.
	onFrame(frame audio.Frame) (*sink.Partial, error)

	// take closes the utterance and returns the finalize payload.
	take() finalizeJob

	// release frees any engine still held outside an utterance.
	release() error
}

// bufferedStrategy accumulates the raw utterance audio; the finalize worker
// creates the engine, replays the buffer and requests one final result.
type bufferedStrategy struct {
	s    *Session
	open bool
	buf  []byte
}

func (b *bufferedStrategy) onStart() {
	b.open = true
	b.buf = b.buf[:0]
}

func (b *bufferedStrategy) onFrame(frame audio.Frame) (*sink.Partial, error) {
	if !b.open {
		return nil, nil
	}
	b.buf = append(b.buf, frame.Data...)
	return nil, nil
}

func (b *bufferedStrategy) take() finalizeJob {
	// The buffer is reused for the next utterance, so the job gets a copy.
	job := finalizeJob{audio: append([]byte(nil), b.buf...)}
	b.buf = b.buf[:0]
	b.open = false
	return job
}

func (b *bufferedStrategy) release() error { return nil }

// streamingStrategy feeds one engine instance per utterance as frames arrive
// and polls it for partial hypotheses. The endpoint takes the live instance
// for finalization; the next utterance gets a fresh one.
type streamingStrategy struct {
	s            *Session
	open         bool
	eng          engine.Engine
	createFailed bool
	lastPartial  string
}

func (st *streamingStrategy) onStart() {
	st.open = true
	st.createFailed = false
	st.lastPartial = ""
}

func (st *streamingStrategy) onFrame(frame audio.Frame) (*sink.Partial, error) {
	if !st.open || st.createFailed {
		return nil, nil
	}
	if st.eng == nil {
		eng, err := st.s.provider.NewEngine(st.s.ctx, st.s.cfg.Engine)
		if err != nil {
			// Give up on this utterance; the next one retries.
			st.createFailed = true
			st.s.metrics.RecordEngineError(st.s.ctx, "create")
			return nil, fmt.Errorf("engine create: %w", err)
		}
		st.eng = eng
	}

	has, err := st.eng.Push(frame.Data)
	if err != nil {
		st.s.metrics.RecordEngineError(st.s.ctx, "push")
		if cerr := st.eng.Close(); cerr != nil {
			st.s.log.Warn("engine close failed", "err", cerr)
		}
		// A fresh instance is created on the next frame.
		st.eng = nil
		return nil, fmt.Errorf("engine push: %w", err)
	}
	if !has {
		return nil, nil
	}

	res, err := st.eng.Partial()
	if err != nil {
		if errors.Is(err, engine.ErrNoResult) || errors.Is(err, engine.ErrNotSupported) {
			return nil, nil
		}
		st.s.metrics.RecordEngineError(st.s.ctx, "partial")
		return nil, fmt.Errorf("engine partial: %w", err)
	}

	text := st.s.partialNorm.Normalize(res.Text)
	if text == "" || text == st.lastPartial {
		return nil, nil
	}
	st.lastPartial = text
	return &sink.Partial{Text: text, Confidence: res.Confidence}, nil
}

func (st *streamingStrategy) take() finalizeJob {
	job := finalizeJob{eng: st.eng}
	st.eng = nil
	st.open = false
	st.lastPartial = ""
	return job
}

func (st *streamingStrategy) release() error {
	if st.eng == nil {
		return nil
	}
	err := st.eng.Close()
	st.eng = nil
	return err
}

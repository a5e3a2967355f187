package decode

import (
	"sync"

	"github.com/nle/engine/container"
	"github.com/nle/engine/internal/logging"
)

// VideoDecoderWrapper configures a backend Codec from track parameters,
// enqueues samples, and surfaces decoded frames on an output channel (spec
// §4.2). The first sample after Configure or Flush must be a keyframe.
type VideoDecoderWrapper struct {
	mu      sync.Mutex
	backend VideoCodec
	state   State

	needsKeyframe bool
	pending       int // pending_decode_count, read by the scheduler for backpressure
}

// NewVideoDecoderWrapper wraps a backend codec. The backend is not
// configured until Configure is called.
func NewVideoDecoderWrapper(backend VideoCodec) *VideoDecoderWrapper {
	return &VideoDecoderWrapper{backend: backend, state: Unconfigured}
}

// Configure sets codec, coded dimensions and codec-private data. Transitions
// to Configured, or fails with ErrUnsupportedCodec if the backend rejects
// the params.
func (w *VideoDecoderWrapper) Configure(params CodecParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Configure(params); err != nil {
		w.state = Unconfigured
		return wrapUnsupported(err)
	}
	w.state = Configured
	w.needsKeyframe = true
	return nil
}

// Decode enqueues one sample. Returns ErrBadSequence without decoding if the
// first sample after Configure/Flush/Reset is not a keyframe (spec §4.2,
// §8 testable property #3).
func (w *VideoDecoderWrapper) Decode(sample container.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == NeedsReset {
		return ErrNeedsReset
	}
	if w.needsKeyframe && !sample.IsKeyframe {
		return ErrBadSequence
	}

	w.pending++
	w.state = Decoding
	if err := w.backend.Decode(sample); err != nil {
		w.pending--
		w.state = NeedsReset
		logging.Printf("decode: video decode error, transitioning to NeedsReset: %v", err)
		return err
	}
	w.needsKeyframe = false
	return nil
}

// Flush drains all pending frames, then resets the needs-keyframe
// precondition. Spec marks this async ("flush() -> async"); callers that
// need a post-flush render should wait for Output() to drain first.
func (w *VideoDecoderWrapper) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Flush(); err != nil {
		return err
	}
	w.needsKeyframe = true
	w.pending = 0
	if w.state != NeedsReset {
		w.state = Configured
	}
	return nil
}

// Reset discards internal state without reconfiguring. After Reset the
// wrapper is back in Configured and requires a keyframe.
func (w *VideoDecoderWrapper) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Reset(); err != nil {
		return err
	}
	w.state = Configured
	w.needsKeyframe = true
	w.pending = 0
	return nil
}

// seekableVideoCodec is an optional capability some backends (reisen) expose
// to rewind to an arbitrary source time rather than always the start.
type seekableVideoCodec interface {
	SeekTo(targetUs int64) error
}

// ResetTo is like Reset but rewinds to a specific source time when the
// backend supports it (spec §4.7 Seek), falling back to the generic Reset
// otherwise.
func (w *VideoDecoderWrapper) ResetTo(targetUs int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if sc, ok := w.backend.(seekableVideoCodec); ok {
		err = sc.SeekTo(targetUs)
	} else {
		err = w.backend.Reset()
	}
	if err != nil {
		return err
	}
	w.state = Configured
	w.needsKeyframe = true
	w.pending = 0
	return nil
}

// Close releases all hardware resources.
func (w *VideoDecoderWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Closed
	return w.backend.Close()
}

// State reports the current lifecycle state.
func (w *VideoDecoderWrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// PendingDecodeCount is what the scheduler reads to enforce backpressure
// (spec §4.4 step 4). Decremented as the caller drains Output().
func (w *VideoDecoderWrapper) PendingDecodeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Output exposes the backend's decoded-frame channel; the render tick
// drains it into the corresponding FrameBuffer (spec §9).
func (w *VideoDecoderWrapper) Output() <-chan OutputFrame {
	return w.backend.Output()
}

// generationReporter is implemented by backends (reisen) that tag output
// frames with an internal epoch advanced on every Reset/ResetTo.
type generationReporter interface {
	CurrentGeneration() uint64
}

// CurrentGeneration reports the backend's current generation epoch, or 0 if
// the backend doesn't track one. The render tick compares this against an
// OutputFrame's Generation to discard frames decoded before the most recent
// reset/seek (spec §5 cancellation).
func (w *VideoDecoderWrapper) CurrentGeneration() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gr, ok := w.backend.(generationReporter); ok {
		return gr.CurrentGeneration()
	}
	return 0
}

// MarkDrained decrements the pending count as the caller (render tick)
// consumes a frame from Output(). Call once per frame drained.
func (w *VideoDecoderWrapper) MarkDrained() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending > 0 {
		w.pending--
	}
}

func wrapUnsupported(err error) error {
	if err == nil {
		return nil
	}
	return &unsupportedCodecError{cause: err}
}

type unsupportedCodecError struct{ cause error }

func (e *unsupportedCodecError) Error() string { return ErrUnsupportedCodec.Error() + ": " + e.cause.Error() }
func (e *unsupportedCodecError) Unwrap() error  { return ErrUnsupportedCodec }

package decode

import (
	"sync"

	"github.com/nle/engine/container"
)

// AudioDecoderWrapper mirrors VideoDecoderWrapper's lifecycle for audio
// tracks, minus the keyframe precondition (audio frames are independently
// decodable in the codecs this module targets, AAC in particular).
type AudioDecoderWrapper struct {
	mu      sync.Mutex
	backend AudioCodec
	state   State
	pending int
}

// NewAudioDecoderWrapper wraps a backend codec.
func NewAudioDecoderWrapper(backend AudioCodec) *AudioDecoderWrapper {
	return &AudioDecoderWrapper{backend: backend, state: Unconfigured}
}

func (w *AudioDecoderWrapper) Configure(params CodecParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Configure(params); err != nil {
		w.state = Unconfigured
		return wrapUnsupported(err)
	}
	w.state = Configured
	return nil
}

func (w *AudioDecoderWrapper) Decode(sample container.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == NeedsReset {
		return ErrNeedsReset
	}
	w.pending++
	w.state = Decoding
	if err := w.backend.Decode(sample); err != nil {
		w.pending--
		w.state = NeedsReset
		return err
	}
	return nil
}

func (w *AudioDecoderWrapper) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Flush(); err != nil {
		return err
	}
	w.pending = 0
	if w.state != NeedsReset {
		w.state = Configured
	}
	return nil
}

func (w *AudioDecoderWrapper) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.backend.Reset(); err != nil {
		return err
	}
	w.state = Configured
	w.pending = 0
	return nil
}

// seekableAudioCodec mirrors decode's seekableVideoCodec for audio backends.
type seekableAudioCodec interface {
	SeekTo(targetUs int64) error
}

// ResetTo mirrors VideoDecoderWrapper.ResetTo.
func (w *AudioDecoderWrapper) ResetTo(targetUs int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if sc, ok := w.backend.(seekableAudioCodec); ok {
		err = sc.SeekTo(targetUs)
	} else {
		err = w.backend.Reset()
	}
	if err != nil {
		return err
	}
	w.state = Configured
	w.pending = 0
	return nil
}

func (w *AudioDecoderWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Closed
	return w.backend.Close()
}

func (w *AudioDecoderWrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *AudioDecoderWrapper) PendingDecodeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *AudioDecoderWrapper) OutputPCM() <-chan OutputPCM {
	return w.backend.OutputPCM()
}

func (w *AudioDecoderWrapper) MarkDrained() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending > 0 {
		w.pending--
	}
}

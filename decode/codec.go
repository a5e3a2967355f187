// Package decode wraps the per-source video/audio codecs behind a
// WebCodecs-shaped push interface (configure/decode/flush/reset/close),
// decoupled from demuxing (spec §4.2, §9 "Decoder output callbacks").
package decode

import (
	"errors"

	"github.com/nle/engine/container"
)

// Errors matching spec §4.2 failure modes.
var (
	ErrUnsupportedCodec = errors.New("decode: unsupported codec")
	ErrBadSequence      = errors.New("decode: first sample after configure/flush must be a keyframe")
	ErrNeedsReset        = errors.New("decode: decoder needs reset before further decode calls")
)

// CodecParams configures a Codec backend from a track descriptor.
type CodecParams struct {
	Codec        container.CodecKind
	Width, Height int
	SampleRate   int
	ChannelCount int
	CodecPrivate []byte
}

// OutputFrame is what a Codec backend emits on successful decode: one frame
// per sample, carrying the source's cts_us (spec §4.2 output contract). The
// decoder may emit frames out of presentation order (B-frames); consumers
// sort by timestamp (FrameBuffer.BestFor already does this at read time).
type OutputFrame struct {
	Image      any // concrete GPU-backed image, e.g. *ebiten.Image
	TimestampUs int64
	Generation  uint64
}

// OutputPCM is what an audio Codec backend emits: one chunk of interleaved
// float32 PCM per decode call.
type OutputPCM struct {
	PCM         []float32 // interleaved
	TimestampUs int64
	DurationUs  int64
}

// Codec is the pluggable backend behind VideoDecoderWrapper/AudioDecoderWrapper.
// Frame output is asynchronous: implementations push into the channel
// returned by Output()/OutputPCM() rather than returning frames directly
// from Decode, matching spec §9's per-decoder output channel re-architecture.
type Codec interface {
	Configure(params CodecParams) error
	Decode(sample container.Sample) error
	Flush() error
	Reset() error
	Close() error
}

// VideoCodec additionally exposes its video frame output channel.
type VideoCodec interface {
	Codec
	Output() <-chan OutputFrame
}

// AudioCodec additionally exposes its PCM output channel.
type AudioCodec interface {
	Codec
	OutputPCM() <-chan OutputPCM
}

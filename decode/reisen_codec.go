package decode

import (
	"sync"
	"time"

	"github.com/erparts/reisen"
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/nle/engine/container"
)

// reisenVideoCodec is the default VideoCodec backend for fully-Ready,
// file-backed sources. reisen conflates demux+decode internally (it reads
// packets from its own Media via a file path), so this backend does not
// consume the pushed container.Sample bytes for decode itself — the
// container.Demuxer has already told the caller where the keyframes and
// sample boundaries are, which is what the scheduler needs. Each Decode
// call reads the next frame from reisen's own stream (whatever its
// timestamp) and tags it with the pushed sample's timestamp, keeping the
// push-shaped Codec contract intact for the scheduler while reisen does the
// actual FFmpeg-backed decoding (spec §4.2, SPEC_FULL.md Open Question #4).
//
// This seam is also why container.Demuxer exists independently of reisen:
// for Playable-but-not-Ready streaming sources there is no reisen.Media to
// construct yet (reisen requires a filename/ReadSeeker up front), so such a
// source has no VideoDecoderWrapper at all until its last chunk arrives, and
// the scheduler feeds it nothing meanwhile; no samples are queued.
type reisenVideoCodec struct {
	mu     sync.Mutex
	stream *reisen.VideoStream
	media  *reisen.Media

	width, height int
	out           chan OutputFrame
	generation    uint64
}

// NewReisenVideoCodec builds a VideoCodec backend around an already-open
// reisen media/stream pair (the Source owns opening/closing the stream to
// match the teacher's controller_no_audio.go/controller_yes_audio.go
// lifecycle).
func NewReisenVideoCodec(media *reisen.Media, stream *reisen.VideoStream) VideoCodec {
	return &reisenVideoCodec{
		media:  media,
		stream: stream,
		out:    make(chan OutputFrame, 16),
	}
}

func (c *reisenVideoCodec) Configure(params CodecParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch params.Codec {
	case container.CodecH264, container.CodecH265, container.CodecVP9:
	default:
		return ErrUnsupportedCodec
	}
	c.width, c.height = params.Width, params.Height
	return nil
}

// Decode reads and emits the next decodable video frame from the underlying
// reisen stream. The sample argument's bytes are unused (see type doc); its
// timestamp is threaded through to OutputFrame, together with this codec's
// current generation, so FrameBuffer/compositor bookkeeping stays uniform
// across backends.
func (c *reisenVideoCodec) Decode(sample container.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, ok, err := c.stream.ReadVideoFrame()
	if err != nil {
		return err
	}
	if !ok || frame == nil {
		return nil // frame skip, not an error (spec §4.2)
	}

	img := ebiten.NewImage(c.width, c.height)
	img.WritePixels(frame.Data())

	c.out <- OutputFrame{Image: img, TimestampUs: sample.CTSUs, Generation: c.generation}
	return nil
}

func (c *reisenVideoCodec) Flush() error {
	return nil
}

func (c *reisenVideoCodec) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.stream.Rewind(0)
}

// SeekTo rewinds the stream to a specific source time instead of the start.
// VideoDecoderWrapper.ResetTo prefers this over the generic Reset whenever
// the backend supports it, so a timeline seek doesn't silently restart
// decode from time zero (spec §4.7 Seek).
func (c *reisenVideoCodec) SeekTo(targetUs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.stream.Rewind(time.Duration(targetUs) * time.Microsecond)
}

func (c *reisenVideoCodec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Close()
}

func (c *reisenVideoCodec) Output() <-chan OutputFrame { return c.out }

// CurrentGeneration reports the stream's current rewind epoch (spec §5
// cancellation): VideoDecoderWrapper.CurrentGeneration surfaces this so the
// render tick can discard frames produced before the most recent seek.
func (c *reisenVideoCodec) CurrentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

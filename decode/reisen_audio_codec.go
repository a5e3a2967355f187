package decode

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/erparts/reisen"

	"github.com/nle/engine/container"
)

// reisenAudioCodec is the default AudioCodec backend, mirroring
// reisenVideoCodec: reisen performs the actual FFmpeg-backed decode, this
// type adapts its pull-based ReadAudioFrame() into the push-shaped Codec
// contract and converts reisen's native interleaved 16-bit PCM into the
// float32-interleaved format spec §6 requires downstream (AudioController
// stores float32 PCM; its gain graph converts back to 16-bit when handing a
// chunk to ebiten's audio.Player).
type reisenAudioCodec struct {
	mu           sync.Mutex
	stream       *reisen.AudioStream
	sampleRate   int
	channelCount int
	out          chan OutputPCM
}

// NewReisenAudioCodec builds an AudioCodec backend around an already-open
// reisen audio stream.
func NewReisenAudioCodec(stream *reisen.AudioStream) AudioCodec {
	return &reisenAudioCodec{stream: stream, out: make(chan OutputPCM, 16)}
}

func (c *reisenAudioCodec) Configure(params CodecParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if params.Codec != container.CodecAAC {
		return ErrUnsupportedCodec
	}
	c.sampleRate = params.SampleRate
	c.channelCount = params.ChannelCount
	if c.channelCount == 0 {
		c.channelCount = 2
	}
	return nil
}

func (c *reisenAudioCodec) Decode(sample container.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, ok, err := c.stream.ReadAudioFrame()
	if err != nil {
		return err
	}
	if !ok || frame == nil {
		return nil
	}

	pcm := int16BytesToFloat32(frame.Data())
	frameCount := len(pcm) / c.channelCount
	durUs := int64(0)
	if c.sampleRate > 0 {
		durUs = int64(frameCount) * 1_000_000 / int64(c.sampleRate)
	}

	c.out <- OutputPCM{PCM: pcm, TimestampUs: sample.CTSUs, DurationUs: durUs}
	return nil
}

func (c *reisenAudioCodec) Flush() error { return nil }

func (c *reisenAudioCodec) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Rewind(0)
}

// SeekTo mirrors reisenVideoCodec.SeekTo for the audio stream.
func (c *reisenAudioCodec) SeekTo(targetUs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Rewind(time.Duration(targetUs) * time.Microsecond)
}

func (c *reisenAudioCodec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Close()
}

func (c *reisenAudioCodec) OutputPCM() <-chan OutputPCM { return c.out }

// int16BytesToFloat32 deinterleaves nothing (channels stay interleaved, per
// spec §6) but converts reisen's native little-endian signed 16-bit samples
// to normalized float32.
func int16BytesToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

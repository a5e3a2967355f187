package audio

import (
	"io"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// PCMChunk is one decoded audio chunk (spec §3/§4.8 PCM store entries).
type PCMChunk struct {
	PCM         []float32 // interleaved
	TimestampUs int64
	DurationUs  int64
}

func (c PCMChunk) endUs() int64 { return c.TimestampUs + c.DurationUs }

// pcmReader adapts a fixed PCM chunk (skippable from an offset) into the
// io.Reader ebiten's audio.Player expects, mirroring the teacher's
// Read()-backed player pattern (controller_yes_audio.go) but over a
// pre-decoded buffer instead of a live decode loop.
type pcmReader struct {
	mu           sync.Mutex
	data         []byte // interleaved 16-bit PCM, ebiten's native player format
	channelCount int
}

// newPCMReader builds a reader over pcm[skipFrames:], truncated to at most
// maxFrames frames past the skip point. maxFrames < 0 means unbounded (play
// out the whole remainder of the chunk).
func newPCMReader(pcm []float32, channelCount int, skipFrames int, maxFrames int) *pcmReader {
	if channelCount <= 0 {
		channelCount = 2
	}
	skipSamples := skipFrames * channelCount
	if skipSamples > len(pcm) {
		skipSamples = len(pcm)
	}
	pcm = pcm[skipSamples:]
	if maxFrames >= 0 {
		if maxSamples := maxFrames * channelCount; maxSamples < len(pcm) {
			pcm = pcm[:maxSamples]
		}
	}
	data := float32ToInt16Bytes(pcm)
	return &pcmReader{data: data, channelCount: channelCount}
}

func (r *pcmReader) Read(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, r.data)
	r.data = r.data[n:]
	return n, nil
}

func float32ToInt16Bytes(pcm []float32) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		v := int16(clampFloat32(s, -1, 1) * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func clampFloat32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// gainNode is a minimal per-clip/master gain: it wraps an *audio.Player and
// keeps the clip's own volume factor alongside it, mirroring
// videoWithAudioController.SetVolume from the teacher but generalized to N
// concurrently scheduled nodes instead of one. The player's actual volume is
// always clipVolume*master so a later master-volume change never loses the
// clip's own factor.
type gainNode struct {
	player     *audio.Player
	clipVolume float64
}

func newGainNode(ctx *audio.Context, src io.Reader, clipVolume, masterVolume float64) (*gainNode, error) {
	player, err := ctx.NewPlayer(src)
	if err != nil {
		return nil, err
	}
	g := &gainNode{player: player, clipVolume: clipVolume}
	player.SetVolume(combinedVolume(clipVolume, masterVolume))
	return g, nil
}

// combinedVolume is the gain actually applied to a node's player: the
// clip's own volume scaled by the current master volume.
func combinedVolume(clipVolume, masterVolume float64) float64 {
	return clipVolume * masterVolume
}

// SetMasterVolume recomputes the player's volume from this node's fixed
// clip volume and the given master volume.
func (g *gainNode) SetMasterVolume(master float64) {
	g.player.SetVolume(combinedVolume(g.clipVolume, master))
}

func (g *gainNode) Play()  { g.player.Play() }
func (g *gainNode) Stop()  { g.player.Pause() }
func (g *gainNode) Close() error {
	g.player.Pause()
	return g.player.Close()
}

func (g *gainNode) PositionUs() int64 {
	return g.player.Position().Microseconds()
}

// Package audio owns the audio-domain graph: per-source decoded PCM store,
// scheduled source nodes, master/per-clip gain, and drift correction against
// the video clock (spec §4.8).
package audio

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/nle/engine/composition"
	"github.com/nle/engine/internal/logging"
)

// Controller is the AudioController of spec §4.8.
type Controller struct {
	mu  sync.Mutex
	ctx *audio.Context

	masterVolume float64
	pcm          map[string][]PCMChunk // source_id -> chunks, ordered by TimestampUs
	channels     map[string]int        // source_id -> channel count
	audioReady   map[string]bool

	nodes map[string]*gainNode // keyed by clip_id + "#" + chunk index

	lastScheduledVideoTimeUs  int64
	lastScheduledAudioClockUs int64

	nowUs func() int64 // audio-graph clock; overridable for tests
}

// New builds a Controller bound to an ebiten audio context. nowUs supplies
// the audio-graph's own clock in microseconds (tests can substitute a fake).
func New(ctx *audio.Context, nowUs func() int64) *Controller {
	return &Controller{
		ctx:          ctx,
		masterVolume: 1.0,
		pcm:          make(map[string][]PCMChunk),
		channels:     make(map[string]int),
		audioReady:   make(map[string]bool),
		nodes:        make(map[string]*gainNode),
		nowUs:        nowUs,
	}
}

// SetMasterVolume scales every currently scheduled node and future ones.
func (c *Controller) SetMasterVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masterVolume = v
	for _, n := range c.nodes {
		n.SetMasterVolume(v)
	}
}

// StorePCM appends a decoded PCM chunk for a source, keeping the store
// sorted by timestamp (decoder output may arrive slightly out of order).
func (c *Controller) StorePCM(sourceID string, channelCount int, chunk PCMChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[sourceID] = channelCount
	c.pcm[sourceID] = append(c.pcm[sourceID], chunk)
	sort.Slice(c.pcm[sourceID], func(i, j int) bool {
		return c.pcm[sourceID][i].TimestampUs < c.pcm[sourceID][j].TimestampUs
	})
}

// SetAudioReady marks whether a source has at least one playable PCM chunk.
func (c *Controller) SetAudioReady(sourceID string, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioReady[sourceID] = ready
}

// IsAudioReady reports the per-source audio-ready flag.
func (c *Controller) IsAudioReady(sourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioReady[sourceID]
}

// DropSource removes a source's PCM store and ready flag (spec §4.9
// RemoveSource).
func (c *Controller) DropSource(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pcm, sourceID)
	delete(c.channels, sourceID)
	delete(c.audioReady, sourceID)
}

// ScheduleClip implements spec §4.8 schedule_clip: find every PCM chunk of
// the clip's source overlapping [source_offset, clip.source_end), and
// schedule (or start immediately) a gain-routed player for each.
func (c *Controller) ScheduleClip(clip composition.ActiveClip, currentTimeUs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sourceOffsetUs := currentTimeUs - clip.TimelineStartUs + clip.SourceStartUs
	chunks := c.pcm[clip.SourceID]
	channelCount := c.channels[clip.SourceID]

	for i, chunk := range chunks {
		chunkEnd := chunk.endUs()
		if chunkEnd <= sourceOffsetUs || chunk.TimestampUs >= clip.SourceEndUs {
			continue
		}

		rate := sampleRateOf(chunk, channelCount)

		var skipFrames int
		var delay time.Duration
		playStartUs := sourceOffsetUs
		if chunk.TimestampUs < sourceOffsetUs {
			skipUs := sourceOffsetUs - chunk.TimestampUs
			skipFrames = int(skipUs * rate / 1_000_000)
		} else {
			delay = time.Duration(chunk.TimestampUs-sourceOffsetUs) * time.Microsecond
			playStartUs = chunk.TimestampUs
		}

		// clamp played duration to the clip's source_end (spec §4.8
		// schedule_clip: play_duration = min(chunk_remaining, clip.source_end
		// - max(chunk_start, source_offset))), so audio never bleeds past
		// where the clip's video/timeline presence ends.
		maxFrames := -1
		if rate > 0 {
			playUs := clip.SourceEndUs - playStartUs
			if playUs < 0 {
				playUs = 0
			}
			maxFrames = int(playUs * rate / 1_000_000)
		}

		reader := newPCMReader(chunk.PCM, channelCount, skipFrames, maxFrames)
		node, err := newGainNode(c.ctx, reader, clip.Volume, c.masterVolume)
		if err != nil {
			logging.Printf("audio: schedule clip %s: %v", clip.ClipID, err)
			continue
		}
		c.nodes[clip.ClipID+"#"+strconv.Itoa(i)] = node

		// ebiten's audio.Player has no native "start at future time" knob
		// (unlike a Web Audio source node); a short deferred Play() is the
		// closest equivalent available in this stack.
		if delay <= 0 {
			node.Play()
		} else {
			time.AfterFunc(delay, node.Play)
		}
	}
}

// sampleRateOf recovers an effective sample rate from a chunk's own
// frame/duration ratio (duration_us was computed from the real sample rate
// at decode time, so this is exact, not an approximation).
func sampleRateOf(chunk PCMChunk, channelCount int) int64 {
	if channelCount <= 0 {
		channelCount = 2
	}
	frames := int64(len(chunk.PCM) / channelCount)
	if chunk.DurationUs == 0 {
		return 0
	}
	return frames * 1_000_000 / chunk.DurationUs
}

// ScheduleAll implements spec §4.8 schedule_all: record the resync anchor
// and schedule every audio clip.
func (c *Controller) ScheduleAll(clips []composition.ActiveClip, currentTimeUs int64) {
	c.mu.Lock()
	c.lastScheduledVideoTimeUs = currentTimeUs
	c.lastScheduledAudioClockUs = c.nowUs()
	c.mu.Unlock()

	for _, clip := range clips {
		if clip.TrackKind != composition.KindAudio {
			continue
		}
		c.ScheduleClip(clip, currentTimeUs)
	}
}

// StopAll stops and disconnects every scheduled node (spec §4.8 stop_all).
func (c *Controller) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, n := range c.nodes {
		if err := n.Close(); err != nil {
			logging.Printf("audio: closing node for clip %s: %v", id, err)
		}
	}
	c.nodes = make(map[string]*gainNode)
}

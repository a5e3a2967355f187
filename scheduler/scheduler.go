// Package scheduler feeds per-source decoders each tick, respecting
// backpressure and device-tier look-ahead (spec §4.4 DecoderScheduler).
package scheduler

import (
	"github.com/nle/engine/composition"
	"github.com/nle/engine/container"
	"github.com/nle/engine/decode"
	"github.com/nle/engine/devicetier"
	"github.com/nle/engine/internal/logging"
)

// MaxSamplesPerFeed caps how many samples a single scheduling pass will
// push into one decoder, regardless of the computed window size.
const MaxSamplesPerFeed = 32

// SourceLookup resolves a clip's source_id to the pieces the scheduler
// needs: each track's sample table and its decoder wrapper.
type SourceLookup interface {
	VideoTable(sourceID string) *container.SampleTable
	VideoDecoder(sourceID string) *decode.VideoDecoderWrapper
	LastQueuedSample(sourceID string) int
	SetLastQueuedSample(sourceID string, v int)

	AudioTable(sourceID string) *container.SampleTable
	AudioDecoder(sourceID string) *decode.AudioDecoderWrapper
	LastQueuedAudioSample(sourceID string) int
	SetLastQueuedAudioSample(sourceID string, v int)
}

// Scheduler is the DecoderScheduler of spec §4.4.
type Scheduler struct {
	lookup SourceLookup
	params devicetier.Params
}

// New builds a Scheduler bound to a device tier's parameters (max_pending,
// look_ahead_samples, ...). Call Retune if the tier changes at runtime.
func New(lookup SourceLookup, tier devicetier.Tier) *Scheduler {
	return &Scheduler{lookup: lookup, params: devicetier.ParamsFor(tier)}
}

// Retune swaps the tier-dependent parameters (used for tests and for the
// rare case a process-level override is requested).
func (s *Scheduler) Retune(params devicetier.Params) { s.params = params }

// Tick feeds every active clip's decoder for the given timeline time,
// following the five numbered steps of spec §4.4. Video clips drive the
// keyframe-anchored window (feedClip); audio clips use the same
// backpressure/look-ahead window but skip the keyframe precondition, since
// AAC frames are independently decodable (feedAudioClip).
func (s *Scheduler) Tick(timelineTimeUs int64, activeClips []composition.ActiveClip) {
	for _, clip := range activeClips {
		switch clip.TrackKind {
		case composition.KindVideo:
			s.feedClip(timelineTimeUs, clip)
		case composition.KindAudio:
			s.feedAudioClip(timelineTimeUs, clip)
		}
	}
}

func (s *Scheduler) feedClip(timelineTimeUs int64, clip composition.ActiveClip) {
	table := s.lookup.VideoTable(clip.SourceID)
	decoder := s.lookup.VideoDecoder(clip.SourceID)
	if table == nil || decoder == nil || table.Len() == 0 {
		return
	}

	if decoder.State() == decode.NeedsReset {
		if err := decoder.Reset(); err != nil {
			logging.Printf("scheduler: reset decoder for source %s: %v", clip.SourceID, err)
			return
		}
		s.lookup.SetLastQueuedSample(clip.SourceID, -1)
	}

	if decoder.PendingDecodeCount() >= s.params.MaxPending {
		return
	}

	sourceTimeUs := clip.SourceTimeUs(timelineTimeUs)
	targetSample := table.TargetSample(sourceTimeUs)
	if targetSample < 0 {
		// no demuxed sample reaches this time yet (streaming source running
		// behind); feed whatever is buffered so far instead of stalling.
		targetSample = table.Last()
	}
	keyframeSample := table.KeyframeAtOrBefore(targetSample)
	if keyframeSample < 0 {
		keyframeSample = 0
	}

	lastQueued := s.lookup.LastQueuedSample(clip.SourceID)
	start := keyframeSample
	if lastQueued+1 > start {
		start = lastQueued + 1
	}
	end := targetSample + s.params.LookAheadSamples
	if lastSample := table.Len() - 1; end > lastSample {
		end = lastSample
	}
	if end-start+1 > MaxSamplesPerFeed {
		end = start + MaxSamplesPerFeed - 1
	}
	if start > end || start < 0 {
		return
	}

	for i := start; i <= end; i++ {
		sample := table.At(i)
		if err := decoder.Decode(sample); err != nil {
			logging.Printf("scheduler: decode sample %d for source %s: %v", i, clip.SourceID, err)
			return
		}
	}
	s.lookup.SetLastQueuedSample(clip.SourceID, end)
}

// feedAudioClip mirrors feedClip's backpressure/look-ahead window against
// the source's audio track instead of its video track. There is no
// keyframe precondition to anchor the window on: AAC frames decode
// independently, so the window simply resumes at the last queued sample.
func (s *Scheduler) feedAudioClip(timelineTimeUs int64, clip composition.ActiveClip) {
	table := s.lookup.AudioTable(clip.SourceID)
	decoder := s.lookup.AudioDecoder(clip.SourceID)
	if table == nil || decoder == nil || table.Len() == 0 {
		return
	}

	if decoder.State() == decode.NeedsReset {
		if err := decoder.Reset(); err != nil {
			logging.Printf("scheduler: reset audio decoder for source %s: %v", clip.SourceID, err)
			return
		}
		s.lookup.SetLastQueuedAudioSample(clip.SourceID, -1)
	}

	if decoder.PendingDecodeCount() >= s.params.MaxPending {
		return
	}

	sourceTimeUs := clip.SourceTimeUs(timelineTimeUs)
	targetSample := table.TargetSample(sourceTimeUs)
	if targetSample < 0 {
		// no demuxed sample reaches this time yet (streaming source running
		// behind); feed whatever is buffered so far instead of stalling.
		targetSample = table.Last()
	}

	lastQueued := s.lookup.LastQueuedAudioSample(clip.SourceID)
	start := lastQueued + 1
	end := targetSample + s.params.LookAheadSamples
	if lastSample := table.Len() - 1; end > lastSample {
		end = lastSample
	}
	if end-start+1 > MaxSamplesPerFeed {
		end = start + MaxSamplesPerFeed - 1
	}
	if start > end || start < 0 {
		return
	}

	for i := start; i <= end; i++ {
		sample := table.At(i)
		if err := decoder.Decode(sample); err != nil {
			logging.Printf("scheduler: decode audio sample %d for source %s: %v", i, clip.SourceID, err)
			return
		}
	}
	s.lookup.SetLastQueuedAudioSample(clip.SourceID, end)
}

// Package source owns one SourceState per loaded media source: its
// Demuxer, decoders and FrameBuffer, and manages the loading -> playable ->
// ready -> disposed lifecycle (spec §3, §4 SourceState).
package source

import (
	"sync"

	"github.com/nle/engine/container"
	"github.com/nle/engine/decode"
	"github.com/nle/engine/frame"
	"github.com/nle/engine/internal/logging"
)

// Lifecycle is the SourceState lifecycle from spec §3.
type Lifecycle uint8

const (
	Loading Lifecycle = iota
	Playable
	Ready
	Disposed
)

func (l Lifecycle) String() string {
	switch l {
	case Loading:
		return "loading"
	case Playable:
		return "playable"
	case Ready:
		return "ready"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// PlayableSampleThreshold is the number of buffered samples (≈1.5s at 30fps)
// at which a streaming source transitions Loading -> Playable (spec §3, §8
// property #12).
const PlayableSampleThreshold = 45

// State owns one Demuxer + one VideoDecoderWrapper + optional
// AudioDecoderWrapper + one FrameBuffer + track metadata for a single
// source (spec §3 SourceState).
type State struct {
	mu sync.Mutex

	ID           string
	Demuxer      *container.Demuxer
	VideoTrack   *container.TrackDescriptor
	AudioTrack   *container.TrackDescriptor
	VideoDecoder *decode.VideoDecoderWrapper
	AudioDecoder *decode.AudioDecoderWrapper
	FrameBuffer  *frame.Buffer

	lifecycle   Lifecycle
	isStreaming bool
	durationUs  int64
	byteOffset  int64

	lastQueuedSample      int // -1 means "restart from keyframe"
	lastQueuedAudioSample int // -1 means "restart from the next decodable sample"
	videoSampleCount      int

	onPlayable func(State)
	onReady    func(State)
	onError    func(error)
}

// New creates a SourceState in Loading state, wiring the demuxer callbacks
// that drive the lifecycle transitions.
func New(id string, isStreaming bool) *State {
	s := &State{
		ID:               id,
		Demuxer:          container.NewDemuxer(),
		FrameBuffer:      frame.NewBuffer(frame.DefaultCapacity),
		lifecycle:             Loading,
		isStreaming:           isStreaming,
		lastQueuedSample:      -1,
		lastQueuedAudioSample: -1,
	}
	s.Demuxer.OnReady(s.handleReady)
	s.Demuxer.OnSamples(s.handleSamples)
	s.Demuxer.OnError(s.handleError)
	return s
}

// OnPlayable/OnReady/OnError register the engine-level lifecycle callbacks
// (spec §4.9 SourcePlayable/SourceReady/Error events).
func (s *State) OnPlayable(cb func(State)) { s.mu.Lock(); s.onPlayable = cb; s.mu.Unlock() }
func (s *State) OnReady(cb func(State))    { s.mu.Lock(); s.onReady = cb; s.mu.Unlock() }
func (s *State) OnError(cb func(error))    { s.mu.Lock(); s.onError = cb; s.mu.Unlock() }

func (s *State) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

func (s *State) DurationUs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationUs
}

func (s *State) IsReady() bool { return s.Lifecycle() == Ready }

// LastQueuedSample / SetLastQueuedSample are read/written by
// scheduler.DecoderScheduler to track per-source feed progress (spec §4.4).
func (s *State) LastQueuedSample() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQueuedSample
}

func (s *State) SetLastQueuedSample(v int) {
	s.mu.Lock()
	s.lastQueuedSample = v
	s.mu.Unlock()
}

// LastQueuedAudioSample / SetLastQueuedAudioSample mirror
// LastQueuedSample/SetLastQueuedSample for the source's audio track; kept
// separate since a source's video and audio sample tables advance
// independently.
func (s *State) LastQueuedAudioSample() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQueuedAudioSample
}

func (s *State) SetLastQueuedAudioSample(v int) {
	s.mu.Lock()
	s.lastQueuedAudioSample = v
	s.mu.Unlock()
}

// ResetForSeek forces the scheduler to restart from a keyframe (spec §4.4
// "After a seek the scheduler sets last_queued_sample = -1") on both the
// video and audio tracks.
func (s *State) ResetForSeek() {
	s.SetLastQueuedSample(-1)
	s.SetLastQueuedAudioSample(-1)
}

// Append feeds bytes into the demuxer at the source's monotone byte offset
// (spec §3 Source.byte_offset, §4.9 AppendSourceChunk).
func (s *State) Append(data []byte, isLast bool) {
	s.mu.Lock()
	offset := s.byteOffset
	s.byteOffset += int64(len(data))
	s.mu.Unlock()

	s.Demuxer.Append(data, offset)
	if isLast {
		s.Demuxer.Finish()
	}
}

// Dispose transitions the source to Disposed, closing decoders and
// dropping frames (spec §3 lifecycle).
func (s *State) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == Disposed {
		return
	}
	s.lifecycle = Disposed
	if s.FrameBuffer != nil {
		s.FrameBuffer.Clear()
	}
	if s.VideoDecoder != nil {
		if err := s.VideoDecoder.Close(); err != nil {
			logging.Printf("source %s: error closing video decoder: %v", s.ID, err)
		}
	}
	if s.AudioDecoder != nil {
		if err := s.AudioDecoder.Close(); err != nil {
			logging.Printf("source %s: error closing audio decoder: %v", s.ID, err)
		}
	}
}

func (s *State) handleReady(info container.ReadyInfo) {
	s.mu.Lock()
	for i := range info.Tracks {
		t := info.Tracks[i]
		if t.IsVideo() && s.VideoTrack == nil {
			s.VideoTrack = &t
		}
		if t.IsAudio() && s.AudioTrack == nil {
			s.AudioTrack = &t
		}
	}
	if info.DurationUs > 0 {
		s.durationUs = info.DurationUs
	}
	s.mu.Unlock()
}

func (s *State) handleSamples(trackID int, batch []Sample) {
	s.mu.Lock()
	if s.VideoTrack != nil && trackID == s.VideoTrack.TrackID {
		s.videoSampleCount += len(batch)
	}
	s.mu.Unlock()
	s.maybeTransitionToPlayable()
}

// Sample is a thin alias to avoid importing container in unrelated call
// sites; kept identical in shape to container.Sample.
type Sample = container.Sample

func (s *State) maybeTransitionToPlayable() {
	s.mu.Lock()
	if s.lifecycle != Loading || s.VideoTrack == nil || s.videoSampleCount < PlayableSampleThreshold {
		s.mu.Unlock()
		return
	}
	s.lifecycle = Playable
	cb := s.onPlayable
	s.mu.Unlock()
	if cb != nil {
		cb(*s)
	}
}

func (s *State) handleError(err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
	s.Dispose()
}

// MarkTerminalFlushComplete transitions Playable/Loading -> Ready once the
// demuxer has finished and drained (spec §3: "Ready when demuxer terminal
// flush completes"). The engine calls this after the terminal Append (which
// calls Demuxer.Finish): for LoadSource only once Demuxer.IsReady() holds and
// the decoders are built, for a stream's last AppendSourceChunk regardless.
func (s *State) MarkTerminalFlushComplete() {
	s.mu.Lock()
	if s.lifecycle == Disposed || s.lifecycle == Ready {
		s.mu.Unlock()
		return
	}
	s.lifecycle = Ready
	cb := s.onReady
	s.mu.Unlock()
	if cb != nil {
		cb(*s)
	}
}

// Package engine wires SourceState, DecoderScheduler, PlaybackClock,
// Compositor and AudioController into the single render-domain orchestrator
// external collaborators talk to through commands and events (spec §4.9,
// §6). It generalizes the teacher's single-file Player: one Player per video
// becomes one SourceState per source, all owned by one Engine.
package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/erparts/reisen"
	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
	ebitenaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"golang.org/x/sync/errgroup"

	"github.com/nle/engine/audio"
	"github.com/nle/engine/composition"
	"github.com/nle/engine/container"
	"github.com/nle/engine/decode"
	"github.com/nle/engine/devicetier"
	"github.com/nle/engine/frame"
	"github.com/nle/engine/internal/logging"
	"github.com/nle/engine/render"
	"github.com/nle/engine/scheduler"
	"github.com/nle/engine/source"
)

// firstFrameTimeout bounds RequestFirstFrame's blocking wait on the decoder's
// output channel, so a malformed keyframe can't hang the render domain.
const firstFrameTimeout = 2 * time.Second

// Engine is the render domain of spec §5: it owns every SourceState, the
// composition snapshot, the clock, compositor and scheduler, and the audio
// domain's controller. Handle and Tick are the only entry points; both are
// meant to be called from a single goroutine (the render domain's own event
// loop), matching the spec's "no locks required, cooperative domains" model.
type Engine struct {
	sources    *source.Manager
	comp       *composition.Composition
	clock      *render.Clock
	compositor *render.Compositor
	sched      *scheduler.Scheduler
	audioCtrl  *audio.Controller
	bus        Bus
	tier       devicetier.Tier

	generation uint64 // bumped on every Seek (spec §5 cancellation)

	tempPaths map[string]string
	tempFiles map[string]*os.File // open only for in-progress streaming sources
	dims      map[string][2]int   // source_id -> (width, height), once known
}

// New creates an Engine sized for a width x height display surface, bound to
// an ebiten audio context (may be nil if the caller genuinely has no audio
// output, e.g. headless tests).
func New(width, height int, audioContext *ebitenaudio.Context) *Engine {
	tier := devicetier.Detect()
	e := &Engine{
		sources:    source.NewManager(),
		comp:       composition.New(),
		clock:      render.NewClock(),
		compositor: render.NewCompositor(width, height, tier),
		audioCtrl:  audio.New(audioContext, nowUs),
		tier:       tier,
		tempPaths:  make(map[string]string),
		tempFiles:  make(map[string]*os.File),
		dims:       make(map[string][2]int),
	}
	e.sched = scheduler.New(e, tier)
	return e
}

func nowUs() int64 { return time.Now().UnixMicro() }

func nowMs() int64 { return time.Now().UnixMilli() }

// Events returns the engine's event bus; collaborators Subscribe on it.
func (e *Engine) Events() *Bus { return &e.bus }

// Close releases the compositor's GPU resources and disposes every source.
func (e *Engine) Close() {
	for _, s := range e.sources.All() {
		e.sources.Remove(s.ID)
	}
	e.compositor.Close()
}

// --- scheduler.SourceLookup ---

func (e *Engine) VideoTable(sourceID string) *container.SampleTable {
	s := e.sources.Get(sourceID)
	if s == nil || s.VideoTrack == nil {
		return nil
	}
	return s.Demuxer.Table(s.VideoTrack.TrackID)
}

func (e *Engine) VideoDecoder(sourceID string) *decode.VideoDecoderWrapper {
	s := e.sources.Get(sourceID)
	if s == nil {
		return nil
	}
	return s.VideoDecoder
}

func (e *Engine) LastQueuedSample(sourceID string) int {
	s := e.sources.Get(sourceID)
	if s == nil {
		return -1
	}
	return s.LastQueuedSample()
}

func (e *Engine) SetLastQueuedSample(sourceID string, v int) {
	if s := e.sources.Get(sourceID); s != nil {
		s.SetLastQueuedSample(v)
	}
}

func (e *Engine) AudioTable(sourceID string) *container.SampleTable {
	s := e.sources.Get(sourceID)
	if s == nil || s.AudioTrack == nil {
		return nil
	}
	return s.Demuxer.Table(s.AudioTrack.TrackID)
}

func (e *Engine) AudioDecoder(sourceID string) *decode.AudioDecoderWrapper {
	s := e.sources.Get(sourceID)
	if s == nil {
		return nil
	}
	return s.AudioDecoder
}

func (e *Engine) LastQueuedAudioSample(sourceID string) int {
	s := e.sources.Get(sourceID)
	if s == nil {
		return -1
	}
	return s.LastQueuedAudioSample()
}

func (e *Engine) SetLastQueuedAudioSample(sourceID string, v int) {
	if s := e.sources.Get(sourceID); s != nil {
		s.SetLastQueuedAudioSample(v)
	}
}

// --- render.FrameLookup ---

func (e *Engine) BufferFor(sourceID string) *frame.Buffer {
	s := e.sources.Get(sourceID)
	if s == nil {
		return nil
	}
	return s.FrameBuffer
}

// Handle dispatches one command variant from engine/commands.go (spec §4.9,
// §6). Unknown command types are an error: callers should exhaust the
// documented variant set.
func (e *Engine) Handle(cmd any) error {
	switch c := cmd.(type) {
	case LoadSource:
		return e.handleLoadSource(c)
	case StartSourceStream:
		return e.handleStartSourceStream(c)
	case AppendSourceChunk:
		return e.handleAppendSourceChunk(c)
	case RemoveSource:
		return e.handleRemoveSource(c)
	case SetActiveClips:
		return e.handleSetActiveClips(c)
	case Seek:
		return e.handleSeek(c)
	case Play:
		return e.handlePlay()
	case Pause:
		return e.handlePause()
	case SyncToTime:
		return e.handleSyncToTime(c)
	case RequestFirstFrame:
		return e.handleRequestFirstFrame(c)
	default:
		return fmt.Errorf("engine: unhandled command type %T", cmd)
	}
}

func (e *Engine) registerLifecycleCallbacks(s *source.State) {
	s.OnPlayable(func(st source.State) {
		w, h := e.dims[st.ID][0], e.dims[st.ID][1]
		e.bus.Publish(SourcePlayable{SourceID: st.ID, DurationUs: st.DurationUs(), Width: w, Height: h})
	})
	s.OnReady(func(st source.State) {
		w, h := e.dims[st.ID][0], e.dims[st.ID][1]
		e.bus.Publish(SourceReady{SourceID: st.ID, DurationUs: st.DurationUs(), Width: w, Height: h})
	})
	s.OnError(func(err error) {
		e.bus.Publish(ErrorEvent{Message: err.Error(), SourceID: s.ID})
	})
}

func (e *Engine) handleLoadSource(c LoadSource) error {
	s := source.New(c.SourceID, false)
	e.registerLifecycleCallbacks(s)
	e.sources.Register(s)
	e.clock.AttachFirstSource()

	path, err := writeTempFile(c.Bytes)
	if err != nil {
		return fmt.Errorf("engine: write temp file for %s: %w", c.SourceID, err)
	}
	e.tempPaths[c.SourceID] = path

	s.Append(c.Bytes, true)
	if s.Demuxer.IsReady() {
		if err := e.buildDecoders(s, path); err != nil {
			e.bus.Publish(ErrorEvent{Message: err.Error(), SourceID: c.SourceID})
			return err
		}
		s.MarkTerminalFlushComplete()
	}
	return nil
}

func (e *Engine) handleStartSourceStream(c StartSourceStream) error {
	s := source.New(c.SourceID, true)
	e.registerLifecycleCallbacks(s)
	e.sources.Register(s)
	e.clock.AttachFirstSource()

	f, err := os.CreateTemp("", "nle-source-"+uuid.NewString()+"-*.mp4")
	if err != nil {
		return fmt.Errorf("engine: create temp file for %s: %w", c.SourceID, err)
	}
	e.tempFiles[c.SourceID] = f
	e.tempPaths[c.SourceID] = f.Name()
	return nil
}

func (e *Engine) handleAppendSourceChunk(c AppendSourceChunk) error {
	s := e.sources.Get(c.SourceID)
	if s == nil {
		return fmt.Errorf("engine: append chunk: unknown source %q", c.SourceID)
	}
	if f := e.tempFiles[c.SourceID]; f != nil {
		if _, err := f.Write(c.Bytes); err != nil {
			return fmt.Errorf("engine: write chunk for %s: %w", c.SourceID, err)
		}
	}

	s.Append(c.Bytes, c.IsLast)
	if !c.IsLast {
		return nil
	}

	if f := e.tempFiles[c.SourceID]; f != nil {
		f.Close()
		delete(e.tempFiles, c.SourceID)
	}
	if s.Demuxer.IsReady() {
		if err := e.buildDecoders(s, e.tempPaths[c.SourceID]); err != nil {
			e.bus.Publish(ErrorEvent{Message: err.Error(), SourceID: c.SourceID})
			return err
		}
	}
	s.MarkTerminalFlushComplete()
	return nil
}

// buildDecoders opens the accumulated bytes as a reisen.Media and binds
// file-backed decoder backends (spec's Open Question #4 seam, also
// documented in decode/reisen_codec.go): reisen needs a filename up front,
// so this can only happen once a source's bytes are fully available, whether
// that is immediately (LoadSource) or only after the terminal AppendChunk
// (StartSourceStream).
func (e *Engine) buildDecoders(s *source.State, path string) error {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	if err := media.OpenDecode(); err != nil {
		return fmt.Errorf("open decode: %w", err)
	}

	if s.VideoTrack != nil {
		videoStreams := media.VideoStreams()
		if len(videoStreams) == 0 {
			return fmt.Errorf("source %s: demuxer reports a video track but reisen found none", s.ID)
		}
		vs := videoStreams[0]
		if err := vs.Open(); err != nil {
			return fmt.Errorf("open video stream: %w", err)
		}
		wrapper := decode.NewVideoDecoderWrapper(decode.NewReisenVideoCodec(media, vs))
		if err := wrapper.Configure(decode.CodecParams{
			Codec:  s.VideoTrack.Codec,
			Width:  vs.Width(),
			Height: vs.Height(),
		}); err != nil {
			return fmt.Errorf("configure video decoder: %w", err)
		}
		s.VideoDecoder = wrapper
		e.dims[s.ID] = [2]int{vs.Width(), vs.Height()}
	}

	if s.AudioTrack != nil {
		audioStreams := media.AudioStreams()
		if len(audioStreams) > 0 {
			as := audioStreams[0]
			if err := as.Open(); err != nil {
				return fmt.Errorf("open audio stream: %w", err)
			}
			wrapper := decode.NewAudioDecoderWrapper(decode.NewReisenAudioCodec(as))
			if err := wrapper.Configure(decode.CodecParams{
				Codec:        container.CodecAAC,
				SampleRate:   as.SampleRate(),
				ChannelCount: audioChannelCount(as),
			}); err != nil {
				return fmt.Errorf("configure audio decoder: %w", err)
			}
			s.AudioDecoder = wrapper
		}
	}
	return nil
}

// audioChannelCount mirrors VideoStream.Width()/Height()'s accessor style;
// reisen exposes channel count the same way on its audio streams.
func audioChannelCount(as *reisen.AudioStream) int {
	if n := as.ChannelCount(); n > 0 {
		return n
	}
	return 2
}

func writeTempFile(data []byte) (string, error) {
	f, err := os.CreateTemp("", "nle-source-"+uuid.NewString()+"-*.mp4")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (e *Engine) handleRemoveSource(c RemoveSource) error {
	if f := e.tempFiles[c.SourceID]; f != nil {
		f.Close()
		delete(e.tempFiles, c.SourceID)
	}
	if path := e.tempPaths[c.SourceID]; path != "" {
		os.Remove(path)
		delete(e.tempPaths, c.SourceID)
	}
	delete(e.dims, c.SourceID)
	e.audioCtrl.DropSource(c.SourceID)
	e.sources.Remove(c.SourceID)
	e.bus.Publish(SourceRemoved{SourceID: c.SourceID})
	return nil
}

func (e *Engine) handleSetActiveClips(c SetActiveClips) error {
	e.comp.SetTracks(c.Tracks)
	e.clock.SetDurationUs(c.CompositionDurationUs)
	return nil
}

// handleSeek implements spec §4.7/§5: bump the generation, clear every
// FrameBuffer synchronously, restart every source's scheduler window from a
// keyframe, reanchor the clock, and stop/reschedule audio from the new time.
// Every video decoder is also Reset, bumping its backend's own generation
// counter in lockstep with e.generation: any frame already in flight from
// before the reset carries the stale generation and is closed on arrival
// (drainVideo), never reaching the FrameBuffer the seek just cleared.
func (e *Engine) handleSeek(c Seek) error {
	e.generation++
	t := e.clock.Seek(c.TimeUs, nowMs())

	// Resolve each source's post-seek source time, if it owns an active clip
	// at t, before rewinding its decoder to that point rather than to zero.
	sourceTimeAt := make(map[string]int64)
	for _, clip := range e.comp.ActiveClipsAt(t) {
		sourceTimeAt[clip.SourceID] = clip.SourceTimeUs(t)
	}

	for _, s := range e.sources.All() {
		s.FrameBuffer.Clear()
		s.ResetForSeek()
		target, hasTarget := sourceTimeAt[s.ID]
		if s.VideoDecoder != nil {
			var err error
			if hasTarget {
				err = s.VideoDecoder.ResetTo(target)
			} else {
				err = s.VideoDecoder.Reset()
			}
			if err != nil {
				logging.Printf("engine: reset video decoder for %s on seek: %v", s.ID, err)
			}
		}
		if s.AudioDecoder != nil {
			var err error
			if hasTarget {
				err = s.AudioDecoder.ResetTo(target)
			} else {
				err = s.AudioDecoder.Reset()
			}
			if err != nil {
				logging.Printf("engine: reset audio decoder for %s on seek: %v", s.ID, err)
			}
		}
	}

	e.audioCtrl.StopAll()
	if e.clock.State() == render.Playing {
		e.audioCtrl.ScheduleAll(e.comp.ActiveClipsAt(t), t)
	}
	e.bus.Publish(SeekComplete{TimeUs: t})
	return nil
}

func (e *Engine) handlePlay() error {
	e.clock.Play(nowMs())
	e.audioCtrl.ScheduleAll(e.comp.ActiveClipsAt(e.clock.CurrentTimeUs()), e.clock.CurrentTimeUs())
	e.bus.Publish(PlaybackStateEvent{IsPlaying: true})
	return nil
}

func (e *Engine) handlePause() error {
	e.clock.Pause()
	e.audioCtrl.StopAll()
	e.bus.Publish(PlaybackStateEvent{IsPlaying: false})
	return nil
}

// handleSyncToTime reanchors the clock to an externally-observed time
// without the seek side effects (no generation bump, no buffer clear): it is
// a correction, not a scrub, used e.g. when an external collaborator's own
// clock (editor scrubbing preview) has drifted from the engine's.
func (e *Engine) handleSyncToTime(c SyncToTime) error {
	e.clock.Seek(c.TimeUs, nowMs())
	return nil
}

// handleRequestFirstFrame synchronously decodes a source's first keyframe
// for thumbnailing (spec §4.9), independent of playback state.
func (e *Engine) handleRequestFirstFrame(c RequestFirstFrame) error {
	s := e.sources.Get(c.SourceID)
	if s == nil || s.VideoDecoder == nil {
		return fmt.Errorf("engine: request first frame: source %q has no video decoder yet", c.SourceID)
	}
	table := e.VideoTable(c.SourceID)
	if table == nil || table.Len() == 0 {
		return fmt.Errorf("engine: request first frame: source %q has no samples yet", c.SourceID)
	}

	sample := table.At(0)
	if err := s.VideoDecoder.Decode(sample); err != nil {
		return fmt.Errorf("engine: decode first frame for %s: %w", c.SourceID, err)
	}

	select {
	case out := <-s.VideoDecoder.Output():
		s.VideoDecoder.MarkDrained()
		img, ok := out.Image.(frame.GPUImage)
		if !ok {
			return fmt.Errorf("engine: first frame for %s has unexpected image type %T", c.SourceID, out.Image)
		}
		blob, w, h, err := encodePNG(img)
		if err != nil {
			return fmt.Errorf("engine: encode first frame for %s: %w", c.SourceID, err)
		}
		e.bus.Publish(FirstFrame{SourceID: c.SourceID, ImageBlob: blob, Width: w, Height: h})
		return nil
	case <-time.After(firstFrameTimeout):
		return fmt.Errorf("engine: request first frame: timed out waiting for source %q", c.SourceID)
	}
}

func encodePNG(img frame.GPUImage) ([]byte, int, int, error) {
	ei, ok := img.(*ebiten.Image)
	if !ok {
		return nil, 0, 0, fmt.Errorf("not an ebiten image")
	}
	bounds := ei.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, 4*w*h)
	ei.ReadPixels(pix)

	rgba := &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), w, h, nil
}

// Tick drives one render-domain pass (spec §2's per-tick data flow): advance
// the clock, resolve active clips, feed the scheduler, drain decoder output
// into frame buffers, composite, and check audio drift. target is the
// display surface the caller owns (its size must match what NewCompositor
// was built with).
func (e *Engine) Tick(nowMsArg int64, target *ebiten.Image) (render.RenderResult, error) {
	timeUs, reachedEnd := e.clock.Tick(nowMsArg)
	activeClips := e.comp.ActiveClipsAt(timeUs)

	e.sched.Tick(timeUs, activeClips)

	var videoSources, audioSources []string
	seenVideo := map[string]bool{}
	seenAudio := map[string]bool{}
	var activeVideoClips []composition.ActiveClip
	var activeAudioClips []composition.ActiveClip
	clipTimes := make(map[string]int64)

	for _, clip := range activeClips {
		switch clip.TrackKind {
		case composition.KindVideo:
			activeVideoClips = append(activeVideoClips, clip)
			clipTimes[clip.ClipID] = clip.SourceTimeUs(timeUs)
			if !seenVideo[clip.SourceID] {
				seenVideo[clip.SourceID] = true
				videoSources = append(videoSources, clip.SourceID)
			}
		case composition.KindAudio:
			activeAudioClips = append(activeAudioClips, clip)
			if !seenAudio[clip.SourceID] {
				seenAudio[clip.SourceID] = true
				audioSources = append(audioSources, clip.SourceID)
			}
		}
	}

	var g errgroup.Group
	for _, id := range videoSources {
		id := id
		g.Go(func() error { e.drainVideo(id); return nil })
	}
	for _, id := range audioSources {
		id := id
		g.Go(func() error { e.drainAudio(id); return nil })
	}
	_ = g.Wait()

	result := e.compositor.Render(target, activeVideoClips, clipTimes, e)

	if e.clock.State() == render.Playing {
		if _, resynced := e.audioCtrl.CheckDrift(timeUs, activeAudioClips); resynced {
			logging.Printf("engine: audio drift corrected at t=%d", timeUs)
		}
	}
	if reachedEnd {
		e.audioCtrl.StopAll()
		e.bus.Publish(PlaybackStateEvent{IsPlaying: false})
	}

	e.bus.Publish(TimeUpdate{CurrentTimeUs: timeUs})
	return result, nil
}

// drainVideo moves every frame currently sitting in a source's decoder
// output channel into its FrameBuffer, tagging stale generations for
// immediate disposal (spec §5 cancellation: "any in-flight decoded frame
// whose producing generation does not match the current one must be closed
// immediately on arrival").
func (e *Engine) drainVideo(sourceID string) {
	s := e.sources.Get(sourceID)
	if s == nil || s.VideoDecoder == nil {
		return
	}
	currentGen := s.VideoDecoder.CurrentGeneration()
	for {
		select {
		case out := <-s.VideoDecoder.Output():
			s.VideoDecoder.MarkDrained()
			img, ok := out.Image.(frame.GPUImage)
			if !ok {
				continue
			}
			h := frame.New(img, out.TimestampUs, out.Generation)
			if out.Generation != currentGen {
				h.Close()
				continue
			}
			s.FrameBuffer.Push(h)
		default:
			return
		}
	}
}

func (e *Engine) drainAudio(sourceID string) {
	s := e.sources.Get(sourceID)
	if s == nil || s.AudioDecoder == nil {
		return
	}
	channelCount := 2
	if s.AudioTrack != nil && s.AudioTrack.ChannelCount > 0 {
		channelCount = s.AudioTrack.ChannelCount
	}
	for {
		select {
		case out := <-s.AudioDecoder.OutputPCM():
			s.AudioDecoder.MarkDrained()
			e.audioCtrl.StorePCM(sourceID, channelCount, audio.PCMChunk{
				PCM:         out.PCM,
				TimestampUs: out.TimestampUs,
				DurationUs:  out.DurationUs,
			})
			e.audioCtrl.SetAudioReady(sourceID, true)
			e.bus.Publish(AudioData{
				SourceID:    sourceID,
				PCM:         out.PCM,
				SampleRate:  sampleRateFrom(s),
				Channels:    channelCount,
				TimestampUs: out.TimestampUs,
				DurationUs:  out.DurationUs,
			})
		default:
			return
		}
	}
}

func sampleRateFrom(s *source.State) int {
	if s.AudioTrack != nil {
		return s.AudioTrack.SampleRate
	}
	return 0
}

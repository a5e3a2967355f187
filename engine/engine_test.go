package engine

import (
	"testing"

	"github.com/nle/engine/composition"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(64, 64, nil)
	t.Cleanup(e.Close)
	return e
}

func TestHandleUnknownCommand(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Handle(struct{ X int }{1}); err == nil {
		t.Fatal("expected an error for an unrecognized command type")
	}
}

func TestHandleRemoveUnknownSourceIsNoop(t *testing.T) {
	e := newTestEngine(t)
	var removed bool
	e.Events().Subscribe(func(ev any) {
		if _, ok := ev.(SourceRemoved); ok {
			removed = true
		}
	})
	if err := e.Handle(RemoveSource{SourceID: "nope"}); err != nil {
		t.Fatalf("RemoveSource on unknown source: %v", err)
	}
	if !removed {
		t.Fatal("expected SourceRemoved to be published even for an unknown source")
	}
}

func TestSetActiveClipsFeedsClockDuration(t *testing.T) {
	e := newTestEngine(t)
	err := e.Handle(SetActiveClips{
		Tracks: []composition.Track{{
			Kind: composition.KindVideo,
			Clips: []composition.Clip{{
				ID: "c1", SourceID: "s1", Kind: composition.KindVideo,
				TimelineStartUs: 0, SourceStartUs: 0, SourceEndUs: 5_000_000,
				Opacity: 1, Volume: 1,
			}},
		}},
		HasClipsAtTime:        true,
		CompositionDurationUs: 5_000_000,
	})
	if err != nil {
		t.Fatalf("SetActiveClips: %v", err)
	}
	if e.clock.CurrentTimeUs() != 0 {
		t.Fatalf("CurrentTimeUs() = %d, want 0 before any Play/Seek", e.clock.CurrentTimeUs())
	}
	// the clock now clamps seeks to the composition duration it was fed
	if err := e.Handle(Seek{TimeUs: 9_000_000}); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if e.clock.CurrentTimeUs() != 5_000_000 {
		t.Fatalf("CurrentTimeUs() after Seek past end = %d, want 5000000", e.clock.CurrentTimeUs())
	}
}

func TestPlayPauseTogglesPlaybackStateEvents(t *testing.T) {
	e := newTestEngine(t)
	var states []bool
	e.Events().Subscribe(func(ev any) {
		if p, ok := ev.(PlaybackStateEvent); ok {
			states = append(states, p.IsPlaying)
		}
	})

	if err := e.Handle(Play{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := e.Handle(Pause{}); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	if len(states) != 2 || states[0] != true || states[1] != false {
		t.Fatalf("PlaybackStateEvent sequence = %v, want [true false]", states)
	}
}

func TestSeekBumpsGenerationAndPublishesSeekComplete(t *testing.T) {
	e := newTestEngine(t)
	var got int64 = -1
	e.Events().Subscribe(func(ev any) {
		if s, ok := ev.(SeekComplete); ok {
			got = s.TimeUs
		}
	})

	e.clock.SetDurationUs(5_000_000) // seeks clamp to the composition duration
	startGen := e.generation
	if err := e.Handle(Seek{TimeUs: 2_000_000}); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if e.generation != startGen+1 {
		t.Fatalf("generation = %d, want %d", e.generation, startGen+1)
	}
	if got != 2_000_000 {
		t.Fatalf("SeekComplete.TimeUs = %d, want 2000000", got)
	}
}

func TestSyncToTimeDoesNotBumpGeneration(t *testing.T) {
	e := newTestEngine(t)
	e.clock.SetDurationUs(5_000_000) // SyncToTime clamps to the composition duration
	startGen := e.generation
	if err := e.Handle(SyncToTime{TimeUs: 1_000_000}); err != nil {
		t.Fatalf("SyncToTime: %v", err)
	}
	if e.generation != startGen {
		t.Fatalf("generation changed on SyncToTime: %d != %d", e.generation, startGen)
	}
	if e.clock.CurrentTimeUs() != 1_000_000 {
		t.Fatalf("CurrentTimeUs() = %d, want 1000000", e.clock.CurrentTimeUs())
	}
}

func TestRequestFirstFrameFailsWithoutSource(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Handle(RequestFirstFrame{SourceID: "missing"}); err == nil {
		t.Fatal("expected an error requesting a first frame for an unknown source")
	}
}

package source

import (
	"testing"

	"github.com/nle/engine/container"
)

func TestSourcePlayableTransitionExactlyOnce(t *testing.T) {
	s := New("A", true)
	playableEvents := 0
	s.OnPlayable(func(State) { playableEvents++ })

	videoTrack := container.TrackDescriptor{TrackID: 1, Codec: container.CodecH264, Timescale: 30000}
	s.handleReady(container.ReadyInfo{Tracks: []container.TrackDescriptor{videoTrack}})

	// simulate the demuxer delivering samples one at a time up to the threshold
	for i := 0; i < PlayableSampleThreshold-1; i++ {
		s.handleSamples(1, []container.Sample{{CTSUs: int64(i) * 33_000}})
		if s.Lifecycle() != Loading {
			t.Fatalf("after %d samples, lifecycle = %v, want Loading", i+1, s.Lifecycle())
		}
	}

	s.handleSamples(1, []container.Sample{{CTSUs: int64(PlayableSampleThreshold) * 33_000}})
	if s.Lifecycle() != Playable {
		t.Fatalf("after threshold samples, lifecycle = %v, want Playable", s.Lifecycle())
	}
	if playableEvents != 1 {
		t.Fatalf("playableEvents = %d, want exactly 1", playableEvents)
	}

	// further appends must not re-fire onPlayable
	s.handleSamples(1, []container.Sample{{CTSUs: int64(PlayableSampleThreshold+1) * 33_000}})
	if playableEvents != 1 {
		t.Fatalf("playableEvents after extra append = %d, want still 1", playableEvents)
	}
}

func TestMarkTerminalFlushCompleteEmitsReadyOnce(t *testing.T) {
	s := New("A", false)
	readyEvents := 0
	s.OnReady(func(State) { readyEvents++ })

	s.MarkTerminalFlushComplete()
	s.MarkTerminalFlushComplete()
	if readyEvents != 1 {
		t.Fatalf("readyEvents = %d, want 1", readyEvents)
	}
	if s.Lifecycle() != Ready {
		t.Fatalf("Lifecycle() = %v, want Ready", s.Lifecycle())
	}
}

func TestManagerRegisterDisposesPrior(t *testing.T) {
	m := NewManager()
	a := New("A", false)
	m.Register(a)
	b := New("A", false)
	m.Register(b)

	if m.Get("A") != b {
		t.Fatal("expected second registration to replace the first")
	}
	if a.Lifecycle() != Disposed {
		t.Fatal("expected prior source to be disposed on replacement")
	}
}

package render

import (
	"image"
	"testing"

	"github.com/nle/engine/composition"
	"github.com/nle/engine/frame"
)

func TestScaleOpacityScalesEveryChannel(t *testing.T) {
	src := &image.RGBA{
		Pix:    []byte{200, 100, 50, 255},
		Stride: 4,
		Rect:   image.Rect(0, 0, 1, 1),
	}
	scaleOpacity(src, 0.5)
	want := []byte{100, 50, 25, 128}
	for i := range want {
		if src.Pix[i] != want[i] {
			t.Fatalf("Pix[%d] = %d, want %d", i, src.Pix[i], want[i])
		}
	}
}

func TestScaleOpacityFullOpacityIsNoop(t *testing.T) {
	src := &image.RGBA{
		Pix:    []byte{10, 20, 30, 40},
		Stride: 4,
		Rect:   image.Rect(0, 0, 1, 1),
	}
	scaleOpacity(src, 1.0)
	want := []byte{10, 20, 30, 40}
	for i := range want {
		if src.Pix[i] != want[i] {
			t.Fatalf("Pix[%d] = %d, want %d (expected no-op at full opacity)", i, src.Pix[i], want[i])
		}
	}
}

type fakeGPUImage struct{ disposed bool }

func (f *fakeGPUImage) Dispose() { f.disposed = true }

type fakeLookup struct {
	buffers map[string]*frame.Buffer
}

func (l *fakeLookup) BufferFor(sourceID string) *frame.Buffer { return l.buffers[sourceID] }

func TestResolveLayersNoActiveClipsClearsToBlack(t *testing.T) {
	_, result := resolveLayers(nil, nil, &fakeLookup{})
	if result != ResultClearedToBlack {
		t.Fatalf("result = %v, want ResultClearedToBlack", result)
	}
}

func TestResolveLayersWithFrameComposites(t *testing.T) {
	buf := frame.NewBuffer(4)
	buf.Push(frame.New(&fakeGPUImage{}, 1_000_000, 0))

	lookup := &fakeLookup{buffers: map[string]*frame.Buffer{"A": buf}}
	clips := []composition.ActiveClip{{ClipID: "c1", SourceID: "A", Opacity: 1.0}}
	times := map[string]int64{"c1": 1_000_000}

	layers, result := resolveLayers(clips, times, lookup)
	if result != ResultComposited {
		t.Fatalf("result = %v, want ResultComposited", result)
	}
	if len(layers) != 1 {
		t.Fatalf("len(layers) = %d, want 1", len(layers))
	}
	for _, l := range layers {
		l.handle.Close()
	}
}

func TestResolveLayersBufferingDoesNotRender(t *testing.T) {
	emptyBuf := frame.NewBuffer(4)
	lookup := &fakeLookup{buffers: map[string]*frame.Buffer{"A": emptyBuf}}
	clips := []composition.ActiveClip{{ClipID: "c1", SourceID: "A"}}

	_, result := resolveLayers(clips, map[string]int64{"c1": 0}, lookup)
	if result != ResultNotRendered {
		t.Fatalf("result = %v, want ResultNotRendered", result)
	}
}

func TestResolveLayersNoClipsWithEmptyLookupClearsToBlack(t *testing.T) {
	lookup := &fakeLookup{buffers: map[string]*frame.Buffer{}}
	// no active video clips and no registered buffers: spec case 2 (true gap)
	// clears to black. An active clip with no buffer would instead count as
	// buffering (ResultNotRendered), so no clips are passed here.
	_, result := resolveLayers(nil, nil, lookup)
	if result != ResultClearedToBlack {
		t.Fatalf("result = %v, want ResultClearedToBlack", result)
	}
}

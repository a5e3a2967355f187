package frame

import "testing"

type fakeImage struct{ disposed bool }

func (f *fakeImage) Dispose() { f.disposed = true }

func TestBufferBestForCurrentFrame(t *testing.T) {
	b := NewBuffer(8)
	imgs := []*fakeImage{{}, {}, {}}
	b.Push(New(imgs[0], 0, 1))
	b.Push(New(imgs[1], 33_000, 1))
	b.Push(New(imgs[2], 66_000, 1))

	got := b.BestFor(50_000)
	if got == nil || got.TimestampUs() != 33_000 {
		t.Fatalf("BestFor(50000) = %v, want ts=33000", got)
	}
	got.Close()
}

func TestBufferBestForFallbackWhenAllFuture(t *testing.T) {
	b := NewBuffer(8)
	b.Push(New(&fakeImage{}, 100_000, 1))
	b.Push(New(&fakeImage{}, 133_000, 1))

	got := b.BestFor(0)
	if got == nil || got.TimestampUs() != 100_000 {
		t.Fatalf("BestFor(0) fallback = %v, want ts=100000 (nearest)", got)
	}
	got.Close()
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	b := NewBuffer(2)
	img0 := &fakeImage{}
	b.Push(New(img0, 0, 1))
	b.Push(New(&fakeImage{}, 33_000, 1))
	b.Push(New(&fakeImage{}, 66_000, 1)) // overflow: drops ts=0

	if !img0.disposed {
		t.Fatal("oldest frame should have been disposed on overflow")
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestBufferPruneStaleFrames(t *testing.T) {
	b := NewBuffer(8)
	stale := &fakeImage{}
	b.Push(New(stale, 0, 1))
	b.Push(New(&fakeImage{}, 600_000, 1)) // > MaxFrameLagUs (500ms) ahead

	got := b.BestFor(600_000)
	if got == nil || got.TimestampUs() != 600_000 {
		t.Fatalf("BestFor = %v, want ts=600000", got)
	}
	got.Close()
	if !stale.disposed {
		t.Fatal("stale frame (ts=0) should be pruned once selected ts is 600000")
	}
}

func TestBufferCloneRefcounting(t *testing.T) {
	img := &fakeImage{}
	h := New(img, 0, 1)
	clone := h.Clone()
	if h != clone {
		t.Fatal("Clone should return the same handle, sharing the underlying image")
	}
	if h.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", h.RefCount())
	}
	clone.Close()
	if img.disposed {
		t.Fatal("image disposed too early")
	}
	h.Close()
	if !img.disposed {
		t.Fatal("image should be disposed once refcount reaches zero")
	}
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(8)
	img := &fakeImage{}
	b.Push(New(img, 0, 1))
	b.Clear()
	if !img.disposed {
		t.Fatal("Clear should close all queued frames")
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", b.Len())
	}
}

// Package frame implements the bounded per-source decoded-frame queue and
// the ref-counted GPU handle wrapper it stores (spec §3 DecodedFrame, §4.3
// FrameBuffer).
package frame

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// GPUImage is the subset of *ebiten.Image operations the handle needs.
// Abstracted so tests can exercise FrameBuffer without a real GPU context.
type GPUImage interface {
	Dispose()
}

var _ GPUImage = (*ebiten.Image)(nil)

// Handle is a ref-counted wrapper around an opaque GPU-backed frame.
// ebiten.Image itself has no refcounting, so this generalizes the single
// "own one image, overwrite its contents" pattern the teacher's Player used
// (player.go's copyFrame) into an explicit counter: exactly one reference is
// held by the owning FrameBuffer, Clone() hands out additional references
// for a single render, and Close() releases one reference, disposing the
// underlying image only when the count reaches zero.
type Handle struct {
	mu        sync.Mutex
	image     GPUImage
	refs      int
	timestamp int64
	generation uint64
}

// New wraps img with an initial reference count of 1.
func New(img GPUImage, timestampUs int64, generation uint64) *Handle {
	return &Handle{image: img, refs: 1, timestamp: timestampUs, generation: generation}
}

// Image returns the underlying GPU image. Valid only while the caller holds
// a reference (i.e. between Clone/New and the matching Close).
func (h *Handle) Image() GPUImage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.image
}

// TimestampUs is the frame's presentation timestamp.
func (h *Handle) TimestampUs() int64 { return h.timestamp }

// Generation is the seek generation that produced this frame (spec §5
// Cancellation).
func (h *Handle) Generation() uint64 { return h.generation }

// Clone increments the refcount and returns the same handle, sharing the
// underlying image. Use when you need the frame to outlive its buffer slot
// (spec §4.3: "the returned reference is a clone of the underlying handle").
func (h *Handle) Clone() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs++
	return h
}

// Close releases one reference, disposing the GPU image when the last
// reference is released. All exit paths must call Close exactly once per
// Clone/New (spec §3 DecodedFrame lifecycle).
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs <= 0 {
		return
	}
	h.refs--
	if h.refs == 0 && h.image != nil {
		h.image.Dispose()
		h.image = nil
	}
}

// RefCount reports the current reference count; exposed for tests only.
func (h *Handle) RefCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

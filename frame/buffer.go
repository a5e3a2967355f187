package frame

import "sync"

// MaxFrameLagUs is the default staleness window used for pruning (spec §3,
// §4.3): frames older than this, relative to the most recently selected
// frame, are dropped because playback is monotonic forward (or a seek
// cleared the buffer wholesale).
const MaxFrameLagUs int64 = 500_000

// DefaultCapacity is the typical FrameBuffer cap from spec §3.
const DefaultCapacity = 8

// Buffer is a bounded FIFO of decoded frames for one source, keyed by
// presentation timestamp (spec §4.3). Invariant: timestamps are
// non-decreasing.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	frames   []*Handle
}

// NewBuffer creates a FrameBuffer with the given capacity (<=0 uses
// DefaultCapacity).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Push enqueues a frame, taking ownership of the passed-in reference. On
// overflow the oldest frame is dropped and closed.
func (b *Buffer) Push(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, h)
	for len(b.frames) > b.capacity {
		dropped := b.frames[0]
		b.frames = b.frames[1:]
		dropped.Close()
	}
}

// BestFor implements the §4.3 selection policy: the largest ts <= target
// ("current"), or if none qualify, the frame with the smallest
// |ts - target| ("fallback", avoids flashing black right after a seek).
// The returned handle is a clone the caller must Close after use; the
// original stays in the buffer for potential re-query (paused redisplay).
// After selection, frames older than selected_ts - MaxFrameLagUs are pruned
// and closed.
func (b *Buffer) BestFor(targetUs int64) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil
	}

	var best *Handle
	for _, h := range b.frames {
		if h.TimestampUs() <= targetUs {
			if best == nil || h.TimestampUs() > best.TimestampUs() {
				best = h
			}
		}
	}
	if best == nil {
		for _, h := range b.frames {
			if best == nil || absI64(h.TimestampUs()-targetUs) < absI64(best.TimestampUs()-targetUs) {
				best = h
			}
		}
	}
	if best == nil {
		return nil
	}

	b.pruneLocked(best.TimestampUs())
	return best.Clone()
}

// pruneLocked drops and closes frames older than selectedTs - MaxFrameLagUs.
// Preconditions: b.mu held.
func (b *Buffer) pruneLocked(selectedTs int64) {
	threshold := selectedTs - MaxFrameLagUs
	kept := b.frames[:0]
	for _, h := range b.frames {
		if h.TimestampUs() < threshold && h.TimestampUs() != selectedTs {
			h.Close()
			continue
		}
		kept = append(kept, h)
	}
	b.frames = kept
}

// Clear drops and closes every frame currently queued (spec §4.7 seek: "Clear
// every FrameBuffer"; spec §5 Cancellation: cleared synchronously before
// priming new decodes).
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.frames {
		h.Close()
	}
	b.frames = nil
}

// Len reports the number of queued frames, for tests/diagnostics.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

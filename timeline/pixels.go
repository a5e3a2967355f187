// Package timeline holds the pixel/time conversions the editor's timeline
// ruler and playhead need (spec §8 testable property #9). It has no
// dependency on engine or composition: it is pure arithmetic over a
// caller-supplied viewport.
package timeline

// Viewport maps a horizontal pixel range to a span of timeline
// microseconds. ScrollUs is the timeline time shown at pixel 0;
// PixelsPerSecond is the zoom level.
type Viewport struct {
	ScrollUs        int64
	PixelsPerSecond float64
}

// TimeToPixel converts a timeline timestamp to a (possibly fractional)
// pixel offset from the viewport's left edge.
func (v Viewport) TimeToPixel(timeUs int64) float64 {
	deltaUs := timeUs - v.ScrollUs
	return float64(deltaUs) * v.PixelsPerSecond / 1_000_000
}

// PixelToTime converts a pixel offset from the viewport's left edge back to
// a timeline timestamp in microseconds.
func (v Viewport) PixelToTime(px float64) int64 {
	if v.PixelsPerSecond == 0 {
		return v.ScrollUs
	}
	deltaUs := px * 1_000_000 / v.PixelsPerSecond
	return v.ScrollUs + int64(deltaUs)
}

// RoundTripsWithinOnePixel reports whether PixelToTime(TimeToPixel(t))
// recovers a pixel position within one pixel of the original (spec §8
// testable property #9 — the composition is identity modulo rounding, not
// exactly, since PixelToTime truncates to whole microseconds).
func (v Viewport) RoundTripsWithinOnePixel(timeUs int64) bool {
	px := v.TimeToPixel(timeUs)
	back := v.PixelToTime(px)
	backPx := v.TimeToPixel(back)
	diff := backPx - px
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1.0
}

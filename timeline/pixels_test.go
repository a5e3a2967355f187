package timeline

import "testing"

func TestViewportRoundTrip(t *testing.T) {
	v := Viewport{ScrollUs: 2_000_000, PixelsPerSecond: 120}
	for _, timeUs := range []int64{0, 2_000_000, 2_500_000, 10_000_000, 59_999_000} {
		if !v.RoundTripsWithinOnePixel(timeUs) {
			t.Errorf("round trip exceeded one pixel for timeUs=%d", timeUs)
		}
	}
}

func TestViewportTimeToPixelLinear(t *testing.T) {
	v := Viewport{ScrollUs: 0, PixelsPerSecond: 100}
	if got := v.TimeToPixel(1_000_000); got != 100 {
		t.Errorf("TimeToPixel(1s) = %v, want 100", got)
	}
	if got := v.TimeToPixel(500_000); got != 50 {
		t.Errorf("TimeToPixel(0.5s) = %v, want 50", got)
	}
}

func TestViewportPixelToTimeZeroZoom(t *testing.T) {
	v := Viewport{ScrollUs: 5_000_000, PixelsPerSecond: 0}
	if got := v.PixelToTime(100); got != 5_000_000 {
		t.Errorf("PixelToTime with zero zoom = %v, want scroll unchanged", got)
	}
}

func TestViewportScrollOffset(t *testing.T) {
	v := Viewport{ScrollUs: 1_000_000, PixelsPerSecond: 50}
	if got := v.TimeToPixel(1_000_000); got != 0 {
		t.Errorf("TimeToPixel(scroll) = %v, want 0", got)
	}
	if got := v.PixelToTime(0); got != 1_000_000 {
		t.Errorf("PixelToTime(0) = %v, want scroll back", got)
	}
}

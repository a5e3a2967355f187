package render

import "testing"

func TestClockIdleToReadyOnAttach(t *testing.T) {
	c := NewClock()
	if c.State() != Idle {
		t.Fatalf("State() = %v, want Idle", c.State())
	}
	c.AttachFirstSource()
	if c.State() != Ready {
		t.Fatalf("State() = %v, want Ready", c.State())
	}
}

func TestClockPlayPauseAnchors(t *testing.T) {
	c := NewClock()
	c.AttachFirstSource()
	c.SetDurationUs(10_000_000)

	c.Play(1000)
	timeUs, reachedEnd := c.Tick(1500)
	if reachedEnd {
		t.Fatal("should not reach end yet")
	}
	if timeUs != 500_000 {
		t.Fatalf("timeUs = %d, want 500000", timeUs)
	}

	c.Pause()
	if c.State() != Ready {
		t.Fatalf("State() after Pause = %v, want Ready", c.State())
	}
	// tick while paused must not advance
	frozen, _ := c.Tick(5000)
	if frozen != timeUs {
		t.Fatalf("time advanced while paused: %d != %d", frozen, timeUs)
	}
}

func TestClockSeekAnchorsEvenWhilePaused(t *testing.T) {
	c := NewClock()
	c.AttachFirstSource()
	c.SetDurationUs(10_000_000)

	got := c.Seek(3_333_333, 2000)
	if got != 3_333_333 {
		t.Fatalf("Seek return = %d, want 3333333", got)
	}
	if c.CurrentTimeUs() != 3_333_333 {
		t.Fatalf("CurrentTimeUs() = %d, want 3333333", c.CurrentTimeUs())
	}

	c.Play(2000)
	timeUs, _ := c.Tick(2100)
	if timeUs != 3_333_333+100_000 {
		t.Fatalf("timeUs = %d, want %d", timeUs, 3_333_333+100_000)
	}
}

func TestClockSeekClampsToDuration(t *testing.T) {
	c := NewClock()
	c.AttachFirstSource()
	c.SetDurationUs(10_000_000)

	if got := c.Seek(-5, 0); got != 0 {
		t.Fatalf("Seek(-5) = %d, want 0", got)
	}
	if got := c.Seek(99_000_000, 0); got != 10_000_000 {
		t.Fatalf("Seek(99e6) = %d, want 10000000", got)
	}
}

func TestSeekPreviewGuardDisabledByDefault(t *testing.T) {
	if seekPreviewAllowed("A", "A") {
		t.Fatal("seekPreviewAllowed(same source) should be false while the optimization is disabled")
	}
	if seekPreviewAllowed("A", "B") {
		t.Fatal("seekPreviewAllowed(different source) should always be false")
	}
}

func TestClockReachesEndAndPauses(t *testing.T) {
	c := NewClock()
	c.AttachFirstSource()
	c.SetDurationUs(1_000_000)
	c.Play(0)

	timeUs, reachedEnd := c.Tick(2000)
	if !reachedEnd {
		t.Fatal("expected reachedEnd = true")
	}
	if timeUs != 1_000_000 {
		t.Fatalf("timeUs = %d, want 1000000", timeUs)
	}
	if c.State() != Ready {
		t.Fatalf("State() = %v, want Ready after end-of-media", c.State())
	}
}

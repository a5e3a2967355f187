package composition

import "testing"

func buildComposition() *Composition {
	c := New()
	c.SetTracks([]Track{
		{Kind: KindVideo, Index: 0, Clips: []Clip{
			{ID: "c1", SourceID: "A", TimelineStartUs: 0, SourceStartUs: 0, SourceEndUs: 5_000_000},
		}},
		{Kind: KindVideo, Index: 1, Clips: []Clip{
			{ID: "c2", SourceID: "B", TimelineStartUs: 2_000_000, SourceStartUs: 0, SourceEndUs: 3_000_000, Opacity: 0.5},
		}},
	})
	return c
}

func TestActiveClipsAtOrdering(t *testing.T) {
	c := buildComposition()
	active := c.ActiveClipsAt(3_000_000)
	if len(active) != 2 {
		t.Fatalf("expected 2 active clips at t=3s, got %d", len(active))
	}
	if active[0].TrackIndex != 0 || active[1].TrackIndex != 1 {
		t.Fatalf("expected ascending track index order, got %+v", active)
	}
}

func TestActiveClipsAtHalfOpenBoundary(t *testing.T) {
	c := New()
	c.SetTracks([]Track{
		{Kind: KindVideo, Index: 0, Clips: []Clip{
			{ID: "c1", SourceID: "A", TimelineStartUs: 0, SourceStartUs: 0, SourceEndUs: 2_000_000},
		}},
	})

	if got := c.ActiveClipsAt(1_999_999); len(got) != 1 {
		t.Fatalf("expected active just before end, got %d", len(got))
	}
	if got := c.ActiveClipsAt(2_000_000); len(got) != 0 {
		t.Fatalf("expected inactive exactly at end, got %d", len(got))
	}
}

func TestCompositionDuration(t *testing.T) {
	c := buildComposition()
	if got := c.DurationUs(); got != 5_000_000 {
		t.Fatalf("DurationUs() = %d, want 5000000", got)
	}
	if got := c.ActiveClipsAt(c.DurationUs()); len(got) != 0 {
		t.Fatalf("ActiveClipsAt(duration) should be empty, got %d", len(got))
	}
	if got := c.ActiveClipsAt(c.DurationUs() - 1); len(got) == 0 {
		t.Fatal("ActiveClipsAt(duration-1us) should be non-empty")
	}
}

func TestSourceTimeUs(t *testing.T) {
	a := ActiveClip{TimelineStartUs: 2_000_000, SourceStartUs: 500_000}
	if got := a.SourceTimeUs(3_000_000); got != 1_500_000 {
		t.Fatalf("SourceTimeUs = %d, want 1500000", got)
	}
}

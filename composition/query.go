package composition

import "sort"

// ActiveClip is a derived view produced fresh on every ActiveClipsAt query;
// it is never stored (spec §3).
type ActiveClip struct {
	ClipID          string
	SourceID        string
	TrackKind       ClipKind
	TrackIndex      int
	TimelineStartUs int64
	SourceStartUs   int64
	SourceEndUs     int64
	Opacity         float64
	Volume          float64
}

// ActiveClipsAt returns every clip active at t, ordered bottom-to-top by
// (track kind priority, track index ascending) per spec §4.5. The interval
// is half-open: a clip ending exactly at t is not active at t (spec §3, §8
// property #4).
func (c *Composition) ActiveClipsAt(t int64) []ActiveClip {
	var out []ActiveClip
	for _, track := range c.Tracks {
		for _, clip := range track.Clips {
			start := clip.TimelineStartUs
			end := start + clip.durationUs()
			if t >= start && t < end {
				out = append(out, ActiveClip{
					ClipID:          clip.ID,
					SourceID:        clip.SourceID,
					TrackKind:       clip.Kind,
					TrackIndex:      track.Index,
					TimelineStartUs: clip.TimelineStartUs,
					SourceStartUs:   clip.SourceStartUs,
					SourceEndUs:     clip.SourceEndUs,
					Opacity:         clip.Opacity,
					Volume:          clip.Volume,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := trackKindPriority(out[i].TrackKind), trackKindPriority(out[j].TrackKind)
		if pi != pj {
			return pi < pj
		}
		return out[i].TrackIndex < out[j].TrackIndex
	})
	return out
}

// DurationUs is the maximum timeline_start + (source_end - source_start)
// across all clips, independent of source load state (spec §4.5: a seek to
// duration_us is valid even if data isn't yet buffered).
func (c *Composition) DurationUs() int64 {
	var maxEnd int64
	for _, track := range c.Tracks {
		for _, clip := range track.Clips {
			end := clip.TimelineStartUs + clip.durationUs()
			if end > maxEnd {
				maxEnd = end
			}
		}
	}
	return maxEnd
}

// SourceTimeUs translates a timeline time into source time for a clip
// (spec §4.4 step 1): source_time = timeline_time - clip.timeline_start + clip.source_start.
func (a ActiveClip) SourceTimeUs(timelineUs int64) int64 {
	return timelineUs - a.TimelineStartUs + a.SourceStartUs
}

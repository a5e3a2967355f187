package container

import "sort"

// Sample is a single demuxed access unit (spec §3 VideoSample, generalized
// to also carry audio sample data).
type Sample struct {
	Data        []byte
	CTSUs       int64
	DTSUs       int64
	DurationUs  int64
	IsKeyframe  bool
	SampleIndex int
}

// SampleTable is the per-track, append-only store of demuxed samples plus a
// sorted keyframe index for O(log n) lookups (spec §4.1, §4.4).
type SampleTable struct {
	samples        []Sample
	keyframeIndex  []int // sorted sample indices that are keyframes
}

// Append adds samples to the table. Samples must already be in monotonic
// cts order per track, which the demuxer guarantees (spec §4.1 guarantees).
func (t *SampleTable) Append(samples ...Sample) {
	for i := range samples {
		samples[i].SampleIndex = len(t.samples) + i
		if samples[i].IsKeyframe {
			t.keyframeIndex = append(t.keyframeIndex, samples[i].SampleIndex)
		}
	}
	t.samples = append(t.samples, samples...)
}

// Len returns the number of samples currently known.
func (t *SampleTable) Len() int { return len(t.samples) }

// At returns the sample at index i.
func (t *SampleTable) At(i int) Sample { return t.samples[i] }

// Last returns the index of the last known sample, or -1 if empty.
func (t *SampleTable) Last() int { return len(t.samples) - 1 }

// TargetSample binary-searches for the smallest index whose CTSUs >= targetUs
// (spec §4.4 step 2). Returns -1 if no such sample is known yet.
func (t *SampleTable) TargetSample(targetUs int64) int {
	idx := sort.Search(len(t.samples), func(i int) bool {
		return t.samples[i].CTSUs >= targetUs
	})
	if idx == len(t.samples) {
		return -1
	}
	return idx
}

// KeyframeAtOrBefore binary-searches the keyframe index for the largest
// keyframe sample index <= sampleIdx (spec §4.4 step 3). Returns -1 if none.
func (t *SampleTable) KeyframeAtOrBefore(sampleIdx int) int {
	if len(t.keyframeIndex) == 0 {
		return -1
	}
	idx := sort.Search(len(t.keyframeIndex), func(i int) bool {
		return t.keyframeIndex[i] > sampleIdx
	})
	if idx == 0 {
		return -1
	}
	return t.keyframeIndex[idx-1]
}

// LastKeyframe returns the final known keyframe index, or -1 if none.
func (t *SampleTable) LastKeyframe() int {
	if len(t.keyframeIndex) == 0 {
		return -1
	}
	return t.keyframeIndex[len(t.keyframeIndex)-1]
}

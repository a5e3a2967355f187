package audio

import "github.com/nle/engine/composition"

// DriftThresholdUS and SyncIntervalMS are the spec §9 open-question-3
// resolved constants (100 ms / 100 ms).
const (
	DriftThresholdUS int64 = 100_000
	SyncIntervalMS   int64 = 100

	// minResyncStabilizeUs is the "require >= 200ms since last (re)schedule"
	// guard from spec §4.8 so the graph has time to stabilize after a
	// reschedule before drift is measured again.
	minResyncStabilizeUs int64 = 200_000
)

// CheckDrift implements the periodic drift-detection tick of spec §4.8. It
// must only be called while the clock is Playing. currentTimeUs is the
// video clock's position; activeClips is the current audio-clip set to
// reschedule against if a correction fires.
//
// Returns the measured drift in microseconds and whether a resync fired.
func (c *Controller) CheckDrift(currentTimeUs int64, activeClips []composition.ActiveClip) (driftUs int64, resynced bool) {
	// nowUs already reports the audio-graph clock in microseconds (spec's
	// "audio_now x 1_000_000" is the same quantity expressed in seconds);
	// the delta below needs no extra scaling.
	c.mu.Lock()
	nowUs := c.nowUs()
	sinceScheduleUs := nowUs - c.lastScheduledAudioClockUs
	expectedAudioUs := c.lastScheduledVideoTimeUs + (nowUs - c.lastScheduledAudioClockUs)
	c.mu.Unlock()

	if sinceScheduleUs < minResyncStabilizeUs {
		return 0, false
	}

	drift := currentTimeUs - expectedAudioUs
	if drift < 0 {
		drift = -drift
	}
	if drift <= DriftThresholdUS {
		return drift, false
	}

	c.StopAll()
	c.ScheduleAll(activeClips, currentTimeUs)
	return drift, true
}

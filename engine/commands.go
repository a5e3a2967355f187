package engine

import "github.com/nle/engine/composition"

// Command variants accepted by the render domain (spec §6). Fields are
// semantic, not a wire layout — callers construct these directly and pass
// them to Engine.Handle.
type (
	LoadSource struct {
		SourceID       string
		Bytes          []byte
		DurationHintUs int64
	}

	StartSourceStream struct {
		SourceID       string
		DurationHintUs int64
	}

	AppendSourceChunk struct {
		SourceID string
		Bytes    []byte
		IsLast   bool
	}

	RemoveSource struct {
		SourceID string
	}

	// SetActiveClips replaces the engine's composition snapshot. The spec
	// names this command's fields at the ActiveClip/has-clips/duration
	// level; internally the engine needs the full Track/Clip structure to
	// answer ActiveClipsAt queries on every subsequent tick, so Tracks
	// carries that, and HasClipsAtTime/CompositionDurationUs are carried
	// through as the authoritative values the editor already computed
	// rather than re-derived.
	SetActiveClips struct {
		Tracks                []composition.Track
		HasClipsAtTime        bool
		CompositionDurationUs int64
	}

	Seek struct {
		TimeUs int64
	}

	Play struct{}

	Pause struct{}

	SyncToTime struct {
		TimeUs int64
	}

	RequestFirstFrame struct {
		SourceID string
	}
)

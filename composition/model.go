// Package composition holds the external-facing timeline data model (spec
// §3 Clip/Track, §4.5) and the active-clip query used by every playback
// tick.
package composition

// ClipKind gates which subsystem consumes a clip. Represented as a tagged
// variant with a small switch at query time (spec §9 "Dynamic dispatch
// across clip kinds") rather than a virtual interface, since the behavior
// differences are few and centralized in DecoderScheduler/AudioController.
type ClipKind uint8

const (
	KindVideo ClipKind = iota
	KindAudio
	KindSubtitle
	KindOverlay
)

func (k ClipKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	case KindOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// trackKindPriority orders the compositor's Z-order: video first (bottom),
// then overlay/subtitle on top (spec §4.5).
func trackKindPriority(k ClipKind) int {
	switch k {
	case KindVideo:
		return 0
	default:
		return 1
	}
}

// Clip is one entry on a Track (spec §3). All cross-references are by
// stable id, looked up through the owning collection (spec §9).
type Clip struct {
	ID              string
	SourceID        string
	TrackIndex      int
	Kind            ClipKind
	TimelineStartUs int64
	SourceStartUs   int64
	SourceEndUs     int64
	Opacity         float64 // [0,1]
	Volume          float64 // [0,1]
}

// durationUs is the clip's effective timeline duration.
func (c Clip) durationUs() int64 { return c.SourceEndUs - c.SourceStartUs }

// Track is an ordered, non-overlapping (in timeline time, enforced by the
// external editor) list of clips of one kind.
type Track struct {
	Kind  ClipKind
	Index int
	Clips []Clip
}

// Composition is the read-only timeline snapshot the Engine holds a
// reference to. It is owned by the external editor document model; this
// module only queries it.
type Composition struct {
	Tracks []Track
}

// New creates an empty Composition.
func New() *Composition { return &Composition{} }

// SetTracks replaces the composition's tracks wholesale (this is what
// backs the Engine's SetActiveClips-driven snapshot, spec §4.9).
func (c *Composition) SetTracks(tracks []Track) { c.Tracks = tracks }

package engine

// Event variants published to external collaborators (spec §6).
type (
	WorkerReady struct{}

	SourceReady struct {
		SourceID           string
		DurationUs         int64
		Width, Height      int
	}

	SourcePlayable struct {
		SourceID      string
		DurationUs    int64
		Width, Height int
		LoadedSamples int
	}

	SourceRemoved struct {
		SourceID string
	}

	TimeUpdate struct {
		CurrentTimeUs int64
	}

	PlaybackStateEvent struct {
		IsPlaying bool
	}

	SeekComplete struct {
		TimeUs int64
	}

	FirstFrame struct {
		SourceID      string
		ImageBlob     []byte
		Width, Height int
	}

	AudioData struct {
		SourceID    string
		PCM         []float32
		SampleRate  int
		Channels    int
		TimestampUs int64
		DurationUs  int64
		IsComplete  bool
	}

	ErrorEvent struct {
		Message  string
		SourceID string
	}
)

// Bus is a minimal pub/sub fan-out for engine events, generalizing the
// teacher's single-callback style (Player has no events at all — this is
// new code needed once one Engine serves many external subscribers instead
// of one caller polling CurrentFrame/Position).
type Bus struct {
	subscribers []func(any)
}

// Subscribe registers a handler invoked for every published event, in
// registration order.
func (b *Bus) Subscribe(fn func(any)) { b.subscribers = append(b.subscribers, fn) }

// Publish fans an event out to every subscriber.
func (b *Bus) Publish(event any) {
	for _, fn := range b.subscribers {
		fn(event)
	}
}

package scheduler

import (
	"testing"

	"github.com/nle/engine/composition"
	"github.com/nle/engine/container"
	"github.com/nle/engine/decode"
	"github.com/nle/engine/devicetier"
)

type fakeBackend struct{ out chan decode.OutputFrame }

func newFakeBackend() *fakeBackend { return &fakeBackend{out: make(chan decode.OutputFrame, 64)} }

func (f *fakeBackend) Configure(decode.CodecParams) error { return nil }
func (f *fakeBackend) Decode(s container.Sample) error {
	f.out <- decode.OutputFrame{TimestampUs: s.CTSUs}
	return nil
}
func (f *fakeBackend) Flush() error                         { return nil }
func (f *fakeBackend) Reset() error                         { return nil }
func (f *fakeBackend) Close() error                         { return nil }
func (f *fakeBackend) Output() <-chan decode.OutputFrame     { return f.out }

type fakeLookup struct {
	table      *container.SampleTable
	decoder    *decode.VideoDecoderWrapper
	lastQueued int

	audioTable      *container.SampleTable
	audioDecoder    *decode.AudioDecoderWrapper
	audioLastQueued int
}

func (l *fakeLookup) VideoTable(string) *container.SampleTable        { return l.table }
func (l *fakeLookup) VideoDecoder(string) *decode.VideoDecoderWrapper { return l.decoder }
func (l *fakeLookup) LastQueuedSample(string) int                     { return l.lastQueued }
func (l *fakeLookup) SetLastQueuedSample(_ string, v int)             { l.lastQueued = v }

func (l *fakeLookup) AudioTable(string) *container.SampleTable        { return l.audioTable }
func (l *fakeLookup) AudioDecoder(string) *decode.AudioDecoderWrapper { return l.audioDecoder }
func (l *fakeLookup) LastQueuedAudioSample(string) int                { return l.audioLastQueued }
func (l *fakeLookup) SetLastQueuedAudioSample(_ string, v int)        { l.audioLastQueued = v }

func buildTable(n int, gopSize int) *container.SampleTable {
	table := &container.SampleTable{}
	for i := 0; i < n; i++ {
		table.Append(container.Sample{
			CTSUs:      int64(i) * 33_000,
			IsKeyframe: i%gopSize == 0,
		})
	}
	return table
}

func TestTickFeedsFromKeyframeOnSeek(t *testing.T) {
	table := buildTable(60, 15)
	backend := newFakeBackend()
	decoder := decode.NewVideoDecoderWrapper(backend)
	_ = decoder.Configure(decode.CodecParams{Codec: container.CodecH264})

	lookup := &fakeLookup{table: table, decoder: decoder, lastQueued: -1}
	s := New(lookup, devicetier.Medium)

	clip := composition.ActiveClip{
		ClipID: "c1", SourceID: "A", TrackKind: composition.KindVideo,
		TimelineStartUs: 0, SourceStartUs: 0, SourceEndUs: 2_000_000,
	}

	s.Tick(500_000, []composition.ActiveClip{clip})

	if lookup.lastQueued < 0 {
		t.Fatalf("expected last_queued_sample to advance, got %d", lookup.lastQueued)
	}
	if decoder.PendingDecodeCount() == 0 {
		t.Fatal("expected samples to be queued to the decoder")
	}
}

func TestTickRespectsBackpressure(t *testing.T) {
	table := buildTable(60, 15)
	backend := newFakeBackend()
	decoder := decode.NewVideoDecoderWrapper(backend)
	_ = decoder.Configure(decode.CodecParams{Codec: container.CodecH264})

	lookup := &fakeLookup{table: table, decoder: decoder, lastQueued: -1}
	s := New(lookup, devicetier.Low) // max_pending = 4

	clip := composition.ActiveClip{
		ClipID: "c1", SourceID: "A", TrackKind: composition.KindVideo,
		SourceEndUs: 2_000_000,
	}

	s.Tick(0, []composition.ActiveClip{clip})
	first := decoder.PendingDecodeCount()
	if first == 0 {
		t.Fatal("expected first tick to queue some samples")
	}

	s.Tick(33_000, []composition.ActiveClip{clip})
	if decoder.PendingDecodeCount() > devicetier.ParamsFor(devicetier.Low).MaxPending {
		t.Fatalf("pending count %d exceeds max_pending", decoder.PendingDecodeCount())
	}
}

type erroringBackend struct {
	*fakeBackend
	failNext bool
}

func (f *erroringBackend) Decode(s container.Sample) error {
	if f.failNext {
		f.failNext = false
		return errBoom
	}
	return f.fakeBackend.Decode(s)
}

var errBoom = errBoomType{}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }

type fakeAudioBackend struct{ out chan decode.OutputPCM }

func newFakeAudioBackend() *fakeAudioBackend { return &fakeAudioBackend{out: make(chan decode.OutputPCM, 64)} }

func (f *fakeAudioBackend) Configure(decode.CodecParams) error { return nil }
func (f *fakeAudioBackend) Decode(s container.Sample) error {
	f.out <- decode.OutputPCM{TimestampUs: s.CTSUs}
	return nil
}
func (f *fakeAudioBackend) Flush() error                    { return nil }
func (f *fakeAudioBackend) Reset() error                    { return nil }
func (f *fakeAudioBackend) Close() error                    { return nil }
func (f *fakeAudioBackend) OutputPCM() <-chan decode.OutputPCM { return f.out }

func TestTickFeedsAudioClipsWithoutKeyframeAnchoring(t *testing.T) {
	table := buildTable(60, 15) // no keyframes needed for audio feed
	backend := newFakeAudioBackend()
	decoder := decode.NewAudioDecoderWrapper(backend)
	_ = decoder.Configure(decode.CodecParams{Codec: container.CodecAAC, SampleRate: 44100, ChannelCount: 2})

	lookup := &fakeLookup{audioTable: table, audioDecoder: decoder, audioLastQueued: -1}
	s := New(lookup, devicetier.Medium)

	clip := composition.ActiveClip{
		ClipID: "c1", SourceID: "A", TrackKind: composition.KindAudio,
		TimelineStartUs: 0, SourceStartUs: 0, SourceEndUs: 2_000_000,
	}

	s.Tick(500_000, []composition.ActiveClip{clip})

	if lookup.audioLastQueued < 0 {
		t.Fatalf("expected last_queued_audio_sample to advance, got %d", lookup.audioLastQueued)
	}
	if decoder.PendingDecodeCount() == 0 {
		t.Fatal("expected audio samples to be queued to the decoder")
	}
}

func TestTickResetsOnNeedsReset(t *testing.T) {
	table := buildTable(30, 15)
	backend := &erroringBackend{fakeBackend: newFakeBackend()}
	decoder := decode.NewVideoDecoderWrapper(backend)
	_ = decoder.Configure(decode.CodecParams{Codec: container.CodecH264})

	backend.failNext = true
	if err := decoder.Decode(container.Sample{IsKeyframe: true}); err == nil {
		t.Fatal("expected the seeded decode error")
	}
	if decoder.State() != decode.NeedsReset {
		t.Fatalf("decoder.State() = %v, want NeedsReset", decoder.State())
	}

	lookup := &fakeLookup{table: table, decoder: decoder, lastQueued: -1}
	s := New(lookup, devicetier.Medium)
	clip := composition.ActiveClip{SourceID: "A", TrackKind: composition.KindVideo, SourceEndUs: 1_000_000}

	s.Tick(0, []composition.ActiveClip{clip})
	if decoder.State() != decode.Decoding && decoder.State() != decode.Configured {
		t.Fatalf("decoder.State() after tick = %v, want Configured or Decoding", decoder.State())
	}
	if lookup.lastQueued < 0 {
		t.Fatal("expected scheduler to reset and re-feed from keyframe")
	}
}

package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/nle/engine/internal/logging"
)

// ErrMalformedContainer is returned (and passed to on_error) when the byte
// stream cannot be parsed as ISO-BMFF/fMP4 (spec §7 DemuxParse).
var ErrMalformedContainer = errors.New("container: malformed or unsupported stream")

// ReadyInfo is delivered once, to on_ready, when the header (ftyp+moov) has
// been fully parsed.
type ReadyInfo struct {
	Tracks     []TrackDescriptor
	DurationUs int64 // 0 if not declared in the header
}

// Demuxer is a progressive ISO-BMFF/fragmented-MP4 parser (spec §4.1). It
// tolerates bytes arriving in arbitrarily sized chunks, at a logical file
// offset, and produces a stable per-track SampleTable plus a sorted keyframe
// index as fragments complete.
type Demuxer struct {
	mu  sync.Mutex
	buf bytes.Buffer

	onReady   func(ReadyInfo)
	onSamples func(trackID int, batch []Sample)
	onError   func(error)

	init        *fmp4.Init
	initDone    bool
	finished    bool
	byteOffset  int64
	durationUs  int64

	tracksByID map[int]*trackState
}

type trackState struct {
	descriptor TrackDescriptor
	table      SampleTable
}

// NewDemuxer creates an unconfigured demuxer; register callbacks with
// OnReady/OnSamples/OnError before the first Append.
func NewDemuxer() *Demuxer {
	return &Demuxer{tracksByID: make(map[int]*trackState)}
}

func (d *Demuxer) OnReady(cb func(ReadyInfo))                     { d.onReady = cb }
func (d *Demuxer) OnSamples(cb func(trackID int, batch []Sample)) { d.onSamples = cb }
func (d *Demuxer) OnError(cb func(error))                         { d.onError = cb }

// Table returns the (still-growing) sample table for a track id, or nil.
func (d *Demuxer) Table(trackID int) *SampleTable {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts, ok := d.tracksByID[trackID]
	if !ok {
		return nil
	}
	return &ts.table
}

// Append adds a chunk of bytes at a logical file offset. fileOffset is only
// recorded (the demuxer's byteOffset); it does not affect parsing, and boxes
// are assumed contiguous in the
// order appended (reassembly of out-of-order chunks is an external
// collaborator's concern, e.g. HLS segment ordering).
func (d *Demuxer) Append(data []byte, fileOffset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byteOffset = fileOffset + int64(len(data))
	d.buf.Write(data)
	d.drain()
}

// Flush forces a parse pass over whatever is currently buffered, without
// requiring a complete trailing box.
func (d *Demuxer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drain()
}

// Finish signals that no more bytes will arrive.
func (d *Demuxer) Finish() {
	d.mu.Lock()
	d.finished = true
	d.drain()
	d.mu.Unlock()
}

// IsReady reports whether Finish has been called and all buffered boxes
// have been consumed (i.e. the source's is_ready flag, spec §3).
func (d *Demuxer) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished && d.buf.Len() == 0
}

// drain consumes complete top-level boxes from d.buf. Preconditions: d.mu held.
func (d *Demuxer) drain() {
	if d.buf.Len() == 0 && d.buf.Cap() > 1<<20 {
		d.buf = bytes.Buffer{}
	}

	for d.buf.Len() >= 8 {
		header := d.buf.Bytes()[:8]
		boxSize := uint64(binary.BigEndian.Uint32(header[0:4]))
		boxType := string(header[4:8])
		headerLen := 8

		if boxSize == 1 {
			if d.buf.Len() < 16 {
				return
			}
			boxSize = binary.BigEndian.Uint64(d.buf.Bytes()[8:16])
			headerLen = 16
		}
		if boxSize == 0 {
			d.fail(fmt.Errorf("%w: zero-size %q box", ErrMalformedContainer, boxType))
			return
		}
		if uint64(d.buf.Len()) < boxSize {
			return // wait for more bytes
		}

		switch boxType {
		case "ftyp":
			d.buf.Next(int(boxSize))
		case "moov":
			data := make([]byte, boxSize)
			copy(data, d.buf.Bytes()[:boxSize])
			d.buf.Next(int(boxSize))
			if err := d.parseInit(data); err != nil {
				d.fail(fmt.Errorf("%w: %v", ErrMalformedContainer, err))
				return
			}
		case "moof":
			// need the following mdat too; peek without consuming moof yet.
			if uint64(d.buf.Len()) < boxSize+8 {
				return
			}
			mdatHeader := d.buf.Bytes()[boxSize : boxSize+8]
			mdatSize := uint64(binary.BigEndian.Uint32(mdatHeader[0:4]))
			mdatType := string(mdatHeader[4:8])
			if mdatType != "mdat" {
				d.buf.Next(int(boxSize))
				continue
			}
			total := boxSize + mdatSize
			if uint64(d.buf.Len()) < total {
				return // wait for the full fragment
			}
			fragment := make([]byte, total)
			copy(fragment, d.buf.Bytes()[:total])
			d.buf.Next(int(total))
			if err := d.parseFragment(fragment); err != nil {
				d.fail(fmt.Errorf("%w: %v", ErrMalformedContainer, err))
				return
			}
		default:
			// mdat without a preceding moof, free boxes, etc: skip.
			d.buf.Next(int(boxSize))
		}
		_ = headerLen
	}
}

func (d *Demuxer) fail(err error) {
	logging.Printf("container: demux error: %v", err)
	if d.onError != nil {
		d.onError(err)
	}
}

func (d *Demuxer) parseInit(moovData []byte) error {
	init := &fmp4.Init{}
	if err := init.Unmarshal(bytes.NewReader(moovData)); err != nil {
		return err
	}
	d.init = init
	d.initDone = true

	info := ReadyInfo{}
	for _, track := range init.Tracks {
		desc := trackDescriptorFromInit(track)
		d.tracksByID[track.ID] = &trackState{descriptor: desc}
		info.Tracks = append(info.Tracks, desc)
	}
	if d.onReady != nil {
		d.onReady(info)
	}
	return nil
}

func trackDescriptorFromInit(track *fmp4.InitTrack) TrackDescriptor {
	desc := TrackDescriptor{TrackID: track.ID, Timescale: track.TimeScale}
	switch codec := track.Codec.(type) {
	case *mp4.CodecH264:
		desc.Codec = CodecH264
		desc.SPS, desc.PPS = codec.SPS, codec.PPS
		desc.CodecPrivate = annexBJoin(codec.SPS, codec.PPS)
	case *mp4.CodecH265:
		desc.Codec = CodecH265
		desc.VPS, desc.SPS, desc.PPS = codec.VPS, codec.SPS, codec.PPS
		desc.CodecPrivate = annexBJoin(codec.VPS, codec.SPS, codec.PPS)
	case *mp4.CodecVP9:
		desc.Codec = CodecVP9
	case *mp4.CodecMPEG4Audio:
		desc.Codec = CodecAAC
		desc.SampleRate = codec.Config.SampleRate
		desc.ChannelCount = codec.Config.ChannelCount
		desc.CodecPrivate = codec.Config.Encode()
	default:
		desc.Codec = CodecUnknown
	}
	return desc
}

func annexBJoin(parts ...[]byte) []byte {
	startCode := []byte{0, 0, 0, 1}
	var out bytes.Buffer
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		out.Write(startCode)
		out.Write(p)
	}
	return out.Bytes()
}

func (d *Demuxer) parseFragment(data []byte) error {
	if !d.initDone {
		return fmt.Errorf("fragment before moov")
	}

	var parts fmp4.Parts
	if err := parts.Unmarshal(data); err != nil {
		return err
	}

	for _, part := range parts {
		for _, track := range part.Tracks {
			ts, ok := d.tracksByID[track.ID]
			if !ok {
				continue
			}
			batch := samplesFromPart(track, ts.descriptor.Timescale)
			ts.table.Append(batch...)
			if d.onSamples != nil {
				d.onSamples(track.ID, batch)
			}
		}
	}
	return nil
}

func samplesFromPart(track *fmp4.PartTrack, timescale uint32) []Sample {
	out := make([]Sample, 0, len(track.Samples))
	baseTime := track.BaseTime
	for i, s := range track.Samples {
		dts := rescaleToMicros(int64(baseTime), timescale)
		pts := rescaleToMicros(int64(baseTime)+int64(s.PTSOffset), timescale)
		durUs := rescaleToMicros(int64(s.Duration), timescale)

		isKeyframe := !s.IsNonSyncSample
		if !isKeyframe && i == 0 {
			// first sample of a frag_keyframe fragment is always a keyframe
			isKeyframe = true
		}

		out = append(out, Sample{
			Data:       s.Payload,
			CTSUs:      pts,
			DTSUs:      dts,
			DurationUs: durUs,
			IsKeyframe: isKeyframe,
		})
		baseTime += uint64(s.Duration)
	}
	return out
}

// Command engine-sim is a minimal driver for the engine package: it loads a
// single media file, builds a composition of one video clip (plus one audio
// clip when the file has audio) spanning its full duration, and plays it in
// an ebiten window. It exists to exercise Engine
// end to end the way the teacher's examples/mediaplayer exercised Player —
// space to play/pause, left/right to seek, escape to quit.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/erparts/reisen"
	"github.com/hajimehoshi/ebiten/v2"
	ebitenaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/nle/engine/composition"
	"github.com/nle/engine/engine"
)

const (
	canvasWidth  = 1280
	canvasHeight = 720
	seekStepUs   = 5_000_000
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: engine-sim <video file>")
		os.Exit(1)
	}
	path := os.Args[1]

	bytes, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	sampleRate, err := mediaAudioSampleRate(path)
	var audioCtx *ebitenaudio.Context
	hasAudio := err == nil
	switch {
	case err == nil:
		audioCtx = ebitenaudio.NewContext(sampleRate)
	case errors.Is(err, errNoAudio):
	default:
		panic(err)
	}

	eng := engine.New(canvasWidth, canvasHeight, audioCtx)
	defer eng.Close()

	const sourceID = "main"
	g := &simGame{engine: eng, sourceID: sourceID}

	eng.Events().Subscribe(func(ev any) {
		switch e := ev.(type) {
		case engine.SourceReady:
			g.durationUs = e.DurationUs
			tracks := []composition.Track{{
				Kind: composition.KindVideo,
				Clips: []composition.Clip{{
					ID:              "clip-video-" + sourceID,
					SourceID:        sourceID,
					Kind:            composition.KindVideo,
					TimelineStartUs: 0,
					SourceStartUs:   0,
					SourceEndUs:     e.DurationUs,
					Opacity:         1,
					Volume:          1,
				}},
			}}
			if hasAudio {
				tracks = append(tracks, composition.Track{
					Kind: composition.KindAudio,
					Clips: []composition.Clip{{
						ID:              "clip-audio-" + sourceID,
						SourceID:        sourceID,
						Kind:            composition.KindAudio,
						TimelineStartUs: 0,
						SourceStartUs:   0,
						SourceEndUs:     e.DurationUs,
						Opacity:         1,
						Volume:          1,
					}},
				})
			}
			if err := eng.Handle(engine.SetActiveClips{
				Tracks:                tracks,
				HasClipsAtTime:        true,
				CompositionDurationUs: e.DurationUs,
			}); err != nil {
				fmt.Println("set active clips:", err)
				return
			}
			if err := eng.Handle(engine.Play{}); err != nil {
				fmt.Println("play:", err)
			}
		case engine.PlaybackStateEvent:
			g.isPlaying = e.IsPlaying
		case engine.TimeUpdate:
			g.currentTimeUs = e.CurrentTimeUs
		case engine.ErrorEvent:
			fmt.Printf("engine error (source=%s): %s\n", e.SourceID, e.Message)
		}
	})

	if err := eng.Handle(engine.LoadSource{SourceID: sourceID, Bytes: bytes}); err != nil {
		panic(err)
	}

	ebiten.SetWindowTitle("engine-sim")
	ebiten.SetWindowSize(canvasWidth, canvasHeight)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil {
		panic(err)
	}
}

var errNoAudio = errors.New("media contains no audio")

// mediaAudioSampleRate mirrors the teacher's GetMediaAudioSampleRate: probe
// the file once up front so the ebiten audio.Context can be sized correctly
// before the Engine (and reisen) ever touch it.
func mediaAudioSampleRate(path string) (int, error) {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return 0, err
	}
	streams := media.AudioStreams()
	if len(streams) == 0 {
		return 0, errNoAudio
	}
	return streams[0].SampleRate(), nil
}

type simGame struct {
	engine   *engine.Engine
	sourceID string
	target   *ebiten.Image

	isPlaying     bool
	currentTimeUs int64
	durationUs    int64
}

func (g *simGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return canvasWidth, canvasHeight
}

func (g *simGame) Update() error {
	if g.target == nil {
		g.target = ebiten.NewImage(canvasWidth, canvasHeight)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		var err error
		if g.isPlaying {
			err = g.engine.Handle(engine.Pause{})
		} else {
			err = g.engine.Handle(engine.Play{})
		}
		if err != nil {
			return err
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) {
		g.seekBy(seekStepUs)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) {
		g.seekBy(-seekStepUs)
	}

	_, err := g.engine.Tick(time.Now().UnixMilli(), g.target)
	return err
}

func (g *simGame) seekBy(deltaUs int64) {
	target := g.currentTimeUs + deltaUs
	if target < 0 {
		target = 0
	}
	if g.durationUs > 0 && target > g.durationUs {
		target = g.durationUs
	}
	if err := g.engine.Handle(engine.Seek{TimeUs: target}); err != nil {
		fmt.Println("seek:", err)
	}
}

func (g *simGame) Draw(canvas *ebiten.Image) {
	if g.target != nil {
		drawLetterboxed(canvas, g.target)
	}
}

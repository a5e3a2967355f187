package main

import "github.com/hajimehoshi/ebiten/v2"

// drawLetterboxed blits the engine's composited frame into the window,
// scaling to fit the viewport while preserving aspect ratio. Any leftover
// space is left as whatever the window already had drawn (no explicit black
// bars), matching how a host editor would composite this surface into its
// own UI chrome.
func drawLetterboxed(viewport, frame *ebiten.Image) {
	geom, filter := calcProjection(viewport, frame)
	var opts ebiten.DrawImageOptions
	opts.GeoM = geom
	opts.Filter = filter
	viewport.DrawImage(frame, &opts)
}

func calcProjection(viewport, frame *ebiten.Image) (ebiten.GeoM, ebiten.Filter) {
	frameBounds := frame.Bounds()
	viewBounds := viewport.Bounds()
	vwWidth, vwHeight := viewBounds.Dx(), viewBounds.Dy()
	frWidth, frHeight := frameBounds.Dx(), frameBounds.Dy()

	tx, ty := float64(viewBounds.Min.X), float64(viewBounds.Min.Y)

	var geom ebiten.GeoM
	filter := ebiten.FilterLinear
	wf, hf := float64(vwWidth)/float64(frWidth), float64(vwHeight)/float64(frHeight)
	sf := wf
	if hf < wf {
		sf = hf
	}
	if sf == 1.0 {
		offx := (float64(vwWidth) - float64(frWidth)) / 2
		offy := (float64(vwHeight) - float64(frHeight)) / 2
		geom.Translate(tx+offx, ty+offy)
	} else {
		scaledW := float64(frWidth) * sf
		scaledH := float64(frHeight) * sf
		geom.Scale(sf, sf)
		geom.Translate(tx+(float64(vwWidth)-scaledW)/2, ty+(float64(vwHeight)-scaledH)/2)
	}
	return geom, filter
}

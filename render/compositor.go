package render

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	ximgdraw "golang.org/x/image/draw"

	"github.com/nle/engine/composition"
	"github.com/nle/engine/devicetier"
	"github.com/nle/engine/frame"
	"github.com/nle/engine/internal/logging"
)

// blendKage is the Kage shader computing the per-layer blend formula of spec
// §4.6: out.rgb = overlay.rgb*(overlay.a*opacity) + base.rgb*(1-overlay.a*opacity).
const blendKage = `
package main

var Opacity float

func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	base := imageSrc0UnsafeAt(srcPos)
	overlay := imageSrc1UnsafeAt(srcPos)
	a := overlay.a * Opacity
	outRGB := overlay.rgb*a + base.rgb*(1-a)
	outA := max(base.a, a)
	return vec4(outRGB, outA)
}
`

// FrameLookup resolves an active clip's source to the FrameBuffer that
// holds its decoded frames (the render tick drains decoder output into
// these buffers before calling Render; see engine.Engine).
type FrameLookup interface {
	BufferFor(sourceID string) *frame.Buffer
}

// RenderResult is "rendered" vs "not rendered" from spec §4.6 case 3
// (buffering, anti-flicker: previous frame stays on screen).
type RenderResult uint8

const (
	ResultComposited RenderResult = iota
	ResultClearedToBlack
	ResultNotRendered
)

// Compositor blends active video layers into a display surface using a
// single ping-pong intermediate target (spec §4.6).
type Compositor struct {
	tier     devicetier.Tier
	shader   *ebiten.Shader
	pingPong [2]*ebiten.Image
	width    int
	height   int
}

// NewCompositor builds a compositor for a display surface of the given
// size. Shader compilation is attempted once; on low device tiers the
// shader path is skipped in favor of CPU blending regardless.
func NewCompositor(width, height int, tier devicetier.Tier) *Compositor {
	c := &Compositor{tier: tier, width: width, height: height}
	if tier != devicetier.Low {
		shader, err := ebiten.NewShader([]byte(blendKage))
		if err != nil {
			logging.Printf("render: shader compile failed, falling back to CPU blend: %v", err)
		} else {
			c.shader = shader
			c.pingPong[0] = ebiten.NewImage(width, height)
			c.pingPong[1] = ebiten.NewImage(width, height)
		}
	}
	return c
}

// Close releases the compositor's GPU-side intermediates.
func (c *Compositor) Close() {
	for i := range c.pingPong {
		if c.pingPong[i] != nil {
			c.pingPong[i].Dispose()
			c.pingPong[i] = nil
		}
	}
}

// layerFrame pairs a resolved frame handle with its clip's opacity.
type layerFrame struct {
	handle  *frame.Handle
	opacity float64
}

// asEbitenImage unwraps the frame.GPUImage abstraction back to a concrete
// *ebiten.Image for drawing. Production handles are always built from real
// ebiten images (decode.reisenVideoCodec); only tests use other GPUImage
// implementations, and those never reach Render.
func asEbitenImage(img frame.GPUImage) *ebiten.Image {
	ei, _ := img.(*ebiten.Image)
	return ei
}

// Render implements the tick's scheduling/rendering step (spec §4.6
// numbered steps 1-3). clipTimes maps each active video clip's id to the
// source_time_us to query its FrameBuffer at (computed by the caller via
// ActiveClip.SourceTimeUs).
func (c *Compositor) Render(target *ebiten.Image, activeVideoClips []composition.ActiveClip, clipTimes map[string]int64, lookup FrameLookup) RenderResult {
	withFrame, result := resolveLayers(activeVideoClips, clipTimes, lookup)
	defer func() {
		for _, lf := range withFrame {
			lf.handle.Close()
		}
	}()

	switch result {
	case ResultClearedToBlack:
		target.Fill(color.Black)
		return result
	case ResultNotRendered:
		return result
	}

	if c.shader != nil {
		c.blendGPU(target, withFrame)
	} else {
		c.blendCPU(target, withFrame)
	}
	return ResultComposited
}

// resolveLayers implements the partitioning logic of spec §4.6 steps 1-3
// without touching the GPU, so it can be exercised directly by tests that
// don't have a real ebiten image backend available.
func resolveLayers(activeVideoClips []composition.ActiveClip, clipTimes map[string]int64, lookup FrameLookup) ([]layerFrame, RenderResult) {
	if len(activeVideoClips) == 0 {
		return nil, ResultClearedToBlack
	}

	var withFrame []layerFrame
	var hasWithoutFrame bool
	for _, clip := range activeVideoClips {
		buf := lookup.BufferFor(clip.SourceID)
		if buf == nil {
			hasWithoutFrame = true
			continue
		}
		h := buf.BestFor(clipTimes[clip.ClipID])
		if h == nil {
			hasWithoutFrame = true
			continue
		}
		withFrame = append(withFrame, layerFrame{handle: h, opacity: clip.Opacity})
	}

	if len(withFrame) == 0 {
		if hasWithoutFrame {
			// buffering: retain whatever is already on screen (spec §4.6 case 3)
			return nil, ResultNotRendered
		}
		return nil, ResultClearedToBlack
	}
	return withFrame, ResultComposited
}

func (c *Compositor) blendGPU(target *ebiten.Image, layers []layerFrame) {
	cur := 0
	base := c.pingPong[cur]
	base.Clear()
	var opts ebiten.DrawImageOptions
	base.DrawImage(asEbitenImage(layers[0].handle.Image()), &opts)

	for i := 1; i < len(layers); i++ {
		next := 1 - cur
		dst := c.pingPong[next]
		dst.Clear()

		shOpts := &ebiten.DrawRectShaderOptions{}
		shOpts.Images[0] = base
		shOpts.Images[1] = asEbitenImage(layers[i].handle.Image())
		shOpts.Uniforms = map[string]any{"Opacity": float32(layers[i].opacity)}
		dst.DrawRectShader(c.width, c.height, c.shader, shOpts)

		base = dst
		cur = next
	}
	target.Clear()
	target.DrawImage(base, &opts)
}

// blendCPU mirrors blendGPU's shader formula by hand: the base layer draws
// as-is (Src), and every layer above it has its premultiplied pixels scaled
// by the clip's opacity before compositing with Over, matching the Opacity
// uniform blendGPU passes to the shader.
func (c *Compositor) blendCPU(target *ebiten.Image, layers []layerFrame) {
	w, h := target.Bounds().Dx(), target.Bounds().Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for i, l := range layers {
		src := readRGBA(asEbitenImage(l.handle.Image()))
		if i == 0 {
			ximgdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, ximgdraw.Src)
			continue
		}
		scaleOpacity(src, l.opacity)
		ximgdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, ximgdraw.Over)
	}
	target.WritePixels(dst.Pix)
}

// scaleOpacity multiplies every premultiplied channel of src in place by
// opacity (spec §4.6: out.rgb = overlay.rgb*(overlay.a*opacity) + ...,
// which for an already-premultiplied pixel reduces to scaling every
// channel, alpha included, by opacity).
func scaleOpacity(src *image.RGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	if opacity < 0 {
		opacity = 0
	}
	for i := 0; i+3 < len(src.Pix); i += 4 {
		src.Pix[i] = scaleChannel(src.Pix[i], opacity)
		src.Pix[i+1] = scaleChannel(src.Pix[i+1], opacity)
		src.Pix[i+2] = scaleChannel(src.Pix[i+2], opacity)
		src.Pix[i+3] = scaleChannel(src.Pix[i+3], opacity)
	}
}

func scaleChannel(v byte, factor float64) byte {
	return byte(float64(v)*factor + 0.5)
}

func readRGBA(img *ebiten.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, 4*w*h)
	img.ReadPixels(pix)
	return &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
}

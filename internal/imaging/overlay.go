package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// NewCanvas returns an RGBA copy of img with origin (0,0) for drawing overlays.
// The source image is never modified.
func NewCanvas(img image.Image) *image.RGBA {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	return canvas
}

// FillRect paints r (clipped to dst) with c.
func FillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Over)
}

// StrokeRect draws the outline of r with the given line thickness. The stroke is
// centered on the rectangle edges, matching how video overlays usually look.
func StrokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	lo := thickness / 2
	hi := thickness - lo

	// Top and bottom
	FillRect(dst, image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Min.Y+hi), c)
	FillRect(dst, image.Rect(r.Min.X-lo, r.Max.Y-lo, r.Max.X+hi, r.Max.Y+hi), c)

	// Left and right
	FillRect(dst, image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Min.X+hi, r.Max.Y+hi), c)
	FillRect(dst, image.Rect(r.Max.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Max.Y+hi), c)
}

// DrawText renders text with its top-left corner at (x, y) using the 7x13 basic
// font enlarged by an integer scale factor.
//
// The glyphs are drawn into a small mask first and enlarged with nearest-neighbor
// sampling so that scaled text keeps hard edges.
func DrawText(dst *image.RGBA, x, y int, text string, c color.Color, scale int) {
	if text == "" {
		return
	}
	if scale < 1 {
		scale = 1
	}

	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	var glyphs image.Image = mask
	if scale > 1 {
		glyphs = imaging.Resize(mask, width*scale, height*scale, imaging.NearestNeighbor)
	}

	gb := glyphs.Bounds()
	target := image.Rect(x, y, x+gb.Dx(), y+gb.Dy())
	draw.DrawMask(dst, target, &image.Uniform{C: c}, image.Point{}, alphaOf(glyphs), gb.Min, draw.Over)
}

// TextSize returns the pixel size DrawText would cover for text at scale.
func TextSize(text string, scale int) (int, int) {
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	return font.MeasureString(face, text).Ceil() * scale, face.Metrics().Height.Ceil() * scale
}

// alphaOf exposes an image's alpha channel as a draw mask. Resized masks come
// back as NRGBA with the glyph coverage in the alpha channel.
func alphaOf(img image.Image) image.Image {
	if _, ok := img.(*image.Alpha); ok {
		return img
	}
	b := img.Bounds()
	a := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, alpha := img.At(x, y).RGBA()
			a.SetAlpha(x, y, color.Alpha{A: uint8(alpha >> 8)})
		}
	}
	return a
}

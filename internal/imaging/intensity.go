package imaging

import (
	"image"
	"image/color"
	"math"
)

// MeanIntensity returns the mean of every 8-bit R, G and B channel value in img.
//
// Returns:
//   - float64: Mean channel value in the range 0 to 255.
//   - bool: false when img has no pixels; the mean is then 0.
//
// *image.NRGBA and *image.RGBA are read directly from their pixel buffers; other
// image types go through the NRGBA color model one pixel at a time.
func MeanIntensity(img image.Image) (float64, bool) {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return 0, false
	}

	var sum uint64
	switch src := img.(type) {
	case *image.NRGBA:
		sum = sumPix(src.Pix, src.Stride, bounds.Dx(), bounds.Dy())
	case *image.RGBA:
		if isOpaque(src) {
			sum = sumPix(src.Pix, src.Stride, bounds.Dx(), bounds.Dy())
			break
		}
		sum = sumGeneric(img)
	default:
		sum = sumGeneric(img)
	}

	return float64(sum) / float64(n*3), true
}

// ChangeMagnitude returns |MeanIntensity(cur) - MeanIntensity(prev)|.
//
// Crops with different dimensions, or empty crops, cannot be compared and yield
// +Inf so that the caller always treats them as changed.
func ChangeMagnitude(cur, prev image.Image) float64 {
	if !SameSize(cur, prev) {
		return math.Inf(1)
	}
	a, ok := MeanIntensity(cur)
	if !ok {
		return math.Inf(1)
	}
	b, _ := MeanIntensity(prev)
	return math.Abs(a - b)
}

// sumPix sums R, G and B of a 4-bytes-per-pixel buffer whose first pixel is at
// offset 0.
func sumPix(pix []uint8, stride, width, height int) uint64 {
	var sum uint64
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*4]
		for i := 0; i < len(row); i += 4 {
			sum += uint64(row[i]) + uint64(row[i+1]) + uint64(row[i+2])
		}
	}
	return sum
}

func sumGeneric(img image.Image) uint64 {
	bounds := img.Bounds()
	var sum uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			sum += uint64(c.R) + uint64(c.G) + uint64(c.B)
		}
	}
	return sum
}

// isOpaque reports whether premultiplied RGBA values equal their straight values.
func isOpaque(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xFF {
			return false
		}
	}
	return true
}

package classifier

import (
	"context"
	"image"
	"image/color"

	"gonum.org/v1/gonum/stat"
)

// DefaultMaxStdDev is the luminance standard deviation above which Texture calls
// a spot occupied. Bare asphalt with painted lines typically stays well below it.
const DefaultMaxStdDev = 18.0

// Texture is a model-free classifier for setups without a trained model.
//
// It measures the standard deviation of the crop's luminance: an empty spot is
// mostly uniform pavement, while a parked car adds edges, glass and shadow. The
// spot is Empty when the deviation is at most MaxStdDev. No confidence is
// reported, so the threshold argument is ignored.
type Texture struct {
	MaxStdDev float64
}

// Classify implements Classifier.
func (t Texture) Classify(ctx context.Context, img image.Image, _ float64) (Prediction, error) {
	if degenerate(img) {
		return Occupied, nil
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	limit := t.MaxStdDev
	if limit <= 0 {
		limit = DefaultMaxStdDev
	}

	b := img.Bounds()
	lum := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			lum = append(lum, float64(g.Y))
		}
	}

	if len(lum) < 2 {
		return Occupied, nil
	}
	return Prediction{Empty: stat.StdDev(lum, nil) <= limit}, nil
}

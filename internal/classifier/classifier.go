// Package classifier defines the spot classification capability consumed by the
// occupancy engine, plus the implementations shipped with parkwatch.
//
// A Classifier looks at one cropped spot image and answers empty or occupied. Some
// models can also report how confident they are; that is carried in the same
// Prediction value rather than through a second interface, so callers branch on
// Prediction.HasConfidence and never on the concrete model type.
//
// Implementations must tolerate degenerate input (an empty or zero-area crop) by
// returning an Occupied prediction without an error.
package classifier

import (
	"context"
	"image"
)

// Prediction is the result of classifying one spot crop.
type Prediction struct {
	// Empty is true when the spot is free.
	Empty bool `json:"empty"`

	// Confidence is the model's probability that the spot is empty (0.0 to 1.0).
	// Only meaningful when HasConfidence is true.
	Confidence float64 `json:"confidence,omitempty"`

	// HasConfidence reports whether the model produced a probability.
	HasConfidence bool `json:"has_confidence"`
}

// Occupied is the conservative prediction used for degenerate crops and
// failures: a false "occupied" wastes a spot, a false "empty" misleads a driver.
var Occupied = Prediction{Empty: false}

// Classifier decides whether a cropped spot image shows an empty space.
//
// threshold is the minimum empty-probability (0.0 to 1.0) required to answer
// Empty. Models without probabilities may ignore it.
//
// Classify must be safe for concurrent use; the engine may classify several
// spots of one frame in parallel.
type Classifier interface {
	Classify(ctx context.Context, img image.Image, threshold float64) (Prediction, error)
}

// Func adapts an ordinary function to the Classifier interface.
type Func func(ctx context.Context, img image.Image, threshold float64) (Prediction, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, img image.Image, threshold float64) (Prediction, error) {
	return f(ctx, img, threshold)
}

// Inverted flips the Empty verdict of the wrapped classifier. It exists for
// models trained with the opposite label convention. A reported confidence is
// flipped too, so it keeps meaning "probability empty".
type Inverted struct {
	Classifier Classifier
}

// Classify runs the wrapped classifier and inverts its verdict. Degenerate crops
// are still reported as Occupied.
func (c Inverted) Classify(ctx context.Context, img image.Image, threshold float64) (Prediction, error) {
	if degenerate(img) {
		return Occupied, nil
	}
	p, err := c.Classifier.Classify(ctx, img, threshold)
	if err != nil {
		return p, err
	}
	p.Empty = !p.Empty
	if p.HasConfidence {
		p.Confidence = 1 - p.Confidence
	}
	return p, nil
}

// degenerate reports whether img has no usable pixels.
func degenerate(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

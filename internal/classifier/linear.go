package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
)

// Model kinds accepted by LoadLinearModel.
const (
	KindLogistic = "logistic"
	KindLinear   = "linear"
)

// Default feature grid, matching the 15x15 crops the bundled models were trained on.
const (
	DefaultFeatureWidth  = 15
	DefaultFeatureHeight = 15
)

// ErrModel is returned for unreadable or inconsistent model files.
var ErrModel = errors.New("invalid classifier model")

// LinearModelFile is the on-disk YAML form of a LinearModel.
//
// Example:
//
//	kind: logistic
//	width: 15
//	height: 15
//	channel_order: bgr
//	bias: -0.42
//	weights: [0.013, -0.002, ...]   # width*height*3 values
type LinearModelFile struct {
	Kind         string    `yaml:"kind"`
	Width        int       `yaml:"width"`
	Height       int       `yaml:"height"`
	ChannelOrder string    `yaml:"channel_order"`
	Bias         float64   `yaml:"bias"`
	Weights      []float64 `yaml:"weights"`
}

// LinearModel classifies a spot with a single linear decision function over the
// spot's pixels.
//
// # Features
//
// The crop is resized to Width x Height, every channel is scaled to 0.0-1.0, and
// the values are flattened row by row, three channels per pixel in ChannelOrder.
// The default "bgr" order matches models trained on OpenCV-decoded frames.
//
// # Decision
//
// score = weights . features + bias is the logit of the "occupied" class (class 1;
// class 0 is empty):
//   - logistic: p_empty = 1 - sigmoid(score); Empty when p_empty >= threshold.
//     The prediction carries p_empty as its confidence.
//   - linear: Empty when score <= 0. No confidence is reported and the threshold
//     is ignored.
type LinearModel struct {
	kind    string
	width   int
	height  int
	bgr     bool
	bias    float64
	weights []float64
}

// LoadLinearModel reads a YAML model file.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	var f LinearModelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModel, path, err)
	}

	m, err := NewLinearModel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// NewLinearModel validates a model description and builds the classifier.
func NewLinearModel(f LinearModelFile) (*LinearModel, error) {
	if f.Kind == "" {
		f.Kind = KindLogistic
	}
	if f.Kind != KindLogistic && f.Kind != KindLinear {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrModel, f.Kind)
	}
	if f.Width == 0 {
		f.Width = DefaultFeatureWidth
	}
	if f.Height == 0 {
		f.Height = DefaultFeatureHeight
	}
	if f.Width < 0 || f.Height < 0 {
		return nil, fmt.Errorf("%w: feature size %dx%d", ErrModel, f.Width, f.Height)
	}

	var bgr bool
	switch f.ChannelOrder {
	case "", "bgr":
		bgr = true
	case "rgb":
		bgr = false
	default:
		return nil, fmt.Errorf("%w: unknown channel order %q", ErrModel, f.ChannelOrder)
	}

	want := f.Width * f.Height * 3
	if len(f.Weights) != want {
		return nil, fmt.Errorf("%w: got %d weights, want %d for %dx%dx3 features",
			ErrModel, len(f.Weights), want, f.Width, f.Height)
	}

	return &LinearModel{
		kind:    f.Kind,
		width:   f.Width,
		height:  f.Height,
		bgr:     bgr,
		bias:    f.Bias,
		weights: f.Weights,
	}, nil
}

// Kind returns "logistic" or "linear".
func (m *LinearModel) Kind() string {
	return m.kind
}

// Classify implements Classifier.
func (m *LinearModel) Classify(ctx context.Context, img image.Image, threshold float64) (Prediction, error) {
	if degenerate(img) {
		return Occupied, nil
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	features := m.features(img)
	score := floats.Dot(m.weights, features) + m.bias
	if math.IsNaN(score) {
		return Prediction{}, fmt.Errorf("%w: decision function is NaN", ErrModel)
	}

	if m.kind == KindLinear {
		return Prediction{Empty: score <= 0}, nil
	}

	pEmpty := 1 - sigmoid(score)
	return Prediction{
		Empty:         pEmpty >= threshold,
		Confidence:    pEmpty,
		HasConfidence: true,
	}, nil
}

// features resizes the crop and flattens it into a width*height*3 vector.
func (m *LinearModel) features(img image.Image) []float64 {
	small := imaging.Resize(img, m.width, m.height)

	out := make([]float64, 0, m.width*m.height*3)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			c := small.NRGBAAt(x, y)
			out = appendPixel(out, c, m.bgr)
		}
	}
	return out
}

func appendPixel(dst []float64, c color.NRGBA, bgr bool) []float64 {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255
	if bgr {
		return append(dst, b, g, r)
	}
	return append(dst, r, g, b)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

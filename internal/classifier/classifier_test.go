package classifier

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func createSolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createStripedImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/2)%2 == 0 {
				img.Set(x, y, color.RGBA{250, 250, 250, 255})
			} else {
				img.Set(x, y, color.RGBA{10, 10, 10, 255})
			}
		}
	}
	return img
}

func uniformWeights(n int, w float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = w
	}
	return out
}

func TestLinearModel_Logistic(t *testing.T) {
	m, err := NewLinearModel(LinearModelFile{
		Kind:    KindLogistic,
		Bias:    -2,
		Weights: make([]float64, 15*15*3),
	})
	if err != nil {
		t.Fatalf("NewLinearModel failed: %v", err)
	}

	img := createSolidImage(30, 40, color.RGBA{80, 80, 80, 255})
	wantP := 1 - 1/(1+math.Exp(2))

	tests := []struct {
		threshold float64
		wantEmpty bool
	}{
		{0.5, true},
		{0.88, true},
		{0.9, false},
	}

	for _, tt := range tests {
		p, err := m.Classify(context.Background(), img, tt.threshold)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if !p.HasConfidence {
			t.Error("logistic model should report confidence")
		}
		if math.Abs(p.Confidence-wantP) > 1e-9 {
			t.Errorf("confidence: got %f, want %f", p.Confidence, wantP)
		}
		if p.Empty != tt.wantEmpty {
			t.Errorf("threshold %.2f: got empty=%v, want %v", tt.threshold, p.Empty, tt.wantEmpty)
		}
	}
}

func TestLinearModel_Linear(t *testing.T) {
	m, err := NewLinearModel(LinearModelFile{
		Kind:    KindLinear,
		Bias:    -100,
		Weights: uniformWeights(15*15*3, 1),
	})
	if err != nil {
		t.Fatalf("NewLinearModel failed: %v", err)
	}

	white, err := m.Classify(context.Background(), createSolidImage(20, 20, color.White), 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if white.Empty {
		t.Error("white crop scores 575 > 0 and should be occupied")
	}
	if white.HasConfidence {
		t.Error("linear model should not report confidence")
	}

	black, err := m.Classify(context.Background(), createSolidImage(20, 20, color.Black), 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !black.Empty {
		t.Error("black crop scores -100 and should be empty")
	}
}

func TestLinearModel_ChannelOrder(t *testing.T) {
	weights := make([]float64, 4*4*3)
	weights[0] = 10
	red := createSolidImage(8, 8, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		order     string
		wantEmpty bool
	}{
		{"bgr", true},  // first feature is blue: score -5
		{"", true},     // default is bgr
		{"rgb", false}, // first feature is red: score 5
	}

	for _, tt := range tests {
		t.Run("order="+tt.order, func(t *testing.T) {
			m, err := NewLinearModel(LinearModelFile{
				Kind:         KindLinear,
				Width:        4,
				Height:       4,
				ChannelOrder: tt.order,
				Bias:         -5,
				Weights:      weights,
			})
			if err != nil {
				t.Fatalf("NewLinearModel failed: %v", err)
			}
			p, err := m.Classify(context.Background(), red, 0.5)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if p.Empty != tt.wantEmpty {
				t.Errorf("got empty=%v, want %v", p.Empty, tt.wantEmpty)
			}
		})
	}
}

func TestLinearModel_DegenerateCrop(t *testing.T) {
	m, err := NewLinearModel(LinearModelFile{Bias: -10, Weights: make([]float64, 675)})
	if err != nil {
		t.Fatalf("NewLinearModel failed: %v", err)
	}

	for name, img := range map[string]image.Image{
		"nil":        nil,
		"zero area":  &image.NRGBA{},
		"zero width": image.NewRGBA(image.Rect(0, 0, 0, 10)),
	} {
		t.Run(name, func(t *testing.T) {
			p, err := m.Classify(context.Background(), img, 0.5)
			if err != nil {
				t.Fatalf("degenerate crop must not error: %v", err)
			}
			if p.Empty {
				t.Error("degenerate crop must be occupied")
			}
		})
	}
}

func TestLinearModel_CanceledContext(t *testing.T) {
	m, err := NewLinearModel(LinearModelFile{Weights: make([]float64, 675)})
	if err != nil {
		t.Fatalf("NewLinearModel failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Classify(ctx, createSolidImage(10, 10, color.White), 0.5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNewLinearModel_Invalid(t *testing.T) {
	tests := []struct {
		name string
		f    LinearModelFile
	}{
		{"unknown kind", LinearModelFile{Kind: "forest", Weights: make([]float64, 675)}},
		{"wrong weight count", LinearModelFile{Weights: make([]float64, 10)}},
		{"negative size", LinearModelFile{Width: -1, Height: 4, Weights: nil}},
		{"bad channel order", LinearModelFile{ChannelOrder: "gbr", Weights: make([]float64, 675)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLinearModel(tt.f)
			if !errors.Is(err, ErrModel) {
				t.Errorf("got %v, want ErrModel", err)
			}
		})
	}
}

func TestLoadLinearModel(t *testing.T) {
	data, err := yaml.Marshal(LinearModelFile{
		Kind:    KindLinear,
		Width:   2,
		Height:  2,
		Bias:    1,
		Weights: make([]float64, 12),
	})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadLinearModel(path)
	if err != nil {
		t.Fatalf("LoadLinearModel failed: %v", err)
	}
	if m.Kind() != KindLinear {
		t.Errorf("Kind: got %s, want linear", m.Kind())
	}

	p, err := m.Classify(context.Background(), createSolidImage(5, 5, color.White), 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if p.Empty {
		t.Error("score 1 > 0 should be occupied")
	}
}

func TestLoadLinearModel_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadLinearModel(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrModel) {
		t.Errorf("missing file: got %v, want ErrModel", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("weights: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLinearModel(bad); !errors.Is(err, ErrModel) {
		t.Errorf("bad yaml: got %v, want ErrModel", err)
	}
}

func TestTexture(t *testing.T) {
	c := Texture{MaxStdDev: 10}

	flat, err := c.Classify(context.Background(), createSolidImage(20, 20, color.RGBA{90, 90, 90, 255}), 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !flat.Empty {
		t.Error("uniform crop should be empty")
	}
	if flat.HasConfidence {
		t.Error("texture classifier should not report confidence")
	}

	busy, err := c.Classify(context.Background(), createStripedImage(20, 20), 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if busy.Empty {
		t.Error("high-contrast crop should be occupied")
	}

	empty, err := c.Classify(context.Background(), &image.NRGBA{}, 0.5)
	if err != nil || empty.Empty {
		t.Errorf("degenerate crop: got %+v, %v, want occupied without error", empty, err)
	}
}

func TestInverted(t *testing.T) {
	inner := Func(func(ctx context.Context, img image.Image, threshold float64) (Prediction, error) {
		return Prediction{Empty: true, Confidence: 0.8, HasConfidence: true}, nil
	})
	c := Inverted{Classifier: inner}

	p, err := c.Classify(context.Background(), createSolidImage(4, 4, color.Black), 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if p.Empty {
		t.Error("inverted verdict should be occupied")
	}
	if math.Abs(p.Confidence-0.2) > 1e-9 {
		t.Errorf("confidence: got %f, want 0.2", p.Confidence)
	}

	p, err = c.Classify(context.Background(), &image.NRGBA{}, 0.5)
	if err != nil || p.Empty {
		t.Errorf("degenerate crop: got %+v, %v, want occupied", p, err)
	}
}

func TestInverted_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	c := Inverted{Classifier: Func(func(context.Context, image.Image, float64) (Prediction, error) {
		return Prediction{}, boom
	})}

	if _, err := c.Classify(context.Background(), createSolidImage(4, 4, color.Black), 0.5); !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}

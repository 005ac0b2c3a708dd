package occupancy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/parkwatch-mcp/internal/classifier"
	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
)

// Test helpers

var (
	black = color.RGBA{0, 0, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
)

// twoSpotMask is a 100x100 mask with 20x20 components at (10,10) and (50,50).
func twoSpotMask() *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(m, m.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)
	draw.Draw(m, image.Rect(10, 10, 30, 30), image.NewUniform(white), image.Point{}, draw.Src)
	draw.Draw(m, image.Rect(50, 50, 70, 70), image.NewUniform(white), image.Point{}, draw.Src)
	return m
}

func twoSpots(t *testing.T) []detection.Spot {
	t.Helper()
	spots, err := detection.Extract(twoSpotMask(), 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(spots) != 2 {
		t.Fatalf("got %d spots, want 2", len(spots))
	}
	return spots
}

// frameWith builds a black 100x100 frame and paints the given rects white.
func frameWith(rects ...image.Rectangle) *image.RGBA {
	f := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(f, f.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)
	for _, r := range rects {
		draw.Draw(f, r, image.NewUniform(white), image.Point{}, draw.Src)
	}
	return f
}

// paint fills r in f with a solid grey level.
func paint(f *image.RGBA, r image.Rectangle, y uint8) {
	draw.Draw(f, r, image.NewUniform(color.RGBA{y, y, y, 255}), image.Point{}, draw.Src)
}

// brightIsEmpty calls a crop empty when its mean intensity is above cutoff,
// or above mid-grey when cutoff is zero. It counts calls so tests can see which
// spots were classified.
type brightIsEmpty struct {
	calls  atomic.Int64
	cutoff float64
}

func (b *brightIsEmpty) Classify(_ context.Context, img image.Image, _ float64) (classifier.Prediction, error) {
	b.calls.Add(1)
	mean, ok := imaging.MeanIntensity(img)
	if !ok {
		return classifier.Occupied, nil
	}
	cutoff := b.cutoff
	if cutoff == 0 {
		cutoff = 127
	}
	return classifier.Prediction{Empty: mean > cutoff}, nil
}

func cadenceOne() Config {
	cfg := DefaultConfig()
	cfg.Cadence = 1
	return cfg
}

func newEngine(t *testing.T, c classifier.Classifier, cfg Config) *Engine {
	t.Helper()
	e, err := New(twoSpots(t), c, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func submit(t *testing.T, e *Engine, frame image.Image) *FrameResult {
	t.Helper()
	res, err := e.SubmitFrame(context.Background(), frame)
	if err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	return res
}

// Tests

func TestEngine_EndToEnd(t *testing.T) {
	// Only near-white crops are empty, so a slightly dimmed spot 0 would read
	// as occupied if it were classified again.
	clf := &brightIsEmpty{cutoff: 240}
	e := newEngine(t, clf, cadenceOne())
	spot0 := image.Rect(10, 10, 30, 30)
	spot1 := image.Rect(50, 50, 70, 70)

	// First frame: everything is a candidate.
	res := submit(t, e, frameWith(spot0))
	if diff := cmp.Diff([]int{0, 1}, res.Candidates); diff != "" {
		t.Errorf("frame 1 candidates (-want +got):\n%s", diff)
	}
	st := e.Statistics()
	if st.Available+st.Occupied != 2 || st.Unknown != 0 {
		t.Errorf("frame 1 statistics = %+v", st)
	}
	if diff := cmp.Diff([]Status{StatusEmpty, StatusOccupied}, e.Statuses()); diff != "" {
		t.Errorf("frame 1 statuses (-want +got):\n%s", diff)
	}

	// Identical frame: zero change everywhere falls back to every spot.
	before := clf.calls.Load()
	res = submit(t, e, frameWith(spot0))
	if diff := cmp.Diff([]int{0, 1}, res.Candidates); diff != "" {
		t.Errorf("frame 2 candidates (-want +got):\n%s", diff)
	}
	if got := clf.calls.Load() - before; got != 2 {
		t.Errorf("frame 2 classified %d spots, want 2", got)
	}
	if len(res.Changed) != 0 {
		t.Errorf("frame 2 changed = %v, want none", res.Changed)
	}

	// Spot 1 changes a lot and spot 0 dims to 230, below the 0.4 x 255 gate:
	// only spot 1 is re-classified and spot 0 keeps its earlier Empty.
	before = clf.calls.Load()
	frame3 := frameWith(spot1)
	paint(frame3, spot0, 230)
	res = submit(t, e, frame3)
	if diff := cmp.Diff([]int{1}, res.Candidates); diff != "" {
		t.Errorf("frame 3 candidates (-want +got):\n%s", diff)
	}
	if got := clf.calls.Load() - before; got != 1 {
		t.Errorf("frame 3 classified %d spots, want 1", got)
	}
	if diff := cmp.Diff([]int{1}, res.Changed); diff != "" {
		t.Errorf("frame 3 changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Status{StatusEmpty, StatusEmpty}, e.Statuses()); diff != "" {
		t.Errorf("frame 3 statuses (-want +got):\n%s", diff)
	}

	m0, ok0 := e.Magnitude(0)
	m1, ok1 := e.Magnitude(1)
	if !ok0 || !ok1 || m0 != 25 || m1 != 255 {
		t.Errorf("magnitudes = (%v,%v) (%v,%v), want (25,true) (255,true)", m0, ok0, m1, ok1)
	}
	if e.FrameNumber() != 3 || e.SampledCount() != 3 {
		t.Errorf("counters = %d/%d, want 3/3", e.FrameNumber(), e.SampledCount())
	}
}

func TestEngine_Cadence(t *testing.T) {
	clf := &brightIsEmpty{}
	cfg := DefaultConfig()
	cfg.Cadence = 3
	e := newEngine(t, clf, cfg)

	var sampled []uint64
	for i := 0; i < 9; i++ {
		res := submit(t, e, frameWith())
		if res.FrameNumber != uint64(i+1) {
			t.Fatalf("frame number = %d, want %d", res.FrameNumber, i+1)
		}
		if res.Sampled {
			sampled = append(sampled, res.FrameNumber)
		}
	}

	if diff := cmp.Diff([]uint64{3, 6, 9}, sampled); diff != "" {
		t.Errorf("sampled frames (-want +got):\n%s", diff)
	}
	if e.SampledCount() != 3 {
		t.Errorf("SampledCount = %d, want 3", e.SampledCount())
	}
	if got := clf.calls.Load(); got != 6 {
		t.Errorf("classifier calls = %d, want 6", got)
	}
}

func TestEngine_StatusesUnknownUntilFirstSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cadence = 5
	e := newEngine(t, &brightIsEmpty{}, cfg)

	if e.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready", e.Phase())
	}
	for i := 0; i < 4; i++ {
		submit(t, e, frameWith())
	}
	if e.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", e.Phase())
	}
	if st := e.Statistics(); st.Unknown != 2 {
		t.Errorf("unknown = %d before first sample, want 2", st.Unknown)
	}
	if _, ok := e.Magnitude(0); ok {
		t.Error("magnitude defined before any sample")
	}

	submit(t, e, frameWith())
	if st := e.Statistics(); st.Unknown != 0 {
		t.Errorf("unknown = %d after first sample, want 0", st.Unknown)
	}
	// One sample only: magnitudes stay undefined.
	if _, ok := e.Magnitude(0); ok {
		t.Error("magnitude defined after a single sample")
	}
}

func TestEngine_ClassifierFailureMarksOccupied(t *testing.T) {
	boom := errors.New("model exploded")
	clf := classifier.Func(func(_ context.Context, img image.Image, _ float64) (classifier.Prediction, error) {
		// Only spot 0 is bright in the frame below.
		if mean, _ := imaging.MeanIntensity(img); mean > 127 {
			return classifier.Prediction{}, boom
		}
		return classifier.Prediction{Empty: true}, nil
	})
	e := newEngine(t, clf, cadenceOne())

	res := submit(t, e, frameWith(image.Rect(10, 10, 30, 30)))

	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(res.Failures))
	}
	f := res.Failures[0]
	if f.Index != 0 || f.FrameNumber != 1 || !errors.Is(f, boom) {
		t.Errorf("failure = %+v", f)
	}
	if diff := cmp.Diff([]Status{StatusOccupied, StatusEmpty}, e.Statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
}

func TestEngine_ClassifierPanicMarksOccupied(t *testing.T) {
	clf := classifier.Func(func(context.Context, image.Image, float64) (classifier.Prediction, error) {
		panic("bad tensor")
	})
	e := newEngine(t, clf, cadenceOne())

	res := submit(t, e, frameWith())
	if len(res.Failures) != 2 {
		t.Errorf("failures = %d, want 2", len(res.Failures))
	}
	if st := e.Statistics(); st.Occupied != 2 {
		t.Errorf("occupied = %d, want 2", st.Occupied)
	}
}

func TestEngine_FailingClassifierStaysOccupiedAcrossSamples(t *testing.T) {
	boom := errors.New("model offline")
	var failing atomic.Bool
	failing.Store(true)
	clf := classifier.Func(func(_ context.Context, img image.Image, _ float64) (classifier.Prediction, error) {
		if failing.Load() {
			return classifier.Prediction{}, boom
		}
		mean, _ := imaging.MeanIntensity(img)
		return classifier.Prediction{Empty: mean > 127}, nil
	})
	e := newEngine(t, clf, cadenceOne())
	spot0 := image.Rect(10, 10, 30, 30)
	spot1 := image.Rect(50, 50, 70, 70)

	tests := []struct {
		name       string
		frame      *image.RGBA
		succeed    bool
		candidates []int
		failures   int
		want       []Status
	}{
		// First sample: every spot is a candidate.
		{"first sample", frameWith(), false, []int{0, 1}, 2, []Status{StatusOccupied, StatusOccupied}},
		// No change anywhere: the zero-peak fallback selects every spot.
		{"unchanged frame", frameWith(), false, []int{0, 1}, 2, []Status{StatusOccupied, StatusOccupied}},
		// Spot 1 brightens: the gate selects only spot 1, and it fails again.
		{"gated frame", frameWith(spot1), false, []int{1}, 1, []Status{StatusOccupied, StatusOccupied}},
		// Classifier recovers. Spot 0 is classified Empty; spot 1 is bright but
		// unselected, so it stays Occupied.
		{"recovered", frameWith(spot0, spot1), true, []int{0}, 0, []Status{StatusEmpty, StatusOccupied}},
	}

	for i, tt := range tests {
		failing.Store(!tt.succeed)
		res := submit(t, e, tt.frame)
		if diff := cmp.Diff(tt.candidates, res.Candidates); diff != "" {
			t.Errorf("frame %d (%s) candidates (-want +got):\n%s", i+1, tt.name, diff)
		}
		if len(res.Failures) != tt.failures {
			t.Errorf("frame %d (%s) failures = %d, want %d", i+1, tt.name, len(res.Failures), tt.failures)
		}
		for _, f := range res.Failures {
			if !errors.Is(f, boom) {
				t.Errorf("frame %d (%s) failure = %v, want %v", i+1, tt.name, f, boom)
			}
		}
		if diff := cmp.Diff(tt.want, e.Statuses()); diff != "" {
			t.Errorf("frame %d (%s) statuses (-want +got):\n%s", i+1, tt.name, diff)
		}
	}
}

func TestEngine_WarnsWhenSpotsOutsideFrame(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func() Config
		frame  image.Image
		warned bool
	}{
		{"adopted size too small", cadenceOne, image.NewRGBA(image.Rect(0, 0, 40, 40)), true},
		{"adopted size fits", cadenceOne, frameWith(), false},
		{"configured size too small", func() Config {
			cfg := cadenceOne()
			cfg.FrameWidth, cfg.FrameHeight = 40, 40
			return cfg
		}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e, err := New(twoSpots(t), &brightIsEmpty{}, tt.cfg(), logger.New(logger.WARN, &buf))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if tt.frame != nil {
				submit(t, e, tt.frame)
			}

			out := buf.String()
			if got := strings.Contains(out, "spot 1 at"); got != tt.warned {
				t.Errorf("spot 1 warning = %v, want %v; log:\n%s", got, tt.warned, out)
			}
			// Spot 0 ends at (30,30) and fits in every case.
			if strings.Contains(out, "spot 0 at") {
				t.Errorf("unexpected spot 0 warning:\n%s", out)
			}
		})
	}
}

func TestEngine_ShapeMismatch(t *testing.T) {
	clf := &brightIsEmpty{}
	e := newEngine(t, clf, cadenceOne())
	submit(t, e, frameWith())

	small := image.NewRGBA(image.Rect(0, 0, 50, 50))
	res, err := e.SubmitFrame(context.Background(), small)
	if !errors.Is(err, ErrFrameShapeMismatch) {
		t.Fatalf("err = %v, want ErrFrameShapeMismatch", err)
	}
	if res.FrameNumber != 2 || res.Sampled {
		t.Errorf("result = %+v", res)
	}
	if e.SampledCount() != 1 {
		t.Errorf("SampledCount = %d, want 1", e.SampledCount())
	}

	if _, err := e.SubmitFrame(context.Background(), nil); !errors.Is(err, ErrFrameShapeMismatch) {
		t.Errorf("nil frame err = %v", err)
	}
	if e.FrameNumber() != 3 {
		t.Errorf("FrameNumber = %d, want 3", e.FrameNumber())
	}
}

func TestEngine_ConfiguredFrameSize(t *testing.T) {
	cfg := cadenceOne()
	cfg.FrameWidth, cfg.FrameHeight = 640, 480
	e := newEngine(t, &brightIsEmpty{}, cfg)

	if _, err := e.SubmitFrame(context.Background(), frameWith()); !errors.Is(err, ErrFrameShapeMismatch) {
		t.Errorf("err = %v, want ErrFrameShapeMismatch", err)
	}
	if w, h := e.FrameSize(); w != 640 || h != 480 {
		t.Errorf("FrameSize = %dx%d", w, h)
	}
}

func TestEngine_Release(t *testing.T) {
	e := newEngine(t, &brightIsEmpty{}, cadenceOne())
	submit(t, e, frameWith())

	e.Release()
	e.Release()

	if e.Phase() != PhaseReleased {
		t.Errorf("phase = %v, want released", e.Phase())
	}
	if _, err := e.SubmitFrame(context.Background(), frameWith()); !errors.Is(err, ErrReleased) {
		t.Errorf("err = %v, want ErrReleased", err)
	}
	if e.FrameNumber() != 1 {
		t.Errorf("FrameNumber = %d, want 1", e.FrameNumber())
	}
	// Queries still answer after release.
	if st := e.Statistics(); st.Total != 2 {
		t.Errorf("Total = %d, want 2", st.Total)
	}
}

func TestEngine_CanceledContextLeavesStateAlone(t *testing.T) {
	e := newEngine(t, &brightIsEmpty{}, cadenceOne())
	submit(t, e, frameWith(image.Rect(10, 10, 30, 30)))
	want := e.Statuses()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.SubmitFrame(ctx, frameWith(image.Rect(50, 50, 70, 70)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if diff := cmp.Diff(want, e.Statuses()); diff != "" {
		t.Errorf("statuses changed (-want +got):\n%s", diff)
	}
	if _, ok := e.Magnitude(0); ok {
		t.Error("magnitudes committed by an aborted pass")
	}
	if e.FrameNumber() != 2 || e.SampledCount() != 2 {
		t.Errorf("counters = %d/%d, want 2/2", e.FrameNumber(), e.SampledCount())
	}

	// The previous sample is still the first frame, so spot 0 changes now.
	res := submit(t, e, frameWith(image.Rect(50, 50, 70, 70)))
	if diff := cmp.Diff([]int{0, 1}, res.Candidates); diff != "" {
		t.Errorf("candidates (-want +got):\n%s", diff)
	}
}

func TestEngine_ParallelWorkers(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	clf := classifier.Func(func(_ context.Context, img image.Image, _ float64) (classifier.Prediction, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			active--
			mu.Unlock()
		}()
		mean, _ := imaging.MeanIntensity(img)
		return classifier.Prediction{Empty: mean > 127, Confidence: mean / 255, HasConfidence: true}, nil
	})

	mask := image.NewRGBA(image.Rect(0, 0, 200, 40))
	draw.Draw(mask, mask.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)
	for i := 0; i < 8; i++ {
		draw.Draw(mask, image.Rect(i*24+2, 10, i*24+22, 30), image.NewUniform(white), image.Point{}, draw.Src)
	}
	spots, err := detection.Extract(mask, 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	cfg := cadenceOne()
	cfg.Workers = 3
	e, err := New(spots, clf, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.SubmitFrame(context.Background(), mask); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if maxSeen > 3 {
		t.Errorf("saw %d concurrent classifications, limit 3", maxSeen)
	}
	if st := e.Statistics(); st.Available != 8 {
		t.Errorf("available = %d, want 8", st.Available)
	}
	snap := e.Snapshot()
	for _, s := range snap.Spots {
		if s.Confidence == nil || *s.Confidence != 1 {
			t.Errorf("spot %d confidence = %v, want 1", s.Index, s.Confidence)
		}
	}
}

func TestEngine_DoesNotRetainFrame(t *testing.T) {
	e := newEngine(t, &brightIsEmpty{}, cadenceOne())
	frame := frameWith(image.Rect(10, 10, 30, 30))
	submit(t, e, frame)

	// Scribbling on the caller's buffer must not look like a change.
	draw.Draw(frame, frame.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	res := submit(t, e, frameWith(image.Rect(10, 10, 30, 30)))
	if diff := cmp.Diff([]int{0, 1}, res.Candidates); diff != "" {
		t.Errorf("candidates (-want +got):\n%s", diff)
	}
	if m, ok := e.Magnitude(1); !ok || m != 0 {
		t.Errorf("magnitude(1) = %v,%v, want 0,true", m, ok)
	}
}

func TestNew_Errors(t *testing.T) {
	spots := []detection.Spot{{Index: 0, X: 0, Y: 0, Width: 20, Height: 20}}
	clf := &brightIsEmpty{}

	tests := []struct {
		name  string
		spots []detection.Spot
		clf   classifier.Classifier
		cfg   Config
		want  error
	}{
		{"no spots", nil, clf, DefaultConfig(), ErrNoSpots},
		{"nil classifier", spots, nil, DefaultConfig(), ErrInvalidConfig},
		{"zero cadence", spots, clf, Config{Cadence: 0, DiffThreshold: 0.4}, ErrInvalidConfig},
		{"diff above one", spots, clf, Config{Cadence: 1, DiffThreshold: 1.5}, ErrInvalidConfig},
		{"negative confidence", spots, clf, Config{Cadence: 1, ConfidenceThreshold: -0.1}, ErrInvalidConfig},
		{"half frame size", spots, clf, Config{Cadence: 1, FrameWidth: 10}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spots, tt.clf, tt.cfg, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSelectCandidates(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name      string
		mags      []float64
		threshold float64
		want      []int
	}{
		{"all zero", []float64{0, 0, 0}, 0.4, []int{0, 1, 2}},
		{"one changed", []float64{0, 10, 1}, 0.4, []int{1}},
		{"at cut", []float64{4, 10, 3.9}, 0.4, []int{0, 1}},
		{"threshold one", []float64{10, 10, 9}, 1, []int{0, 1}},
		{"threshold zero", []float64{0, 10, 0}, 0, []int{0, 1, 2}},
		{"infinite wins", []float64{inf, 200, 0}, 0.4, []int{0}},
		{"empty", []float64{}, 0.4, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectCandidates(tt.mags, tt.threshold)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	statuses := []Status{StatusEmpty, StatusEmpty, StatusOccupied, StatusEmpty}
	got := Aggregate(statuses)
	want := Statistics{Total: 4, Available: 3, Occupied: 1, AvailabilityRate: 0.75}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, Aggregate(statuses)); diff != "" {
		t.Errorf("second call differs (-first +second):\n%s", diff)
	}

	if got := Aggregate(nil); got.AvailabilityRate != 0 || got.Total != 0 {
		t.Errorf("Aggregate(nil) = %+v", got)
	}
	if got := Aggregate([]Status{StatusUnknown, StatusEmpty}); got.Unknown != 1 || got.AvailabilityRate != 0.5 {
		t.Errorf("with unknown = %+v", got)
	}
}

func TestStatus_Text(t *testing.T) {
	for _, s := range []Status{StatusUnknown, StatusEmpty, StatusOccupied} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", s, err)
		}
		var back Status
		if err := back.UnmarshalText(text); err != nil || back != s {
			t.Errorf("round trip %v: got %v, %v", s, back, err)
		}
	}
	if _, err := ParseStatus("parked"); err == nil {
		t.Error("ParseStatus accepted an unknown name")
	}
	if _, err := Status(9).MarshalText(); err == nil {
		t.Error("MarshalText accepted an out-of-range status")
	}
}

func TestSnapshot_JSON(t *testing.T) {
	e := newEngine(t, &brightIsEmpty{}, cadenceOne())
	submit(t, e, frameWith(image.Rect(10, 10, 30, 30)))

	data, err := json.Marshal(e.Snapshot())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got struct {
		Phase string `json:"phase"`
		Spots []struct {
			Index     int      `json:"index"`
			Status    string   `json:"status"`
			Magnitude *float64 `json:"magnitude"`
		} `json:"spots"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Phase != "idle" || len(got.Spots) != 2 {
		t.Fatalf("snapshot = %s", data)
	}
	if got.Spots[0].Status != "empty" || got.Spots[1].Status != "occupied" {
		t.Errorf("statuses = %q, %q", got.Spots[0].Status, got.Spots[1].Status)
	}
	if got.Spots[0].Magnitude != nil {
		t.Error("magnitude present after one sample")
	}
}

// Package occupancy implements the frame-driven parking occupancy engine.
//
// An Engine owns a fixed list of spots and, for every frame it is given, decides
// whether the frame is a sampling frame (every Cadence-th frame). On a sampling
// frame it measures how much each spot's region changed since the previous
// sampled frame, re-classifies the spots that changed the most, and keeps the
// last known status of the rest.
//
// # Candidate Selection
//
//  1. First sampled frame: every spot is a candidate.
//  2. Later sampled frames: magnitude_i = |mean(current ROI) - mean(previous ROI)|.
//     With M = max magnitude, M == 0 selects every spot; otherwise spots with
//     magnitude_i >= DiffThreshold*M are selected, falling back to every spot if
//     none qualify. Crops that cannot be compared count as +Inf.
//
// # Concurrency
//
// An Engine is not safe for concurrent use. One goroutine (or an external mutex)
// must drive SubmitFrame and the query methods. Inside one sampling pass the
// per-spot classifications may run on up to Config.Workers goroutines.
package occupancy

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/parkwatch-mcp/internal/classifier"
	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
)

// Config holds the per-engine processing settings.
type Config struct {
	// Cadence samples every Cadence-th frame (frame numbers start at 1).
	Cadence int `json:"cadence"`

	// DiffThreshold is the fraction (0.0 to 1.0) of the largest change magnitude a
	// spot must reach to be re-classified.
	DiffThreshold float64 `json:"diff_threshold"`

	// ConfidenceThreshold is forwarded to the classifier (0.0 to 1.0).
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// Workers bounds parallel classification within one frame. Values below 1
	// mean 1.
	Workers int `json:"workers"`

	// FrameWidth and FrameHeight fix the run's frame size. When zero, the first
	// submitted frame sets it.
	FrameWidth  int `json:"frame_width"`
	FrameHeight int `json:"frame_height"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Cadence:             30,
		DiffThreshold:       0.4,
		ConfidenceThreshold: 0.5,
		Workers:             1,
	}
}

// Validate checks that every field is in range.
func (c Config) Validate() error {
	if c.Cadence < 1 {
		return fmt.Errorf("%w: cadence must be >= 1, got %d", ErrInvalidConfig, c.Cadence)
	}
	if c.DiffThreshold < 0 || c.DiffThreshold > 1 || math.IsNaN(c.DiffThreshold) {
		return fmt.Errorf("%w: diff threshold must be in [0,1], got %v", ErrInvalidConfig, c.DiffThreshold)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 || math.IsNaN(c.ConfidenceThreshold) {
		return fmt.Errorf("%w: confidence threshold must be in [0,1], got %v", ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.FrameWidth < 0 || c.FrameHeight < 0 {
		return fmt.Errorf("%w: negative frame size %dx%d", ErrInvalidConfig, c.FrameWidth, c.FrameHeight)
	}
	if (c.FrameWidth == 0) != (c.FrameHeight == 0) {
		return fmt.Errorf("%w: frame width and height must both be set or both be zero", ErrInvalidConfig)
	}
	return nil
}

// Phase is the engine's lifecycle position.
type Phase int

const (
	// PhaseReady: spots extracted and tables allocated, no frame seen yet.
	PhaseReady Phase = iota
	// PhaseIdle: at least one frame seen, waiting for the next one.
	PhaseIdle
	// PhaseReleased: terminal, frames are rejected.
	PhaseReleased
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseIdle:
		return "idle"
	case PhaseReleased:
		return "released"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// FrameResult describes what one SubmitFrame call did.
type FrameResult struct {
	// FrameNumber is the 1-based number assigned to the frame.
	FrameNumber uint64 `json:"frame_number"`

	// Sampled is true when the frame triggered a classification pass.
	Sampled bool `json:"sampled"`

	// Candidates lists the spot indices that were re-classified, ascending.
	Candidates []int `json:"candidates,omitempty"`

	// Changed lists the spot indices whose status changed, ascending.
	Changed []int `json:"changed,omitempty"`

	// Failures holds the recovered per-spot classifier errors.
	Failures []*SpotError `json:"-"`
}

// state is everything that changes while frames are processed. It is owned by
// the engine and replaced field by field only when a sampling pass commits.
type state struct {
	statuses     []Status
	confidences  []float64 // NaN when the last prediction had no confidence
	magnitudes   []float64 // NaN until a second sampled frame exists
	previous     *image.NRGBA
	frameNumber  uint64
	sampledCount uint64
	width        int
	height       int
	released     bool
}

// Engine tracks per-spot occupancy across a stream of frames.
type Engine struct {
	cfg        Config
	spots      []detection.Spot
	classifier classifier.Classifier
	log        *logger.Logger
	st         state
}

// New builds an engine in the Ready phase: every status Unknown, every magnitude
// undefined.
//
// # Errors
//
//   - ErrNoSpots if spots is empty
//   - ErrInvalidConfig if cfg fails validation
//   - an error if c is nil
func New(spots []detection.Spot, c classifier.Classifier, cfg Config, log *logger.Logger) (*Engine, error) {
	if len(spots) == 0 {
		return nil, ErrNoSpots
	}
	if c == nil {
		return nil, fmt.Errorf("%w: nil classifier", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logger.Discard()
	}

	n := len(spots)
	e := &Engine{
		cfg:        cfg,
		spots:      append([]detection.Spot(nil), spots...),
		classifier: c,
		log:        log,
		st: state{
			statuses:    make([]Status, n),
			confidences: make([]float64, n),
			magnitudes:  make([]float64, n),
			width:       cfg.FrameWidth,
			height:      cfg.FrameHeight,
		},
	}
	for i := range e.st.magnitudes {
		e.st.magnitudes[i] = math.NaN()
		e.st.confidences[i] = math.NaN()
	}

	if cfg.FrameWidth > 0 {
		e.warnOutside(cfg.FrameWidth, cfg.FrameHeight)
	}

	e.log.Infof("engine ready: %d spots, cadence %d, diff threshold %.2f, confidence threshold %.2f",
		n, cfg.Cadence, cfg.DiffThreshold, cfg.ConfidenceThreshold)
	return e, nil
}

// SubmitFrame counts frame and, on sampling frames, updates spot statuses.
//
// The frame number always advances by one, even when the frame is rejected.
// The engine never keeps a reference to frame; sampled frames are copied.
//
// # Errors
//
//   - ErrReleased after Release (the frame is not counted)
//   - ErrFrameShapeMismatch if the frame size differs from the run's size; the
//     frame is counted, nothing else changes
//   - the context error if ctx ends during the classification pass; the frame is
//     counted as sampled but statuses, magnitudes and the previous sample are left
//     as they were
//
// Classifier failures for individual spots are not errors: the spot becomes
// Occupied and the failure is reported in FrameResult.Failures.
func (e *Engine) SubmitFrame(ctx context.Context, frame image.Image) (*FrameResult, error) {
	if e.st.released {
		return nil, ErrReleased
	}

	e.st.frameNumber++
	n := e.st.frameNumber
	res := &FrameResult{FrameNumber: n}

	if err := e.checkShape(frame); err != nil {
		e.log.Warnf("frame %d rejected: %v", n, err)
		return res, fmt.Errorf("frame %d: %w", n, err)
	}

	if n%uint64(e.cfg.Cadence) != 0 {
		return res, nil
	}

	e.st.sampledCount++
	res.Sampled = true

	current := imaging.Clone(frame)
	magnitudes := e.measure(current)
	candidates := SelectAll(len(e.spots))
	if magnitudes != nil {
		candidates = SelectCandidates(magnitudes, e.cfg.DiffThreshold)
	}
	res.Candidates = candidates

	outcomes, err := e.classify(ctx, current, candidates)
	if err != nil {
		e.log.Warnf("frame %d: sampling aborted: %v", n, err)
		return res, fmt.Errorf("frame %d: %w", n, err)
	}

	for i, idx := range candidates {
		o := outcomes[i]
		if o.err != nil {
			se := &SpotError{Index: idx, FrameNumber: n, Err: o.err}
			res.Failures = append(res.Failures, se)
			e.log.Warnf("classifier failed, marking occupied: %v", se)
		}

		status := StatusOccupied
		if o.pred.Empty {
			status = StatusEmpty
		}
		if status != e.st.statuses[idx] {
			res.Changed = append(res.Changed, idx)
		}
		e.st.statuses[idx] = status
		e.st.confidences[idx] = math.NaN()
		if o.pred.HasConfidence {
			e.st.confidences[idx] = o.pred.Confidence
		}
	}
	if magnitudes != nil {
		e.st.magnitudes = magnitudes
	}
	e.st.previous = current

	e.log.Debugf("frame %d sampled: %d candidates, %d changed, %d failures",
		n, len(candidates), len(res.Changed), len(res.Failures))
	return res, nil
}

// checkShape validates frame against the run's frame size, adopting the first
// frame's size when none was configured.
func (e *Engine) checkShape(frame image.Image) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameShapeMismatch)
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: empty frame", ErrFrameShapeMismatch)
	}
	if e.st.width == 0 {
		e.st.width, e.st.height = w, h
		e.warnOutside(w, h)
		return nil
	}
	if w != e.st.width || h != e.st.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameShapeMismatch, w, h, e.st.width, e.st.height)
	}
	return nil
}

// warnOutside logs each spot whose box is not fully inside a w x h frame. Such
// spots crop short or empty and tend to read as changed and occupied.
func (e *Engine) warnOutside(w, h int) {
	bounds := image.Rect(0, 0, w, h)
	for _, s := range e.spots {
		if r := s.Rect(); !r.In(bounds) {
			e.log.Warnf("spot %d at %v lies outside the %dx%d frame; check mask scale and source resolution", s.Index, r, w, h)
		}
	}
}

// measure computes per-spot change magnitudes against the previous sample, or
// returns nil when there is no previous sample yet.
func (e *Engine) measure(current *image.NRGBA) []float64 {
	if e.st.previous == nil {
		return nil
	}
	out := make([]float64, len(e.spots))
	for i, s := range e.spots {
		r := s.Rect()
		out[i] = imaging.ChangeMagnitude(imaging.CropRegion(current, r), imaging.CropRegion(e.st.previous, r))
	}
	return out
}

// SelectCandidates returns the spot indices to re-classify, ascending, given the
// change magnitudes of a sampled frame that has a predecessor:
//   - peak == 0 or threshold <= 0: every spot
//   - else: spots with magnitude >= threshold*peak, or every spot if none
func SelectCandidates(magnitudes []float64, threshold float64) []int {
	peak := 0.0
	for _, m := range magnitudes {
		if m > peak {
			peak = m
		}
	}
	if peak == 0 || threshold <= 0 {
		return SelectAll(len(magnitudes))
	}

	cut := threshold * peak
	out := make([]int, 0, len(magnitudes))
	for i, m := range magnitudes {
		if m >= cut {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return SelectAll(len(magnitudes))
	}
	return out
}

// SelectAll returns 0..n-1.
func SelectAll(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// outcome is one spot's classification result.
type outcome struct {
	pred classifier.Prediction
	err  error
}

// classify runs the classifier over the candidate crops. Results are stored by
// candidate position, so completion order does not matter. Only context errors
// are returned; per-spot failures are folded into the outcome as Occupied.
func (e *Engine) classify(ctx context.Context, frame *image.NRGBA, candidates []int) ([]outcome, error) {
	outcomes := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, idx := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			crop := imaging.CropRegion(frame, e.spots[idx].Rect())
			pred, err := e.classifyOne(gctx, crop)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				outcomes[i] = outcome{pred: classifier.Occupied, err: err}
				return nil
			}
			outcomes[i] = outcome{pred: pred}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// classifyOne turns a classifier panic into an error so one bad spot cannot take
// down the frame.
func (e *Engine) classifyOne(ctx context.Context, crop image.Image) (pred classifier.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred, err = classifier.Occupied, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return e.classifier.Classify(ctx, crop, e.cfg.ConfidenceThreshold)
}

// Release moves the engine to the terminal phase and drops the previous frame.
// It is safe to call more than once.
func (e *Engine) Release() {
	if e.st.released {
		return
	}
	e.st.released = true
	e.st.previous = nil
	e.log.Infof("engine released after %d frames (%d sampled)", e.st.frameNumber, e.st.sampledCount)
}

// Phase reports the lifecycle phase.
func (e *Engine) Phase() Phase {
	switch {
	case e.st.released:
		return PhaseReleased
	case e.st.frameNumber == 0:
		return PhaseReady
	default:
		return PhaseIdle
	}
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// Spots returns a copy of the spot list.
func (e *Engine) Spots() []detection.Spot {
	return append([]detection.Spot(nil), e.spots...)
}

// Statuses returns a copy of the status table, indexed by spot index.
func (e *Engine) Statuses() []Status {
	return append([]Status(nil), e.st.statuses...)
}

// Status returns one spot's status.
func (e *Engine) Status(index int) (Status, error) {
	if index < 0 || index >= len(e.spots) {
		return StatusUnknown, fmt.Errorf("spot index %d out of range [0,%d)", index, len(e.spots))
	}
	return e.st.statuses[index], nil
}

// Magnitude returns a spot's last change magnitude; ok is false until a second
// sampled frame has been processed.
func (e *Engine) Magnitude(index int) (float64, bool) {
	if index < 0 || index >= len(e.spots) {
		return 0, false
	}
	m := e.st.magnitudes[index]
	if math.IsNaN(m) {
		return 0, false
	}
	return m, true
}

// Statistics aggregates the current status table.
func (e *Engine) Statistics() Statistics {
	return Aggregate(e.st.statuses)
}

// FrameNumber returns the number of frames submitted so far.
func (e *Engine) FrameNumber() uint64 {
	return e.st.frameNumber
}

// SampledCount returns the number of frames that triggered a sampling pass.
func (e *Engine) SampledCount() uint64 {
	return e.st.sampledCount
}

// FrameSize returns the run's frame size, or 0x0 before it is known.
func (e *Engine) FrameSize() (int, int) {
	return e.st.width, e.st.height
}

// Package monitor drives an occupancy engine from a video source and makes its
// state available to concurrent readers.
//
// The engine itself is single-caller. Monitor serializes every engine call
// behind one mutex, so the frame loop started by Run and the MCP tool handlers
// can share it. Side effects of sampling (metrics, history rows) happen here,
// outside the engine.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironsheep/parkwatch-mcp/internal/annotate"
	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
	"github.com/ironsheep/parkwatch-mcp/internal/metrics"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
	"github.com/ironsheep/parkwatch-mcp/internal/store"
	"github.com/ironsheep/parkwatch-mcp/internal/video"
)

var (
	// ErrNoFrame is returned by Annotated before any frame was accepted.
	ErrNoFrame = errors.New("no frame processed yet")

	// ErrNoSource is returned by Run when the monitor has no video source.
	ErrNoSource = errors.New("no video source configured")

	// ErrNoStore is returned by history queries when persistence is disabled.
	ErrNoStore = errors.New("history store not configured")

	// ErrFrameTimeout is returned when a frame exceeded Options.FrameTimeout and
	// was skipped.
	ErrFrameTimeout = errors.New("frame processing timed out")

	// ErrAlreadyRunning is returned by Run when the frame loop is active.
	ErrAlreadyRunning = errors.New("frame loop already running")
)

// SampleFunc is called after every sampled frame, with the monitor lock held.
// frame is the monitor's private copy and must not be retained.
type SampleFunc func(res *occupancy.FrameResult, frame image.Image)

// Options configures a Monitor. Everything except the engine is optional.
type Options struct {
	Source       video.Source
	Store        *store.Store
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
	Style        annotate.Style
	FrameTimeout time.Duration
	OnSample     SampleFunc

	// SourceName and MaskPath are recorded with the run.
	SourceName string
	MaskPath   string
}

// Status summarizes the monitor for status queries.
type Status struct {
	RunID        string    `json:"run_id,omitempty"`
	Phase        string    `json:"phase"`
	Running      bool      `json:"running"`
	Source       string    `json:"source,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Uptime       string    `json:"uptime"`
	FrameNumber  uint64    `json:"frame_number"`
	SampledCount uint64    `json:"sampled_count"`
	TotalSpots   int       `json:"total_spots"`
	LastError    string    `json:"last_error,omitempty"`

	// Box colors used for annotated frames, as "#rrggbb".
	EmptyColor    string `json:"empty_color,omitempty"`
	OccupiedColor string `json:"occupied_color,omitempty"`

	// Run is the stored run record, filled in by callers that have a context
	// for the store query.
	Run *store.Run `json:"run,omitempty"`
}

// Monitor owns one engine and its optional source, store and metrics.
type Monitor struct {
	mu      sync.Mutex
	engine  *occupancy.Engine
	opts    Options
	log     *logger.Logger
	latest  *image.NRGBA
	runID   string
	started time.Time
	lastErr error
	closed  bool

	running atomic.Bool
}

// New wraps engine. When a store is configured the spots are saved and a run is
// opened.
func New(ctx context.Context, engine *occupancy.Engine, opts Options) (*Monitor, error) {
	if engine == nil {
		return nil, errors.New("monitor: nil engine")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Style.Thickness == 0 && opts.Style.EmptyColor == nil {
		opts.Style = annotate.DefaultStyle()
	}

	m := &Monitor{
		engine:  engine,
		opts:    opts,
		log:     opts.Logger,
		started: time.Now(),
	}

	if s := opts.Store; s != nil {
		spots := engine.Spots()
		if err := m.checkStoredSpots(ctx, spots); err != nil {
			return nil, err
		}
		if err := s.SaveSpots(ctx, spots); err != nil {
			return nil, fmt.Errorf("saving spots: %w", err)
		}
		cfg := engine.Config()
		id, err := s.BeginRun(ctx, store.Run{
			Source:              opts.SourceName,
			MaskPath:            opts.MaskPath,
			SpotCount:           len(spots),
			Cadence:             cfg.Cadence,
			DiffThreshold:       cfg.DiffThreshold,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
		})
		if err != nil {
			return nil, err
		}
		m.runID = id
	}

	m.updateGauges()
	return m, nil
}

// RunID returns the store run ID, or "" without a store.
func (m *Monitor) RunID() string {
	return m.runID
}

// Submit pushes one frame through the engine. The frame is copied; the caller
// keeps ownership.
//
// A frame that exceeds FrameTimeout is skipped: its number is consumed and
// ErrFrameTimeout is returned.
func (m *Monitor) Submit(ctx context.Context, frame image.Image) (*occupancy.FrameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitLocked(ctx, frame)
}

func (m *Monitor) submitLocked(ctx context.Context, frame image.Image) (*occupancy.FrameResult, error) {
	if m.closed {
		return nil, occupancy.ErrReleased
	}

	sctx := ctx
	if m.opts.FrameTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, m.opts.FrameTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := m.engine.SubmitFrame(sctx, frame)
	if met := m.opts.Metrics; met != nil && res != nil {
		met.FramesRead.Add(1)
	}
	if err != nil {
		return res, m.frameError(ctx, err)
	}

	m.latest = imaging.Clone(frame)
	if res.Sampled {
		m.afterSample(ctx, res, time.Since(start))
	}
	return res, nil
}

// frameError classifies an engine error, records it and maps a per-frame
// deadline to ErrFrameTimeout.
func (m *Monitor) frameError(ctx context.Context, err error) error {
	met := m.opts.Metrics
	switch {
	case errors.Is(err, occupancy.ErrFrameShapeMismatch):
		if met != nil {
			met.FramesRejected.Add(1)
		}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		if met != nil {
			met.FramesSkipped.Add(1)
		}
		err = fmt.Errorf("%w: %v", ErrFrameTimeout, err)
		m.log.Warnf("%v", err)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if met != nil {
			met.FramesSkipped.Add(1)
		}
	}
	m.lastErr = err
	return err
}

// afterSample records metrics, persists history and calls the sample hook.
func (m *Monitor) afterSample(ctx context.Context, res *occupancy.FrameResult, took time.Duration) {
	if met := m.opts.Metrics; met != nil {
		met.FramesSampled.Add(1)
		met.Classifications.Add(uint64(len(res.Candidates)))
		met.ClassifierFailures.Add(uint64(len(res.Failures)))
		met.StatusChanges.Add(uint64(len(res.Changed)))
		met.UpdateSampleLatency(took)
	}
	m.updateGauges()

	if len(res.Changed) > 0 {
		st := m.engine.Statistics()
		m.log.Infof("frame %d: %d spot(s) changed, %d/%d available", res.FrameNumber, len(res.Changed), st.Available, st.Total)
	}

	if m.opts.Store != nil {
		if err := m.persist(ctx, res); err != nil {
			m.log.Errorf("persisting frame %d: %v", res.FrameNumber, err)
			if met := m.opts.Metrics; met != nil {
				met.StoreErrors.Add(1)
			}
		}
	}

	if m.opts.OnSample != nil {
		m.opts.OnSample(res, m.latest)
	}
}

// persist writes the re-classified spots and a statistics snapshot.
func (m *Monitor) persist(ctx context.Context, res *occupancy.FrameResult) error {
	snap := m.engine.Snapshot()
	records := make([]store.StatusRecord, 0, len(res.Candidates))
	for _, idx := range res.Candidates {
		s := snap.Spots[idx]
		records = append(records, store.StatusRecord{
			RunID:       m.runID,
			SpotIndex:   idx,
			FrameNumber: res.FrameNumber,
			Status:      s.Status,
			Confidence:  s.Confidence,
		})
	}
	if err := m.opts.Store.SaveStatus(ctx, records); err != nil {
		return err
	}
	return m.opts.Store.SaveStatistics(ctx, m.runID, res.FrameNumber, snap.Statistics)
}

func (m *Monitor) updateGauges() {
	if met := m.opts.Metrics; met != nil {
		st := m.engine.Statistics()
		met.UpdateOccupancy(st.Total, st.Available, st.Occupied, st.Unknown)
	}
}

// Run pulls frames from the source until it is exhausted or the monitor is
// closed (returns nil), ctx ends (returns ctx.Err()) or the source fails.
// Rejected and timed-out frames are skipped.
func (m *Monitor) Run(ctx context.Context) error {
	src := m.opts.Source
	if src == nil {
		return ErrNoSource
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	m.log.Infof("frame loop started")
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			m.log.Infof("source exhausted after %d frames", m.FrameNumber())
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, video.ErrClosed) {
				m.log.Infof("frame loop stopped: monitor closed")
				return nil
			}
			m.setLastErr(err)
			return fmt.Errorf("reading frame: %w", err)
		}

		_, err = m.Submit(ctx, frame)
		switch {
		case err == nil:
		case errors.Is(err, occupancy.ErrFrameShapeMismatch), errors.Is(err, ErrFrameTimeout):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, occupancy.ErrReleased):
			m.log.Infof("frame loop stopped: monitor closed")
			return nil
		default:
			return err
		}
	}
}

func (m *Monitor) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Running reports whether Run is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Status returns a summary of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		RunID:        m.runID,
		Phase:        m.engine.Phase().String(),
		Running:      m.running.Load(),
		Source:       m.opts.SourceName,
		StartedAt:    m.started,
		Uptime:       time.Since(m.started).Round(time.Second).String(),
		FrameNumber:  m.engine.FrameNumber(),
		SampledCount: m.engine.SampledCount(),
		TotalSpots:   len(m.engine.Spots()),
	}
	if c := m.opts.Style.EmptyColor; c != nil {
		st.EmptyColor = imaging.HexString(c)
	}
	if c := m.opts.Style.OccupiedColor; c != nil {
		st.OccupiedColor = imaging.HexString(c)
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Snapshot returns a copy of the engine state.
func (m *Monitor) Snapshot() occupancy.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Snapshot()
}

// Spot returns one spot's state.
func (m *Monitor) Spot(index int) (occupancy.SpotState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.engine.Snapshot()
	if index < 0 || index >= len(snap.Spots) {
		return occupancy.SpotState{}, fmt.Errorf("spot index %d out of range [0,%d)", index, len(snap.Spots))
	}
	return snap.Spots[index], nil
}

// Statistics aggregates the current statuses.
func (m *Monitor) Statistics() occupancy.Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Statistics()
}

// FrameNumber returns the number of frames submitted so far.
func (m *Monitor) FrameNumber() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.FrameNumber()
}

// Annotated renders the latest accepted frame with the current statuses.
func (m *Monitor) Annotated() (*image.RGBA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil, ErrNoFrame
	}
	return annotate.Annotate(m.latest, m.engine.Spots(), m.engine.Statuses(), m.opts.Style), nil
}

// SpotHistory returns stored status rows for a spot, newest first.
func (m *Monitor) SpotHistory(ctx context.Context, index, limit int) ([]store.StatusRecord, error) {
	if m.opts.Store == nil {
		return nil, ErrNoStore
	}
	return m.opts.Store.SpotHistory(ctx, index, limit)
}

// checkStoredSpots warns when spots already in the store have different boxes,
// since their history was recorded against the old layout.
func (m *Monitor) checkStoredSpots(ctx context.Context, spots []detection.Spot) error {
	prev, err := m.opts.Store.Spots(ctx)
	if err != nil {
		return fmt.Errorf("loading stored spots: %w", err)
	}
	moved := 0
	for i, sp := range spots {
		if i < len(prev) && prev[i] != sp {
			moved++
		}
	}
	if moved > 0 {
		m.log.Warnf("%d of %d spots differ from the stored layout; their earlier history refers to the old boxes", moved, len(spots))
	}
	return nil
}

// RunRecord loads this monitor's run from the store.
func (m *Monitor) RunRecord(ctx context.Context) (store.Run, error) {
	if m.opts.Store == nil {
		return store.Run{}, ErrNoStore
	}
	return m.opts.Store.GetRun(ctx, m.RunID())
}

// StatisticsHistory returns stored statistics snapshots, newest first.
func (m *Monitor) StatisticsHistory(ctx context.Context, limit int) ([]store.StatisticsRecord, error) {
	if m.opts.Store == nil {
		return nil, ErrNoStore
	}
	return m.opts.Store.LatestStatistics(ctx, limit)
}

// Close releases the engine and the source and ends the run. The store is
// owned by the caller and stays open.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.engine.Release()
	m.latest = nil

	var errs []error
	if m.opts.Source != nil {
		if err := m.opts.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing source: %w", err))
		}
	}
	if m.opts.Store != nil && m.runID != "" {
		if err := m.opts.Store.EndRun(context.Background(), m.runID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

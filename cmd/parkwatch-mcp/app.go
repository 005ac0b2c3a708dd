package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/parkwatch-mcp/internal/annotate"
	"github.com/ironsheep/parkwatch-mcp/internal/config"
	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
	"github.com/ironsheep/parkwatch-mcp/internal/metrics"
	"github.com/ironsheep/parkwatch-mcp/internal/monitor"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
	"github.com/ironsheep/parkwatch-mcp/internal/store"
	"github.com/ironsheep/parkwatch-mcp/internal/video"
)

// app is everything built from one configuration.
type app struct {
	mon     *monitor.Monitor
	store   *store.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

// buildApp wires the monitor and its optional store, metrics endpoint and
// frame source. When writeFrames is set and cfg.OutputDir is non-empty, every
// sampled frame is written there annotated.
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger, writeFrames bool) (*app, error) {
	spots, err := detection.ExtractFile(cfg.MaskPath, cfg.MaskScale)
	if err != nil {
		return nil, err
	}
	log.Infof("extracted %d parking spots from %s", len(spots), cfg.MaskPath)

	clf, err := cfg.Classifier()
	if err != nil {
		return nil, fmt.Errorf("loading classifier: %w", err)
	}
	style, err := cfg.Style()
	if err != nil {
		return nil, err
	}
	engine, err := occupancy.New(spots, clf, cfg.Engine(), log.With("engine"))
	if err != nil {
		return nil, err
	}

	a := &app{log: log}
	opts := monitor.Options{
		Logger:       log.With("monitor"),
		Style:        style,
		FrameTimeout: cfg.FrameTimeout,
		MaskPath:     cfg.MaskPath,
	}

	if cfg.DatabasePath != "" {
		if a.store, err = store.Open(cfg.DatabasePath, log.With("store")); err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		opts.Store = a.store
	}

	if cfg.MetricsAddr != "" {
		a.metrics = metrics.New()
		if _, err := a.metrics.StartServer(cfg.MetricsAddr, log.With("metrics")); err != nil {
			a.close()
			return nil, fmt.Errorf("starting metrics server: %w", err)
		}
		opts.Metrics = a.metrics
	}

	switch {
	case cfg.VideoPath != "":
		opts.Source, err = video.Open(ctx, cfg.VideoPath, video.FFmpegOptions{})
		opts.SourceName = cfg.VideoPath
	case cfg.FramesDir != "":
		var seq *video.ImageSequence
		if seq, err = video.NewImageSequence(cfg.FramesDir); err == nil {
			opts.Source = seq
		}
		opts.SourceName = cfg.FramesDir
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening frame source: %w", err)
	}

	if writeFrames && cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			a.close()
			return nil, err
		}
		opts.OnSample = frameWriter(cfg.OutputDir, engine, style, log)
	}

	if a.mon, err = monitor.New(ctx, engine, opts); err != nil {
		if opts.Source != nil {
			opts.Source.Close()
		}
		a.close()
		return nil, err
	}
	return a, nil
}

// frameWriter saves each sampled frame, annotated, as frame_NNNNNN.png. It runs
// under the monitor lock, so reading the engine here is safe.
func frameWriter(dir string, engine *occupancy.Engine, style annotate.Style, log *logger.Logger) monitor.SampleFunc {
	return func(res *occupancy.FrameResult, frame image.Image) {
		out := annotate.Annotate(frame, engine.Spots(), engine.Statuses(), style)
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", res.FrameNumber))
		if err := imaging.Save(out, path); err != nil {
			log.Errorf("writing %s: %v", path, err)
		}
	}
}

// close releases everything the app owns.
func (a *app) close() error {
	var errs []error
	if a.mon != nil {
		errs = append(errs, a.mon.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

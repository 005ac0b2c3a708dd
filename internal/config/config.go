// Package config loads parkwatch settings from a YAML file and PARKWATCH_*
// environment variables.
//
// Precedence, lowest first: built-in defaults, the YAML file, the environment.
// Nothing here is global; callers pass the resulting *Config (or values derived
// from it) to the components they build.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/parkwatch-mcp/internal/annotate"
	"github.com/ironsheep/parkwatch-mcp/internal/classifier"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARKWATCH_"

// ErrInvalid is returned when a setting is out of range.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of runtime settings.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Spot geometry
	MaskPath  string  `yaml:"mask_path"`
	MaskScale float64 `yaml:"mask_scale"`

	// Classification
	ModelPath           string  `yaml:"model_path"`
	InvertPrediction    bool    `yaml:"invert_prediction"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	TextureMaxStdDev    float64 `yaml:"texture_max_stddev"`

	// Engine
	ProcessingStep int           `yaml:"processing_step"`
	DiffThreshold  float64       `yaml:"diff_threshold"`
	Workers        int           `yaml:"workers"`
	FrameWidth     int           `yaml:"frame_width"`
	FrameHeight    int           `yaml:"frame_height"`
	FrameTimeout   time.Duration `yaml:"frame_timeout"`

	// Input
	VideoPath string `yaml:"video_path"`
	FramesDir string `yaml:"frames_dir"`

	// Output
	DatabasePath  string `yaml:"database_path"`
	MetricsAddr   string `yaml:"metrics_addr"`
	OutputDir     string `yaml:"output_dir"`
	EmptyColor    string `yaml:"empty_color"`
	OccupiedColor string `yaml:"occupied_color"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:            "info",
		MaskPath:            "./data/masks/mask.png",
		MaskScale:           1,
		ConfidenceThreshold: 0.5,
		TextureMaxStdDev:    classifier.DefaultMaxStdDev,
		ProcessingStep:      30,
		DiffThreshold:       0.4,
		Workers:             1,
		EmptyColor:          "#00ff00",
		OccupiedColor:       "#ff0000",
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals YAML over the receiver, rejecting unknown keys so typos do
// not silently fall back to defaults.
func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides settings from PARKWATCH_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOG_LEVEL":      &c.LogLevel,
		"MASK_PATH":      &c.MaskPath,
		"MODEL_PATH":     &c.ModelPath,
		"VIDEO_PATH":     &c.VideoPath,
		"FRAMES_DIR":     &c.FramesDir,
		"DATABASE_PATH":  &c.DatabasePath,
		"METRICS_ADDR":   &c.MetricsAddr,
		"OUTPUT_DIR":     &c.OutputDir,
		"EMPTY_COLOR":    &c.EmptyColor,
		"OCCUPIED_COLOR": &c.OccupiedColor,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PROCESSING_STEP": &c.ProcessingStep,
		"WORKERS":         &c.Workers,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, EnvPrefix, key, v, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"DIFF_THRESHOLD":       &c.DiffThreshold,
		"CONFIDENCE_THRESHOLD": &c.ConfidenceThreshold,
		"MASK_SCALE":           &c.MaskScale,
	}
	for key, dst := range floats {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, EnvPrefix, key, v, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup(EnvPrefix + "INVERT_PREDICTION"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sINVERT_PREDICTION=%q: %v", ErrInvalid, EnvPrefix, v, err)
		}
		c.InvertPrediction = b
	}
	if v, ok := lookup(EnvPrefix + "FRAME_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sFRAME_TIMEOUT=%q: %v", ErrInvalid, EnvPrefix, v, err)
		}
		c.FrameTimeout = d
	}
	return nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.MaskPath == "" {
		return fmt.Errorf("%w: mask_path is required", ErrInvalid)
	}
	if c.MaskScale <= 0 {
		return fmt.Errorf("%w: mask_scale must be > 0, got %v", ErrInvalid, c.MaskScale)
	}
	if c.TextureMaxStdDev <= 0 {
		return fmt.Errorf("%w: texture_max_stddev must be > 0, got %v", ErrInvalid, c.TextureMaxStdDev)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalid, c.Workers)
	}
	if c.FrameTimeout < 0 {
		return fmt.Errorf("%w: frame_timeout must not be negative", ErrInvalid)
	}
	if c.VideoPath != "" && c.FramesDir != "" {
		return fmt.Errorf("%w: video_path and frames_dir are mutually exclusive", ErrInvalid)
	}
	if _, err := c.Style(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Engine returns the occupancy engine settings.
func (c *Config) Engine() occupancy.Config {
	return occupancy.Config{
		Cadence:             c.ProcessingStep,
		DiffThreshold:       c.DiffThreshold,
		ConfidenceThreshold: c.ConfidenceThreshold,
		Workers:             c.Workers,
		FrameWidth:          c.FrameWidth,
		FrameHeight:         c.FrameHeight,
	}
}

// Style returns the annotation style built from the configured colors.
func (c *Config) Style() (annotate.Style, error) {
	return annotate.ParseStyle(c.EmptyColor, c.OccupiedColor)
}

// Level returns the parsed log level, INFO if it is unparseable.
func (c *Config) Level() logger.Level {
	l, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.INFO
	}
	return l
}

// Classifier builds the configured spot classifier: a linear model when
// model_path is set, the texture heuristic otherwise, wrapped in Inverted when
// invert_prediction is true.
func (c *Config) Classifier() (classifier.Classifier, error) {
	var clf classifier.Classifier = classifier.Texture{MaxStdDev: c.TextureMaxStdDev}
	if c.ModelPath != "" {
		m, err := classifier.LoadLinearModel(c.ModelPath)
		if err != nil {
			return nil, err
		}
		clf = m
	}
	if c.InvertPrediction {
		clf = classifier.Inverted{Classifier: clf}
	}
	return clf, nil
}

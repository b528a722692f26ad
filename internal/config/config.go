// Package config loads and validates the detector configuration.
//
// Configuration lives in a JSON or YAML file (chosen by extension) and can
// be overridden from the environment and command-line flags. A missing file
// yields DefaultConfig. Validation fails fast: nothing is clamped, so a
// misconfigured detector is rejected before any frame is processed.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/line2d-mcp/internal/detection"
	"github.com/ironsheep/line2d-mcp/internal/library"
	"github.com/ironsheep/line2d-mcp/internal/line2d"
)

// EnvLogLevel overrides LogLevel when set.
const EnvLogLevel = "LINE2D_LOG_LEVEL"

// Config holds every tunable of template building and detection.
type Config struct {
	// Detection
	Threshold             float64 `json:"threshold" yaml:"threshold"`
	MinDetectionsPerGroup int     `json:"min_detections_per_group" yaml:"min_detections_per_group"`
	ClusterOverlap        float64 `json:"cluster_overlap" yaml:"cluster_overlap"`
	GroupByScore          bool    `json:"group_by_score" yaml:"group_by_score"`

	// Gradient extraction
	MinMagnitudeTemplate float64 `json:"min_magnitude_template" yaml:"min_magnitude_template"`
	MinMagnitudeQuery    float64 `json:"min_magnitude_query" yaml:"min_magnitude_query"`
	MinSameOrientations  int     `json:"min_same_orientations" yaml:"min_same_orientations"`
	SmoothRadius         float64 `json:"smooth_radius" yaml:"smooth_radius"`
	ColorGradients       bool    `json:"color_gradients" yaml:"color_gradients"`

	// Template encoding
	MinSpacing          int   `json:"min_spacing" yaml:"min_spacing"`
	MaxFeaturesPerLevel []int `json:"max_features_per_level" yaml:"max_features_per_level"`
	MinFeatures         int   `json:"min_features" yaml:"min_features"`
	BinarizeLevel       int   `json:"binarize_level" yaml:"binarize_level"`
	KeepMask            bool  `json:"keep_mask" yaml:"keep_mask"`
	InvertTemplates     bool  `json:"invert_templates" yaml:"invert_templates"`

	// Pyramid
	PyramidRatio         int   `json:"pyramid_ratio" yaml:"pyramid_ratio"`
	NeighborhoodPerLevel []int `json:"neighborhood_per_level" yaml:"neighborhood_per_level"`

	// Runtime
	Workers  int    `json:"workers" yaml:"workers"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns the settings used for binarized templates matched
// against natural frames.
func DefaultConfig() *Config {
	enc := line2d.DefaultEncoderOptions()
	pyr := line2d.DefaultPyramidOptions()
	det := line2d.DefaultDetectorOptions()
	return &Config{
		Threshold:             det.Match.Threshold,
		MinDetectionsPerGroup: 1,
		ClusterOverlap:        detection.DefaultOverlapThreshold,
		MinMagnitudeTemplate:  enc.MinMagnitude,
		MinMagnitudeQuery:     pyr.MinMagnitude,
		MinSameOrientations:   enc.MinSameOrientations,
		MinSpacing:            enc.MinSpacing,
		MaxFeaturesPerLevel:   enc.MaxFeaturesPerLevel,
		MinFeatures:           enc.MinFeatures,
		BinarizeLevel:         int(library.DefaultBuildOptions().BinarizeLevel),
		PyramidRatio:          enc.Ratio,
		NeighborhoodPerLevel:  pyr.NeighborhoodPerLevel,
		LogLevel:              "info",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.MaxFeaturesPerLevel) != len(c.NeighborhoodPerLevel) {
		return fmt.Errorf("max_features_per_level has %d levels but neighborhood_per_level has %d",
			len(c.MaxFeaturesPerLevel), len(c.NeighborhoodPerLevel))
	}
	for i := 1; i < len(c.MaxFeaturesPerLevel); i++ {
		if c.MaxFeaturesPerLevel[i] > c.MaxFeaturesPerLevel[i-1] {
			return fmt.Errorf("max_features_per_level must not increase: level %d has %d, level %d has %d",
				i, c.MaxFeaturesPerLevel[i], i-1, c.MaxFeaturesPerLevel[i-1])
		}
	}
	if c.BinarizeLevel < 0 || c.BinarizeLevel > 255 {
		return fmt.Errorf("binarize_level %d must be within 0..255", c.BinarizeLevel)
	}
	if c.ColorGradients && c.BinarizeLevel != 0 {
		return fmt.Errorf("color_gradients requires binarize_level 0, got %d", c.BinarizeLevel)
	}
	if c.ClusterOverlap <= 0 {
		return fmt.Errorf("cluster_overlap %v must be within (0, 1)", c.ClusterOverlap)
	}
	if c.MinDetectionsPerGroup < 0 {
		return fmt.Errorf("min_detections_per_group %d must not be negative", c.MinDetectionsPerGroup)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.EncoderOptions().Validate(); err != nil {
		return err
	}
	if err := c.PyramidOptions().Validate(); err != nil {
		return err
	}
	if err := c.MatchOptions().Validate(); err != nil {
		return err
	}
	return c.ClusterOptions().Validate()
}

// EncoderOptions returns the template encoder settings.
func (c *Config) EncoderOptions() line2d.EncoderOptions {
	return line2d.EncoderOptions{
		MinMagnitude:        c.MinMagnitudeTemplate,
		MinSameOrientations: c.MinSameOrientations,
		MinSpacing:          c.MinSpacing,
		MaxFeaturesPerLevel: append([]int(nil), c.MaxFeaturesPerLevel...),
		MinFeatures:         c.MinFeatures,
		Ratio:               c.PyramidRatio,
		KeepMask:            c.KeepMask,
	}
}

// PyramidOptions returns the query pyramid settings.
func (c *Config) PyramidOptions() line2d.PyramidOptions {
	return line2d.PyramidOptions{
		MinMagnitude:         c.MinMagnitudeQuery,
		MinSameOrientations:  c.MinSameOrientations,
		Ratio:                c.PyramidRatio,
		NeighborhoodPerLevel: append([]int(nil), c.NeighborhoodPerLevel...),
		SmoothRadius:         c.SmoothRadius,
		Workers:              c.Workers,
	}
}

// MatchOptions returns the matcher settings.
func (c *Config) MatchOptions() line2d.MatchOptions {
	return line2d.MatchOptions{Threshold: c.Threshold, Workers: c.Workers}
}

// ClusterOptions returns the grouping settings.
func (c *Config) ClusterOptions() detection.ClusterOptions {
	return detection.ClusterOptions{Threshold: c.ClusterOverlap, MinNeighbors: c.MinDetectionsPerGroup}
}

// DetectorOptions assembles the full detector configuration.
func (c *Config) DetectorOptions(logger *slog.Logger) line2d.DetectorOptions {
	return line2d.DetectorOptions{
		Pyramid: c.PyramidOptions(),
		Match:   c.MatchOptions(),
		Cluster: c.ClusterOptions(),
		ByScore: c.GroupByScore,
		Color:   c.ColorGradients,
		Logger:  logger,
	}
}

// BuildOptions returns the batch template builder settings.
func (c *Config) BuildOptions(logger *slog.Logger) library.BuildOptions {
	enc := c.EncoderOptions()
	enc.Logger = logger
	return library.BuildOptions{
		Encoder:       enc,
		BinarizeLevel: uint8(c.BinarizeLevel),
		Invert:        c.InvertTemplates,
		Color:         c.ColorGradients,
		Workers:       c.Workers,
		Logger:        logger,
	}
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads the configuration file at path on top of DefaultConfig, applies
// the environment and validates the result. Keys absent from the file keep
// their defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		case isYAML(path):
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as indented JSON, or as YAML for a
// .yaml or .yml path.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ParseLevel converts a log level name (debug, info, warn, error) to a slog
// level. The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Package config handles tool configuration loading and management.
package config

import (
	"github.com/Faultbox/midgard-lod/internal/engine/analysis"
	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/internal/lod"
	"github.com/Faultbox/midgard-lod/internal/logger"
	"github.com/Faultbox/midgard-lod/internal/meshletsys"
)

// Config holds all settings.
type Config struct {
	LOD      LODConfig      `yaml:"lod"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Meshlet  MeshletConfig  `yaml:"meshlet"`
	Queue    QueueConfig    `yaml:"queue"`
	Assets   AssetsConfig   `yaml:"assets"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LODConfig selects the level chain. Explicit levels replace the preset's.
type LODConfig struct {
	Preset         string            `yaml:"preset"`
	Levels         []lod.LevelConfig `yaml:"levels,omitempty"`
	ErrorThreshold *float32          `yaml:"error_threshold,omitempty"`
}

// AnalyzerConfig holds mesh classification settings.
type AnalyzerConfig struct {
	LowMaxTriangles    int  `yaml:"low_max_triangles"`
	MediumMaxTriangles int  `yaml:"medium_max_triangles"`
	AutoIndex          bool `yaml:"auto_index"`
}

// MeshletConfig holds meshlet build and cull settings.
type MeshletConfig struct {
	MaxVertices    int     `yaml:"max_vertices"`
	MaxTriangles   int     `yaml:"max_triangles"`
	LODLevels      int     `yaml:"lod_levels"`
	ErrorThreshold float32 `yaml:"error_threshold"` // pixels
}

// QueueConfig holds asset queue settings.
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`
	Buffer      int `yaml:"buffer"`
}

// AssetsConfig holds asset lookup settings.
type AssetsConfig struct {
	SearchRoots []string `yaml:"search_roots"`
	Cache       bool     `yaml:"cache"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LOD: LODConfig{
			Preset: lod.PresetDefault,
		},
		Analyzer: AnalyzerConfig{
			LowMaxTriangles:    analysis.DefaultLowMax,
			MediumMaxTriangles: analysis.DefaultMediumMax,
			AutoIndex:          true,
		},
		Meshlet: MeshletConfig{
			MaxVertices:    meshlet.DefaultMaxVertices,
			MaxTriangles:   meshlet.DefaultMaxTriangles,
			LODLevels:      meshlet.DefaultLODLevels,
			ErrorThreshold: 1.0,
		},
		Queue: QueueConfig{
			Concurrency: 1,
			Buffer:      16,
		},
		Assets: AssetsConfig{
			SearchRoots: []string{"."},
			Cache:       true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks every section and returns the first problem as
// *errdefs.ConfigError.
func (c *Config) Validate() error {
	if _, err := c.LODConfig(); err != nil {
		return err
	}
	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	if err := c.MeshletOptions().Validate(); err != nil {
		return err
	}
	if c.Queue.Concurrency < 1 {
		return errdefs.Configf("queue.concurrency", "must be at least 1, got %d", c.Queue.Concurrency)
	}
	if c.Queue.Buffer < 0 {
		return errdefs.Configf("queue.buffer", "must not be negative, got %d", c.Queue.Buffer)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return errdefs.Configf("logging.level", "%v", err)
	}
	return nil
}

// LODConfig resolves the preset, explicit levels and threshold override.
func (c *Config) LODConfig() (lod.Config, error) {
	cfg, err := lod.Preset(c.LOD.Preset)
	if err != nil {
		return lod.Config{}, err
	}
	if len(c.LOD.Levels) > 0 {
		cfg.Levels = append([]lod.LevelConfig(nil), c.LOD.Levels...)
	}
	if c.LOD.ErrorThreshold != nil {
		cfg.ErrorThreshold = *c.LOD.ErrorThreshold
	}
	if err := cfg.Validate(); err != nil {
		return lod.Config{}, err
	}
	return cfg, nil
}

// Thresholds returns the analyzer cut points.
func (c *Config) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{
		LowMax:    c.Analyzer.LowMaxTriangles,
		MediumMax: c.Analyzer.MediumMaxTriangles,
	}
}

// PipelineOptions returns the lod.Pipeline options for this config.
func (c *Config) PipelineOptions() []lod.Option {
	return []lod.Option{
		lod.WithThresholds(c.Thresholds()),
		lod.WithAutoIndex(c.Analyzer.AutoIndex),
		lod.WithConcurrency(c.Queue.Concurrency),
		lod.WithQueueSize(c.Queue.Buffer),
	}
}

// MeshletOptions returns the meshlet system options.
func (c *Config) MeshletOptions() meshletsys.Options {
	return meshletsys.Options{
		Limits: meshlet.Limits{
			MaxVertices:  c.Meshlet.MaxVertices,
			MaxTriangles: c.Meshlet.MaxTriangles,
		},
		LODLevels:      c.Meshlet.LODLevels,
		ErrorThreshold: c.Meshlet.ErrorThreshold,
	}
}

// LoggerConfig returns the logger settings. Console output is always on.
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.Config{Level: c.Logging.Level, Console: true}
	if c.Logging.LogFile != "" {
		lc.File = logger.DefaultFileConfig(c.Logging.LogFile)
	}
	return lc
}

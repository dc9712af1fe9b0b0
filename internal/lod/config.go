// Package lod turns one source geometry into a chain of simplified levels
// and serves asynchronous load-and-process requests.
package lod

import (
	"fmt"
	"strings"

	"github.com/Faultbox/midgard-lod/internal/errdefs"
)

// LevelConfig describes one level of detail.
type LevelConfig struct {
	// TriangleRatio is the triangle budget relative to level 0.
	TriangleRatio float32 `yaml:"triangle_ratio" json:"triangleRatio"`
	// TextureScale is the texture resolution relative to the source.
	TextureScale float32 `yaml:"texture_scale" json:"textureScale"`
	// DistanceThreshold is the viewer distance at which this level takes over.
	DistanceThreshold float32 `yaml:"distance_threshold" json:"distanceThreshold"`
}

// Config is an ordered list of levels, finest first.
type Config struct {
	Levels []LevelConfig `yaml:"levels" json:"levels"`
	// ErrorThreshold is the largest acceptable simplification error of a
	// level, relative to the diagonal of the source bounding box. Levels
	// exceeding it are kept but reported.
	ErrorThreshold float32 `yaml:"error_threshold" json:"errorThreshold"`
}

// Preset names accepted by Preset.
const (
	PresetDefault = "default"
	PresetMobile  = "mobile"
)

// DefaultConfig returns the desktop preset: five levels at full texture
// resolution.
func DefaultConfig() Config {
	return Config{
		Levels: []LevelConfig{
			{TriangleRatio: 1, TextureScale: 1, DistanceThreshold: 0},
			{TriangleRatio: 0.5, TextureScale: 1, DistanceThreshold: 25},
			{TriangleRatio: 0.25, TextureScale: 1, DistanceThreshold: 50},
			{TriangleRatio: 0.125, TextureScale: 1, DistanceThreshold: 100},
			{TriangleRatio: 0.0625, TextureScale: 1, DistanceThreshold: 200},
		},
		ErrorThreshold: 0.01,
	}
}

// MobileConfig returns the mobile preset: four levels, aggressive ratios and
// reduced texture resolution.
func MobileConfig() Config {
	return Config{
		Levels: []LevelConfig{
			{TriangleRatio: 1, TextureScale: 0.5, DistanceThreshold: 0},
			{TriangleRatio: 0.4, TextureScale: 0.5, DistanceThreshold: 15},
			{TriangleRatio: 0.15, TextureScale: 0.25, DistanceThreshold: 40},
			{TriangleRatio: 0.05, TextureScale: 0.125, DistanceThreshold: 80},
		},
		ErrorThreshold: 0.02,
	}
}

// Preset returns the named preset.
func Preset(name string) (Config, error) {
	switch strings.ToLower(name) {
	case "", PresetDefault:
		return DefaultConfig(), nil
	case PresetMobile:
		return MobileConfig(), nil
	default:
		return Config{}, errdefs.Configf("lod.preset", "unknown preset %q", name)
	}
}

// Validate checks that the levels form a usable chain.
func (c Config) Validate() error {
	if len(c.Levels) == 0 {
		return errdefs.Configf("lod.levels", "at least one level is required")
	}
	if c.Levels[0].TriangleRatio != 1 {
		return errdefs.Configf("lod.levels[0].triangle_ratio", "level 0 is a copy of the source and must be 1, got %g", c.Levels[0].TriangleRatio)
	}
	if c.ErrorThreshold < 0 {
		return errdefs.Configf("lod.error_threshold", "must not be negative, got %g", c.ErrorThreshold)
	}

	prev := c.Levels[0]
	for i, l := range c.Levels {
		if l.TriangleRatio <= 0 || l.TriangleRatio > 1 {
			return errdefs.Configf(field(i, "triangle_ratio"), "must be in (0, 1], got %g", l.TriangleRatio)
		}
		if l.TextureScale <= 0 || l.TextureScale > 1 {
			return errdefs.Configf(field(i, "texture_scale"), "must be in (0, 1], got %g", l.TextureScale)
		}
		if l.DistanceThreshold < 0 {
			return errdefs.Configf(field(i, "distance_threshold"), "must not be negative, got %g", l.DistanceThreshold)
		}
		if i == 0 {
			continue
		}
		if l.TriangleRatio > prev.TriangleRatio {
			return errdefs.Configf(field(i, "triangle_ratio"), "must not exceed the previous level (%g > %g)", l.TriangleRatio, prev.TriangleRatio)
		}
		if l.DistanceThreshold < prev.DistanceThreshold {
			return errdefs.Configf(field(i, "distance_threshold"), "must not be below the previous level (%g < %g)", l.DistanceThreshold, prev.DistanceThreshold)
		}
		prev = l
	}
	return nil
}

func field(level int, name string) string {
	return fmt.Sprintf("lod.levels[%d].%s", level, name)
}

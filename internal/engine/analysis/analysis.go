// Package analysis inspects raw geometry and classifies its complexity.
package analysis

import (
	"fmt"

	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
)

// Complexity buckets a mesh by triangle count.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityMedium:
		return "medium"
	case ComplexityHigh:
		return "high"
	default:
		return fmt.Sprintf("Complexity(%d)", int(c))
	}
}

// MarshalText encodes the complexity by name.
func (c Complexity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Thresholds are the triangle-count cut points between complexity classes.
// Meshes below LowMax are low, up to and including MediumMax are medium,
// anything larger is high.
type Thresholds struct {
	LowMax    int `yaml:"low_max_triangles"`
	MediumMax int `yaml:"medium_max_triangles"`
}

// Default cut points.
const (
	DefaultLowMax    = 1000
	DefaultMediumMax = 20000
)

// DefaultThresholds returns the default cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: DefaultLowMax, MediumMax: DefaultMediumMax}
}

// Validate checks that the cut points are positive and ordered.
func (t Thresholds) Validate() error {
	if t.LowMax <= 0 {
		return errdefs.Configf("analyzer.low_max_triangles", "must be positive, got %d", t.LowMax)
	}
	if t.MediumMax < t.LowMax {
		return errdefs.Configf("analyzer.medium_max_triangles", "must be >= low_max_triangles (%d), got %d", t.LowMax, t.MediumMax)
	}
	return nil
}

// Classify returns the complexity for a triangle count.
func (t Thresholds) Classify(triangles int) Complexity {
	switch {
	case triangles < t.LowMax:
		return ComplexityLow
	case triangles <= t.MediumMax:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// MeshAnalysis summarizes a source geometry. It is computed once and never
// modified afterwards.
type MeshAnalysis struct {
	VertexCount   int          `json:"vertexCount"`
	TriangleCount int          `json:"triangleCount"`
	HasNormals    bool         `json:"hasNormals"`
	HasUVs        bool         `json:"hasUVs"`
	BoundingBox   model.Bounds `json:"boundingBox"`
	SurfaceArea   float32      `json:"surfaceArea"`
	Complexity    Complexity   `json:"complexity"`
}

// Analyzer computes MeshAnalysis values.
type Analyzer struct {
	Thresholds Thresholds
}

// New returns an analyzer with the given cut points.
func New(t Thresholds) (*Analyzer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{Thresholds: t}, nil
}

// AnalyzeMesh inspects g. Only indexed geometry is accepted; non-indexed
// input fails with model.ErrNotIndexed and must be welded by the caller
// first (see model.Weld).
func (a *Analyzer) AnalyzeMesh(g *model.Geometry) (*MeshAnalysis, error) {
	if g == nil {
		return nil, fmt.Errorf("analyzing mesh: nil geometry")
	}
	if !g.IsIndexed() {
		return nil, fmt.Errorf("analyzing mesh: %w", model.ErrNotIndexed)
	}
	if len(g.Positions)%3 != 0 {
		return nil, fmt.Errorf("analyzing mesh: position buffer length %d is not a multiple of 3", len(g.Positions))
	}
	if len(g.Indices)%3 != 0 {
		return nil, fmt.Errorf("analyzing mesh: index buffer length %d is not a multiple of 3", len(g.Indices))
	}
	vertexCount := uint32(g.VertexCount())
	for i, idx := range g.Indices {
		if idx >= vertexCount {
			return nil, fmt.Errorf("analyzing mesh: index %d at %d out of range (%d vertices)", idx, i, vertexCount)
		}
	}

	var area float32
	for t := 0; t < g.TriangleCount(); t++ {
		area += g.TriangleArea(t)
	}

	triangles := g.TriangleCount()
	return &MeshAnalysis{
		VertexCount:   g.VertexCount(),
		TriangleCount: triangles,
		HasNormals:    g.HasNormals(),
		HasUVs:        g.HasUVs(),
		BoundingBox:   g.Bounds(),
		SurfaceArea:   area,
		Complexity:    a.Thresholds.Classify(triangles),
	}, nil
}

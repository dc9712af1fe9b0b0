// Package model provides the indexed triangle geometry shared by the
// analyzer, the LOD pipeline and the meshlet builder.
package model

import (
	"errors"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

// ErrNotIndexed is returned for geometry without an index buffer.
var ErrNotIndexed = errors.New("geometry is not indexed")

// Geometry is an indexed triangle list with packed vertex attributes.
//
// Positions holds xyz triples. Normals (xyz) and UVs (uv) are optional and,
// when present, have one entry per vertex. Indices holds three entries per
// triangle; a nil Indices marks non-indexed geometry where every three
// consecutive vertices form a triangle.
type Geometry struct {
	Positions []float32
	Normals   []float32
	UVs       []float32
	Indices   []uint32
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32 `json:"min" yaml:"min"`
	Max [3]float32 `json:"max" yaml:"max"`
}

// Size returns the extent along each axis.
func (b Bounds) Size() [3]float32 {
	return [3]float32{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Center returns the box center.
func (b Bounds) Center() math.Vec3 {
	return math.Vec3{
		X: (b.Min[0] + b.Max[0]) / 2,
		Y: (b.Min[1] + b.Max[1]) / 2,
		Z: (b.Min[2] + b.Max[2]) / 2,
	}
}

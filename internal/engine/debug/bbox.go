// Package debug provides debug visualization utilities.
package debug

import (
	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// Wireframe is a line list: Indices holds one vertex pair per edge into
// Positions, format [x, y, z] per vertex.
type Wireframe struct {
	Positions []float32
	Indices   []uint32
}

// LineCount returns the number of edges.
func (w *Wireframe) LineCount() int {
	return len(w.Indices) / 2
}

// boxEdges lists the 12 edges of a box as corner pairs. Corner i has bit 0
// set for max X, bit 1 for max Y, bit 2 for max Z.
var boxEdges = [24]uint32{
	// Bottom face
	0, 1, 1, 5, 5, 4, 4, 0,
	// Top face
	2, 3, 3, 7, 7, 6, 6, 2,
	// Vertical edges
	0, 2, 1, 3, 5, 7, 4, 6,
}

// AddBox appends the 12 edges of the box [min, max], expanded by padding
// on all sides.
func (w *Wireframe) AddBox(min, max math.Vec3, padding float32) {
	if min.X > max.X {
		min.X, max.X = max.X, min.X
	}
	if min.Y > max.Y {
		min.Y, max.Y = max.Y, min.Y
	}
	if min.Z > max.Z {
		min.Z, max.Z = max.Z, min.Z
	}
	min = min.Sub(math.Vec3{X: padding, Y: padding, Z: padding})
	max = max.Add(math.Vec3{X: padding, Y: padding, Z: padding})

	base := uint32(len(w.Positions) / 3)
	for i := 0; i < 8; i++ {
		x, y, z := min.X, min.Y, min.Z
		if i&1 != 0 {
			x = max.X
		}
		if i&2 != 0 {
			y = max.Y
		}
		if i&4 != 0 {
			z = max.Z
		}
		w.Positions = append(w.Positions, x, y, z)
	}
	for _, e := range boxEdges {
		w.Indices = append(w.Indices, base+e)
	}
}

// AddSphere appends the box enclosing s.
func (w *Wireframe) AddSphere(s math.Sphere, padding float32) {
	r := math.Vec3{X: s.Radius, Y: s.Radius, Z: s.Radius}
	w.AddBox(s.Center.Sub(r), s.Center.Add(r), padding)
}

// MeshletBounds builds one box per meshlet in ids around its bounding
// sphere. Unknown ids are skipped.
func MeshletBounds(meshlets []meshlet.Meshlet, ids []int, padding float32) *Wireframe {
	w := &Wireframe{
		Positions: make([]float32, 0, len(ids)*24),
		Indices:   make([]uint32, 0, len(ids)*24),
	}
	for _, id := range ids {
		if id < 0 || id >= len(meshlets) {
			continue
		}
		w.AddSphere(meshlets[id].BoundingSphere, padding)
	}
	return w
}

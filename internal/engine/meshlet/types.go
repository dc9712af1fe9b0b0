// Package meshlet partitions triangle lists into capacity-bounded clusters
// and links them into a level-of-detail hierarchy.
package meshlet

import (
	gomath "math"

	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// Default caps.
const (
	DefaultMaxVertices  = 64
	DefaultMaxTriangles = 124
	DefaultLODLevels    = 4

	// MaxVerticesLimit is the largest vertex cap local uint8 triangle
	// references can address.
	MaxVerticesLimit = 256
)

// NoParent is the ParentError of meshlets at the top of the hierarchy.
// It projects to an error larger than any budget.
const NoParent float32 = gomath.MaxFloat32

// Meshlet is a small cluster of triangles culled as a unit.
type Meshlet struct {
	ID int `json:"id"`
	// VertexRefs indexes the source vertex buffer.
	VertexRefs []uint32 `json:"vertexRefs"`
	// TriangleRefs holds three local indices into VertexRefs per triangle.
	TriangleRefs   []uint8     `json:"triangleRefs"`
	BoundingSphere math.Sphere `json:"boundingSphere"`
	LODLevel       int         `json:"lodLevel"`

	// Error is the object-space simplification error of the cluster this
	// meshlet belongs to, LODBounds that cluster's bounds. ParentError and
	// ParentBounds describe the next coarser cluster covering the same
	// surface. A meshlet is the right choice for a view when its own
	// projected error fits the budget and its parent's does not.
	Error        float32     `json:"error"`
	LODBounds    math.Sphere `json:"lodBounds"`
	ParentError  float32     `json:"parentError"`
	ParentBounds math.Sphere `json:"parentBounds"`
}

// VertexCount returns the number of referenced vertices.
func (m *Meshlet) VertexCount() int {
	return len(m.VertexRefs)
}

// TriangleCount returns the number of triangles.
func (m *Meshlet) TriangleCount() int {
	return len(m.TriangleRefs) / 3
}

// Indices expands the meshlet back into global triangle indices.
func (m *Meshlet) Indices() []uint32 {
	out := make([]uint32, len(m.TriangleRefs))
	for i, r := range m.TriangleRefs {
		out[i] = m.VertexRefs[r]
	}
	return out
}

// LODTree lists meshlet ids per hierarchy level; index 0 is the finest.
type LODTree [][]int

// Cluster is a node of the hierarchy: the meshlets produced for one patch
// of surface at one level, and the finer clusters it replaces.
type Cluster struct {
	Level      int         `json:"level"`
	MeshletIDs []int       `json:"meshletIds"`
	Children   []int       `json:"children,omitempty"`
	Parent     int         `json:"parent"`
	Error      float32     `json:"error"`
	Bounds     math.Sphere `json:"bounds"`
}

// Limits caps the size of every meshlet.
type Limits struct {
	MaxVertices  int `yaml:"max_vertices"`
	MaxTriangles int `yaml:"max_triangles"`
}

// DefaultLimits returns the default caps.
func DefaultLimits() Limits {
	return Limits{MaxVertices: DefaultMaxVertices, MaxTriangles: DefaultMaxTriangles}
}

// Validate rejects caps that cannot hold a single triangle.
func (l Limits) Validate() error {
	if l.MaxVertices < 3 || l.MaxVertices > MaxVerticesLimit {
		return errdefs.Configf("meshlet.max_vertices", "must be in [3, %d], got %d", MaxVerticesLimit, l.MaxVertices)
	}
	if l.MaxTriangles < 1 {
		return errdefs.Configf("meshlet.max_triangles", "must be positive, got %d", l.MaxTriangles)
	}
	return nil
}

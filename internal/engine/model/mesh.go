package model

import (
	"github.com/Faultbox/midgard-lod/pkg/math"
)

const (
	positionStride = 3
	normalStride   = 3
	uvStride       = 2
)

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / positionStride
}

// TriangleCount returns the number of triangles.
func (g *Geometry) TriangleCount() int {
	if g.Indices == nil {
		return g.VertexCount() / 3
	}
	return len(g.Indices) / 3
}

// IsIndexed reports whether the geometry has an index buffer.
func (g *Geometry) IsIndexed() bool {
	return g.Indices != nil
}

// HasNormals reports whether every vertex has a normal.
func (g *Geometry) HasNormals() bool {
	return len(g.Normals) > 0 && len(g.Normals)/normalStride == g.VertexCount()
}

// HasUVs reports whether every vertex has texture coordinates.
func (g *Geometry) HasUVs() bool {
	return len(g.UVs) > 0 && len(g.UVs)/uvStride == g.VertexCount()
}

// ByteSize returns the size of all attribute and index buffers in bytes.
func (g *Geometry) ByteSize() int {
	return 4 * (len(g.Positions) + len(g.Normals) + len(g.UVs) + len(g.Indices))
}

// Position returns vertex i.
func (g *Geometry) Position(i uint32) math.Vec3 {
	return math.Vec3At(g.Positions, i)
}

// Clone returns a deep copy.
func (g *Geometry) Clone() *Geometry {
	c := &Geometry{
		Positions: append([]float32(nil), g.Positions...),
	}
	if g.Normals != nil {
		c.Normals = append([]float32(nil), g.Normals...)
	}
	if g.UVs != nil {
		c.UVs = append([]float32(nil), g.UVs...)
	}
	if g.Indices != nil {
		c.Indices = append([]uint32(nil), g.Indices...)
	}
	return c
}

// Bounds computes the axis-aligned bounding box of all vertices.
func (g *Geometry) Bounds() Bounds {
	if g.VertexCount() == 0 {
		return Bounds{}
	}

	bounds := Bounds{
		Min: [3]float32{1e30, 1e30, 1e30},
		Max: [3]float32{-1e30, -1e30, -1e30},
	}
	for i := 0; i < len(g.Positions); i += positionStride {
		updateBounds(&bounds, [3]float32{g.Positions[i], g.Positions[i+1], g.Positions[i+2]})
	}
	return bounds
}

// WithIndices returns a geometry sharing g's vertex buffers with a new index
// buffer, keeping only the vertices the indices reference.
func (g *Geometry) WithIndices(indices []uint32) *Geometry {
	return (&Geometry{
		Positions: g.Positions,
		Normals:   g.Normals,
		UVs:       g.UVs,
		Indices:   indices,
	}).Compact()
}

// Compact drops unreferenced vertices and remaps the index buffer.
// The returned geometry owns fresh buffers.
func (g *Geometry) Compact() *Geometry {
	if g.Indices == nil {
		return g.Clone()
	}

	remap := make(map[uint32]uint32, len(g.Indices)/2)
	out := &Geometry{Indices: make([]uint32, len(g.Indices))}
	hasNormals, hasUVs := g.HasNormals(), g.HasUVs()

	for i, idx := range g.Indices {
		n, ok := remap[idx]
		if !ok {
			n = uint32(len(remap))
			remap[idx] = n
			out.Positions = append(out.Positions, g.Positions[idx*3:idx*3+3]...)
			if hasNormals {
				out.Normals = append(out.Normals, g.Normals[idx*3:idx*3+3]...)
			}
			if hasUVs {
				out.UVs = append(out.UVs, g.UVs[idx*2:idx*2+2]...)
			}
		}
		out.Indices[i] = n
	}
	return out
}

// Triangle returns the three vertex indices of triangle t.
func (g *Geometry) Triangle(t int) [3]uint32 {
	if g.Indices == nil {
		b := uint32(t * 3)
		return [3]uint32{b, b + 1, b + 2}
	}
	return [3]uint32{g.Indices[t*3], g.Indices[t*3+1], g.Indices[t*3+2]}
}

// TriangleArea returns the area of triangle t.
func (g *Geometry) TriangleArea(t int) float32 {
	tri := g.Triangle(t)
	v0, v1, v2 := g.Position(tri[0]), g.Position(tri[1]), g.Position(tri[2])
	return v1.Sub(v0).Cross(v2.Sub(v0)).Length() / 2
}

func updateBounds(b *Bounds, p [3]float32) {
	if p[0] < b.Min[0] {
		b.Min[0] = p[0]
	}
	if p[1] < b.Min[1] {
		b.Min[1] = p[1]
	}
	if p[2] < b.Min[2] {
		b.Min[2] = p[2]
	}
	if p[0] > b.Max[0] {
		b.Max[0] = p[0]
	}
	if p[1] > b.Max[1] {
		b.Max[1] = p[1]
	}
	if p[2] > b.Max[2] {
		b.Max[2] = p[2]
	}
}

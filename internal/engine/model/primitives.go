package model

import (
	gomath "math"

	"github.com/chewxy/math32"
)

const pi = float32(gomath.Pi)

// NewBox builds an axis-aligned box centered at the origin. Each face is
// split into segments×segments quads and has its own vertices so normals
// stay flat.
func NewBox(size float32, segments int) *Geometry {
	if segments < 1 {
		segments = 1
	}
	h := size / 2
	g := &Geometry{Indices: []uint32{}}

	// origin, u axis, v axis and normal for each face
	faces := [6][4][3]float32{
		{{-h, -h, h}, {size, 0, 0}, {0, size, 0}, {0, 0, 1}},
		{{h, -h, -h}, {-size, 0, 0}, {0, size, 0}, {0, 0, -1}},
		{{h, -h, h}, {0, 0, -size}, {0, size, 0}, {1, 0, 0}},
		{{-h, -h, -h}, {0, 0, size}, {0, size, 0}, {-1, 0, 0}},
		{{-h, h, h}, {size, 0, 0}, {0, 0, -size}, {0, 1, 0}},
		{{-h, -h, -h}, {size, 0, 0}, {0, 0, size}, {0, -1, 0}},
	}

	for _, f := range faces {
		origin, du, dv, n := f[0], f[1], f[2], f[3]
		base := uint32(g.VertexCount())
		for j := 0; j <= segments; j++ {
			for i := 0; i <= segments; i++ {
				s := float32(i) / float32(segments)
				t := float32(j) / float32(segments)
				g.Positions = append(g.Positions,
					origin[0]+du[0]*s+dv[0]*t,
					origin[1]+du[1]*s+dv[1]*t,
					origin[2]+du[2]*s+dv[2]*t)
				g.Normals = append(g.Normals, n[0], n[1], n[2])
				g.UVs = append(g.UVs, s, t)
			}
		}
		g.Indices = appendGridIndices(g.Indices, base, segments, segments)
	}
	return g
}

// NewGrid builds a flat grid in the XZ plane with cols×rows quads.
func NewGrid(width, depth float32, cols, rows int) *Geometry {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	g := &Geometry{Indices: []uint32{}}
	for j := 0; j <= rows; j++ {
		for i := 0; i <= cols; i++ {
			s := float32(i) / float32(cols)
			t := float32(j) / float32(rows)
			g.Positions = append(g.Positions, (s-0.5)*width, 0, (t-0.5)*depth)
			g.Normals = append(g.Normals, 0, 1, 0)
			g.UVs = append(g.UVs, s, t)
		}
	}
	g.Indices = appendGridIndices(g.Indices, 0, cols, rows)
	return g
}

// NewUVSphere builds a latitude/longitude sphere.
func NewUVSphere(radius float32, slices, stacks int) *Geometry {
	if slices < 3 {
		slices = 3
	}
	if stacks < 2 {
		stacks = 2
	}
	g := &Geometry{Indices: []uint32{}}
	for j := 0; j <= stacks; j++ {
		phi := pi * float32(j) / float32(stacks)
		for i := 0; i <= slices; i++ {
			theta := 2 * pi * float32(i) / float32(slices)
			n := [3]float32{
				math32.Sin(phi) * math32.Cos(theta),
				math32.Cos(phi),
				math32.Sin(phi) * math32.Sin(theta),
			}
			g.Positions = append(g.Positions, n[0]*radius, n[1]*radius, n[2]*radius)
			g.Normals = append(g.Normals, n[0], n[1], n[2])
			g.UVs = append(g.UVs, float32(i)/float32(slices), float32(j)/float32(stacks))
		}
	}

	row := uint32(slices + 1)
	for j := 0; j < stacks; j++ {
		for i := 0; i < slices; i++ {
			a := uint32(j)*row + uint32(i)
			b := a + row
			// Skip the degenerate triangle at each pole.
			if j != 0 {
				g.Indices = append(g.Indices, a, a+1, b)
			}
			if j != stacks-1 {
				g.Indices = append(g.Indices, a+1, b+1, b)
			}
		}
	}
	return g
}

func appendGridIndices(indices []uint32, base uint32, cols, rows int) []uint32 {
	stride := uint32(cols + 1)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			a := base + uint32(j)*stride + uint32(i)
			b := a + stride
			indices = append(indices, a, a+1, b+1, a, b+1, b)
		}
	}
	return indices
}

package meshlet

import (
	"context"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

// partition splits a triangle list into groups that respect the limits.
// Each group is grown from a seed through vertex-adjacent triangles,
// preferring those that add the fewest new vertices. When no neighbour
// fits, the next unassigned triangle in spatial order is tried before the
// group is closed.
func partition(ctx context.Context, positions []float32, indices []uint32, limits Limits) ([][]uint32, error) {
	n := len(indices) / 3
	if n == 0 {
		return nil, nil
	}

	order := spatialOrder(triangleCentroids(positions, indices))
	rank := make([]int, n)
	for r, t := range order {
		rank[t] = r
	}

	vertTris := make(map[uint32][]int, n)
	for t := 0; t < n; t++ {
		for k := 0; k < 3; k++ {
			v := indices[t*3+k]
			vertTris[v] = append(vertTris[v], t)
		}
	}

	assigned := make([]bool, n)
	cursor := 0
	var groups [][]uint32

	g := newGroupBuilder(limits)
	for {
		if len(groups)%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for cursor < n && assigned[order[cursor]] {
			cursor++
		}
		if cursor == n {
			break
		}

		g.reset()
		frontier := make(map[int]bool)
		add := func(t int) {
			assigned[t] = true
			g.add(indices[t*3 : t*3+3])
			for k := 0; k < 3; k++ {
				for _, nb := range vertTris[indices[t*3+k]] {
					if !assigned[nb] {
						frontier[nb] = true
					}
				}
			}
			delete(frontier, t)
		}
		add(order[cursor])

		for !g.full() {
			best, bestCost := -1, 4
			for t := range frontier {
				if assigned[t] {
					delete(frontier, t)
					continue
				}
				cost := g.newVertices(indices[t*3 : t*3+3])
				if !g.fits(cost) {
					continue
				}
				if cost < bestCost || (cost == bestCost && rank[t] < rank[best]) {
					best, bestCost = t, cost
				}
			}
			if best < 0 {
				best = g.nextInOrder(order, cursor, assigned, indices)
			}
			if best < 0 {
				break
			}
			add(best)
		}

		groups = append(groups, g.triangles())
	}
	return groups, nil
}

type groupBuilder struct {
	limits Limits
	verts  map[uint32]bool
	tris   []uint32
}

func newGroupBuilder(limits Limits) *groupBuilder {
	return &groupBuilder{limits: limits, verts: make(map[uint32]bool, limits.MaxVertices)}
}

func (g *groupBuilder) reset() {
	g.verts = make(map[uint32]bool, g.limits.MaxVertices)
	g.tris = nil
}

func (g *groupBuilder) newVertices(tri []uint32) int {
	n := 0
	for _, v := range tri {
		if !g.verts[v] {
			n++
		}
	}
	return n
}

func (g *groupBuilder) fits(newVerts int) bool {
	return len(g.verts)+newVerts <= g.limits.MaxVertices && len(g.tris)/3+1 <= g.limits.MaxTriangles
}

func (g *groupBuilder) full() bool {
	return len(g.tris)/3 >= g.limits.MaxTriangles
}

func (g *groupBuilder) add(tri []uint32) {
	for _, v := range tri {
		g.verts[v] = true
	}
	g.tris = append(g.tris, tri...)
}

func (g *groupBuilder) triangles() []uint32 {
	return g.tris
}

// nextInOrder returns the first unassigned triangle at or after cursor
// that fits, looking only a short distance ahead to stay spatially local.
func (g *groupBuilder) nextInOrder(order []int, cursor int, assigned []bool, indices []uint32) int {
	const lookahead = 16
	checked := 0
	for i := cursor; i < len(order) && checked < lookahead; i++ {
		t := order[i]
		if assigned[t] {
			continue
		}
		checked++
		if g.fits(g.newVertices(indices[t*3 : t*3+3])) {
			return t
		}
	}
	return -1
}

// newMeshlet converts a group of global triangles into a meshlet.
func newMeshlet(id, level int, positions []float32, tris []uint32) Meshlet {
	m := Meshlet{
		ID:           id,
		LODLevel:     level,
		TriangleRefs: make([]uint8, len(tris)),
	}
	local := make(map[uint32]uint8, len(tris))
	for i, v := range tris {
		r, ok := local[v]
		if !ok {
			r = uint8(len(m.VertexRefs))
			local[v] = r
			m.VertexRefs = append(m.VertexRefs, v)
		}
		m.TriangleRefs[i] = r
	}
	m.BoundingSphere = math.BoundingSphere(positions, m.VertexRefs)
	return m
}

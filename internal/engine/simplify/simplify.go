// Package simplify reduces triangle counts with half-edge collapses.
//
// A collapse moves one endpoint of an edge onto the other, so surviving
// vertices keep their original index and position. Simplified index buffers
// therefore still address the caller's vertex buffer.
package simplify

import (
	"container/heap"

	"github.com/chewxy/math32"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

// Options tunes a simplification run.
type Options struct {
	// LockBorder keeps vertices on open edges (edges used by a single
	// triangle) in place so neighbouring patches still meet.
	LockBorder bool
	// Locked reports additional vertices that must not move. May be nil.
	Locked func(v uint32) bool
}

// Result is the output of Simplify.
type Result struct {
	Indices []uint32
	// Error is the longest edge collapsed, an object-space bound on how
	// far the surface moved.
	Error float32
}

// Triangles returns the number of triangles in the result.
func (r Result) Triangles() int {
	return len(r.Indices) / 3
}

// Simplify collapses the shortest edges of the triangle list until at most
// target triangles remain or no legal collapse is left. Collapses that would
// flip a face or pinch the surface are skipped.
func Simplify(positions []float32, indices []uint32, target int, opts Options) Result {
	if target < 0 {
		target = 0
	}
	if len(indices)/3 <= target {
		return Result{Indices: append([]uint32(nil), indices...)}
	}

	m := newMesh(positions, indices)
	locked := m.lockedSet(opts)

	for m.alive > target && m.queue.Len() > 0 {
		e := heap.Pop(&m.queue).(edge)
		if m.removed[e.a] || m.removed[e.b] {
			continue
		}
		shared := m.sharedTriangles(e.a, e.b)
		if len(shared) == 0 {
			continue
		}
		switch {
		case !locked[e.a] && m.canCollapse(e.a, e.b, shared):
			m.collapse(e.a, e.b, e.cost)
		case !locked[e.b] && m.canCollapse(e.b, e.a, shared):
			m.collapse(e.b, e.a, e.cost)
		}
	}

	return Result{Indices: m.indices(), Error: m.err}
}

type edge struct {
	a, b uint32
	cost float32
}

type edgeQueue []edge

func (q edgeQueue) Len() int            { return len(q) }
func (q edgeQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q edgeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *edgeQueue) Push(x interface{}) { *q = append(*q, x.(edge)) }
func (q *edgeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

type mesh struct {
	positions []float32
	tris      [][3]uint32
	dead      []bool
	alive     int
	vertTris  map[uint32][]int
	removed   map[uint32]bool
	queue     edgeQueue
	err       float32
}

func newMesh(positions []float32, indices []uint32) *mesh {
	n := len(indices) / 3
	m := &mesh{
		positions: positions,
		tris:      make([][3]uint32, 0, n),
		vertTris:  make(map[uint32][]int, n),
		removed:   make(map[uint32]bool),
	}

	seen := make(map[uint64]bool, n*3/2)
	for t := 0; t < n; t++ {
		tri := [3]uint32{indices[t*3], indices[t*3+1], indices[t*3+2]}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			continue
		}
		id := len(m.tris)
		m.tris = append(m.tris, tri)
		for k := 0; k < 3; k++ {
			m.vertTris[tri[k]] = append(m.vertTris[tri[k]], id)
			a, b := tri[k], tri[(k+1)%3]
			if key := edgeKey(a, b); !seen[key] {
				seen[key] = true
				m.queue = append(m.queue, edge{a: a, b: b, cost: m.length(a, b)})
			}
		}
	}
	m.dead = make([]bool, len(m.tris))
	m.alive = len(m.tris)
	heap.Init(&m.queue)
	return m
}

func edgeKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

func (m *mesh) length(a, b uint32) float32 {
	return math.Vec3At(m.positions, a).Distance(math.Vec3At(m.positions, b))
}

func (m *mesh) lockedSet(opts Options) map[uint32]bool {
	locked := make(map[uint32]bool)
	if opts.Locked != nil {
		for v := range m.vertTris {
			if opts.Locked(v) {
				locked[v] = true
			}
		}
	}
	if opts.LockBorder {
		uses := make(map[uint64]int, len(m.tris)*3/2)
		for _, tri := range m.tris {
			for k := 0; k < 3; k++ {
				uses[edgeKey(tri[k], tri[(k+1)%3])]++
			}
		}
		for key, n := range uses {
			if n == 1 {
				locked[uint32(key>>32)] = true
				locked[uint32(key)] = true
			}
		}
	}
	return locked
}

// sharedTriangles returns the live triangles containing both a and b.
func (m *mesh) sharedTriangles(a, b uint32) []int {
	var out []int
	for _, t := range m.vertTris[a] {
		if !m.dead[t] && contains(m.tris[t], b) {
			out = append(out, t)
		}
	}
	return out
}

func (m *mesh) neighbours(v uint32) map[uint32]bool {
	out := make(map[uint32]bool)
	for _, t := range m.vertTris[v] {
		if m.dead[t] {
			continue
		}
		for _, w := range m.tris[t] {
			if w != v {
				out[w] = true
			}
		}
	}
	return out
}

// canCollapse checks moving u onto v.
func (m *mesh) canCollapse(u, v uint32, shared []int) bool {
	// Link condition: u and v may only share the vertices opposite the
	// collapsed edge, otherwise the surface gets pinched.
	nu, nv := m.neighbours(u), m.neighbours(v)
	common := 0
	for w := range nu {
		if nv[w] {
			common++
		}
	}
	if common > len(shared) {
		return false
	}

	pv := math.Vec3At(m.positions, v)
	for _, t := range m.vertTris[u] {
		if m.dead[t] || contains(m.tris[t], v) {
			continue
		}
		tri := m.tris[t]
		before := m.normal(tri, u, math.Vec3At(m.positions, u))
		after := m.normal(tri, u, pv)
		if after.LengthSq() <= 1e-20 {
			return false
		}
		if before.Dot(after) <= 0 {
			return false
		}
	}
	return true
}

// normal returns the unnormalized face normal of tri with u placed at pu.
func (m *mesh) normal(tri [3]uint32, u uint32, pu math.Vec3) math.Vec3 {
	var p [3]math.Vec3
	for k, w := range tri {
		if w == u {
			p[k] = pu
		} else {
			p[k] = math.Vec3At(m.positions, w)
		}
	}
	return p[1].Sub(p[0]).Cross(p[2].Sub(p[0]))
}

func (m *mesh) collapse(u, v uint32, cost float32) {
	for _, t := range m.vertTris[u] {
		if m.dead[t] {
			continue
		}
		if contains(m.tris[t], v) {
			m.dead[t] = true
			m.alive--
			continue
		}
		for k := range m.tris[t] {
			if m.tris[t][k] == u {
				m.tris[t][k] = v
			}
		}
		m.vertTris[v] = append(m.vertTris[v], t)
	}
	m.removed[u] = true
	delete(m.vertTris, u)
	m.err = math32.Max(m.err, cost)

	for w := range m.neighbours(v) {
		heap.Push(&m.queue, edge{a: v, b: w, cost: m.length(v, w)})
	}
}

func (m *mesh) indices() []uint32 {
	out := make([]uint32, 0, m.alive*3)
	for t, tri := range m.tris {
		if !m.dead[t] {
			out = append(out, tri[0], tri[1], tri[2])
		}
	}
	return out
}

func contains(tri [3]uint32, v uint32) bool {
	return tri[0] == v || tri[1] == v || tri[2] == v
}

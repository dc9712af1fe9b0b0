package meshlet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
)

func build(t *testing.T, g *model.Geometry, limits Limits, levels int) *BuildOutput {
	t.Helper()
	out, err := Build(context.Background(), BuildInput{
		MeshID:    "test",
		Vertices:  g.Positions,
		Indices:   g.Indices,
		Limits:    limits,
		LODLevels: levels,
	})
	require.NoError(t, err)
	return out
}

func TestBuildRespectsCaps(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
	}{
		{"default", DefaultLimits()},
		{"tight", Limits{MaxVertices: 8, MaxTriangles: 6}},
		{"vertex bound", Limits{MaxVertices: 16, MaxTriangles: 124}},
		{"triangle bound", Limits{MaxVertices: 256, MaxTriangles: 10}},
		{"single triangle", Limits{MaxVertices: 3, MaxTriangles: 1}},
	}

	g := model.NewUVSphere(1, 24, 12)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := build(t, g, tt.limits, 3)
			require.NotEmpty(t, out.Meshlets)
			for _, m := range out.Meshlets {
				assert.LessOrEqual(t, m.VertexCount(), tt.limits.MaxVertices, "meshlet %d", m.ID)
				assert.LessOrEqual(t, m.TriangleCount(), tt.limits.MaxTriangles, "meshlet %d", m.ID)
				assert.Greater(t, m.TriangleCount(), 0, "meshlet %d is empty", m.ID)
			}
		})
	}
}

func TestLevelZeroCoversInputExactly(t *testing.T) {
	g := model.NewGrid(10, 10, 16, 16)
	out := build(t, g, DefaultLimits(), 1)

	seen := make(map[[3]uint32]int)
	for _, id := range out.LODTree[0] {
		idx := out.Meshlets[id].Indices()
		for i := 0; i < len(idx); i += 3 {
			seen[[3]uint32{idx[i], idx[i+1], idx[i+2]}]++
		}
	}

	require.Len(t, seen, g.TriangleCount())
	for tri := 0; tri < g.TriangleCount(); tri++ {
		assert.Equal(t, 1, seen[g.Triangle(tri)], "triangle %d", tri)
	}
}

func TestLODTreeShape(t *testing.T) {
	g := model.NewUVSphere(1, 64, 32)
	out := build(t, g, DefaultLimits(), 4)

	require.Len(t, out.LODTree, 4)
	total := 0
	for lvl, ids := range out.LODTree {
		total += len(ids)
		for _, id := range ids {
			assert.Equal(t, lvl, out.Meshlets[id].LODLevel)
		}
	}
	assert.Equal(t, len(out.Meshlets), total, "every meshlet belongs to exactly one level")

	// Coarser levels hold fewer triangles.
	prev := -1
	for lvl := len(out.LODTree) - 1; lvl >= 0; lvl-- {
		tris := 0
		for _, id := range out.LODTree[lvl] {
			tris += out.Meshlets[id].TriangleCount()
		}
		if prev >= 0 {
			assert.GreaterOrEqual(t, tris, prev, "level %d", lvl)
		}
		prev = tris
	}
	assert.Less(t, len(out.LODTree[3]), len(out.LODTree[0]))
}

func TestHierarchyMonotonic(t *testing.T) {
	g := model.NewUVSphere(2, 48, 24)
	out := build(t, g, DefaultLimits(), 4)

	for i, c := range out.Clusters {
		if c.Level == 0 {
			assert.Zero(t, c.Error, "cluster %d", i)
		}
		if c.Parent < 0 {
			for _, id := range c.MeshletIDs {
				assert.Equal(t, NoParent, out.Meshlets[id].ParentError)
			}
			continue
		}
		p := out.Clusters[c.Parent]
		assert.Equal(t, c.Level+1, p.Level)
		assert.GreaterOrEqual(t, p.Error, c.Error, "cluster %d", i)
		assert.True(t, p.Bounds.Contains(c.Bounds), "cluster %d bounds escape parent", i)
		for _, id := range c.MeshletIDs {
			m := out.Meshlets[id]
			assert.Equal(t, p.Error, m.ParentError)
			assert.Equal(t, p.Bounds, m.ParentBounds)
			assert.Equal(t, c.Bounds, m.LODBounds)
		}
	}
}

func TestCoarserClustersAreSimpler(t *testing.T) {
	g := model.NewUVSphere(1, 64, 32)
	out := build(t, g, DefaultLimits(), 4)

	for i, c := range out.Clusters {
		if len(c.Children) == 0 {
			continue
		}
		own, children := 0, 0
		for _, id := range c.MeshletIDs {
			own += out.Meshlets[id].TriangleCount()
		}
		for _, child := range c.Children {
			for _, id := range out.Clusters[child].MeshletIDs {
				children += out.Meshlets[id].TriangleCount()
			}
		}
		assert.Less(t, own, children, "cluster %d does not reduce its children", i)
	}
}

func TestStalledSimplificationAddsNoLevels(t *testing.T) {
	// One triangle per meshlet: a group of four has no interior vertex to
	// remove once its border is locked.
	g := model.NewGrid(4, 4, 8, 8)
	out := build(t, g, Limits{MaxVertices: 3, MaxTriangles: 1}, 3)

	require.Len(t, out.LODTree, 3)
	assert.Len(t, out.LODTree[0], g.TriangleCount())
	assert.Len(t, out.Meshlets, g.TriangleCount(), "no duplicate meshlets at coarser levels")
	for lvl := 1; lvl < len(out.LODTree); lvl++ {
		assert.Empty(t, out.LODTree[lvl], "level %d", lvl)
	}
	for _, m := range out.Meshlets {
		assert.Equal(t, NoParent, m.ParentError)
	}
}

func TestBoundingSpheresEncloseVertices(t *testing.T) {
	g := model.NewBox(3, 4)
	out := build(t, g, DefaultLimits(), 2)

	for _, m := range out.Meshlets {
		for _, v := range m.VertexRefs {
			d := g.Position(v).Distance(m.BoundingSphere.Center)
			assert.LessOrEqual(t, d, m.BoundingSphere.Radius*1.0001+1e-5, "meshlet %d vertex %d", m.ID, v)
		}
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	g := model.NewBox(1, 1)
	ctx := context.Background()

	_, err := Build(ctx, BuildInput{Vertices: g.Positions, Indices: g.Indices, Limits: Limits{}, LODLevels: 1})
	assert.True(t, errdefs.IsConfig(err), "zero caps should be a config error, got %v", err)

	_, err = Build(ctx, BuildInput{Vertices: g.Positions, Indices: g.Indices, Limits: DefaultLimits(), LODLevels: 0})
	assert.True(t, errdefs.IsConfig(err), "zero levels should be a config error, got %v", err)

	_, err = Build(ctx, BuildInput{Vertices: g.Positions, Indices: []uint32{0, 1, 999}, Limits: DefaultLimits(), LODLevels: 1})
	assert.Error(t, err)
}

func TestBuildEmptyInput(t *testing.T) {
	out, err := Build(context.Background(), BuildInput{MeshID: "empty", Limits: DefaultLimits(), LODLevels: 3})
	require.NoError(t, err)
	assert.Empty(t, out.Meshlets)
	assert.Len(t, out.LODTree, 3)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := model.NewGrid(1, 1, 8, 8)
	_, err := Build(ctx, BuildInput{Vertices: g.Positions, Indices: g.Indices, Limits: DefaultLimits(), LODLevels: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-lod/internal/engine/debug"
	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/lod"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

func writeGLB(t *testing.T, dir, name string, g *model.Geometry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, ExportGeometry(f, name, g))
	return path
}

func TestExportLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	box := model.NewBox(2, 3)
	path := writeGLB(t, dir, "box.glb", box)

	m := NewManager()
	g, err := m.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, box.VertexCount(), g.VertexCount())
	assert.Equal(t, box.TriangleCount(), g.TriangleCount())
	assert.Equal(t, box.Indices, g.Indices)
	assert.InDeltaSlice(t, box.Positions, g.Positions, 1e-6)
	assert.True(t, g.HasNormals())
	assert.True(t, g.HasUVs())
}

func TestLoadUsesRootsAndCache(t *testing.T) {
	low, high := t.TempDir(), t.TempDir()
	writeGLB(t, low, "rock.glb", model.NewBox(1, 1))
	writeGLB(t, high, "rock.glb", model.NewBox(1, 2))

	m := NewManager()
	require.NoError(t, m.AddRoot(low))
	require.NoError(t, m.AddRoot(high))

	g, err := m.Load(context.Background(), "rock.glb")
	require.NoError(t, err)
	assert.Equal(t, model.NewBox(1, 2).TriangleCount(), g.TriangleCount(), "last root wins")

	again, err := m.Load(context.Background(), "rock.glb")
	require.NoError(t, err)
	assert.Same(t, g, again)
	hits, misses := m.CacheStats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	m.Invalidate("rock.glb")
	reloaded, err := m.Load(context.Background(), "rock.glb")
	require.NoError(t, err)
	assert.NotSame(t, g, reloaded)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()

	_, err := m.Load(context.Background(), "missing.glb")
	assert.Error(t, err)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, err = m.Load(context.Background(), txt)
	assert.ErrorContains(t, err, "unsupported format")

	bad := filepath.Join(dir, "bad.glb")
	require.NoError(t, os.WriteFile(bad, []byte("not a glb"), 0o644))
	_, err = m.Load(context.Background(), bad)
	assert.Error(t, err)

	assert.Error(t, m.AddRoot(txt))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Load(ctx, txt)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeMergesPrimitives(t *testing.T) {
	doc := gltf.NewDocument()
	tri := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

	indexed := modeler.WriteIndices(doc, []uint32{0, 1, 2})
	first := map[string]uint32{"POSITION": modeler.WritePosition(doc, tri)}
	second := map[string]uint32{"POSITION": modeler.WritePosition(doc, tri)}
	doc.Meshes = append(doc.Meshes,
		&gltf.Mesh{Primitives: []*gltf.Primitive{{Indices: &indexed, Attributes: first}}},
		// No indices: sequential ones are generated.
		&gltf.Mesh{Primitives: []*gltf.Primitive{{Attributes: second}}},
	)

	g, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, 6, g.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, g.Indices)
	assert.False(t, g.HasNormals())
}

func TestDecodeRejectsNonTriangles(t *testing.T) {
	doc := gltf.NewDocument()
	attrs := map[string]uint32{"POSITION": modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}})}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Primitives: []*gltf.Primitive{{Attributes: attrs, Mode: gltf.PrimitiveLines}},
	})
	_, err := Decode(doc)
	assert.ErrorContains(t, err, "only triangles")

	_, err = Decode(gltf.NewDocument())
	assert.Error(t, err)
}

func TestExportGLBWritesEveryLevel(t *testing.T) {
	p, err := lod.NewPipeline(lod.MobileConfig())
	require.NoError(t, err)
	defer p.Close()

	res, err := p.ProcessAsset(context.Background(), model.NewUVSphere(1, 16, 12))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportGLB(&buf, "sphere", res))

	doc := &gltf.Document{}
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(doc))
	require.Len(t, doc.Meshes, res.LevelCount())
	assert.Equal(t, "sphere_lod0", doc.Meshes[0].Name)
	assert.Len(t, doc.Scenes[0].Nodes, res.LevelCount())

	merged, err := LoadReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	total := 0
	for _, g := range res.LODMeshes {
		total += g.TriangleCount()
	}
	assert.Equal(t, total, merged.TriangleCount())
}

func TestExportWireframes(t *testing.T) {
	var lod0, lod1 debug.Wireframe
	lod0.AddBox(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1}, 0)
	lod0.AddBox(math.Vec3{X: 2}, math.Vec3{X: 3, Y: 1, Z: 1}, 0)
	lod1.AddSphere(math.Sphere{Center: math.Vec3{X: 1.5}, Radius: 2}, 0)

	var buf bytes.Buffer
	require.NoError(t, ExportWireframes(&buf, "bounds", map[string]*debug.Wireframe{
		"lod1":  &lod1,
		"lod0":  &lod0,
		"empty": {},
	}))

	doc := &gltf.Document{}
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(doc))
	require.Len(t, doc.Meshes, 2)
	assert.Equal(t, "bounds_lod0", doc.Meshes[0].Name)
	assert.Equal(t, "bounds_lod1", doc.Meshes[1].Name)

	prim := doc.Meshes[0].Primitives[0]
	assert.Equal(t, gltf.PrimitiveLines, prim.Mode)
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	require.NoError(t, err)
	assert.Len(t, indices, 2*24)

	// Line meshes are not loadable as triangle geometry.
	_, err = LoadReader(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}

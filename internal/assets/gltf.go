package assets

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-lod/internal/engine/debug"
	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/lod"
)

type primitiveData struct {
	positions [][3]float32
	normals   [][3]float32
	uvs       [][2]float32
	indices   []uint32
}

// Decode merges every triangle primitive of doc into one indexed geometry.
// Normals and UVs are kept only when every primitive has them.
// Primitives without indices get sequential ones.
func Decode(doc *gltf.Document) (*model.Geometry, error) {
	var prims []primitiveData
	allNormals, allUVs := true, true

	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				return nil, fmt.Errorf("mesh %d primitive %d: unsupported mode %v, only triangles are supported", mi, pi, prim.Mode)
			}
			pd, err := readPrimitive(doc, prim)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %d (%q) primitive %d", mi, mesh.Name, pi)
			}
			allNormals = allNormals && len(pd.normals) == len(pd.positions)
			allUVs = allUVs && len(pd.uvs) == len(pd.positions)
			prims = append(prims, pd)
		}
	}
	if len(prims) == 0 {
		return nil, fmt.Errorf("document has no triangle primitives")
	}

	g := &model.Geometry{Indices: []uint32{}}
	for _, pd := range prims {
		base := uint32(len(g.Positions) / 3)
		for _, p := range pd.positions {
			g.Positions = append(g.Positions, p[0], p[1], p[2])
		}
		if allNormals {
			for _, n := range pd.normals {
				g.Normals = append(g.Normals, n[0], n[1], n[2])
			}
		}
		if allUVs {
			for _, uv := range pd.uvs {
				g.UVs = append(g.UVs, uv[0], uv[1])
			}
		}
		for _, idx := range pd.indices {
			g.Indices = append(g.Indices, idx+base)
		}
	}
	return g, nil
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (primitiveData, error) {
	var pd primitiveData

	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return pd, fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return pd, errors.Wrap(err, "failed to read vertices")
	}
	pd.positions = positions

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if pd.normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			return pd, errors.Wrap(err, "failed to read normals")
		}
	}
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if pd.uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return pd, errors.Wrap(err, "failed to read texture coordinates")
		}
	}

	if prim.Indices == nil {
		pd.indices = make([]uint32, len(positions)-len(positions)%3)
		for i := range pd.indices {
			pd.indices[i] = uint32(i)
		}
	} else {
		if pd.indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil); err != nil {
			return pd, errors.Wrap(err, "failed to read indices")
		}
	}
	if len(pd.indices)%3 != 0 {
		return pd, fmt.Errorf("index count %d is not a multiple of 3", len(pd.indices))
	}
	for _, idx := range pd.indices {
		if int(idx) >= len(positions) {
			return pd, fmt.Errorf("index %d out of range (%d vertices)", idx, len(positions))
		}
	}
	return pd, nil
}

// ExportGeometry writes g as a single-mesh GLB.
func ExportGeometry(w io.Writer, name string, g *model.Geometry) error {
	doc := gltf.NewDocument()
	if err := addMesh(doc, name, g); err != nil {
		return err
	}
	return encodeBinary(w, doc)
}

// ExportGLB writes every level of result as its own mesh and node, named
// <name>_lod<level>.
func ExportGLB(w io.Writer, name string, result *lod.ProcessingResult) error {
	doc := gltf.NewDocument()
	for level := 0; level < result.LevelCount(); level++ {
		g, ok := result.LODMeshes[level]
		if !ok {
			continue
		}
		if err := addMesh(doc, fmt.Sprintf("%s_lod%d", name, level), g); err != nil {
			return errors.Wrapf(err, "exporting level %d", level)
		}
	}
	return encodeBinary(w, doc)
}

// ExportWireframes writes each wireframe as a line-list mesh and node,
// named <name>_<key>, in key order.
func ExportWireframes(w io.Writer, name string, wires map[string]*debug.Wireframe) error {
	keys := make([]string, 0, len(wires))
	for k := range wires {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := gltf.NewDocument()
	for _, k := range keys {
		wf := wires[k]
		if wf.LineCount() == 0 {
			continue
		}
		positions := make([][3]float32, len(wf.Positions)/3)
		for i := range positions {
			copy(positions[i][:], wf.Positions[i*3:i*3+3])
		}
		indices := modeler.WriteIndices(doc, wf.Indices)
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{
			Name: name + "_" + k,
			Primitives: []*gltf.Primitive{{
				Indices:    &indices,
				Attributes: map[string]uint32{"POSITION": modeler.WritePosition(doc, positions)},
				Mode:       gltf.PrimitiveLines,
			}},
		})
		appendNode(doc, name+"_"+k)
	}
	return encodeBinary(w, doc)
}

func appendNode(doc *gltf.Document, name string) {
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Name: name,
		Mesh: gltf.Index(uint32(len(doc.Meshes) - 1)),
	})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
}

func addMesh(doc *gltf.Document, name string, g *model.Geometry) error {
	if len(g.Positions) == 0 {
		return fmt.Errorf("mesh %q has no vertices", name)
	}
	indices := g.Indices
	if indices == nil {
		indices = make([]uint32, g.VertexCount())
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	positions := make([][3]float32, g.VertexCount())
	for i := range positions {
		copy(positions[i][:], g.Positions[i*3:i*3+3])
	}
	attributes := map[string]uint32{
		"POSITION": modeler.WritePosition(doc, positions),
	}
	if g.HasNormals() {
		normals := make([][3]float32, g.VertexCount())
		for i := range normals {
			copy(normals[i][:], g.Normals[i*3:i*3+3])
		}
		attributes["NORMAL"] = modeler.WriteNormal(doc, normals)
	}
	if g.HasUVs() {
		uvs := make([][2]float32, g.VertexCount())
		for i := range uvs {
			copy(uvs[i][:], g.UVs[i*2:i*2+2])
		}
		attributes["TEXCOORD_0"] = modeler.WriteTextureCoord(doc, uvs)
	}
	indicesAccessor := modeler.WriteIndices(doc, indices)

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: name,
		Primitives: []*gltf.Primitive{{
			Indices:    &indicesAccessor,
			Attributes: attributes,
		}},
	})
	appendNode(doc, name)
	return nil
}

func encodeBinary(w io.Writer, doc *gltf.Document) error {
	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = true
	if err := encoder.Encode(doc); err != nil {
		return errors.Wrap(err, "failed to write glb")
	}
	return nil
}

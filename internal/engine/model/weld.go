package model

import "math"

// WeldEpsilon is the position quantization step used when welding.
const WeldEpsilon float32 = 1e-5

// Weld builds an index buffer for non-indexed geometry by merging vertices
// whose attributes are equal after quantization. Indexed geometry is
// returned unchanged.
func Weld(g *Geometry) *Geometry {
	if g.IsIndexed() {
		return g
	}

	hasNormals, hasUVs := g.HasNormals(), g.HasUVs()

	// Quantized values stay in float64 so large coordinates never saturate
	// into a shared key.
	type key struct {
		pos    [3]float64
		normal [3]float64
		uv     [2]float64
	}
	quant := func(v float32) float64 {
		return math.Round(float64(v) / float64(WeldEpsilon))
	}

	out := &Geometry{Indices: make([]uint32, 0, g.VertexCount())}
	lookup := make(map[key]uint32, g.VertexCount())

	for i := 0; i < g.VertexCount(); i++ {
		var k key
		p := g.Positions[i*3 : i*3+3]
		k.pos = [3]float64{quant(p[0]), quant(p[1]), quant(p[2])}
		if hasNormals {
			n := g.Normals[i*3 : i*3+3]
			k.normal = [3]float64{quant(n[0]), quant(n[1]), quant(n[2])}
		}
		if hasUVs {
			uv := g.UVs[i*2 : i*2+2]
			k.uv = [2]float64{quant(uv[0]), quant(uv[1])}
		}

		idx, ok := lookup[k]
		if !ok {
			idx = uint32(out.VertexCount())
			lookup[k] = idx
			out.Positions = append(out.Positions, p...)
			if hasNormals {
				out.Normals = append(out.Normals, g.Normals[i*3:i*3+3]...)
			}
			if hasUVs {
				out.UVs = append(out.UVs, g.UVs[i*2:i*2+2]...)
			}
		}
		out.Indices = append(out.Indices, idx)
	}

	// Drop the trailing partial triangle, if any.
	out.Indices = out.Indices[:len(out.Indices)/3*3]
	return out
}

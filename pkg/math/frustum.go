package math

// Plane is a plane in the form Normal·p + D = 0 with a unit normal.
type Plane struct {
	Normal Vec3
	D      float32
}

// Distance returns the signed distance from p to the plane.
func (pl Plane) Distance(p Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

// Frustum holds the six clip planes, normals pointing inwards.
// Order: left, right, bottom, top, near, far.
type Frustum [6]Plane

// FrustumFromMatrix extracts the clip planes from a combined
// projection*view matrix (Gribb/Hartmann, OpenGL clip space).
func FrustumFromMatrix(m Mat4) Frustum {
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)

	raw := [6]Vec4{
		r3.Add(r0), r3.Sub(r0),
		r3.Add(r1), r3.Sub(r1),
		r3.Add(r2), r3.Sub(r2),
	}

	var f Frustum
	for i, p := range raw {
		n := Vec3{p[0], p[1], p[2]}
		l := n.Length()
		if l == 0 {
			// Degenerate row; keep a plane that accepts everything.
			f[i] = Plane{D: 1}
			continue
		}
		f[i] = Plane{Normal: n.Scale(1 / l), D: p[3] / l}
	}
	return f
}

// IntersectsSphere reports whether the sphere is at least partly inside.
func (f Frustum) IntersectsSphere(s Sphere) bool {
	for _, pl := range f {
		if pl.Distance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

package math

import "github.com/chewxy/math32"

// Sphere is a bounding sphere.
type Sphere struct {
	Center Vec3    `json:"center"`
	Radius float32 `json:"radius"`
}

// BoundingSphere fits a sphere around the referenced points using Ritter's
// two-pass method. The result is not minimal but always encloses every point.
func BoundingSphere(positions []float32, refs []uint32) Sphere {
	if len(refs) == 0 {
		return Sphere{}
	}

	// Pick the extreme pair along the axis with the widest spread.
	var minP, maxP [3]Vec3
	for a := 0; a < 3; a++ {
		minP[a] = Vec3At(positions, refs[0])
		maxP[a] = minP[a]
	}
	for _, r := range refs[1:] {
		p := Vec3At(positions, r)
		for a := 0; a < 3; a++ {
			if p.Axis(a) < minP[a].Axis(a) {
				minP[a] = p
			}
			if p.Axis(a) > maxP[a].Axis(a) {
				maxP[a] = p
			}
		}
	}
	best := 0
	bestSpan := float32(-1)
	for a := 0; a < 3; a++ {
		if d := maxP[a].Sub(minP[a]).LengthSq(); d > bestSpan {
			best, bestSpan = a, d
		}
	}

	s := Sphere{
		Center: minP[best].Add(maxP[best]).Scale(0.5),
		Radius: math32.Sqrt(bestSpan) / 2,
	}
	for _, r := range refs {
		s = s.Expand(Vec3At(positions, r))
	}
	return s
}

// Expand grows the sphere just enough to contain p.
func (s Sphere) Expand(p Vec3) Sphere {
	d := p.Sub(s.Center)
	dist := d.Length()
	if dist <= s.Radius {
		return s
	}
	newRadius := (s.Radius + dist) / 2
	s.Center = s.Center.Add(d.Scale((newRadius - s.Radius) / dist))
	s.Radius = newRadius
	return s
}

// Merge returns a sphere enclosing both s and o.
func (s Sphere) Merge(o Sphere) Sphere {
	d := o.Center.Sub(s.Center)
	dist := d.Length()
	if dist+o.Radius <= s.Radius {
		return s
	}
	if dist+s.Radius <= o.Radius {
		return o
	}
	radius := (dist + s.Radius + o.Radius) / 2
	center := s.Center
	if dist > 0 {
		center = s.Center.Add(d.Scale((radius - s.Radius) / dist))
	}
	return Sphere{Center: center, Radius: radius}
}

// Contains reports whether o lies inside s, allowing a small tolerance.
func (s Sphere) Contains(o Sphere) bool {
	return s.Center.Distance(o.Center)+o.Radius <= s.Radius*(1+1e-4)+1e-5
}

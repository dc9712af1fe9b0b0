// Package culling selects the meshlets to draw for one camera.
package culling

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// DefaultErrorThreshold is the default screen-space error budget in pixels.
const DefaultErrorThreshold float32 = 1.0

// minDistance keeps the projected error finite for spheres around the eye.
const minDistance float32 = 1e-4

// Input is one culling request.
type Input struct {
	Meshlets       []meshlet.Meshlet
	View           math.Mat4
	Projection     math.Mat4
	ViewportWidth  float32
	ViewportHeight float32
	// ErrorThreshold is the largest acceptable projected error in pixels.
	ErrorThreshold float32
}

// Output lists the meshlets to draw.
type Output struct {
	VisibleMeshletIDs []int
	CulledCount       int
	CullTime          time.Duration
}

// Camera holds the per-frame values derived from the matrices.
type Camera struct {
	Frustum     math.Frustum
	Eye         math.Vec3
	Perspective bool
	// PixelScale converts object-space error at unit distance to pixels.
	PixelScale float32
}

// NewCamera derives frustum planes, eye position and error scale.
func NewCamera(view, projection math.Mat4, viewportHeight float32) Camera {
	return Camera{
		Frustum:     math.FrustumFromMatrix(projection.Mul(view)),
		Eye:         view.EyePosition(),
		Perspective: projection.IsPerspective(),
		PixelScale:  math32.Abs(projection[5]) * viewportHeight / 2,
	}
}

// ProjectedError returns the screen-space size in pixels of an object-space
// error bounded by sphere s.
func (c Camera) ProjectedError(err float32, s math.Sphere) float32 {
	if err >= meshlet.NoParent {
		return math32.Inf(1)
	}
	if !c.Perspective {
		return err * c.PixelScale
	}
	d := c.Eye.Distance(s.Center) - s.Radius
	if d < minDistance {
		d = minDistance
	}
	return err * c.PixelScale / d
}

// Selects reports whether m is the hierarchy level to draw: its own error
// fits the budget and its parent's does not. Along any path from a leaf to
// the root exactly one meshlet passes this test.
func (c Camera) Selects(m *meshlet.Meshlet, threshold float32) bool {
	return c.ProjectedError(m.Error, m.LODBounds) <= threshold &&
		c.ProjectedError(m.ParentError, m.ParentBounds) > threshold
}

// Cull picks, for every patch of surface, the coarsest hierarchy level whose
// projected error stays within the threshold, then drops meshlets outside
// the frustum.
func Cull(in Input) Output {
	start := time.Now()

	cam := NewCamera(in.View, in.Projection, in.ViewportHeight)
	visible := make([]int, 0, len(in.Meshlets)/2)
	for i := range in.Meshlets {
		m := &in.Meshlets[i]
		if !cam.Selects(m, in.ErrorThreshold) {
			continue
		}
		if !cam.Frustum.IntersectsSphere(m.BoundingSphere) {
			continue
		}
		visible = append(visible, m.ID)
	}

	return Output{
		VisibleMeshletIDs: visible,
		CulledCount:       len(in.Meshlets) - len(visible),
		CullTime:          time.Since(start),
	}
}

// Package camera provides the viewpoints used to drive meshlet culling.
package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	// Center point to orbit around
	Center math.Vec3

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Projection
	FovY float32 // radians
	Near float32
	Far  float32

	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        10.0,
		RotationX:       0.0,
		RotationY:       0.0,
		MinDistance:     0.01,
		MaxDistance:     1e6,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		FovY:            mgl32.DegToRad(60),
		Near:            0.1,
		Far:             1e5,
		ZoomSensitivity: 0.1,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	x := c.Distance * math32.Cos(c.RotationX) * math32.Sin(c.RotationY)
	y := c.Distance * math32.Sin(c.RotationX)
	z := c.Distance * math32.Cos(c.RotationX) * math32.Cos(c.RotationY)

	return math.Vec3{
		X: c.Center.X + x,
		Y: c.Center.Y + y,
		Z: c.Center.Z + z,
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.Mat4(mgl32.LookAtV(c.Position().GL(), c.Center.GL(), mgl32.Vec3{0, 1, 0}))
}

// ProjectionMatrix returns a perspective projection for the given aspect
// ratio.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	return math.Mat4(mgl32.Perspective(c.FovY, aspect, c.Near, c.Far))
}

// Orbit sets yaw and pitch, clamping pitch to the allowed range.
func (c *OrbitCamera) Orbit(yaw, pitch float32) {
	c.RotationY = yaw
	c.RotationX = clamp(pitch, c.MinPitch, c.MaxPitch)
}

// SetDistance moves the camera along its view ray, within the limits.
func (c *OrbitCamera) SetDistance(d float32) {
	c.Distance = clamp(d, c.MinDistance, c.MaxDistance)
}

// HandleZoom scales the distance by a scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.SetDistance(c.Distance - delta*c.Distance*c.ZoomSensitivity)
}

// FitToBounds centers the camera on b and backs off until the bounding
// sphere of b fills the vertical field of view.
func (c *OrbitCamera) FitToBounds(b model.Bounds) {
	c.Center = b.Center()

	s := b.Size()
	radius := 0.5 * math32.Sqrt(s[0]*s[0]+s[1]*s[1]+s[2]*s[2])
	if radius == 0 {
		radius = 1
	}
	c.SetDistance(radius / math32.Sin(c.FovY/2))
	if c.Far < c.Distance+radius {
		c.Far = (c.Distance + radius) * 2
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

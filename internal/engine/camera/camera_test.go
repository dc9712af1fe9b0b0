package camera

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

func TestPositionDistance(t *testing.T) {
	tests := []struct {
		name       string
		yaw, pitch float32
	}{
		{"front", 0, 0},
		{"side", 1.2, 0},
		{"above", 0.3, 1.0},
		{"below", -2, -0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOrbitCamera()
			c.Center = math.Vec3{X: 1, Y: 2, Z: 3}
			c.SetDistance(25)
			c.Orbit(tt.yaw, tt.pitch)

			d := c.Position().Sub(c.Center).Length()
			if math32.Abs(d-25) > 1e-3 {
				t.Errorf("expected distance 25, got %f", d)
			}
		})
	}
}

func TestViewMatrixEye(t *testing.T) {
	c := NewOrbitCamera()
	c.Center = math.Vec3{X: 0, Y: 1, Z: 0}
	c.SetDistance(10)
	c.Orbit(0.5, 0.25)

	eye := c.ViewMatrix().EyePosition()
	pos := c.Position()
	if eye.Sub(pos).Length() > 1e-3 {
		t.Errorf("view matrix eye %+v, camera position %+v", eye, pos)
	}
	if !c.ProjectionMatrix(16.0 / 9.0).IsPerspective() {
		t.Error("expected a perspective projection")
	}
}

func TestOrbitClampsPitch(t *testing.T) {
	c := NewOrbitCamera()
	c.Orbit(0, 3)
	if c.RotationX != c.MaxPitch {
		t.Errorf("expected pitch clamped to %f, got %f", c.MaxPitch, c.RotationX)
	}
	c.Orbit(0, -3)
	if c.RotationX != c.MinPitch {
		t.Errorf("expected pitch clamped to %f, got %f", c.MinPitch, c.RotationX)
	}
}

func TestHandleZoom(t *testing.T) {
	c := NewOrbitCamera()
	c.SetDistance(100)
	c.HandleZoom(1)
	if c.Distance >= 100 {
		t.Errorf("zooming in should reduce distance, got %f", c.Distance)
	}

	c.MinDistance = 50
	for i := 0; i < 100; i++ {
		c.HandleZoom(1)
	}
	if c.Distance != 50 {
		t.Errorf("expected distance clamped to 50, got %f", c.Distance)
	}
}

func TestFitToBounds(t *testing.T) {
	b := model.NewBox(4, 1).Bounds()

	c := NewOrbitCamera()
	c.FitToBounds(b)

	if c.Center.Length() > 1e-5 {
		t.Errorf("expected center at origin, got %+v", c.Center)
	}
	radius := float32(2) * math32.Sqrt(3)
	if c.Distance <= radius {
		t.Errorf("camera at %f is inside the bounding sphere (r=%f)", c.Distance, radius)
	}
	if c.Far < c.Distance+radius {
		t.Errorf("far plane %f clips the mesh", c.Far)
	}
}

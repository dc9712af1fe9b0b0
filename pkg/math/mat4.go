package math

import "github.com/go-gl/mathgl/mgl32"

// Mat4 is a 4x4 matrix in column-major order (OpenGL compatible), layout
// compatible with mgl32.Mat4 and with the matrices carried by cull requests.
//
//	[m0 m4 m8  m12]
//	[m1 m5 m9  m13]
//	[m2 m6 m10 m14]
//	[m3 m7 m11 m15]
type Mat4 [16]float32

// Identity returns an identity matrix.
func Identity() Mat4 {
	return Mat4(mgl32.Ident4())
}

// Perspective returns a perspective projection matrix.
// fovY is in radians, aspect is width/height.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	return Mat4(mgl32.Perspective(fovY, aspect, near, far))
}

// Ortho returns an orthographic projection matrix.
func Ortho(left, right, bottom, top, near, far float32) Mat4 {
	return Mat4(mgl32.Ortho(left, right, bottom, top, near, far))
}

// LookAt returns a view matrix looking from eye to center with up direction.
func LookAt(eye, center, up Vec3) Mat4 {
	return Mat4(mgl32.LookAtV(eye.GL(), center.GL(), up.GL()))
}

// IsPerspective reports whether m is a perspective projection
// (w depends on z) rather than an orthographic one.
func (m Mat4) IsPerspective() bool {
	return m[11] != 0
}

// EyePosition returns the camera position encoded by a view matrix.
// A singular matrix yields the origin.
func (m Mat4) EyePosition() Vec3 {
	inv := mgl32.Mat4(m).Inv()
	return Vec3{inv[12], inv[13], inv[14]}
}

// Mul multiplies this matrix by another (m * other).
func (m Mat4) Mul(other Mat4) Mat4 {
	return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(other)))
}

// Row returns row i of the matrix.
func (m Mat4) Row(i int) Vec4 {
	return Vec4(mgl32.Mat4(m).Row(i))
}

// Vec4 is a 4-component vector.
type Vec4 [4]float32

// Add returns v + o.
func (v Vec4) Add(o Vec4) Vec4 {
	return Vec4(mgl32.Vec4(v).Add(mgl32.Vec4(o)))
}

// Sub returns v - o.
func (v Vec4) Sub(o Vec4) Vec4 {
	return Vec4(mgl32.Vec4(v).Sub(mgl32.Vec4(o)))
}

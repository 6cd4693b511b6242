// Package xmath holds the small float32 vector, quaternion and transform
// types used by the world hierarchy.
package xmath

import "math"

// Epsilon is the default tolerance for approximate comparisons.
const Epsilon = 1e-4

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// V3 builds a Vec3.
func V3(x, y, z float32) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func Zero3() Vec3 { return Vec3{} }
func One3() Vec3  { return Vec3{1, 1, 1} }

func (v Vec3) Add(o Vec3) Vec3        { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3        { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Mul(s float32) Vec3     { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) CompMul(o Vec3) Vec3    { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }
func (v Vec3) Dot(o Vec3) float32     { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) LengthSquared() float32 { return v.Dot(v) }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.LengthSquared())))
}

// Normalized returns v scaled to unit length, or the zero vector.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Mul(1 / l)
}

// CompDiv divides component-wise. Zero components of o yield zero.
func (v Vec3) CompDiv(o Vec3) Vec3 {
	div := func(a, b float32) float32 {
		if b == 0 {
			return 0
		}
		return a / b
	}
	return Vec3{div(v.X, o.X), div(v.Y, o.Y), div(v.Z, o.Z)}
}

// ApproxEqual compares within eps per component.
func (v Vec3) ApproxEqual(o Vec3, eps float32) bool {
	return approx(v.X, o.X, eps) && approx(v.Y, o.Y, eps) && approx(v.Z, o.Z, eps)
}

// Quat is a rotation quaternion (X, Y, Z imaginary, W real).
type Quat struct {
	X, Y, Z, W float32
}

// IdentityQuat is the no-rotation quaternion.
func IdentityQuat() Quat { return Quat{W: 1} }

// QuatFromAxisAngle builds a rotation of angle radians around axis.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	a := axis.Normalized()
	half := float64(angle) * 0.5
	s := float32(math.Sin(half))
	return Quat{a.X * s, a.Y * s, a.Z * s, float32(math.Cos(half))}
}

// Mul returns q*o, applying o first.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quat) Conjugate() Quat { return Quat{-q.X, -q.Y, -q.Z, q.W} }

func (q Quat) Normalized() Quat {
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if l == 0 {
		return IdentityQuat()
	}
	inv := 1 / l
	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(u.Cross(t))
}

// ApproxEqual treats q and -q as the same rotation.
func (q Quat) ApproxEqual(o Quat, eps float32) bool {
	same := approx(q.X, o.X, eps) && approx(q.Y, o.Y, eps) && approx(q.Z, o.Z, eps) && approx(q.W, o.W, eps)
	neg := approx(q.X, -o.X, eps) && approx(q.Y, -o.Y, eps) && approx(q.Z, -o.Z, eps) && approx(q.W, -o.W, eps)
	return same || neg
}

// Transform is a similarity transform without shear: scale, then rotate,
// then translate.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: IdentityQuat(), Scale: One3()}
}

// Compose returns parent ⊗ local: local expressed in parent's space.
func Compose(parent, local Transform) Transform {
	return Transform{
		Position: parent.Position.Add(parent.Rotation.Rotate(parent.Scale.CompMul(local.Position))),
		Rotation: parent.Rotation.Mul(local.Rotation),
		Scale:    parent.Scale.CompMul(local.Scale),
	}
}

// Relative returns local such that Compose(parent, local) == global.
func Relative(parent, global Transform) Transform {
	inv := parent.Rotation.Conjugate()
	return Transform{
		Position: inv.Rotate(global.Position.Sub(parent.Position)).CompDiv(parent.Scale),
		Rotation: inv.Mul(global.Rotation),
		Scale:    global.Scale.CompDiv(parent.Scale),
	}
}

// TransformPoint maps p from local into global space.
func (t Transform) TransformPoint(p Vec3) Vec3 {
	return t.Position.Add(t.Rotation.Rotate(t.Scale.CompMul(p)))
}

func (t Transform) ApproxEqual(o Transform, eps float32) bool {
	return t.Position.ApproxEqual(o.Position, eps) &&
		t.Rotation.ApproxEqual(o.Rotation, eps) &&
		t.Scale.ApproxEqual(o.Scale, eps)
}

func approx(a, b, eps float32) bool {
	d := a - b
	return d <= eps && d >= -eps
}

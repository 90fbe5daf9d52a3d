package replica

import "math"

// largeValue disables snap detection when used as a threshold.
const largeValue = math.MaxFloat32

// Vec3 is a three-component vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + rhs.
func (v Vec3) Add(rhs Vec3) Vec3 { return Vec3{v.X + rhs.X, v.Y + rhs.Y, v.Z + rhs.Z} }

// Sub returns v - rhs.
func (v Vec3) Sub(rhs Vec3) Vec3 { return Vec3{v.X - rhs.X, v.Y - rhs.Y, v.Z - rhs.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// LengthSquared returns the squared euclidean length.
func (v Vec3) LengthSquared() float64 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// Length returns the euclidean length.
func (v Vec3) Length() float64 { return math.Sqrt(v.LengthSquared()) }

// LerpVec3 linearly blends two vectors.
func LerpVec3(lhs, rhs Vec3, blend float64) Vec3 {
	return Vec3{
		X: Lerp(lhs.X, rhs.X, blend),
		Y: Lerp(lhs.Y, rhs.Y, blend),
		Z: Lerp(lhs.Z, rhs.Z, blend),
	}
}

// Lerp linearly blends two scalars.
func Lerp(lhs, rhs, blend float64) float64 { return lhs + (rhs-lhs)*blend }

// Quat is a rotation quaternion. The zero value is not a valid rotation; use
// QuatIdentity for "no rotation".
type Quat struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// QuatIdentity is the identity rotation.
var QuatIdentity = Quat{W: 1}

// Dot returns the four-component dot product.
func (q Quat) Dot(rhs Quat) float64 {
	return q.W*rhs.W + q.X*rhs.X + q.Y*rhs.Y + q.Z*rhs.Z
}

// Mul composes two rotations: q then rhs applied in rhs-first order.
func (q Quat) Mul(rhs Quat) Quat {
	return Quat{
		W: q.W*rhs.W - q.X*rhs.X - q.Y*rhs.Y - q.Z*rhs.Z,
		X: q.W*rhs.X + q.X*rhs.W + q.Y*rhs.Z - q.Z*rhs.Y,
		Y: q.W*rhs.Y - q.X*rhs.Z + q.Y*rhs.W + q.Z*rhs.X,
		Z: q.W*rhs.Z + q.X*rhs.Y - q.Y*rhs.X + q.Z*rhs.W,
	}
}

// Inverse returns the inverse rotation. Assumes q is normalized.
func (q Quat) Inverse() Quat { return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z} }

// Normalized returns q scaled to unit length, or identity if degenerate.
func (q Quat) Normalized() Quat {
	lenSq := q.Dot(q)
	if lenSq <= 1e-12 {
		return QuatIdentity
	}
	inv := 1 / math.Sqrt(lenSq)
	return Quat{W: q.W * inv, X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv}
}

// SlerpQuat spherically blends two rotations along the shortest arc.
func SlerpQuat(lhs, rhs Quat, blend float64) Quat {
	cosAngle := lhs.Dot(rhs)
	if cosAngle < 0 {
		cosAngle = -cosAngle
		rhs = Quat{W: -rhs.W, X: -rhs.X, Y: -rhs.Y, Z: -rhs.Z}
	}

	var t0, t1 float64
	if cosAngle > 0.9995 {
		// Angles close enough that linear blending is accurate and stable.
		t0 = 1 - blend
		t1 = blend
	} else {
		angle := math.Acos(cosAngle)
		sinAngle := math.Sin(angle)
		t0 = math.Sin((1-blend)*angle) / sinAngle
		t1 = math.Sin(blend*angle) / sinAngle
	}

	return Quat{
		W: lhs.W*t0 + rhs.W*t1,
		X: lhs.X*t0 + rhs.X*t1,
		Y: lhs.Y*t0 + rhs.Y*t1,
		Z: lhs.Z*t0 + rhs.Z*t1,
	}.Normalized()
}

// QuatFromAngularVelocity converts an angular velocity integrated over time
// (axis scaled by angle in radians) into a rotation.
func QuatFromAngularVelocity(v Vec3) Quat {
	angle := v.Length()
	if angle < 1e-9 {
		return QuatIdentity
	}
	half := angle / 2
	s := math.Sin(half) / angle
	return Quat{W: math.Cos(half), X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// ExpSmoothing converts a smoothing time constant and a time step into a
// blend factor for exponential decay toward a target.
func ExpSmoothing(constant, timeStep float64) float64 {
	if constant <= 0 || timeStep <= 0 {
		return 0
	}
	return 1 - math.Exp(-constant*timeStep)
}

// Clamp limits value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

package pose

import "math"

// Quaternion is a rotation in x, y, z, w component order.
type Quaternion struct {
	X, Y, Z, W float32
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// FromAxisAngle builds a quaternion rotating angle radians about axis.
// The axis must be unit length.
func FromAxisAngle(axis Vec3, angle float32) Quaternion {
	half := float64(angle) / 2
	s := float32(math.Sin(half))
	return Quaternion{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: float32(math.Cos(half)),
	}
}

// Inverse returns the inverse rotation. Valid for unit quaternions.
func (q Quaternion) Inverse() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Mul returns the composed rotation q then p applied as p*q.
func (p Quaternion) Mul(q Quaternion) Quaternion {
	return Quaternion{
		X: p.W*q.X + p.X*q.W + p.Y*q.Z - p.Z*q.Y,
		Y: p.W*q.Y - p.X*q.Z + p.Y*q.W + p.Z*q.X,
		Z: p.W*q.Z + p.X*q.Y - p.Y*q.X + p.Z*q.W,
		W: p.W*q.W - p.X*q.X - p.Y*q.Y - p.Z*q.Z,
	}
}

// Norm returns the quaternion magnitude.
func (q Quaternion) Norm() float32 {
	return float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
}

// Normalize returns q scaled to unit length. The zero quaternion
// normalizes to identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return Identity()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// RotateVec rotates v by q using the expanded q*v*q^-1 form with two
// cross products, which avoids building the full rotation matrix.
func (q Quaternion) RotateVec(v Vec3) Vec3 {
	r := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	rv := r.Cross(v)
	rrv := r.Cross(rv)
	return Vec3{
		X: v.X + 2*(q.W*rv.X+rrv.X),
		Y: v.Y + 2*(q.W*rv.Y+rrv.Y),
		Z: v.Z + 2*(q.W*rv.Z+rrv.Z),
	}
}

// Vec3 is a point or direction in meters.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns a + b.
func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// Sub returns a - b.
func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// Cross returns the cross product a x b.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Len returns the vector magnitude.
func (a Vec3) Len() float32 {
	return float32(math.Sqrt(float64(a.X*a.X + a.Y*a.Y + a.Z*a.Z)))
}

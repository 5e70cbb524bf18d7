// pkg/core/pose.go
package core

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform from a local frame into world space.
// Rotation is a unit quaternion with Real holding the scalar part.
type Pose struct {
	Position r3.Vector
	Rotation quat.Number
}

// IdentityRotation is the quaternion for "no rotation".
var IdentityRotation = quat.Number{Real: 1}

// NewPose builds a pose, normalising the rotation. A zero quaternion becomes identity.
func NewPose(position r3.Vector, rotation quat.Number) Pose {
	return Pose{Position: position, Rotation: normalize(rotation)}
}

// Translation builds a pose with the given position and identity rotation.
func Translation(x, y, z float64) Pose {
	return Pose{Position: r3.Vector{X: x, Y: y, Z: z}, Rotation: IdentityRotation}
}

// Rotate applies the pose's rotation to v.
func (p Pose) Rotate(v r3.Vector) r3.Vector {
	q := normalize(p.Rotation)
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// Compose returns p·other: other is expressed in p's local frame and the
// result is that transform mapped into p's parent frame.
func (p Pose) Compose(other Pose) Pose {
	return Pose{
		Position: p.TransformPoint(other.Position),
		Rotation: normalize(quat.Mul(normalize(p.Rotation), normalize(other.Rotation))),
	}
}

// TransformPoint maps a point from p's local frame into its parent frame.
func (p Pose) TransformPoint(v r3.Vector) r3.Vector {
	return p.Position.Add(p.Rotate(v))
}

// Distance is the Euclidean distance between the two poses' positions.
func (p Pose) Distance(other Pose) float64 {
	return p.Position.Distance(other.Position)
}

// IsFinite reports whether every component of the pose is a finite number.
func (p Pose) IsFinite() bool {
	for _, v := range []float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return IdentityRotation
	}
	return quat.Scale(1/n, q)
}

package core

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
)

func aboutZ(deg float64) quat.Number {
	half := deg * math.Pi / 360
	return quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
}

func TestNewPose_NormalizesRotation(t *testing.T) {
	p := NewPose(r3.Vector{X: 1}, quat.Number{Real: 2})
	assert.Equal(t, IdentityRotation, p.Rotation)

	p = NewPose(r3.Vector{}, quat.Number{})
	assert.Equal(t, IdentityRotation, p.Rotation)

	p = NewPose(r3.Vector{}, quat.Number{Real: math.NaN()})
	assert.Equal(t, IdentityRotation, p.Rotation)
}

func TestPose_Rotate(t *testing.T) {
	p := NewPose(r3.Vector{}, aboutZ(90))
	v := p.Rotate(r3.Vector{X: 1})
	assert.InDelta(t, 0, v.X, 1e-12)
	assert.InDelta(t, 1, v.Y, 1e-12)
	assert.InDelta(t, 0, v.Z, 1e-12)
}

func TestPose_ComposeIdentity(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, aboutZ(30))
	got := p.Compose(Translation(0, 0, 0))
	assert.InDelta(t, 0, got.Distance(p), 1e-12)
}

func TestPose_ComposeOrder(t *testing.T) {
	center := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, aboutZ(90))
	got := center.Compose(Translation(0.10, -0.05, 0))

	// the offset is rotated by the center before being added
	assert.InDelta(t, 1.05, got.Position.X, 1e-12)
	assert.InDelta(t, 2.10, got.Position.Y, 1e-12)
	assert.InDelta(t, 3, got.Position.Z, 1e-12)
	assert.InDelta(t, center.Rotation.Real, got.Rotation.Real, 1e-12)
	assert.InDelta(t, center.Rotation.Kmag, got.Rotation.Kmag, 1e-12)
}

func TestPose_ComposeRotations(t *testing.T) {
	got := NewPose(r3.Vector{}, aboutZ(45)).Compose(NewPose(r3.Vector{}, aboutZ(45)))
	want := aboutZ(90)
	assert.InDelta(t, want.Real, got.Rotation.Real, 1e-12)
	assert.InDelta(t, want.Kmag, got.Rotation.Kmag, 1e-12)
}

func TestPose_TransformPoint(t *testing.T) {
	p := NewPose(r3.Vector{X: 10}, aboutZ(180))
	v := p.TransformPoint(r3.Vector{X: 1, Y: 1})
	assert.InDelta(t, 9, v.X, 1e-12)
	assert.InDelta(t, -1, v.Y, 1e-12)
}

func TestPose_Distance(t *testing.T) {
	a := Translation(0, 0, 0)
	b := NewPose(r3.Vector{X: 3, Y: 4}, aboutZ(77))
	assert.InDelta(t, 5, a.Distance(b), 1e-12)
	assert.InDelta(t, 5, b.Distance(a), 1e-12)
}

func TestPose_IsFinite(t *testing.T) {
	assert.True(t, Translation(1, 2, 3).IsFinite())
	assert.False(t, Translation(math.Inf(1), 0, 0).IsFinite())
	assert.False(t, Pose{Position: r3.Vector{}, Rotation: quat.Number{Real: math.NaN()}}.IsFinite())
}

func TestIsFullyTracked(t *testing.T) {
	assert.True(t, IsFullyTracked(StateTracking, MethodFullTracking))
	assert.False(t, IsFullyTracked(StateTracking, MethodLastKnownPose))
	assert.False(t, IsFullyTracked(StatePaused, MethodFullTracking))
	assert.False(t, IsFullyTracked(StateStopped, MethodFullTracking))

	obs := MarkerObservation{TrackingState: StateTracking, TrackingMethod: MethodFullTracking}
	assert.True(t, obs.FullyTracked())
}

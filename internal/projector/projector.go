// Package projector turns a marker calibration into a metric offset from the
// marker's visual center, in the marker's local plane.
//
// The calibration homography was authored against a fixed 640x480 reference
// capture. The pixel displacement of the point of interest from the reference
// center is expressed as a fraction of that frame and re-scaled by the marker's
// observed physical extent, so the same calibration works at any print size.
package projector

import (
	"errors"
	"fmt"
	"math"

	"github.com/geomarker/anchor/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// Reference capture the calibrations were authored against.
const (
	ReferenceWidth   = 640.0
	ReferenceHeight  = 480.0
	ReferenceCenterX = ReferenceWidth / 2
	ReferenceCenterY = ReferenceHeight / 2
)

// Epsilon is the smallest homogeneous denominator accepted before the
// projection is treated as degenerate.
const Epsilon = 1e-9

// ErrDegenerate is returned when the homography cannot be evaluated for the
// target coordinate.
var ErrDegenerate = errors.New("degenerate projection")

// Offset is a displacement in meters in the marker's local plane.
type Offset struct {
	X float64
	Y float64
}

// Pixel evaluates the calibration homography at the record's target and returns
// the reference-image pixel position, with the vertical axis inverted.
func Pixel(rec core.CalibrationRecord) (x, y float64, err error) {
	h := rec.Projection
	hm := mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
	v := mat.NewDense(1, 3, []float64{rec.Target.Lon, rec.Target.Lat, 1})

	var r mat.Dense
	r.Mul(v, hm)

	px, py, w := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	if math.Abs(w) < Epsilon || math.IsNaN(w) {
		return 0, 0, fmt.Errorf("%w: marker %d homogeneous w=%g", ErrDegenerate, rec.MarkerID, w)
	}

	x = px / w
	y = -(py / w)
	if !finite(x) || !finite(y) {
		return 0, 0, fmt.Errorf("%w: marker %d pixel (%g, %g)", ErrDegenerate, rec.MarkerID, x, y)
	}
	return x, y, nil
}

// Project returns the metric offset of the record's point of interest from the
// marker center, given the marker's current physical extent in meters.
// The result depends only on its inputs.
func Project(rec core.CalibrationRecord, extentWidth, extentHeight float64) (Offset, error) {
	pixelX, pixelY, err := Pixel(rec)
	if err != nil {
		return Offset{}, err
	}

	dX := ReferenceCenterX - pixelX
	dY := ReferenceCenterY - pixelY

	// percent of the reference frame, divided by ten
	fracX := dX / (ReferenceWidth / 10)
	fracY := dY / (ReferenceHeight / 10)

	off := Offset{
		X: -(fracX * extentWidth) / 100,
		Y: (fracY * extentHeight) / 100,
	}
	if !finite(off.X) || !finite(off.Y) {
		return Offset{}, fmt.Errorf("%w: marker %d offset (%g, %g)", ErrDegenerate, rec.MarkerID, off.X, off.Y)
	}
	return off, nil
}

// Pose returns the offset as a local transform with identity rotation.
func (o Offset) Pose() core.Pose {
	return core.Translation(o.X, o.Y, 0)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

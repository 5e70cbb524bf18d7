// Package classifier normalizes raw per-frame marker reports from the tracking
// bridge into core.MarkerObservation values. It is a pure mapping: nothing here
// touches calibration or pose state.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/geomarker/anchor/pkg/core"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// ErrMalformed is returned for observations that must not reach the pipeline.
var ErrMalformed = errors.New("malformed observation")

// RawObservation is a marker report as delivered by the tracking bridge.
// Rotation is a quaternion in x, y, z, w order.
type RawObservation struct {
	Index          int        `json:"index"`
	TrackingState  string     `json:"trackingState"`
	TrackingMethod string     `json:"trackingMethod"`
	ExtentX        float64    `json:"extentX"`
	ExtentZ        float64    `json:"extentZ"`
	Translation    [3]float64 `json:"translation"`
	Rotation       [4]float64 `json:"rotation"`
}

// State maps a tracking-state name onto one of the four states.
// Unknown names are NotTracking.
func State(name string) core.TrackingState {
	switch normalize(name) {
	case "TRACKING":
		return core.StateTracking
	case "PAUSED":
		return core.StatePaused
	case "STOPPED":
		return core.StateStopped
	default:
		return core.StateNotTracking
	}
}

// Method maps a tracking-method name onto one of the three methods.
// Unknown names are NotTracking.
func Method(name string) core.TrackingMethod {
	switch normalize(name) {
	case "FULL_TRACKING":
		return core.MethodFullTracking
	case "LAST_KNOWN_POSE":
		return core.MethodLastKnownPose
	default:
		return core.MethodNotTracking
	}
}

// normalize accepts ARCore enum names as well as the snake_case core values.
func normalize(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

// Classify validates raw and returns the normalized observation. Id, pose and
// extent pass through unchanged.
func Classify(raw RawObservation) (core.MarkerObservation, error) {
	if raw.Index < 0 {
		return core.MarkerObservation{}, fmt.Errorf("%w: negative marker index %d", ErrMalformed, raw.Index)
	}
	if !finite(raw.ExtentX) || !finite(raw.ExtentZ) || raw.ExtentX < 0 || raw.ExtentZ < 0 {
		return core.MarkerObservation{}, fmt.Errorf("%w: marker %d extent %vx%v", ErrMalformed, raw.Index, raw.ExtentX, raw.ExtentZ)
	}
	for _, v := range raw.Translation {
		if !finite(v) {
			return core.MarkerObservation{}, fmt.Errorf("%w: marker %d translation is not finite", ErrMalformed, raw.Index)
		}
	}
	for _, v := range raw.Rotation {
		if !finite(v) {
			return core.MarkerObservation{}, fmt.Errorf("%w: marker %d rotation is not finite", ErrMalformed, raw.Index)
		}
	}

	pose := core.NewPose(
		r3.Vector{X: raw.Translation[0], Y: raw.Translation[1], Z: raw.Translation[2]},
		quat.Number{Real: raw.Rotation[3], Imag: raw.Rotation[0], Jmag: raw.Rotation[1], Kmag: raw.Rotation[2]},
	)

	return core.MarkerObservation{
		ID:             raw.Index,
		TrackingState:  State(raw.TrackingState),
		TrackingMethod: Method(raw.TrackingMethod),
		ExtentWidth:    raw.ExtentX,
		ExtentHeight:   raw.ExtentZ,
		CenterPose:     pose,
	}, nil
}

// Rejected pairs a raw observation's position in the frame with its error.
type Rejected struct {
	Position int
	Index    int
	Err      error
}

// ClassifyAll classifies a whole frame, keeping input order. Malformed
// observations are reported and dropped; the rest are returned.
func ClassifyAll(raws []RawObservation) ([]core.MarkerObservation, []Rejected) {
	observations := make([]core.MarkerObservation, 0, len(raws))
	var rejected []Rejected
	for i, raw := range raws {
		obs, err := Classify(raw)
		if err != nil {
			rejected = append(rejected, Rejected{Position: i, Index: raw.Index, Err: err})
			continue
		}
		observations = append(observations, obs)
	}
	return observations, rejected
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

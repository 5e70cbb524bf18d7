// Package stabilizer decides, one marker at a time, whether a freshly projected
// pose should replace the marker's stored anchor.
//
// The rule is a single-sample hysteresis on displacement: a fully tracked
// marker with no anchor gets one, an anchored marker is moved only when the
// candidate lies further than Threshold from the stored pose, and any marker
// that stops being fully tracked loses its anchor. Paused markers are left
// alone.
package stabilizer

import (
	"fmt"

	"github.com/geomarker/anchor/internal/projector"
	"github.com/geomarker/anchor/pkg/core"
)

// DefaultThreshold is the displacement, in meters, below which anchor updates
// are suppressed.
const DefaultThreshold = 0.03

// Action is the registry change a Decision asks for.
type Action string

const (
	ActionNone    Action = "none"
	ActionCreate  Action = "create"
	ActionReplace Action = "replace"
	ActionKeep    Action = "keep"
	ActionRemove  Action = "remove"
)

// Decision is the outcome of one Decide call.
type Decision struct {
	MarkerID     int
	Action       Action
	Candidate    core.Pose // set for create, replace and keep
	Displacement float64   // set for replace and keep
	Notice       *core.Notice
}

// Writer is the part of the anchor registry the stabilizer mutates.
type Writer interface {
	Upsert(id int, pose core.Pose, frame uint64) core.AnchorState
	Remove(id int) bool
}

// Stabilizer holds the hysteresis threshold.
type Stabilizer struct {
	Threshold float64
}

// New returns a Stabilizer. A non-positive threshold selects DefaultThreshold.
func New(threshold float64) *Stabilizer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Stabilizer{Threshold: threshold}
}

// CandidatePose applies offset in the marker's local frame and maps the result
// into world space through the marker's center pose.
func CandidatePose(center core.Pose, offset projector.Offset) core.Pose {
	return center.Compose(offset.Pose())
}

// Decide computes the registry change for one observation. offset is only read
// when the observation is fully tracked. current is the stored anchor, or nil.
func (s *Stabilizer) Decide(obs core.MarkerObservation, offset projector.Offset, current *core.AnchorState) Decision {
	d := Decision{MarkerID: obs.ID, Action: ActionNone}

	switch {
	case obs.TrackingState == core.StatePaused:
		d.Notice = &core.Notice{
			MarkerID: obs.ID,
			Kind:     core.NoticeDetected,
			Text:     fmt.Sprintf("Detected image %d", obs.ID),
		}
		return d

	case !obs.FullyTracked():
		d.Action = ActionRemove
		return d
	}

	d.Candidate = CandidatePose(obs.CenterPose, offset)
	if current == nil {
		d.Action = ActionCreate
		return d
	}

	d.Displacement = current.Pose.Distance(d.Candidate)
	if d.Displacement > s.Threshold {
		d.Action = ActionReplace
	} else {
		d.Action = ActionKeep
	}
	return d
}

// Apply writes the decision into the registry and reports whether anything
// changed.
func Apply(w Writer, d Decision, frame uint64) bool {
	switch d.Action {
	case ActionCreate, ActionReplace:
		w.Upsert(d.MarkerID, d.Candidate, frame)
		return true
	case ActionRemove:
		return w.Remove(d.MarkerID)
	default:
		return false
	}
}

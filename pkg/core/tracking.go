// pkg/core/tracking.go
package core

// TrackingState reports whether a marker is currently being visually tracked.
type TrackingState string

const (
	StateNotTracking TrackingState = "not_tracking"
	StatePaused      TrackingState = "paused"
	StateTracking    TrackingState = "tracking"
	StateStopped     TrackingState = "stopped"
)

// TrackingMethod reports the quality of the pose supplied for a marker.
type TrackingMethod string

const (
	MethodNotTracking   TrackingMethod = "not_tracking"
	MethodLastKnownPose TrackingMethod = "last_known_pose"
	MethodFullTracking  TrackingMethod = "full_tracking"
)

// IsFullyTracked reports whether the pair qualifies a marker for anchoring and drawing.
func IsFullyTracked(state TrackingState, method TrackingMethod) bool {
	return state == StateTracking && method == MethodFullTracking
}

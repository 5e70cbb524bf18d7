// pkg/core/marker.go
package core

// MarkerObservation is one classified marker report for a single frame.
type MarkerObservation struct {
	ID             int
	TrackingState  TrackingState
	TrackingMethod TrackingMethod
	ExtentWidth    float64 // meters
	ExtentHeight   float64 // meters
	CenterPose     Pose
}

// FullyTracked reports whether the observation is Tracking with FullTracking.
func (o MarkerObservation) FullyTracked() bool {
	return IsFullyTracked(o.TrackingState, o.TrackingMethod)
}

// Coordinate is a geodetic position in decimal degrees (WGS84).
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// CalibrationRecord maps a geodetic coordinate into a marker's reference image.
// Projection is applied as the row vector [lon lat 1] times the matrix.
type CalibrationRecord struct {
	MarkerID   int
	Projection [3][3]float64
	Target     Coordinate
}

// AnchorState is the last stable anchor pose held for a marker.
type AnchorState struct {
	MarkerID     int
	Pose         Pose
	CreatedFrame uint64
	UpdatedFrame uint64
}

// RenderItem is one anchor handed to the renderer for the current frame.
type RenderItem struct {
	MarkerID int
	Pose     Pose
}

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	// NoticeDetected is raised when a marker has been detected but is not yet tracked.
	NoticeDetected NoticeKind = "detected"
)

// Notice is an informational message for the UI layer. It never affects anchors.
type Notice struct {
	MarkerID int        `json:"markerId"`
	Kind     NoticeKind `json:"kind"`
	Text     string     `json:"text"`
}

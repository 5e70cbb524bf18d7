// Package trace keeps an in-memory log of what the engine did in each frame
// and exports it as JSON once a replay ends.
package trace

import (
	"errors"
	"sync"
	"time"

	"github.com/geomarker/anchor/internal/config"
	"github.com/geomarker/anchor/internal/engine"
	"github.com/geomarker/anchor/pkg/core"
)

// Targets resolves a marker's calibration, used to attach its geographic
// point of interest to exported anchors.
type Targets interface {
	Lookup(id int) (core.CalibrationRecord, bool)
}

// Recorder accumulates frame results and notices for one replay session.
type Recorder struct {
	mu sync.Mutex

	cfg     config.TraceConfig
	session string
	start   time.Time
	targets Targets

	frames  []FrameRecord
	notices []NoticeRecord
	anchors []core.AnchorState

	lastExportPath string
}

// New creates a Recorder. targets may be nil.
func New(cfg config.TraceConfig, session string, start time.Time, targets Targets) *Recorder {
	return &Recorder{
		cfg:     cfg,
		session: session,
		start:   start,
		targets: targets,
	}
}

// RecordFrame appends one frame result.
func (r *Recorder) RecordFrame(res engine.FrameResult) {
	rec := FrameRecord{
		Frame:     res.Frame,
		Items:     make([]ItemJSON, 0, len(res.Items)),
		Decisions: make([]DecisionJSON, 0, len(res.Decisions)),
		Skipped:   make([]SkipJSON, 0, len(res.Skipped)),
		Evicted:   append([]int{}, res.Evicted...),
	}
	for _, it := range res.Items {
		rec.Items = append(rec.Items, ItemJSON{MarkerID: it.MarkerID, Pose: poseJSON(it.Pose)})
	}
	for _, d := range res.Decisions {
		rec.Decisions = append(rec.Decisions, DecisionJSON{
			MarkerID:     d.MarkerID,
			Action:       string(d.Action),
			Displacement: d.Displacement,
		})
	}
	for _, s := range res.Skipped {
		sj := SkipJSON{MarkerID: s.MarkerID, Reason: string(s.Reason)}
		if s.Err != nil {
			sj.Error = s.Err.Error()
		}
		rec.Skipped = append(rec.Skipped, sj)
	}

	r.mu.Lock()
	r.frames = append(r.frames, rec)
	r.mu.Unlock()
}

// RecordNotice appends a notice raised during frame.
func (r *Recorder) RecordNotice(frame uint64, n core.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, NoticeRecord{
		Frame:    frame,
		MarkerID: n.MarkerID,
		Kind:     string(n.Kind),
		Text:     n.Text,
	})
}

// SetAnchors stores the registry snapshot written as the export's final state.
func (r *Recorder) SetAnchors(anchors []core.AnchorState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anchors = append([]core.AnchorState(nil), anchors...)
}

// Frames returns the number of recorded frames.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// LastExportPath returns the path written by the last successful Export.
func (r *Recorder) LastExportPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastExportPath
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.notices = nil
	r.anchors = nil
}

var errNoSession = errors.New("trace: session name is required")

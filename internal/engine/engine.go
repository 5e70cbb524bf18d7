// Package engine runs the per-frame anchor pipeline: classify the frame's
// marker reports, project and stabilize each marker, then feed the renderer.
//
// ProcessFrame is frame-synchronous. Every observed marker is stabilized
// before the registry is read for drawing, so a frame's output never reflects
// a partially updated registry.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/geomarker/anchor/internal/classifier"
	"github.com/geomarker/anchor/internal/feeder"
	"github.com/geomarker/anchor/internal/projector"
	"github.com/geomarker/anchor/internal/registry"
	"github.com/geomarker/anchor/internal/stabilizer"
	"github.com/geomarker/anchor/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Calibrations is the read side of the calibration store.
type Calibrations interface {
	Lookup(id int) (core.CalibrationRecord, bool)
}

// SkipReason says why a marker was left out of a frame.
type SkipReason string

const (
	SkipMalformed    SkipReason = "malformed"
	SkipUncalibrated SkipReason = "uncalibrated"
	SkipDegenerate   SkipReason = "degenerate"
	SkipFault        SkipReason = "fault"
)

// Skip records a marker that produced no decision this frame.
type Skip struct {
	MarkerID int
	Reason   SkipReason
	Err      error
}

// FrameResult is everything one ProcessFrame call produced.
type FrameResult struct {
	Frame     uint64
	Items     []core.RenderItem
	Decisions []stabilizer.Decision
	Skipped   []Skip
	Evicted   []int
	Notices   []core.Notice
}

// Engine owns the anchor registry for one tracking session.
type Engine struct {
	mu sync.Mutex

	calibrations Calibrations
	registry     *registry.Registry
	stabilizer   *stabilizer.Stabilizer
	logger       Logger
	notifier     Notifier

	frame atomic.Uint64
	// latest classified observation per marker that holds an anchor
	latest map[int]core.MarkerObservation

	frames    metric.Int64Counter
	decisions metric.Int64Counter
	skipped   metric.Int64Counter
	evictions metric.Int64Counter
}

// New creates an Engine reading calibrations from cal.
func New(cal Calibrations, opts ...Option) (*Engine, error) {
	if cal == nil {
		return nil, fmt.Errorf("engine: calibrations are required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.meter == nil {
		o.meter = meter()
	}

	e := &Engine{
		calibrations: cal,
		registry:     registry.New(),
		stabilizer:   stabilizer.New(o.threshold),
		logger:       o.logger,
		notifier:     o.notifier,
		latest:       make(map[int]core.MarkerObservation),
	}
	if err := e.initMetrics(o.meter); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) initMetrics(m metric.Meter) error {
	var err error

	e.frames, err = m.Int64Counter(
		"anchor.frames.processed",
		metric.WithDescription("Total frames processed"),
	)
	if err != nil {
		return fmt.Errorf("creating frames counter: %w", err)
	}

	e.decisions, err = m.Int64Counter(
		"anchor.decisions",
		metric.WithDescription("Stabilizer decisions by action"),
	)
	if err != nil {
		return fmt.Errorf("creating decisions counter: %w", err)
	}

	e.skipped, err = m.Int64Counter(
		"anchor.markers.skipped",
		metric.WithDescription("Markers skipped by reason"),
	)
	if err != nil {
		return fmt.Errorf("creating skipped counter: %w", err)
	}

	e.evictions, err = m.Int64Counter(
		"anchor.registry.evictions",
		metric.WithDescription("Anchors evicted by the end-of-frame sweep"),
	)
	if err != nil {
		return fmt.Errorf("creating evictions counter: %w", err)
	}

	size, err := m.Int64ObservableGauge(
		"anchor.registry.size",
		metric.WithDescription("Current number of anchors"),
	)
	if err != nil {
		return fmt.Errorf("creating registry size gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(size, int64(e.registry.Len()))
			return nil
		},
		size,
	)
	if err != nil {
		return fmt.Errorf("registering registry size callback: %w", err)
	}

	return nil
}

// Threshold returns the hysteresis threshold in meters.
func (e *Engine) Threshold() float64 {
	return e.stabilizer.Threshold
}

// ProcessFrame runs the whole pipeline for one frame of raw observations and
// returns the anchors to draw. Only context cancellation is returned as an
// error; per-marker problems are reported in FrameResult.Skipped.
func (e *Engine) ProcessFrame(ctx context.Context, raws []classifier.RawObservation) (FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return FrameResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res := FrameResult{Frame: e.frame.Add(1)}

	observations, rejected := classifier.ClassifyAll(raws)
	for _, r := range rejected {
		e.skip(ctx, &res, Skip{MarkerID: r.Index, Reason: SkipMalformed, Err: r.Err})
	}

	faulted := make(map[int]bool)
	for _, obs := range observations {
		d, skip := e.processMarker(obs)
		if skip != nil {
			if skip.Reason == SkipFault {
				faulted[obs.ID] = true
			}
			e.skip(ctx, &res, *skip)
			continue
		}
		e.latest[obs.ID] = obs
		res.Decisions = append(res.Decisions, d)
		e.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(d.Action))))
		if d.Notice != nil {
			res.Notices = append(res.Notices, *d.Notice)
			e.notify(*d.Notice)
		}
	}

	res.Items = feeder.Feed(e.registry, observations)

	res.Evicted = e.sweep(faulted)
	if len(res.Evicted) > 0 {
		e.evictions.Add(ctx, int64(len(res.Evicted)))
		e.logger.Debug("evicted anchors", "frame", res.Frame, "markers", res.Evicted)
	}

	e.frames.Add(ctx, 1)
	return res, nil
}

// processMarker handles one observation. A panic is contained to this marker.
func (e *Engine) processMarker(obs core.MarkerObservation) (d stabilizer.Decision, skip *Skip) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("marker processing failed", "frame", e.frame.Load(), "marker", obs.ID, "panic", r)
			d = stabilizer.Decision{}
			skip = &Skip{MarkerID: obs.ID, Reason: SkipFault, Err: fmt.Errorf("marker %d: %v", obs.ID, r)}
		}
	}()

	rec, ok := e.calibrations.Lookup(obs.ID)
	if !ok {
		return d, &Skip{MarkerID: obs.ID, Reason: SkipUncalibrated, Err: fmt.Errorf("no calibration for marker %d", obs.ID)}
	}

	var offset projector.Offset
	if obs.FullyTracked() {
		var err error
		offset, err = projector.Project(rec, obs.ExtentWidth, obs.ExtentHeight)
		if err != nil {
			return d, &Skip{MarkerID: obs.ID, Reason: SkipDegenerate, Err: err}
		}
	}

	var current *core.AnchorState
	if a, ok := e.registry.Get(obs.ID); ok {
		current = &a
	}

	d = e.stabilizer.Decide(obs, offset, current)
	switch d.Action {
	case stabilizer.ActionCreate, stabilizer.ActionReplace, stabilizer.ActionKeep:
		if !d.Candidate.IsFinite() {
			return stabilizer.Decision{}, &Skip{MarkerID: obs.ID, Reason: SkipDegenerate, Err: fmt.Errorf("%w: marker %d candidate pose is not finite", projector.ErrDegenerate, obs.ID)}
		}
	}
	stabilizer.Apply(e.registry, d, e.frame.Load())
	return d, nil
}

// sweep evicts anchors whose latest observation is not FullTracking, plus any
// anchor whose marker faulted this frame. Ids are collected before removal.
func (e *Engine) sweep(faulted map[int]bool) []int {
	evicted := e.registry.RemoveWhere(func(a core.AnchorState) bool {
		if faulted[a.MarkerID] {
			return true
		}
		last, ok := e.latest[a.MarkerID]
		return ok && last.TrackingMethod != core.MethodFullTracking
	})

	for id := range e.latest {
		if _, ok := e.registry.Get(id); !ok {
			delete(e.latest, id)
		}
	}
	return evicted
}

// notify hands n to the notifier. A panicking notifier loses the notice but
// not the frame.
func (e *Engine) notify(n core.Notice) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notifier failed", "frame", e.frame.Load(), "marker", n.MarkerID, "panic", r)
		}
	}()
	e.notifier(n)
}

func (e *Engine) skip(ctx context.Context, res *FrameResult, s Skip) {
	res.Skipped = append(res.Skipped, s)
	e.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(s.Reason))))
	e.logger.Debug("marker skipped", "frame", e.frame.Load(), "marker", s.MarkerID, "reason", string(s.Reason), "error", s.Err)
}

// Frame returns the number of frames processed so far. It does not take the
// engine lock, so log handlers may call it while a frame is in progress.
func (e *Engine) Frame() uint64 {
	return e.frame.Load()
}

// Anchors returns a snapshot of every stored anchor ordered by marker id.
func (e *Engine) Anchors() []core.AnchorState {
	return e.registry.Entries()
}

// Anchor returns the stored anchor for one marker.
func (e *Engine) Anchor(id int) (core.AnchorState, bool) {
	return e.registry.Get(id)
}

// Reset discards every anchor, as at the end of a tracking session. The frame
// counter keeps running.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.Reset()
	e.latest = make(map[int]core.MarkerObservation)
	e.logger.Info("anchor registry reset", "frame", e.frame.Load())
}

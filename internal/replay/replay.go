// Package replay drives an engine from a JSON-lines recording. Each line is
// either a frame of raw marker observations or a control command; lines are
// routed through the dispatcher by command name.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/geomarker/anchor/internal/classifier"
	"github.com/geomarker/anchor/internal/dispatcher"
	"github.com/geomarker/anchor/internal/engine"
	"github.com/geomarker/anchor/internal/trace"
	"github.com/geomarker/anchor/pkg/core"
)

// Commands understood in a recording.
const (
	CommandFrame  = "frame"
	CommandReset  = "reset"
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandNotice = "notice"
)

// maxLineSize bounds one recording line; a frame with many markers can exceed
// bufio's 64KiB default.
const maxLineSize = 4 << 20

// Line is one decoded recording line. A line with no command is a frame.
type Line struct {
	Command string                      `json:"command,omitempty"`
	Frame   uint64                      `json:"frame,omitempty"`
	Markers []classifier.RawObservation `json:"markers,omitempty"`
}

// Stats summarizes a Run.
type Stats struct {
	Lines   int
	Frames  int
	Gated   int // frames dropped while paused
	Errors  int
	Notices int
}

// Session owns the engine, dispatcher and trace for one recording. A Session
// runs a single recording; Run closes the dispatcher when it returns.
type Session struct {
	engine     *engine.Engine
	dispatcher *dispatcher.Dispatcher
	recorder   *trace.Recorder
	logger     dispatcher.Logger

	paused  atomic.Bool
	notices atomic.Int64

	// ctx of the active Run, read by the frame handler
	ctx context.Context
}

// NewSession registers the replay handlers on d. The engine's notices should
// be routed back through Notify so they reach the notice handler.
func NewSession(e *engine.Engine, d *dispatcher.Dispatcher, rec *trace.Recorder, logger dispatcher.Logger) *Session {
	s := &Session{
		engine:     e,
		dispatcher: d,
		recorder:   rec,
		logger:     logger,
		ctx:        context.Background(),
	}

	d.Register(CommandFrame, s.handleFrame, dispatcher.Logged(), dispatcher.Gated(s.running))
	d.Register(CommandReset, s.handleReset, dispatcher.Logged())
	d.Register(CommandPause, s.handlePause, dispatcher.Logged())
	d.Register(CommandResume, s.handleResume, dispatcher.Logged())
	d.Register(CommandNotice, s.handleNotice, dispatcher.Buffered(64), dispatcher.Blocking())

	return s
}

// Notify forwards an engine notice to the notice handler. It is meant to be
// passed to engine.WithNotifier.
func (s *Session) Notify(n core.Notice) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("encoding notice", "marker", n.MarkerID, "error", err)
		return
	}
	if _, err := s.dispatcher.Dispatch(dispatcher.Event{Command: CommandNotice, Payload: payload}); err != nil {
		s.logger.Error("dispatching notice", "marker", n.MarkerID, "error", err)
	}
}

// Paused reports whether frames are currently being dropped.
func (s *Session) Paused() bool {
	return s.paused.Load()
}

// Run reads r line by line until EOF or ctx is done. Malformed lines are
// logged and counted; only read errors and cancellation end the run early.
// Queued notices are drained and the final anchors handed to the trace
// before Run returns.
func (s *Session) Run(ctx context.Context, r io.Reader) (Stats, error) {
	s.ctx = ctx
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var runErr error
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		stats.Lines++

		cmd, err := commandOf(raw)
		if err != nil {
			stats.Errors++
			s.logger.Error("malformed recording line", "line", lineNo, "error", err)
			continue
		}

		payload := append(json.RawMessage(nil), raw...)
		_, err = s.dispatcher.Dispatch(dispatcher.Event{Command: cmd, Payload: payload, Line: lineNo})
		switch {
		case errors.Is(err, dispatcher.ErrGated):
			stats.Gated++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			runErr = err
		case err != nil:
			stats.Errors++
		case cmd == CommandFrame:
			stats.Frames++
		}
		if runErr != nil {
			break
		}
	}
	if runErr == nil {
		if err := scanner.Err(); err != nil {
			runErr = fmt.Errorf("reading recording: %w", err)
		}
	}

	s.dispatcher.Close()
	stats.Notices = int(s.notices.Load())
	s.recorder.SetAnchors(s.engine.Anchors())

	return stats, runErr
}

func (s *Session) running() bool {
	return !s.paused.Load()
}

func (s *Session) handleFrame(e dispatcher.Event) (any, error) {
	var line Line
	if err := json.Unmarshal(e.Payload, &line); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	res, err := s.engine.ProcessFrame(s.ctx, line.Markers)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordFrame(res)
	for _, n := range res.Notices {
		s.recorder.RecordNotice(res.Frame, n)
	}
	return res, nil
}

func (s *Session) handleReset(e dispatcher.Event) (any, error) {
	s.engine.Reset()
	return nil, nil
}

func (s *Session) handlePause(e dispatcher.Event) (any, error) {
	s.paused.Store(true)
	return nil, nil
}

func (s *Session) handleResume(e dispatcher.Event) (any, error) {
	s.paused.Store(false)
	return nil, nil
}

func (s *Session) handleNotice(e dispatcher.Event) (any, error) {
	var n core.Notice
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return nil, fmt.Errorf("decoding notice: %w", err)
	}
	s.notices.Add(1)
	s.logger.Info(n.Text, "marker", n.MarkerID, "kind", string(n.Kind))
	return nil, nil
}

// commandOf returns the line's command, defaulting to frame.
func commandOf(raw []byte) (string, error) {
	var head struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", err
	}
	if head.Command == "" {
		return CommandFrame, nil
	}
	return head.Command, nil
}

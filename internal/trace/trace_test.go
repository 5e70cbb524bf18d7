package trace

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/geomarker/anchor/internal/config"
	"github.com/geomarker/anchor/internal/engine"
	"github.com/geomarker/anchor/internal/stabilizer"
	"github.com/geomarker/anchor/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type targets map[int]core.CalibrationRecord

func (t targets) Lookup(id int) (core.CalibrationRecord, bool) {
	rec, ok := t[id]
	return rec, ok
}

var sessionStart = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleResult() engine.FrameResult {
	return engine.FrameResult{
		Frame: 7,
		Items: []core.RenderItem{{MarkerID: 3, Pose: core.Translation(0.1, -0.05, 0)}},
		Decisions: []stabilizer.Decision{
			{MarkerID: 3, Action: stabilizer.ActionKeep, Displacement: 0.01},
		},
		Skipped: []engine.Skip{
			{MarkerID: 9, Reason: engine.SkipUncalibrated, Err: errors.New("no calibration for marker 9")},
		},
		Evicted: []int{4},
	}
}

func readExport(t *testing.T, path string, gzipped bool) Export {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var dec *json.Decoder
	if gzipped {
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gz.Close()
		dec = json.NewDecoder(gz)
	} else {
		dec = json.NewDecoder(f)
	}

	var export Export
	require.NoError(t, dec.Decode(&export))
	return export
}

func TestRecordFrame(t *testing.T) {
	r := New(config.TraceConfig{}, "session", sessionStart, nil)
	r.RecordFrame(sampleResult())
	require.Equal(t, 1, r.Frames())

	export, err := r.buildExport()
	require.NoError(t, err)
	require.Len(t, export.Frames, 1)

	f := export.Frames[0]
	assert.Equal(t, uint64(7), export.EndFrame)
	assert.Equal(t, uint64(7), f.Frame)
	require.Len(t, f.Items, 1)
	assert.Equal(t, [3]float64{0.1, -0.05, 0}, f.Items[0].Pose.Position)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, f.Items[0].Pose.Rotation)
	assert.Equal(t, []DecisionJSON{{MarkerID: 3, Action: "keep", Displacement: 0.01}}, f.Decisions)
	assert.Equal(t, []SkipJSON{{MarkerID: 9, Reason: "uncalibrated", Error: "no calibration for marker 9"}}, f.Skipped)
	assert.Equal(t, []int{4}, f.Evicted)
}

func TestExport_Gzip(t *testing.T) {
	dir := t.TempDir()
	r := New(config.TraceConfig{OutputDir: dir, CompressOutput: true}, "lake walk: day 1", sessionStart, nil)
	r.RecordFrame(sampleResult())
	r.RecordNotice(7, core.Notice{MarkerID: 5, Kind: core.NoticeDetected, Text: "Detected image 5"})

	path, err := r.Export()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lake_walk__day_1_20260301_093000.json.gz"), path)
	assert.Equal(t, path, r.LastExportPath())

	export := readExport(t, path, true)
	assert.Equal(t, "lake walk: day 1", export.Session)
	assert.Equal(t, "2026-03-01T09:30:00Z", export.StartTime)
	require.Len(t, export.Notices, 1)
	assert.Equal(t, "Detected image 5", export.Notices[0].Text)
	assert.Empty(t, export.Anchors)
}

func TestExport_PlainWithTargets(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	tg := targets{3: {MarkerID: 3, Target: core.Coordinate{Lat: 46.6711523, Lon: 12.990682}}}
	r := New(config.TraceConfig{OutputDir: dir}, "session", sessionStart, tg)

	r.SetAnchors([]core.AnchorState{
		{MarkerID: 3, Pose: core.Translation(1, 2, 3), CreatedFrame: 1, UpdatedFrame: 4},
		{MarkerID: 8, Pose: core.Translation(0, 0, 0), CreatedFrame: 2, UpdatedFrame: 2},
	})

	path, err := r.Export()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json"))

	export := readExport(t, path, false)
	require.Len(t, export.Anchors, 2)

	a := export.Anchors[0]
	assert.Equal(t, 3, a.MarkerID)
	assert.Equal(t, uint64(4), a.UpdatedFrame)
	assert.JSONEq(t, `{"type":"Point","coordinates":[12.990682,46.6711523]}`, string(a.Target))

	assert.Empty(t, export.Anchors[1].Target)
}

func TestExport_RequiresSession(t *testing.T) {
	r := New(config.TraceConfig{OutputDir: t.TempDir()}, "", sessionStart, nil)
	_, err := r.Export()
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	r := New(config.TraceConfig{}, "session", sessionStart, nil)
	r.RecordFrame(sampleResult())
	r.RecordNotice(1, core.Notice{MarkerID: 1})
	r.SetAnchors([]core.AnchorState{{MarkerID: 1}})

	r.Reset()
	export, err := r.buildExport()
	require.NoError(t, err)
	assert.Empty(t, export.Frames)
	assert.Empty(t, export.Notices)
	assert.Empty(t, export.Anchors)
	assert.Equal(t, uint64(0), export.EndFrame)
}

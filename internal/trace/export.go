package trace

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geomarker/anchor/internal/calibration"
	"github.com/geomarker/anchor/pkg/core"
)

// Export is the root JSON structure of a trace file.
type Export struct {
	Session   string         `json:"session"`
	StartTime string         `json:"startTime"`
	EndFrame  uint64         `json:"endFrame"`
	Frames    []FrameRecord  `json:"frames"`
	Notices   []NoticeRecord `json:"notices"`
	Anchors   []AnchorJSON   `json:"anchors"`
}

// FrameRecord is one frame's render output and decisions.
type FrameRecord struct {
	Frame     uint64         `json:"frame"`
	Items     []ItemJSON     `json:"items"`
	Decisions []DecisionJSON `json:"decisions"`
	Skipped   []SkipJSON     `json:"skipped"`
	Evicted   []int          `json:"evicted"`
}

// PoseJSON is a position plus a rotation quaternion in x, y, z, w order.
type PoseJSON struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
}

type ItemJSON struct {
	MarkerID int      `json:"markerId"`
	Pose     PoseJSON `json:"pose"`
}

type DecisionJSON struct {
	MarkerID     int     `json:"markerId"`
	Action       string  `json:"action"`
	Displacement float64 `json:"displacement,omitempty"`
}

type SkipJSON struct {
	MarkerID int    `json:"markerId"`
	Reason   string `json:"reason"`
	Error    string `json:"error,omitempty"`
}

type NoticeRecord struct {
	Frame    uint64 `json:"frame"`
	MarkerID int    `json:"markerId"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
}

// AnchorJSON is a stored anchor at the end of the replay. Target is a GeoJSON
// point when the marker's calibration is known.
type AnchorJSON struct {
	MarkerID     int             `json:"markerId"`
	Pose         PoseJSON        `json:"pose"`
	CreatedFrame uint64          `json:"createdFrame"`
	UpdatedFrame uint64          `json:"updatedFrame"`
	Target       json.RawMessage `json:"target,omitempty"`
}

func poseJSON(p core.Pose) PoseJSON {
	return PoseJSON{
		Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Rotation: [4]float64{p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag, p.Rotation.Real},
	}
}

// Export writes the trace to the configured output directory, gzipped when
// CompressOutput is set, and returns the file path.
func (r *Recorder) Export() (string, error) {
	if r.session == "" {
		return "", errNoSession
	}

	export, err := r.buildExport()
	if err != nil {
		return "", err
	}

	name := strings.NewReplacer(" ", "_", ":", "_", string(filepath.Separator), "_").Replace(r.session)
	timestamp := r.start.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	if r.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(r.cfg.OutputDir, filename)

	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if r.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.lastExportPath = outputPath
	r.mu.Unlock()
	return outputPath, nil
}

func (r *Recorder) buildExport() (Export, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	export := Export{
		Session:   r.session,
		StartTime: r.start.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Frames:    append([]FrameRecord{}, r.frames...),
		Notices:   append([]NoticeRecord{}, r.notices...),
		Anchors:   make([]AnchorJSON, 0, len(r.anchors)),
	}
	if n := len(r.frames); n > 0 {
		export.EndFrame = r.frames[n-1].Frame
	}

	for _, a := range r.anchors {
		aj := AnchorJSON{
			MarkerID:     a.MarkerID,
			Pose:         poseJSON(a.Pose),
			CreatedFrame: a.CreatedFrame,
			UpdatedFrame: a.UpdatedFrame,
		}
		if r.targets != nil {
			if rec, ok := r.targets.Lookup(a.MarkerID); ok {
				pt, err := calibration.TargetPoint(rec)
				if err != nil {
					return Export{}, fmt.Errorf("marker %d target: %w", a.MarkerID, err)
				}
				aj.Target, err = pt.MarshalJSON()
				if err != nil {
					return Export{}, fmt.Errorf("marker %d target: %w", a.MarkerID, err)
				}
			}
		}
		export.Anchors = append(export.Anchors, aj)
	}
	return export, nil
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(data); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return gz.Close()
}

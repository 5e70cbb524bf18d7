package calibration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/geomarker/anchor/assets"
	"github.com/geomarker/anchor/internal/geo"
	"github.com/geomarker/anchor/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoMarkers = `
markers:
  - id: 3
    target: {lat: 46.6711523, lon: 12.990682}
    matrix: [1, 0, 0, 0, 1, 0, 320, -240, 1]
  - id: 9
    target: {lat: -33.5, lon: 151.25}
    matrix: [2, 0, 0, 0, 2, 0, 0, 0, 1]
`

func TestYAMLSource_Records(t *testing.T) {
	records, err := NewYAMLBytes("inline", []byte(twoMarkers)).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 3, records[0].MarkerID)
	assert.Equal(t, core.Coordinate{Lat: 46.6711523, Lon: 12.990682}, records[0].Target)
	assert.Equal(t, [3][3]float64{{1, 0, 0}, {0, 1, 0}, {320, -240, 1}}, records[0].Projection)
	assert.Equal(t, 9, records[1].MarkerID)
}

func TestYAMLFile_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoMarkers), 0644))

	store, err := Load(context.Background(), NewYAMLFile(path))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, store.IDs())
}

func TestYAMLFile_Missing(t *testing.T) {
	_, err := Load(context.Background(), NewYAMLFile("/nonexistent/calibration.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yaml:/nonexistent/calibration.yaml")
}

func TestYAMLSource_WebMercatorTarget(t *testing.T) {
	want := core.Coordinate{Lat: 46.8322843, Lon: 14.8161273}
	x, y := geo.CoordinateTo3857(want)

	table := Table{Markers: []TableEntry{{
		ID:     intPtr(62),
		Matrix: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Target: TableTarget{X: &x, Y: &y, SRID: geo.SRIDWebMercator},
	}}}

	records, err := table.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, want.Lat, records[0].Target.Lat, 1e-6)
	assert.InDelta(t, want.Lon, records[0].Target.Lon, 1e-6)
}

func TestYAMLSource_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty document", ``, ErrEmpty},
		{"no markers", `markers: []`, ErrInvalidRecord},
		{"missing id", `
markers:
  - target: {lat: 1, lon: 2}
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]`, ErrInvalidRecord},
		{"short matrix", `
markers:
  - id: 1
    target: {lat: 1, lon: 2}
    matrix: [1, 0, 0]`, ErrInvalidRecord},
		{"latitude out of range", `
markers:
  - id: 1
    target: {lat: 100, lon: 2}
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]`, ErrInvalidRecord},
		{"missing target", `
markers:
  - id: 1
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]`, ErrInvalidRecord},
		{"x/y without srid", `
markers:
  - id: 1
    target: {x: 100, y: 200}
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]`, ErrInvalidRecord},
		{"duplicate ids", `
markers:
  - id: 1
    target: {lat: 1, lon: 2}
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  - id: 1
    target: {lat: 1, lon: 2}
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]`, ErrDuplicateMarker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Load(context.Background(), NewYAMLBytes(tt.name, []byte(tt.doc)))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, store)
		})
	}
}

func TestYAMLSource_UnknownField(t *testing.T) {
	doc := `
markers:
  - id: 1
    target: {lat: 1, lon: 2}
    matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1]
    scale: 2`
	_, err := Load(context.Background(), NewYAMLBytes("unknown", []byte(doc)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding table")
}

func TestYAMLSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewYAMLBytes("inline", []byte(twoMarkers)).Records(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddedTable(t *testing.T) {
	store, err := Load(context.Background(), NewYAMLBytes("embedded", assets.CalibrationYAML))
	require.NoError(t, err)

	assert.Equal(t, 63, store.Len())

	first, ok := store.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, core.Coordinate{Lat: 46.6711523, Lon: 12.990682}, first.Target)
	assert.Equal(t, -14.422063108068571, first.Projection[0][0])
	assert.Equal(t, 1.0, first.Projection[2][2])

	last, ok := store.Lookup(62)
	require.True(t, ok)
	assert.Equal(t, core.Coordinate{Lat: 46.8322843, Lon: 14.8161273}, last.Target)
}

func intPtr(v int) *int {
	return &v
}

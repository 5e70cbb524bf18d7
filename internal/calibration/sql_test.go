package calibration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/geomarker/anchor/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLSource {
	t.Helper()
	return NewSQLiteSource(filepath.Join(t.TempDir(), "calibration.db"), zerolog.Nop())
}

func TestSQLSource_SeedAndLoad(t *testing.T) {
	src := newTestSQLite(t)
	ctx := context.Background()

	second := testRecord(5)
	second.Projection[0][1] = -6.202500365062806
	second.Target = core.Coordinate{Lat: 46.8322843, Lon: 14.8161273}

	require.NoError(t, src.Seed(ctx, []core.CalibrationRecord{second, testRecord(1)}))

	store, err := Load(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, store.IDs())

	rec, ok := store.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, second, rec)
}

func TestSQLSource_SeedReplacesExisting(t *testing.T) {
	src := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, src.Seed(ctx, []core.CalibrationRecord{testRecord(1)}))

	updated := testRecord(1)
	updated.Target.Lat = 10
	require.NoError(t, src.Seed(ctx, []core.CalibrationRecord{updated}))

	records, err := src.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 10.0, records[0].Target.Lat)
}

func TestSQLSource_EmptyTableFailsLoad(t *testing.T) {
	src := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, src.Seed(ctx, nil))

	_, err := Load(ctx, src)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSQLSource_MissingTable(t *testing.T) {
	src := newTestSQLite(t)

	_, err := Load(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marker_calibrations")
}

func TestSQLSource_InvalidRowFailsWholeTable(t *testing.T) {
	src := newTestSQLite(t)
	ctx := context.Background()

	bad := testRecord(2)
	bad.Target.Lon = 200
	require.NoError(t, src.Seed(ctx, []core.CalibrationRecord{testRecord(1), bad}))

	store, err := Load(ctx, src)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Nil(t, store)
}

func TestMarkerCalibration_TableName(t *testing.T) {
	assert.Equal(t, "marker_calibrations", MarkerCalibration{}.TableName())
}

func TestNewPostgresSource_Name(t *testing.T) {
	src := NewPostgresSource("host=localhost user=anchor", zerolog.Nop())
	assert.Equal(t, "postgres", src.Name())
}

package calibration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/geomarker/anchor/internal/geo"
	"github.com/geomarker/anchor/pkg/core"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Table is the on-disk layout of a YAML calibration table.
type Table struct {
	Markers []TableEntry `yaml:"markers" validate:"required,min=1,dive"`
}

// TableEntry is one marker row. Matrix holds H row-major, H[0][0]..H[2][2].
type TableEntry struct {
	ID     *int        `yaml:"id" validate:"required,gte=0"`
	Matrix []float64   `yaml:"matrix" validate:"required,len=9"`
	Target TableTarget `yaml:"target"`
}

// TableTarget accepts either lat/lon degrees or projected x/y with an SRID.
type TableTarget struct {
	Lat  *float64 `yaml:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `yaml:"lon" validate:"omitempty,gte=-180,lte=180"`
	X    *float64 `yaml:"x"`
	Y    *float64 `yaml:"y"`
	SRID int      `yaml:"srid" validate:"omitempty,oneof=4326 3857"`
}

// YAMLSource reads a calibration table from a YAML document.
type YAMLSource struct {
	name string
	open func() (io.ReadCloser, error)
}

// NewYAMLFile reads the table from a file path.
func NewYAMLFile(path string) *YAMLSource {
	return &YAMLSource{
		name: "yaml:" + path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewYAMLBytes reads the table from an in-memory document.
func NewYAMLBytes(name string, data []byte) *YAMLSource {
	return &YAMLSource{
		name: "yaml:" + name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// Name identifies the source in errors and logs.
func (s *YAMLSource) Name() string {
	return s.name
}

// Records decodes and validates the whole document.
func (s *YAMLSource) Records(ctx context.Context) ([]core.CalibrationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("opening table: %w", err)
	}
	defer r.Close()

	var table Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil {
		if err == io.EOF {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("decoding table: %w", err)
	}
	return table.Records()
}

// Records validates the table and converts it into calibration records.
func (t Table) Records() ([]core.CalibrationRecord, error) {
	v := validator.New()
	if err := v.Struct(t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	records := make([]core.CalibrationRecord, 0, len(t.Markers))
	for i, entry := range t.Markers {
		m, err := matrixFromSlice(entry.Matrix)
		if err != nil {
			return nil, fmt.Errorf("marker %d: %w", *entry.ID, err)
		}
		target, err := entry.Target.coordinate()
		if err != nil {
			return nil, fmt.Errorf("entry %d (marker %d): %w", i, *entry.ID, err)
		}
		records = append(records, core.CalibrationRecord{
			MarkerID:   *entry.ID,
			Projection: m,
			Target:     target,
		})
	}
	return records, nil
}

func (t TableTarget) coordinate() (core.Coordinate, error) {
	if t.Lat != nil && t.Lon != nil {
		if t.SRID != 0 && t.SRID != geo.SRIDWGS84 {
			return core.Coordinate{}, fmt.Errorf("%w: lat/lon target must use srid %d", ErrInvalidRecord, geo.SRIDWGS84)
		}
		return core.Coordinate{Lat: *t.Lat, Lon: *t.Lon}, nil
	}
	if t.X != nil && t.Y != nil {
		if t.SRID != geo.SRIDWebMercator {
			return core.Coordinate{}, fmt.Errorf("%w: x/y target needs srid %d", ErrInvalidRecord, geo.SRIDWebMercator)
		}
		c, err := geo.CoordinateFrom3857(*t.X, *t.Y)
		if err != nil {
			return core.Coordinate{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return c, nil
	}
	return core.Coordinate{}, fmt.Errorf("%w: target needs lat/lon or x/y", ErrInvalidRecord)
}

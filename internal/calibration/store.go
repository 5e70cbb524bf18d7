// Package calibration holds the per-marker calibration table. A Store is built
// once from a declarative source and never mutated afterwards.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/geomarker/anchor/internal/geo"
	"github.com/geomarker/anchor/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

var (
	// ErrInvalidRecord is returned when a calibration record fails validation.
	ErrInvalidRecord = errors.New("invalid calibration record")
	// ErrDuplicateMarker is returned when two records share a marker id.
	ErrDuplicateMarker = errors.New("duplicate marker id")
	// ErrEmpty is returned when a source yields no records at all.
	ErrEmpty = errors.New("calibration table is empty")
)

// Store is an immutable marker id → calibration record table.
type Store struct {
	records map[int]core.CalibrationRecord
}

// NewStore validates records and builds a Store. A single bad record fails the
// whole table.
func NewStore(records []core.CalibrationRecord) (*Store, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	s := &Store{records: make(map[int]core.CalibrationRecord, len(records))}
	for i, rec := range records {
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("record %d (marker %d): %w", i, rec.MarkerID, err)
		}
		if _, ok := s.records[rec.MarkerID]; ok {
			return nil, fmt.Errorf("record %d: %w: %d", i, ErrDuplicateMarker, rec.MarkerID)
		}
		s.records[rec.MarkerID] = rec
	}
	return s, nil
}

// Lookup returns the record for a marker id.
func (s *Store) Lookup(id int) (core.CalibrationRecord, bool) {
	if s == nil {
		return core.CalibrationRecord{}, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of calibrated markers.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// IDs returns every calibrated marker id in ascending order.
func (s *Store) IDs() []int {
	if s == nil {
		return nil
	}
	ids := make([]int, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Records returns every record ordered by marker id.
func (s *Store) Records() []core.CalibrationRecord {
	ids := s.IDs()
	records := make([]core.CalibrationRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.records[id])
	}
	return records
}

// TargetPoint returns the record's point of interest as an XY point.
func TargetPoint(rec core.CalibrationRecord) (geom.Point, error) {
	return geo.Point(rec.Target)
}

func validateRecord(rec core.CalibrationRecord) error {
	if rec.MarkerID < 0 {
		return fmt.Errorf("%w: negative marker id", ErrInvalidRecord)
	}
	for r := range rec.Projection {
		for c := range rec.Projection[r] {
			v := rec.Projection[r][c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: matrix[%d][%d] is not finite", ErrInvalidRecord, r, c)
			}
		}
	}
	if err := geo.Validate(rec.Target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// matrixFromSlice unpacks nine row-major coefficients.
func matrixFromSlice(values []float64) ([3][3]float64, error) {
	var m [3][3]float64
	if len(values) != 9 {
		return m, fmt.Errorf("%w: matrix needs 9 coefficients, got %d", ErrInvalidRecord, len(values))
	}
	for i, v := range values {
		m[i/3][i%3] = v
	}
	return m, nil
}

package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/geomarker/anchor/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Calibration targets are always held as WGS84 (EPSG:4326) decimal degrees.
// Tables authored against Web Mercator (EPSG:3857) are converted on load.

const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Validate checks that c is a finite WGS84 coordinate within range.
func Validate(c core.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: non-finite value (lat=%v, lon=%v)", ErrInvalidCoordinates, c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// CoordinateFrom3857 converts a Web Mercator x/y pair into WGS84 degrees.
func CoordinateFrom3857(x, y float64) (core.Coordinate, error) {
	f := wgs84.EPSG().Transform(SRIDWebMercator, SRIDWGS84)
	lon, lat, _ := f(x, y, 0)
	c := core.Coordinate{Lat: lat, Lon: lon}
	if err := Validate(c); err != nil {
		return core.Coordinate{}, err
	}
	return c, nil
}

// CoordinateTo3857 converts a WGS84 coordinate to Web Mercator x/y.
func CoordinateTo3857(c core.Coordinate) (x, y float64) {
	f := wgs84.EPSG().Transform(SRIDWGS84, SRIDWebMercator)
	x, y, _ = f(c.Lon, c.Lat, 0)
	return x, y
}

// Point returns the coordinate as an XY point (X = longitude, Y = latitude).
func Point(c core.Coordinate) (geom.Point, error) {
	if err := Validate(c); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	return geom.XY{X: c.Lon, Y: c.Lat}.AsPoint()
}

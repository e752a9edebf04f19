package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Sensor samples arrive as WGS84 (EPSG:4326) latitude/longitude. Telemetry
// additionally stores them as WebMercator (EPSG:3857) so map dashboards can
// plot them without reprojecting.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFrom4326 validates a longitude/latitude pair and returns it as a point.
func PointFrom4326(longitude, latitude float64) (geom.Point, error) {
	if math.IsNaN(longitude) || math.IsNaN(latitude) ||
		longitude < -180 || longitude > 180 ||
		latitude < -90 || latitude > 90 {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinates, latitude, longitude)
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: longitude, Y: latitude},
		Type: geom.DimXY,
	})
}

// Validate reports whether latitude/longitude is a position on the globe.
func Validate(latitude, longitude float64) error {
	_, err := PointFrom4326(longitude, latitude)
	return err
}

// PointFromString parses a "long,lat" string into a validated point.
func PointFromString(coords string) (geom.Point, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	// parse the longitude
	long, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	// parse the latitude
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	return PointFrom4326(long, lat)
}

// LatLon returns latitude and longitude of a point built by this package.
func LatLon(p geom.Point) (latitude, longitude float64, ok bool) {
	coords, ok := p.Coordinates()
	if !ok {
		return 0, 0, false
	}
	return coords.Y, coords.X, true
}

// Coords3857From4326 creates a WebMercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if _, err := PointFrom4326(longitude, latitude); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point, err = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("project to 3857: %w", err)
	}
	return point, nil
}

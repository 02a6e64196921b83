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

// EarthRadius is the mean Earth radius in meters used by Distance.
const EarthRadius = 6371000.0

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the haversine great-circle distance between a and b in meters.
// NaN and Inf inputs propagate as NaN.
func Distance(a, b Coordinate) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	return 2 * EarthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination returns the point reached by travelling meters from origin along
// the great circle with the given initial bearing (degrees clockwise from north).
func Destination(origin Coordinate, bearing, meters float64) Coordinate {
	delta := meters / EarthRadius
	theta := toRadians(bearing)
	phi1 := toRadians(origin.Latitude)
	lambda1 := toRadians(origin.Longitude)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	return Coordinate{Latitude: toDegrees(phi2), Longitude: toDegrees(lambda2)}
}

// ParseCoordinate parses a "lat,lng" string.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Coordinate{}, ErrInvalidCoordinates
	}
	return Coordinate{Latitude: lat, Longitude: lng}, nil
}

// Point4326 returns c as a lon/lat point.
func Point4326(c Coordinate) (geom.Point, error) {
	p, err := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{X: c.Longitude, Y: c.Latitude},
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("point %v: %w", c, err)
	}
	return p, nil
}

// Point3857 projects c to web mercator (EPSG:3857). Anchors are stored in this
// projection so databases without spatial support can still scan the WKB.
func Point3857(c Coordinate) (geom.Point, error) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(c.Longitude, c.Latitude, 0)
	p, err := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{X: x, Y: y},
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("projecting %v: %w", c, err)
	}
	return p, nil
}

// Feature builds a GeoJSON point feature for c carrying the given properties.
func Feature(id string, c Coordinate, props map[string]interface{}) (geom.GeoJSONFeature, error) {
	p, err := Point4326(c)
	if err != nil {
		return geom.GeoJSONFeature{}, err
	}
	return geom.GeoJSONFeature{
		ID:         id,
		Geometry:   p.AsGeometry(),
		Properties: props,
	}, nil
}

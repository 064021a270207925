package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Game space is a flat plane in world units. Heights are ignored.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromString parses "x,y" into a planar point. A trailing height
// component ("x,y,z") is accepted and dropped.
func PointFromString(coords string) (geom.XY, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return geom.XY{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geom.XY{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geom.XY{}, ErrInvalidCoordinates
	}
	return geom.XY{X: x, Y: y}, nil
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b geom.XY) float64 {
	return b.Sub(a).Length()
}

// MoveTowards steps from one point towards another by at most maxStep and
// never overshoots.
func MoveTowards(from, to geom.XY, maxStep float64) geom.XY {
	delta := to.Sub(from)
	dist := delta.Length()
	if dist <= maxStep || dist == 0 {
		return to
	}
	return from.Add(delta.Scale(maxStep / dist))
}

// Point wraps a planar position as a geometry, used for WKT in log output.
// Non-finite positions give an empty point.
func Point(xy geom.XY) geom.Point {
	p, err := xy.AsPoint()
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return p
}

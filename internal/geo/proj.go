package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projection codes understood by TransformExtent.
const (
	EPSG3857 = "EPSG:3857"
	EPSG4326 = "EPSG:4326"
)

// FromLonLat projects a WGS84 lon/lat point into web mercator meters.
func FromLonLat(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(p)
}

// ToLonLat projects a web mercator point back to WGS84 lon/lat.
func ToLonLat(p orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p)
}

// TransformExtent reprojects the corners of an extent. Only the two
// projections the map uses are supported.
func TransformExtent(b orb.Bound, from, to string) (orb.Bound, error) {
	if from == to {
		return b, nil
	}
	var fn orb.Projection
	switch {
	case from == EPSG3857 && to == EPSG4326:
		fn = ToLonLat
	case from == EPSG4326 && to == EPSG3857:
		fn = FromLonLat
	default:
		return orb.Bound{}, fmt.Errorf("unsupported transform %s -> %s", from, to)
	}
	// Both projections are monotonic per axis, so corners map to corners.
	return orb.Bound{Min: fn(b.Min), Max: fn(b.Max)}, nil
}

// Extent returns the bound as [minX, minY, maxX, maxY].
func Extent(b orb.Bound) [4]float64 {
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Padding is a pixel padding in top, right, bottom, left order.
type Padding [4]float64

// UniformPadding pads every side by px pixels.
func UniformPadding(px float64) Padding {
	return Padding{px, px, px, px}
}

// FitResolution returns the resolution (map units per pixel) at which the
// extent fills a viewport of the given pixel size minus padding.
func FitResolution(extent orb.Bound, width, height float64, pad Padding) float64 {
	w := width - pad[1] - pad[3]
	h := height - pad[0] - pad[2]
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	rx := (extent.Max[0] - extent.Min[0]) / w
	ry := (extent.Max[1] - extent.Min[1]) / h
	return math.Max(rx, ry)
}

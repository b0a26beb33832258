package geo

import "github.com/paulmach/orb"

// Square builds a closed square ring centered on c with the given side
// length, in the same units as c.
func Square(c orb.Point, size float64) orb.Polygon {
	h := size / 2
	x, y := c[0], c[1]
	return orb.Polygon{orb.Ring{
		{x - h, y - h},
		{x + h, y - h},
		{x + h, y + h},
		{x - h, y + h},
		{x - h, y - h},
	}}
}

// CloseRing returns a copy of the stroke with consecutive duplicates removed
// and the first point repeated at the end. ok is false when fewer than three
// distinct points remain.
func CloseRing(stroke []orb.Point) (orb.Ring, bool) {
	ring := make(orb.Ring, 0, len(stroke)+1)
	for _, p := range stroke {
		if n := len(ring); n > 0 && ring[n-1].Equal(p) {
			continue
		}
		ring = append(ring, p)
	}
	if n := len(ring); n > 1 && ring[0].Equal(ring[n-1]) {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return nil, false
	}
	return append(ring, ring[0]), true
}

package mapstore

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-cover/internal/geo"
)

// MaxResolution is the web mercator resolution at zoom 0 (256px tiles).
const MaxResolution = 156543.03392804097

// ZoomForResolution converts meters per pixel to a fractional zoom level.
func ZoomForResolution(res float64) float64 {
	return math.Log2(MaxResolution / res)
}

// ResolutionForZoom converts a zoom level to meters per pixel.
func ResolutionForZoom(zoom float64) float64 {
	return MaxResolution / math.Pow(2, zoom)
}

// ViewProperty names an observable view parameter.
type ViewProperty string

const (
	PropCenter     ViewProperty = "center"
	PropResolution ViewProperty = "resolution"
	PropRotation   ViewProperty = "rotation"
)

type viewListener struct {
	id   int
	prop ViewProperty
	fn   func(*View)
}

// View holds the center (EPSG:3857), resolution and rotation of a surface.
// Setters with a value equal to the current one do nothing, which is what
// keeps mirrored views from looping.
type View struct {
	center     orb.Point
	resolution float64
	rotation   float64

	nextID    int
	listeners []viewListener
}

// NewView creates a view centered on center at the given zoom.
func NewView(center orb.Point, zoom float64) *View {
	return &View{center: center, resolution: ResolutionForZoom(zoom)}
}

func (v *View) Center() orb.Point    { return v.center }
func (v *View) Resolution() float64  { return v.resolution }
func (v *View) Rotation() float64    { return v.rotation }
func (v *View) Zoom() float64        { return ZoomForResolution(v.resolution) }
func (v *View) SetZoom(zoom float64) { v.SetResolution(ResolutionForZoom(zoom)) }

// SetCenter moves the view.
func (v *View) SetCenter(c orb.Point) {
	if v.center.Equal(c) {
		return
	}
	v.center = c
	v.fire(PropCenter)
}

// SetResolution changes the scale. Non-positive values are ignored.
func (v *View) SetResolution(res float64) {
	if res <= 0 || res == v.resolution {
		return
	}
	v.resolution = res
	v.fire(PropResolution)
}

// SetRotation sets the rotation in radians.
func (v *View) SetRotation(rad float64) {
	if rad == v.rotation {
		return
	}
	v.rotation = rad
	v.fire(PropRotation)
}

// On registers fn for changes of prop and returns a function removing it.
func (v *View) On(prop ViewProperty, fn func(*View)) (off func()) {
	v.nextID++
	id := v.nextID
	v.listeners = append(v.listeners, viewListener{id: id, prop: prop, fn: fn})
	return func() {
		for i, l := range v.listeners {
			if l.id == id {
				v.listeners = append(v.listeners[:i:i], v.listeners[i+1:]...)
				return
			}
		}
	}
}

func (v *View) fire(prop ViewProperty) {
	ls := append([]viewListener(nil), v.listeners...)
	for _, l := range ls {
		if l.prop == prop {
			l.fn(v)
		}
	}
}

// FitOptions tunes View.Fit.
type FitOptions struct {
	Padding geo.Padding
	// MaxZoom caps how far in the fit may zoom; zero means no cap.
	MaxZoom float64
}

// Fit centers the view on extent and picks the resolution at which it fills
// a viewport of the given size minus padding.
func (v *View) Fit(extent orb.Bound, size Size, opts FitOptions) {
	res := geo.FitResolution(extent, size.Width, size.Height, opts.Padding)
	if opts.MaxZoom > 0 {
		res = math.Max(res, ResolutionForZoom(opts.MaxZoom))
	}
	if res <= 0 {
		res = v.resolution
	}

	// Shift the center so the extent sits in the padded area.
	pad := opts.Padding
	dx := (pad[1] - pad[3]) / 2 * res
	dy := (pad[0] - pad[2]) / 2 * res
	c := extent.Center()
	v.SetResolution(res)
	v.SetCenter(orb.Point{c[0] + dx, c[1] + dy})
}

// VisibleExtent returns the unrotated extent shown in a viewport of size.
func (v *View) VisibleExtent(size Size) orb.Bound {
	hw := size.Width * v.resolution / 2
	hh := size.Height * v.resolution / 2
	return orb.Bound{
		Min: orb.Point{v.center[0] - hw, v.center[1] - hh},
		Max: orb.Point{v.center[0] + hw, v.center[1] + hh},
	}
}

// ViewState is a view by value.
type ViewState struct {
	Center     [2]float64 `json:"center" doc:"Center in EPSG:3857"`
	LonLat     [2]float64 `json:"lonLat" doc:"Center in EPSG:4326"`
	Zoom       float64    `json:"zoom"`
	Resolution float64    `json:"resolution" doc:"Meters per pixel"`
	Rotation   float64    `json:"rotation" doc:"Radians"`
}

// State snapshots the view.
func (v *View) State() ViewState {
	ll := geo.ToLonLat(v.center)
	return ViewState{
		Center:     [2]float64{v.center[0], v.center[1]},
		LonLat:     [2]float64{ll[0], ll[1]},
		Zoom:       v.Zoom(),
		Resolution: v.resolution,
		Rotation:   v.rotation,
	}
}

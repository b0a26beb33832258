package mapstore

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// Surface names.
const (
	SurfaceSingle    = ""
	SurfacePrimary   = "primary"
	SurfaceSecondary = "secondary"
)

// Interaction names an input handler a surface can carry.
type Interaction string

const (
	InteractionDragPan      Interaction = "drag_pan"
	InteractionDragZoomIn   Interaction = "drag_zoom_in"
	InteractionDragZoomOut  Interaction = "drag_zoom_out"
	InteractionDrawSquare   Interaction = "draw_square"
	InteractionDrawFreehand Interaction = "draw_freehand"
)

// Size is a viewport size in pixels.
type Size struct {
	Width  float64 `json:"width" minimum:"1"`
	Height float64 `json:"height" minimum:"1"`
}

// DefaultSize is used until a client reports its viewport.
var DefaultSize = Size{Width: 800, Height: 600}

// Surface is one map: a view, an ordered layer stack (position 0 on top once
// reordered) and the installed input handlers. Layers are only changed
// through the Registry.
type Surface struct {
	Name string

	target string
	view   *View
	size   Size
	layers []*Layer

	interactions map[Interaction]struct{}
	onClick      func(orb.Point)
	onStroke     func([]orb.Point)
}

// NewSurface creates a detached surface.
func NewSurface(name string, view *View) *Surface {
	return &Surface{
		Name:         name,
		view:         view,
		size:         DefaultSize,
		interactions: make(map[Interaction]struct{}),
	}
}

func (s *Surface) View() *View    { return s.view }
func (s *Surface) Target() string { return s.target }
func (s *Surface) Size() Size     { return s.size }
func (s *Surface) Attached() bool { return s.target != "" }

// Attach binds the surface to a rendering target.
func (s *Surface) Attach(target string) { s.target = target }

// Detach unbinds the surface; view, layers and handlers stay.
func (s *Surface) Detach() { s.target = "" }

// SetSize records the viewport size. Non-positive sizes are ignored.
func (s *Surface) SetSize(sz Size) {
	if sz.Width > 0 && sz.Height > 0 {
		s.size = sz
	}
}

// Install adds a handler without a callback (pan, zoom boxes).
func (s *Surface) Install(i Interaction) {
	s.interactions[i] = struct{}{}
}

func (s *Surface) installClick(fn func(orb.Point)) {
	s.interactions[InteractionDrawSquare] = struct{}{}
	s.onClick = fn
}

func (s *Surface) installStroke(fn func([]orb.Point)) {
	s.interactions[InteractionDrawFreehand] = struct{}{}
	s.onStroke = fn
}

// Remove uninstalls a handler; unknown handlers are ignored.
func (s *Surface) Remove(i Interaction) {
	delete(s.interactions, i)
	switch i {
	case InteractionDrawSquare:
		s.onClick = nil
	case InteractionDrawFreehand:
		s.onStroke = nil
	}
}

// Has reports whether i is installed.
func (s *Surface) Has(i Interaction) bool {
	_, ok := s.interactions[i]
	return ok
}

// Interactions lists installed handlers, sorted.
func (s *Surface) Interactions() []Interaction {
	out := make([]Interaction, 0, len(s.interactions))
	for i := range s.interactions {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Click delivers a map click. It reports whether a handler consumed it.
func (s *Surface) Click(p orb.Point) bool {
	if s.onClick == nil {
		return false
	}
	s.onClick(p)
	return true
}

// Stroke delivers a finished freehand stroke.
func (s *Surface) Stroke(points []orb.Point) bool {
	if s.onStroke == nil {
		return false
	}
	s.onStroke(points)
	return true
}

// Drag pans by a pixel delta (screen y grows downwards).
func (s *Surface) Drag(dx, dy float64) bool {
	if !s.Has(InteractionDragPan) {
		return false
	}
	c := s.view.Center()
	res := s.view.Resolution()
	s.view.SetCenter(orb.Point{c[0] - dx*res, c[1] + dy*res})
	return true
}

// Box applies a drag-box zoom. Zooming in fits the box; zooming out shrinks
// the visible extent into the box around its center.
func (s *Surface) Box(box orb.Bound) bool {
	w, h := box.Max[0]-box.Min[0], box.Max[1]-box.Min[1]
	if w <= 0 || h <= 0 {
		return false
	}
	switch {
	case s.Has(InteractionDragZoomIn):
		s.view.Fit(box, s.size, FitOptions{})
	case s.Has(InteractionDragZoomOut):
		vis := s.view.VisibleExtent(s.size)
		factor := math.Max((vis.Max[0]-vis.Min[0])/w, (vis.Max[1]-vis.Min[1])/h)
		s.view.SetResolution(s.view.Resolution() * factor)
		s.view.SetCenter(box.Center())
	default:
		return false
	}
	return true
}

func (s *Surface) indexOf(id string) int {
	return slices.IndexFunc(s.layers, func(l *Layer) bool { return l.ID == id })
}

func (s *Surface) layer(id string) *Layer {
	if i := s.indexOf(id); i >= 0 {
		return s.layers[i]
	}
	return nil
}

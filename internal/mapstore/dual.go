package mapstore

import (
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-cover/internal/geo"
)

// Start views of the two maps.
var (
	singleHome = orb.Point{-79.81822466589962, -0.460628082970743}
	dualHome   = orb.Point{-79.81822466589962, 0.460628082970743}
)

const (
	singleHomeZoom = 8
	dualHomeZoom   = 12
)

// Link mirrors center, resolution and rotation between a and b by value.
// The returned function removes all six listeners.
func Link(a, b *View) (unlink func()) {
	offs := []func(){
		a.On(PropCenter, func(v *View) { b.SetCenter(v.Center()) }),
		b.On(PropCenter, func(v *View) { a.SetCenter(v.Center()) }),
		a.On(PropResolution, func(v *View) { b.SetResolution(v.Resolution()) }),
		b.On(PropResolution, func(v *View) { a.SetResolution(v.Resolution()) }),
		a.On(PropRotation, func(v *View) { b.SetRotation(v.Rotation()) }),
		b.On(PropRotation, func(v *View) { a.SetRotation(v.Rotation()) }),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// InitDual builds the primary and secondary maps, each with its own base
// layer and view, and links their views. Calling it again replaces the
// pair.
func (s *Session) InitDual(primaryTarget, secondaryTarget string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unlinkDual != nil {
		s.unlinkDual()
		s.unlinkDual = nil
	}

	home := geo.FromLonLat(dualHome)
	primary := NewSurface(SurfacePrimary, NewView(home, dualHomeZoom))
	secondary := NewSurface(SurfaceSecondary, NewView(home, dualHomeZoom))
	if old := s.reg.Surface(SurfacePrimary); old != nil {
		primary.SetSize(old.Size())
	}
	if old := s.reg.Surface(SurfaceSecondary); old != nil {
		secondary.SetSize(old.Size())
	}

	s.reg.SetSurface(SurfacePrimary, primary)
	s.reg.SetSurface(SurfaceSecondary, secondary)
	s.reg.AddLayer(osmLayer(), SurfacePrimary)
	s.reg.AddLayer(osmLayer(), SurfaceSecondary)

	if g := s.projectAOI(); g != nil {
		s.reg.AddLayer(aoiLayer(g), SurfacePrimary)
		s.reg.AddLayer(aoiLayer(g), SurfaceSecondary)
		primary.View().Fit(g.Bound(), primary.Size(), FitOptions{})
		secondary.View().Fit(g.Bound(), secondary.Size(), FitOptions{})
	}

	s.unlinkDual = Link(primary.View(), secondary.View())

	primary.Attach(primaryTarget)
	secondary.Attach(secondaryTarget)
	s.reg.Refresh()
	s.logger.Info("dual maps initialized", slog.String("primary", primaryTarget), slog.String("secondary", secondaryTarget))
}

// HideDual detaches both dual maps, keeping their layers and views.
func (s *Session) HideDual() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{SurfacePrimary, SurfaceSecondary} {
		if sf := s.reg.Surface(name); sf != nil {
			sf.Detach()
		}
	}
	s.reg.Refresh()
}

// ShowDual re-attaches existing dual maps, building them when missing.
func (s *Session) ShowDual(primaryTarget, secondaryTarget string) {
	s.mu.Lock()
	p, q := s.reg.Surface(SurfacePrimary), s.reg.Surface(SurfaceSecondary)
	if p == nil || q == nil {
		s.mu.Unlock()
		s.InitDual(primaryTarget, secondaryTarget)
		return
	}
	p.Attach(primaryTarget)
	q.Attach(secondaryTarget)
	s.reg.Refresh()
	s.mu.Unlock()
}

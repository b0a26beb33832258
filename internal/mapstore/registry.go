package mapstore

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Change describes a state mutation worth telling observers about.
type Change struct {
	Resource string // "layers", "polygons", "session"
	Action   string // "updated", "deleted"
	ID       string
}

// Notifier receives changes. It must not block.
type Notifier func(Change)

// Registry tracks the layer stacks of the single surface and the dual pair.
// The summary is rebuilt under the lock on every mutation, so readers never
// observe a half-applied change.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]*Surface
	summary  []LayerSummary

	notify Notifier
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(notify Notifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		surfaces: make(map[string]*Surface),
		notify:   notify,
		logger:   logger,
	}
}

// Surface returns the named surface or nil.
func (r *Registry) Surface(name string) *Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.surfaces[name]
}

// SetSurface installs (or with nil removes) a surface under name.
func (r *Registry) SetSurface(name string, s *Surface) {
	r.mu.Lock()
	if s == nil {
		delete(r.surfaces, name)
	} else {
		s.Name = name
		r.surfaces[name] = s
	}
	r.rebuild()
	r.mu.Unlock()
	r.publish("updated", name)
}

// Refresh rebuilds the summary after a surface was attached or detached.
func (r *Registry) Refresh() {
	r.mu.Lock()
	r.rebuild()
	r.mu.Unlock()
	r.publish("updated", "")
}

// mutate runs fn on the named surface under the lock. It is a no-op when the
// surface does not exist or fn reports no change.
func (r *Registry) mutate(surface, id string, fn func(s *Surface) bool) bool {
	r.mu.Lock()
	s := r.surfaces[surface]
	if s == nil {
		r.mu.Unlock()
		r.logger.Debug("layer change on missing surface ignored", slog.String("surface", surface), slog.String("layer", id))
		return false
	}
	changed := fn(s)
	if changed {
		r.rebuild()
	}
	r.mu.Unlock()
	if changed {
		r.publish("updated", id)
	}
	return changed
}

// AddLayer appends l to the surface. A layer with the same id is replaced.
func (r *Registry) AddLayer(l *Layer, surface string) {
	r.mutate(surface, l.ID, func(s *Surface) bool {
		if i := s.indexOf(l.ID); i >= 0 {
			s.layers = slices.Delete(s.layers, i, i+1)
		}
		s.layers = append(s.layers, l)
		return true
	})
}

// InsertLayer places l at pos (clamped) in the surface's stack, replacing a
// layer with the same id.
func (r *Registry) InsertLayer(l *Layer, pos int, surface string) {
	r.mutate(surface, l.ID, func(s *Surface) bool {
		if i := s.indexOf(l.ID); i >= 0 {
			s.layers = slices.Delete(s.layers, i, i+1)
		}
		pos = min(max(pos, 0), len(s.layers))
		s.layers = slices.Insert(s.layers, pos, l)
		return true
	})
}

// RemoveLayer drops the layer with id.
func (r *Registry) RemoveLayer(id, surface string) bool {
	return r.mutate(surface, id, func(s *Surface) bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.layers = slices.Delete(s.layers, i, i+1)
		return true
	})
}

// RemoveWhere drops every layer of the surface matching pred.
func (r *Registry) RemoveWhere(surface string, pred func(*Layer) bool) int {
	var n int
	r.mutate(surface, "", func(s *Surface) bool {
		before := len(s.layers)
		s.layers = slices.DeleteFunc(s.layers, pred)
		n = before - len(s.layers)
		return n > 0
	})
	return n
}

// RemovePrefix drops layers whose id starts with prefix.
func (r *Registry) RemovePrefix(surface, prefix string) int {
	return r.RemoveWhere(surface, func(l *Layer) bool { return strings.HasPrefix(l.ID, prefix) })
}

// ToggleVisibility flips the visible flag of a layer.
func (r *Registry) ToggleVisibility(id, surface string) bool {
	return r.Update(id, surface, func(l *Layer) { l.Visible = !l.Visible })
}

// SetOpacity sets a layer's opacity, clamped to [0, 1].
func (r *Registry) SetOpacity(id string, value float64, surface string) bool {
	value = min(max(value, 0), 1)
	return r.Update(id, surface, func(l *Layer) { l.Opacity = value })
}

// Update applies fn to a layer in place.
func (r *Registry) Update(id, surface string, fn func(*Layer)) bool {
	return r.mutate(surface, id, func(s *Surface) bool {
		l := s.layer(id)
		if l == nil {
			return false
		}
		fn(l)
		return true
	})
}

// Reorder moves the layer at from to position to and reassigns every z-index
// as count minus position, so position 0 paints on top. Out-of-range indices
// and from == to are no-ops.
func (r *Registry) Reorder(from, to int, surface string) bool {
	return r.mutate(surface, "", func(s *Surface) bool {
		n := len(s.layers)
		if from == to || from < 0 || to < 0 || from >= n || to >= n {
			return false
		}
		moved := s.layers[from]
		s.layers = slices.Delete(s.layers, from, from+1)
		s.layers = slices.Insert(s.layers, to, moved)
		for i, l := range s.layers {
			l.ZIndex = n - i
		}
		return true
	})
}

// AddToBoth adds a clone of l to each dual surface that exists.
func (r *Registry) AddToBoth(l *Layer) {
	for _, name := range []string{SurfacePrimary, SurfaceSecondary} {
		r.AddLayer(l.Clone(), name)
	}
}

// RemoveFromBoth drops id from each dual surface.
func (r *Registry) RemoveFromBoth(id string) {
	for _, name := range []string{SurfacePrimary, SurfaceSecondary} {
		r.RemoveLayer(id, name)
	}
}

// Layer returns a copy of the envelope of a layer, or nil.
func (r *Registry) Layer(id, surface string) *Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.surfaces[surface]
	if s == nil {
		return nil
	}
	if l := s.layer(id); l != nil {
		return l.Clone()
	}
	return nil
}

// Count returns the number of layers on a surface.
func (r *Registry) Count(surface string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.surfaces[surface]; s != nil {
		return len(s.layers)
	}
	return 0
}

// Order returns the layer ids of a surface by position.
func (r *Registry) Order(surface string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.surfaces[surface]
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.layers))
	for i, l := range s.layers {
		ids[i] = l.ID
	}
	return ids
}

// DualActive reports whether either dual surface is attached.
func (r *Registry) DualActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dualActive()
}

func (r *Registry) dualActive() bool {
	for _, name := range []string{SurfacePrimary, SurfaceSecondary} {
		if s := r.surfaces[name]; s != nil && s.Attached() {
			return true
		}
	}
	return false
}

// Layers returns the current summary: both dual surfaces tagged by name when
// dual mode is active, the single surface otherwise, sorted by descending
// z-index with position breaking ties.
func (r *Registry) Layers() []LayerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.summary)
}

func (r *Registry) rebuild() {
	var out []LayerSummary
	if r.dualActive() {
		for _, name := range []string{SurfacePrimary, SurfaceSecondary} {
			if s := r.surfaces[name]; s != nil {
				for _, l := range s.layers {
					out = append(out, summarize(l, name))
				}
			}
		}
	} else if s := r.surfaces[SurfaceSingle]; s != nil {
		for _, l := range s.layers {
			out = append(out, summarize(l, ""))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ZIndex > out[j].ZIndex })
	r.summary = out
}

func (r *Registry) publish(action, id string) {
	if r.notify != nil {
		r.notify(Change{Resource: "layers", Action: action, ID: id})
	}
}

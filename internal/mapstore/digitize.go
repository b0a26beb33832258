package mapstore

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-cover/internal/geo"
	"github.com/joeblew999/plat-cover/internal/project"
)

// DefaultClass is selected until the user picks another one.
const DefaultClass = "Forest"

// DefaultPolygonSize is the side of a square polygon in map units.
const DefaultPolygonSize = 100.0

// DrawStyle selects how draw mode creates polygons.
type DrawStyle string

const (
	StyleSquare   DrawStyle = "square"
	StyleFreehand DrawStyle = "freehand"
)

// ErrUnknownStyle is returned for a drawing style other than square or
// freehand.
var ErrUnknownStyle = errors.New("unknown drawing style")

// ParseDrawStyle validates s.
func ParseDrawStyle(s string) (DrawStyle, error) {
	switch DrawStyle(s) {
	case StyleSquare, StyleFreehand:
		return DrawStyle(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, s)
}

// TrainingPolygon is one labeled polygon in EPSG:3857.
type TrainingPolygon struct {
	ID          string      `json:"id"`
	Geometry    orb.Polygon `json:"geometry"`
	ClassLabel  string      `json:"classLabel"`
	BasemapDate string      `json:"basemapDate,omitempty"`
}

// FeatureSet is the one authoritative ordered list of training polygons for
// the displayed date. The training layer renders straight from it.
type FeatureSet struct {
	polygons []TrainingPolygon
	selected string
	lastID   int64
	now      func() time.Time
}

// NewFeatureSet creates an empty set using now for ids.
func NewFeatureSet(now func() time.Time) *FeatureSet {
	if now == nil {
		now = time.Now
	}
	return &FeatureSet{now: now}
}

// Len returns the number of polygons.
func (f *FeatureSet) Len() int { return len(f.polygons) }

// Polygons returns a copy of the list in insertion order.
func (f *FeatureSet) Polygons() []TrainingPolygon { return slices.Clone(f.polygons) }

// Selected returns the highlighted polygon id, or "".
func (f *FeatureSet) Selected() string { return f.selected }

// nextID returns a millisecond timestamp id, bumped past the last one handed
// out so ids stay unique and increasing.
func (f *FeatureSet) nextID() string {
	id := f.now().UnixMilli()
	if id <= f.lastID {
		id = f.lastID + 1
	}
	f.lastID = id
	return strconv.FormatInt(id, 10)
}

func (f *FeatureSet) observeID(id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > f.lastID {
		f.lastID = n
	}
}

func (f *FeatureSet) has(id string) bool {
	return slices.ContainsFunc(f.polygons, func(p TrainingPolygon) bool { return p.ID == id })
}

// Style is a fill/stroke pair in CSS color notation.
type Style struct {
	Fill   string  `json:"fill"`
	Stroke string  `json:"stroke"`
	Width  float64 `json:"width"`
}

// StyleFor renders a polygon by class color. Unknown classes or malformed
// colors fall back to neutral styles.
func StyleFor(p TrainingPolygon, selected bool, classes []project.Class) Style {
	var base string
	for _, c := range classes {
		if c.Name == p.ClassLabel {
			base = c.Color
			break
		}
	}
	if selected {
		fill, err := geo.WithAlpha(base, "80")
		if err != nil {
			fill = "rgba(255,255,255,0.5)"
		}
		return Style{Fill: fill, Stroke: "#FF4136", Width: 3}
	}
	fill, err := geo.WithAlpha(base, "4D")
	if err != nil {
		fill = "rgba(128,128,128,0.8)"
	}
	return Style{Fill: fill, Stroke: "rgba(0,0,0,0.8)", Width: 2}
}

// FeatureCollection writes the set as GeoJSON. Each feature carries its id,
// classLabel and basemapDate; coordinates are not reprojected.
func (f *FeatureSet) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range f.polygons {
		feat := geojson.NewFeature(p.Geometry.Clone())
		feat.ID = p.ID
		feat.Properties["classLabel"] = p.ClassLabel
		if p.BasemapDate != "" {
			feat.Properties["basemapDate"] = p.BasemapDate
		}
		fc.Append(feat)
	}
	return fc
}

// Styled is FeatureCollection with a "style" property per feature.
func (f *FeatureSet) Styled(classes []project.Class) *geojson.FeatureCollection {
	fc := f.FeatureCollection()
	for i, feat := range fc.Features {
		feat.Properties["style"] = StyleFor(f.polygons[i], f.polygons[i].ID == f.selected, classes)
	}
	return fc
}

func featureID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// polygonFromFeature converts a GeoJSON feature, rejecting non-polygons.
func (f *FeatureSet) polygonFromFeature(feat *geojson.Feature, date string) (TrainingPolygon, error) {
	poly, ok := feat.Geometry.(orb.Polygon)
	if !ok {
		if feat.Geometry == nil {
			return TrainingPolygon{}, errors.New("feature has no geometry")
		}
		return TrainingPolygon{}, fmt.Errorf("feature geometry is %s, want Polygon", feat.Geometry.GeoJSONType())
	}
	p := TrainingPolygon{
		ID:          featureID(feat.ID),
		Geometry:    poly.Clone(),
		ClassLabel:  feat.Properties.MustString("classLabel", ""),
		BasemapDate: feat.Properties.MustString("basemapDate", date),
	}
	if p.ID == "" || f.has(p.ID) {
		p.ID = f.nextID()
	} else {
		f.observeID(p.ID)
	}
	return p, nil
}

// Digitizer creates, selects and removes training polygons on the single
// surface and owns the unsaved-changes flag.
type Digitizer struct {
	set      *FeatureSet
	reg      *Registry
	projects *project.Store
	notify   Notifier
	logger   *slog.Logger

	style   DrawStyle
	size    float64
	class   string
	date    string
	drawing bool
	dirty   bool
	rev     uint64 // bumped by every edit
}

// NewDigitizer creates a digitizer rendering into reg's single surface.
func NewDigitizer(set *FeatureSet, reg *Registry, projects *project.Store, notify Notifier, logger *slog.Logger) *Digitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Digitizer{
		set:      set,
		reg:      reg,
		projects: projects,
		notify:   notify,
		logger:   logger,
		style:    StyleSquare,
		size:     DefaultPolygonSize,
		class:    DefaultClass,
	}
}

func (d *Digitizer) Set() *FeatureSet      { return d.set }
func (d *Digitizer) Dirty() bool           { return d.dirty }
func (d *Digitizer) Drawing() bool         { return d.drawing }
func (d *Digitizer) DrawStyle() DrawStyle  { return d.style }
func (d *Digitizer) PolygonSize() float64  { return d.size }
func (d *Digitizer) SelectedClass() string { return d.class }
func (d *Digitizer) SelectedDate() string  { return d.date }
func (d *Digitizer) SetClass(label string) { d.class = label }
func (d *Digitizer) SetDate(date string)   { d.date = date }

// SetPolygonSize changes the square side length.
func (d *Digitizer) SetPolygonSize(size float64) error {
	if size <= 0 {
		return fmt.Errorf("polygon size must be positive, got %v", size)
	}
	d.size = size
	return nil
}

// SetStyle switches the drawing style, restarting an active draw session.
func (d *Digitizer) SetStyle(style DrawStyle) {
	if style == d.style {
		return
	}
	d.style = style
	if d.drawing {
		d.StopDraw()
		d.StartDraw()
	}
}

// ToggleStyle flips between square and freehand.
func (d *Digitizer) ToggleStyle() DrawStyle {
	if d.style == StyleSquare {
		d.SetStyle(StyleFreehand)
	} else {
		d.SetStyle(StyleSquare)
	}
	return d.style
}

// StartDraw installs the handler for the current style on the single
// surface. Without a surface or training layer it only logs.
func (d *Digitizer) StartDraw() {
	s := d.reg.Surface(SurfaceSingle)
	if s == nil || d.reg.Layer(TrainingLayerID, SurfaceSingle) == nil {
		d.logger.Info("draw requested before the map is ready")
		return
	}
	if d.drawing {
		d.StopDraw()
	}
	d.drawing = true

	switch d.style {
	case StyleFreehand:
		s.installStroke(func(points []orb.Point) {
			ring, ok := geo.CloseRing(points)
			if !ok {
				d.logger.Debug("stroke too short for a polygon", slog.Int("points", len(points)))
				return
			}
			d.add(orb.Polygon{ring})
		})
	default:
		s.installClick(func(p orb.Point) {
			d.add(geo.Square(p, d.size))
		})
	}
}

// StopDraw removes the draw handlers. Safe to call when not drawing.
func (d *Digitizer) StopDraw() {
	d.drawing = false
	if s := d.reg.Surface(SurfaceSingle); s != nil {
		s.Remove(InteractionDrawSquare)
		s.Remove(InteractionDrawFreehand)
	}
}

func (d *Digitizer) add(poly orb.Polygon) {
	p := TrainingPolygon{
		ID:          d.set.nextID(),
		Geometry:    poly,
		ClassLabel:  d.class,
		BasemapDate: d.date,
	}
	d.set.polygons = append(d.set.polygons, p)
	d.touch()
	d.changed("updated", p.ID)
}

// AddPolygon imports one GeoJSON polygon feature, as when reading a file.
func (d *Digitizer) AddPolygon(feat *geojson.Feature) (TrainingPolygon, error) {
	p, err := d.set.polygonFromFeature(feat, d.date)
	if err != nil {
		return TrainingPolygon{}, err
	}
	if p.ClassLabel == "" {
		p.ClassLabel = d.class
	}
	d.set.polygons = append(d.set.polygons, p)
	d.touch()
	d.changed("updated", p.ID)
	return p, nil
}

// Select highlights the polygon with id; "" or an unknown id clears the
// highlight.
func (d *Digitizer) Select(id string) bool {
	if id != "" && !d.set.has(id) {
		id = ""
	}
	d.set.selected = id
	d.changed("updated", id)
	return id != ""
}

// SelectAt highlights the most recently drawn polygon containing p.
func (d *Digitizer) SelectAt(p orb.Point) string {
	for i := len(d.set.polygons) - 1; i >= 0; i-- {
		if planar.PolygonContains(d.set.polygons[i].Geometry, p) {
			d.Select(d.set.polygons[i].ID)
			return d.set.selected
		}
	}
	d.Select("")
	return ""
}

// DeleteSelected removes the highlighted polygon.
func (d *Digitizer) DeleteSelected() bool {
	id := d.set.selected
	if id == "" {
		d.logger.Info("no polygon selected")
		return false
	}
	d.set.polygons = slices.DeleteFunc(d.set.polygons, func(p TrainingPolygon) bool { return p.ID == id })
	d.set.selected = ""
	d.touch()
	d.changed("deleted", id)
	return true
}

// UndoLast removes the most recently added polygon.
func (d *Digitizer) UndoLast() (TrainingPolygon, bool) {
	n := len(d.set.polygons)
	if n == 0 {
		d.logger.Info("no polygons to remove")
		return TrainingPolygon{}, false
	}
	last := d.set.polygons[n-1]
	d.set.polygons = d.set.polygons[:n-1]
	if d.set.selected == last.ID {
		d.set.selected = ""
	}
	d.touch()
	d.changed("deleted", last.ID)
	return last, true
}

// Clear drops every polygon, marking the edit dirty when asked.
func (d *Digitizer) Clear(markDirty bool) {
	d.set.polygons = nil
	d.set.selected = ""
	if markDirty {
		d.touch()
	}
	d.changed("deleted", "")
}

// touch marks the polygons edited.
func (d *Digitizer) touch() {
	d.dirty = true
	d.rev++
}

// Discard forgets unsaved edits without touching the polygons.
func (d *Digitizer) Discard() {
	d.dirty = false
}

// ToGeoJSON serializes the polygons.
func (d *Digitizer) ToGeoJSON() *geojson.FeatureCollection {
	return d.set.FeatureCollection()
}

// FromGeoJSON replaces the polygons with the collection's polygon features.
// Other geometries are skipped. Loading does not mark the edit dirty.
func (d *Digitizer) FromGeoJSON(fc *geojson.FeatureCollection) {
	d.set.polygons = nil
	d.set.selected = ""
	if fc != nil {
		for _, feat := range fc.Features {
			p, err := d.set.polygonFromFeature(feat, d.date)
			if err != nil {
				d.logger.Warn("skipping training feature", slog.Any("error", err))
				continue
			}
			d.set.polygons = append(d.set.polygons, p)
		}
	}
	d.changed("updated", "")
}

func (d *Digitizer) changed(action, id string) {
	if d.notify != nil {
		d.notify(Change{Resource: "polygons", Action: action, ID: id})
	}
}

func trainingLayer(set *FeatureSet) *Layer {
	return &Layer{
		ID:      TrainingLayerID,
		Title:   "Training Polygons",
		ZIndex:  2,
		Visible: true,
		Opacity: 1,
		Source:  &VectorSource{Set: set},
	}
}

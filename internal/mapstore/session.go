package mapstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-cover/internal/geo"
	"github.com/joeblew999/plat-cover/internal/project"
)

// ErrUnknownDate is returned for basemap dates outside the offered range.
var ErrUnknownDate = errors.New("unknown basemap date")

// fitPadding is the pixel padding used when zooming to the AOI or bounds.
const fitPadding = 50

// AOIUpdater stores a project's area of interest remotely.
type AOIUpdater interface {
	SetProjectAOI(ctx context.Context, id int, update project.AOIUpdate) error
}

// Options configures a Session.
type Options struct {
	Projects     *project.Store
	AOI          AOIUpdater
	Fetcher      Fetcher
	PlanetAPIKey string
	Notify       Notifier
	Logger       *slog.Logger
	Now          func() time.Time
}

// Session is one editing session: a registry of surfaces, the mode
// controller, the digitizer and raster pipeline, and the project they work
// on. All methods are safe for concurrent use. State changes run one at a
// time; remote calls and raster fetches run outside the session lock.
type Session struct {
	mu sync.Mutex

	reg      *Registry
	set      *FeatureSet
	dig      *Digitizer
	modes    *ModeController
	raster   *Rasterizer
	projects *project.Store
	aoiAPI   AOIUpdater

	planetKey  string
	dates      []string // fixed at construction
	unlinkDual func()

	notify Notifier
	logger *slog.Logger
}

// NewSession creates a session with no surfaces.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	projects := opts.Projects
	if projects == nil {
		projects = project.NewStore(nil)
	}
	s := &Session{
		projects:  projects,
		aoiAPI:    opts.AOI,
		planetKey: opts.PlanetAPIKey,
		dates:     project.BasemapDates(),
		notify:    opts.Notify,
		logger:    logger,
	}
	s.reg = NewRegistry(opts.Notify, logger)
	s.set = NewFeatureSet(opts.Now)
	s.dig = NewDigitizer(s.set, s.reg, projects, opts.Notify, logger)
	s.modes = NewModeController(s.reg, s.dig, logger)
	s.raster = NewRasterizer(opts.Fetcher, logger)
	return s
}

// Registry exposes the layer registry. Its summary is safe to read at any
// time.
func (s *Session) Registry() *Registry { return s.reg }

// Projects exposes the project state.
func (s *Session) Projects() *project.Store { return s.projects }

func (s *Session) changed(id string) {
	if s.notify != nil {
		s.notify(Change{Resource: "session", Action: "updated", ID: id})
	}
}

func (s *Session) projectAOI() orb.Geometry {
	p := s.projects.Current()
	if p == nil || p.AOI == nil {
		return nil
	}
	return p.AOI.Geometry()
}

// InitMap builds the single map with its base and training layers, or just
// attaches it when it already exists.
func (s *Session) InitMap(target string, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initMap(target, force)
}

func (s *Session) initMap(target string, force bool) {
	if sf := s.reg.Surface(SurfaceSingle); sf != nil && !force {
		sf.Attach(target)
		s.reg.Refresh()
		return
	}
	s.dig.StopDraw()
	s.modes.mode = ModeNone

	sf := NewSurface(SurfaceSingle, NewView(geo.FromLonLat(singleHome), singleHomeZoom))
	s.reg.SetSurface(SurfaceSingle, sf)
	s.reg.AddLayer(osmLayer(), SurfaceSingle)
	s.reg.InsertLayer(trainingLayer(s.set), 0, SurfaceSingle)
	if g := s.projectAOI(); g != nil {
		s.displayAOI(g)
	}
	sf.Attach(target)
	s.reg.Refresh()
	s.logger.Info("map initialized", slog.String("target", target))
}

// ShowSingle attaches the single map to target, creating it if needed.
func (s *Session) ShowSingle(target string) {
	s.InitMap(target, false)
}

// HideSingle detaches the single map.
func (s *Session) HideSingle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf := s.reg.Surface(SurfaceSingle); sf != nil {
		sf.Detach()
		s.reg.Refresh()
	}
}

// SetProject makes p the active project. Polygons are restyled from its
// classes on the next render and its AOI is shown. The training dates are
// fetched after the session is released.
func (s *Session) SetProject(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	s.projects.SetCurrent(p)
	s.changed("project")
	if p == nil {
		s.clearAOI()
		s.mu.Unlock()
		return nil
	}
	if g := s.projectAOI(); g != nil {
		s.displayAOI(g)
	}
	s.mu.Unlock()

	if err := s.projects.FetchTrainingDates(ctx); err != nil {
		return xerrors.Newf("fetch training dates: %w", err)
	}
	return nil
}

// DisplayAOI replaces the AOI outline and fits the view to it.
func (s *Session) DisplayAOI(g orb.Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayAOI(g)
}

func (s *Session) displayAOI(g orb.Geometry) {
	sf := s.reg.Surface(SurfaceSingle)
	if sf == nil || g == nil {
		return
	}
	s.reg.InsertLayer(aoiLayer(g), 0, SurfaceSingle)
	sf.View().Fit(g.Bound(), sf.Size(), FitOptions{Padding: geo.UniformPadding(fitPadding)})
}

// ClearAOI removes the AOI outline.
func (s *Session) ClearAOI() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearAOI()
}

func (s *Session) clearAOI() {
	s.reg.RemoveLayer(AOILayerID, SurfaceSingle)
}

// SetProjectAOI stores g (EPSG:3857) as the active project's AOI together
// with its lat/lon extent and the offered basemap dates.
func (s *Session) SetProjectAOI(ctx context.Context, g orb.Geometry) error {
	p := s.projects.Current()
	if p == nil {
		return ErrNoProject
	}
	if s.aoiAPI == nil {
		return xerrors.Newf("no project API configured")
	}
	ext, err := geo.TransformExtent(g.Bound(), geo.EPSG3857, geo.EPSG4326)
	if err != nil {
		return xerrors.New(err)
	}
	update := project.AOIUpdate{
		AOI:             geojson.NewGeometry(g),
		AOIExtentLatLon: geo.Extent(ext),
		BasemapDates:    slices.Clone(s.dates),
	}
	if err := s.aoiAPI.SetProjectAOI(ctx, p.ID, update); err != nil {
		s.logger.ErrorContext(ctx, "setting project AOI failed", slog.Int("project", p.ID), slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects.Current() != p {
		s.logger.InfoContext(ctx, "project changed while its AOI was stored", slog.Int("project", p.ID))
		return nil
	}
	p.AOI = update.AOI
	s.changed("project")
	return nil
}

// BasemapURL is the Planet XYZ template of a monthly mosaic.
func BasemapURL(date, apiKey string) string {
	return fmt.Sprintf("https://tiles{0-3}.planet.com/basemaps/v1/planet-tiles/planet_medres_normalized_analytic_%s_mosaic/gmap/{z}/{x}/{y}.png?api_key=%s", date, apiKey)
}

// UpdateBasemap shows the mosaic of date, reusing the basemap layer when it
// exists.
func (s *Session) UpdateBasemap(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateBasemap(date)
}

func (s *Session) updateBasemap(date string) {
	s.dig.SetDate(date)
	s.changed("basemap")
	if s.reg.Surface(SurfaceSingle) == nil {
		return
	}
	if s.planetKey == "" {
		s.logger.Error("Planet API key is not set, basemap not shown", slog.String("date", date))
		return
	}
	src := TileSource{URL: BasemapURL(date, s.planetKey), Attribution: "Imagery © Planet Labs"}
	title := "Planet Basemap " + date
	if s.reg.Layer(BasemapLayerID, SurfaceSingle) != nil {
		s.reg.Update(BasemapLayerID, SurfaceSingle, func(l *Layer) {
			l.Source = src
			l.Title = title
		})
		return
	}
	s.reg.InsertLayer(&Layer{
		ID:      BasemapLayerID,
		Title:   title,
		ZIndex:  1,
		Visible: true,
		Opacity: 1,
		Source:  src,
	}, 2, SurfaceSingle)
}

// Dates returns the offered basemap dates.
func (s *Session) Dates() []string {
	return slices.Clone(s.dates)
}

// SetBasemapDate switches imagery and loads the polygons stored for date.
// The session stays usable while the training set is fetched; a result that
// arrives after another date was picked is dropped.
func (s *Session) SetBasemapDate(ctx context.Context, date string) error {
	if !slices.Contains(s.dates, date) {
		return fmt.Errorf("%w: %q", ErrUnknownDate, date)
	}
	s.mu.Lock()
	s.updateBasemap(date)
	s.mu.Unlock()

	p := s.projects.Current()
	if p == nil {
		s.logger.InfoContext(ctx, "no project, nothing to load", slog.String("date", date))
		return nil
	}
	fc, err := s.dig.fetch(ctx, p.ID, date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dig.SelectedDate() != date {
		s.logger.DebugContext(ctx, "stale training set dropped", slog.String("date", date))
		return nil
	}
	s.dig.loaded(fc)
	return nil
}

// NavigateDate guards a date switch with the unsaved-changes prompt. A save
// failure aborts the switch; a nil Confirmer counts as dismissed.
func (s *Session) NavigateDate(ctx context.Context, date string, c Confirmer) error {
	if !slices.Contains(s.dates, date) {
		return fmt.Errorf("%w: %q", ErrUnknownDate, date)
	}
	if err := s.PromptSave(ctx, c); err != nil {
		return err
	}
	return s.SetBasemapDate(ctx, date)
}

// NextDate moves to the following date; no-op on the last one.
func (s *Session) NextDate(ctx context.Context, c Confirmer) error {
	return s.stepDate(ctx, 1, c)
}

// PrevDate moves to the preceding date; no-op on the first one.
func (s *Session) PrevDate(ctx context.Context, c Confirmer) error {
	return s.stepDate(ctx, -1, c)
}

func (s *Session) stepDate(ctx context.Context, step int, c Confirmer) error {
	s.mu.Lock()
	current := s.dig.SelectedDate()
	s.mu.Unlock()
	i := slices.Index(s.dates, current) + step
	if current == "" && step < 0 {
		return nil
	}
	if i < 0 || i >= len(s.dates) {
		return nil
	}
	return s.NavigateDate(ctx, s.dates[i], c)
}

// ClearPredictionLayers removes every prediction layer from the single map.
func (s *Session) ClearPredictionLayers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.RemovePrefix(SurfaceSingle, PredictionLayerPrefix)
}

// AddGeoJSONLayer shows a feature collection as an overlay, replacing a
// layer with the same id.
func (s *Session) AddGeoJSONLayer(id string, fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.AddLayer(&Layer{
		ID:      id,
		Title:   id,
		ZIndex:  1,
		Visible: true,
		Opacity: 1,
		Source:  &VectorSource{Static: fc, Style: OverlayStyle},
	}, SurfaceSingle)
}

// FitBounds zooms the single map to g, at most to zoom 18.
func (s *Session) FitBounds(g orb.Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf := s.reg.Surface(SurfaceSingle)
	if sf == nil || g == nil {
		return
	}
	sf.View().Fit(g.Bound(), sf.Size(), FitOptions{Padding: geo.UniformPadding(fitPadding), MaxZoom: 18})
}

// Layer registry

func (s *Session) AddLayer(l *Layer, surface string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.AddLayer(l, surface)
}

func (s *Session) RemoveLayer(id, surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.RemoveLayer(id, surface)
}

func (s *Session) ToggleVisibility(id, surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.ToggleVisibility(id, surface)
}

func (s *Session) SetOpacity(id string, value float64, surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.SetOpacity(id, value, surface)
}

func (s *Session) Reorder(from, to int, surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Reorder(from, to, surface)
}

// Layers returns the layer summary without waiting for a running operation.
func (s *Session) Layers() []LayerSummary { return s.reg.Layers() }

// Layer returns a copy of a layer's envelope.
func (s *Session) Layer(id, surface string) *Layer { return s.reg.Layer(id, surface) }

// Modes and drawing

func (s *Session) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.modes.SetMode(m); err != nil {
		return err
	}
	s.changed("mode")
	return nil
}

func (s *Session) SetDrawingStyle(style DrawStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes.SetDrawingStyle(style)
	s.changed("drawing")
}

func (s *Session) ToggleDrawingStyle() DrawStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.changed("drawing")
	return s.modes.ToggleDrawingStyle()
}

func (s *Session) SetPolygonSize(size float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.SetPolygonSize(size)
}

func (s *Session) SetClass(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dig.SetClass(label)
}

// Input events

// Click delivers a map click to the single surface. Outside draw mode the
// click selects the topmost polygon under it.
func (s *Session) Click(p orb.Point) (handled bool, selected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf := s.reg.Surface(SurfaceSingle)
	if sf == nil {
		return false, ""
	}
	if sf.Click(p) {
		return true, ""
	}
	return false, s.dig.SelectAt(p)
}

func (s *Session) Stroke(points []orb.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf := s.reg.Surface(SurfaceSingle); sf != nil {
		return sf.Stroke(points)
	}
	return false
}

func (s *Session) Drag(dx, dy float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf := s.reg.Surface(SurfaceSingle); sf != nil {
		return sf.Drag(dx, dy)
	}
	return false
}

func (s *Session) Box(box orb.Bound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf := s.reg.Surface(SurfaceSingle); sf != nil {
		return sf.Box(box)
	}
	return false
}

// Polygons

func (s *Session) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.Select(id)
}

func (s *Session) SelectAt(p orb.Point) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.SelectAt(p)
}

func (s *Session) DeleteSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.DeleteSelected()
}

func (s *Session) UndoLast() (TrainingPolygon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.UndoLast()
}

func (s *Session) Clear(markDirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dig.Clear(markDirty)
}

func (s *Session) AddPolygon(feat *geojson.Feature) (TrainingPolygon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.AddPolygon(feat)
}

func (s *Session) ToGeoJSON() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.ToGeoJSON()
}

// StyledGeoJSON is ToGeoJSON with per-feature styles from the project's
// classes.
func (s *Session) StyledGeoJSON() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Styled(s.projects.Classes())
}

func (s *Session) FromGeoJSON(fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dig.FromGeoJSON(fc)
}

// Restore loads a recovered draft and marks it unsaved.
func (s *Session) Restore(fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dig.FromGeoJSON(fc)
	s.dig.touch()
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dig.Dirty()
}

// Discard drops the unsaved-changes flag.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dig.Discard()
	s.changed("dirty")
}

// Save stores the polygons for the selected date. The session is only held
// to take the polygons and to clear the flag afterwards; edits made while
// the remote API answers keep the session dirty.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	plan, err := s.dig.planSave(s.dig.SelectedDate())
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.dig.store(ctx, plan); err != nil {
		return err
	}

	s.mu.Lock()
	s.dig.saved(plan)
	s.mu.Unlock()
	s.dig.refreshDates(ctx)
	return nil
}

// LoadForDate replaces the polygons with the training set stored for date.
func (s *Session) LoadForDate(ctx context.Context, date string) error {
	p := s.projects.Current()
	if p == nil {
		s.logger.InfoContext(ctx, "no project, nothing to load", slog.String("date", date))
		return nil
	}
	fc, err := s.dig.fetch(ctx, p.ID, date)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dig.loaded(fc)
	return nil
}

// PromptSave asks c what to do with unsaved edits. The question and the
// save run without holding the session; a nil Confirmer counts as
// dismissed.
func (s *Session) PromptSave(ctx context.Context, c Confirmer) error {
	if c == nil || !s.Dirty() {
		return nil
	}
	switch c.Confirm(ctx) {
	case Confirmed:
		return s.Save(ctx)
	case Declined:
		s.logger.InfoContext(ctx, "changes discarded")
		s.Discard()
	}
	return nil
}

// Rasters

// DisplayRaster colorizes a raster and registers it. Fetching and decoding
// run without holding the session, so other operations proceed meanwhile.
func (s *Session) DisplayRaster(ctx context.Context, req RasterRequest) error {
	classes := slices.Clone(s.projects.Classes())
	layer, err := s.raster.Render(ctx, req, classes)
	if err != nil {
		s.logger.ErrorContext(ctx, "displaying raster failed",
			slog.String("path", req.Path),
			slog.String("layer", req.LayerID),
			slog.String("mode", req.Mode),
			slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Surface {
	case SurfacePrimary, SurfaceSecondary:
		if s.reg.Surface(req.Surface) == nil {
			s.logger.InfoContext(ctx, "raster for missing surface dropped", slog.String("surface", req.Surface))
			return nil
		}
		s.reg.AddLayer(layer, req.Surface)
	default:
		if s.reg.Surface(SurfaceSingle) == nil {
			s.logger.InfoContext(ctx, "raster before the map is ready dropped", slog.String("layer", req.LayerID))
			return nil
		}
		s.reg.AddLayer(layer, SurfaceSingle)
		s.reg.Reorder(s.reg.Count(SurfaceSingle)-1, 0, SurfaceSingle)
	}
	return nil
}

// DisplayRasters runs several DisplayRaster calls concurrently and returns
// the first error. Layers that succeeded stay registered.
func (s *Session) DisplayRasters(ctx context.Context, reqs ...RasterRequest) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		g.Go(func() error {
			return s.DisplayRaster(ctx, req)
		})
	}
	return g.Wait()
}

// Views

// View returns the view of a surface by value.
func (s *Session) View(surface string) (ViewState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf := s.reg.Surface(surface)
	if sf == nil {
		return ViewState{}, false
	}
	return sf.View().State(), true
}

// ViewUpdate changes any subset of a view's parameters.
type ViewUpdate struct {
	Center   *[2]float64 `json:"center,omitempty" doc:"Center in EPSG:3857"`
	LonLat   *[2]float64 `json:"lonLat,omitempty" doc:"Center in EPSG:4326, used when center is absent"`
	Zoom     *float64    `json:"zoom,omitempty" minimum:"0" maximum:"28"`
	Rotation *float64    `json:"rotation,omitempty"`
	Size     *Size       `json:"size,omitempty" doc:"Viewport size in pixels"`
}

// SetView applies u to a surface's view; dual views mirror the change.
func (s *Session) SetView(surface string, u ViewUpdate) (ViewState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf := s.reg.Surface(surface)
	if sf == nil {
		return ViewState{}, false
	}
	v := sf.View()
	if u.Size != nil {
		sf.SetSize(*u.Size)
	}
	switch {
	case u.Center != nil:
		v.SetCenter(orb.Point{u.Center[0], u.Center[1]})
	case u.LonLat != nil:
		v.SetCenter(geo.FromLonLat(orb.Point{u.LonLat[0], u.LonLat[1]}))
	}
	if u.Zoom != nil {
		v.SetZoom(*u.Zoom)
	}
	if u.Rotation != nil {
		v.SetRotation(*u.Rotation)
	}
	s.changed("view")
	return v.State(), true
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	Mode          Mode           `json:"mode"`
	Indicator     Indicator      `json:"indicator"`
	DrawStyle     DrawStyle      `json:"drawStyle"`
	Drawing       bool           `json:"drawing"`
	PolygonSize   float64        `json:"polygonSize"`
	SelectedClass string         `json:"selectedClass"`
	SelectedDate  string         `json:"selectedDate,omitempty"`
	Selected      string         `json:"selected,omitempty"`
	PolygonCount  int            `json:"polygonCount"`
	Dirty         bool           `json:"dirty" doc:"Unsaved changes"`
	ProjectID     int            `json:"projectId,omitempty"`
	Interactions  []Interaction  `json:"interactions"`
	Dual          bool           `json:"dual"`
	Layers        []LayerSummary `json:"layers"`
}

// Snapshot reports the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Mode:          s.modes.Mode(),
		Indicator:     s.modes.Indicator(),
		DrawStyle:     s.dig.DrawStyle(),
		Drawing:       s.dig.Drawing(),
		PolygonSize:   s.dig.PolygonSize(),
		SelectedClass: s.dig.SelectedClass(),
		SelectedDate:  s.dig.SelectedDate(),
		Selected:      s.set.Selected(),
		PolygonCount:  s.set.Len(),
		Dirty:         s.dig.Dirty(),
		Interactions:  []Interaction{},
		Dual:          s.reg.DualActive(),
		Layers:        s.reg.Layers(),
	}
	if p := s.projects.Current(); p != nil {
		snap.ProjectID = p.ID
	}
	if sf := s.reg.Surface(SurfaceSingle); sf != nil {
		snap.Interactions = sf.Interactions()
	}
	return snap
}

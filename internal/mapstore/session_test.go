package mapstore

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-cover/internal/project"
)

func newTestSession(t *testing.T, key string) (*Session, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	store := project.NewStore(api)
	s := NewSession(Options{Projects: store, AOI: api, PlanetAPIKey: key, Now: clock()})
	return s, api
}

func testProject() *project.Project {
	aoi := orb.Polygon{{{-8890000, -60000}, {-8880000, -60000}, {-8880000, -50000}, {-8890000, -50000}, {-8890000, -60000}}}
	return &project.Project{ID: 9, Name: "Cuyabeno", Classes: testClasses, AOI: geojson.NewGeometry(aoi)}
}

func TestDualViewsMirror(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitDual("left", "right")
	p := s.Registry().Surface(SurfacePrimary).View()
	q := s.Registry().Surface(SurfaceSecondary).View()

	calls := 0
	q.On(PropCenter, func(*View) { calls++ })

	if _, ok := s.SetView(SurfacePrimary, ViewUpdate{Center: &[2]float64{10, 20}}); !ok {
		t.Fatal("primary view missing")
	}
	if !q.Center().Equal(orb.Point{10, 20}) {
		t.Fatalf("secondary center=%v, want [10 20]", q.Center())
	}
	if calls != 1 {
		t.Fatalf("secondary center fired %d times, want 1", calls)
	}

	zoom := 14.0
	s.SetView(SurfaceSecondary, ViewUpdate{Zoom: &zoom})
	if math.Abs(p.Zoom()-14) > 1e-9 {
		t.Fatalf("primary zoom=%v, want 14", p.Zoom())
	}
	rot := 0.5
	s.SetView(SurfaceSecondary, ViewUpdate{Rotation: &rot})
	if p.Rotation() != 0.5 {
		t.Fatalf("primary rotation=%v, want 0.5", p.Rotation())
	}
	if !p.Center().Equal(orb.Point{10, 20}) {
		t.Fatalf("primary center moved to %v", p.Center())
	}
}

func TestReinitDualUnlinksOldPair(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitDual("left", "right")
	oldP := s.Registry().Surface(SurfacePrimary).View()
	oldQ := s.Registry().Surface(SurfaceSecondary).View()

	s.InitDual("left", "right")
	if len(oldP.listeners) != 0 || len(oldQ.listeners) != 0 {
		t.Fatalf("old views keep %d/%d listeners, want 0", len(oldP.listeners), len(oldQ.listeners))
	}
	p := s.Registry().Surface(SurfacePrimary).View()
	if len(p.listeners) != 3 {
		t.Fatalf("new primary has %d listeners, want 3", len(p.listeners))
	}

	oldP.SetCenter(orb.Point{1, 1})
	if s.Registry().Surface(SurfaceSecondary).View().Center().Equal(orb.Point{1, 1}) {
		t.Fatal("stale view still drives the new pair")
	}
	if got := s.Registry().Order(SurfacePrimary); len(got) != 1 || got[0] != BaseLayerID {
		t.Fatalf("primary layers=%v, want only osm", got)
	}
}

func TestHideShowDualKeepsState(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitMap("map", false)
	s.InitDual("left", "right")
	if !s.Snapshot().Dual {
		t.Fatal("dual not active after init")
	}
	s.SetView(SurfacePrimary, ViewUpdate{Center: &[2]float64{5, 5}})

	s.HideDual()
	snap := s.Snapshot()
	if snap.Dual {
		t.Fatal("dual still active after hide")
	}
	if len(snap.Layers) != 2 || snap.Layers[0].Surface != "" {
		t.Fatalf("layers=%+v, want the single map's", snap.Layers)
	}
	if s.Layer(BaseLayerID, SurfacePrimary) == nil {
		t.Fatal("hide dropped dual layers")
	}

	s.ShowDual("left", "right")
	if !s.Snapshot().Dual {
		t.Fatal("dual not active after show")
	}
	v, _ := s.View(SurfaceSecondary)
	if v.Center != [2]float64{5, 5} {
		t.Fatalf("secondary center=%v, want kept [5 5]", v.Center)
	}
}

func TestInitMapLayers(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitMap("map", false)
	if got := s.Registry().Order(SurfaceSingle); !equalIDs(got, []string{TrainingLayerID, BaseLayerID}) {
		t.Fatalf("order=%v, want [training osm]", got)
	}
	v, _ := s.View(SurfaceSingle)
	if math.Abs(v.Zoom-8) > 1e-9 || math.Abs(v.LonLat[0]+79.81822466589962) > 1e-9 {
		t.Fatalf("view=%+v, want Cuyabeno at zoom 8", v)
	}

	s.SetMode(ModePan)
	s.InitMap("other", false)
	if s.Snapshot().Mode != ModePan {
		t.Fatal("re-attach reset the mode")
	}
	s.InitMap("other", true)
	if s.Snapshot().Mode != ModeNone {
		t.Fatal("forced init kept the mode")
	}

	ctx := context.Background()
	if err := s.SetProject(ctx, testProject()); err != nil {
		t.Fatal(err)
	}
	want := []string{AOILayerID, TrainingLayerID, BaseLayerID}
	if got := summaryIDs(s.Layers()); !equalIDs(got, want) {
		t.Fatalf("summary=%v, want %v", got, want)
	}
	v, _ = s.View(SurfaceSingle)
	if v.Center[0] != -8885000 || v.Center[1] != -55000 {
		t.Fatalf("center=%v, want AOI center", v.Center)
	}
}

func TestBasemap(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitMap("map", false)
	s.UpdateBasemap("2023-05")
	if s.Layer(BasemapLayerID, SurfaceSingle) != nil {
		t.Fatal("basemap added without API key")
	}
	if s.Snapshot().SelectedDate != "2023-05" {
		t.Fatal("date not recorded without API key")
	}

	s, _ = newTestSession(t, "secret")
	s.InitMap("map", false)
	s.SetProject(context.Background(), testProject())
	s.UpdateBasemap("2023-05")
	order := s.Registry().Order(SurfaceSingle)
	if len(order) != 4 || order[2] != BasemapLayerID {
		t.Fatalf("order=%v, want basemap at position 2", order)
	}
	src := s.Layer(BasemapLayerID, SurfaceSingle).Source.(TileSource)
	if !strings.Contains(src.URL, "_2023-05_mosaic") || !strings.HasSuffix(src.URL, "api_key=secret") {
		t.Fatalf("url=%s", src.URL)
	}

	s.UpdateBasemap("2023-06")
	if n := s.Registry().Count(SurfaceSingle); n != 4 {
		t.Fatalf("count=%d after second update, want 4", n)
	}
	l := s.Layer(BasemapLayerID, SurfaceSingle)
	if l.Title != "Planet Basemap 2023-06" || !strings.Contains(l.Source.(TileSource).URL, "2023-06") {
		t.Fatalf("layer=%+v, want updated in place", l)
	}
}

func drawOne(t *testing.T, s *Session) {
	t.Helper()
	if err := s.SetMode(ModeDraw); err != nil {
		t.Fatal(err)
	}
	if handled, _ := s.Click(orb.Point{-8885000, -55000}); !handled {
		t.Fatal("draw click not handled")
	}
}

func TestNavigateDate(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*Session, *fakeAPI) {
		s, api := newTestSession(t, "key")
		s.InitMap("map", false)
		if err := s.SetProject(ctx, testProject()); err != nil {
			t.Fatal(err)
		}
		if err := s.SetBasemapDate(ctx, "2022-01"); err != nil {
			t.Fatal(err)
		}
		drawOne(t, s)
		return s, api
	}

	t.Run("unknown date", func(t *testing.T) {
		s, _ := setup(t)
		if err := s.NavigateDate(ctx, "1999-01", Answer(Declined)); !errors.Is(err, ErrUnknownDate) {
			t.Fatalf("err=%v, want ErrUnknownDate", err)
		}
	})

	t.Run("save failure aborts", func(t *testing.T) {
		s, api := setup(t)
		api.failWrite = true
		if err := s.NavigateDate(ctx, "2022-02", Answer(Confirmed)); err == nil {
			t.Fatal("expected save error")
		}
		snap := s.Snapshot()
		if snap.SelectedDate != "2022-01" || !snap.Dirty || snap.PolygonCount != 1 {
			t.Fatalf("snapshot=%+v, want unchanged", snap)
		}
	})

	t.Run("confirmed saves under the old date", func(t *testing.T) {
		s, api := setup(t)
		if err := s.NavigateDate(ctx, "2022-02", Answer(Confirmed)); err != nil {
			t.Fatal(err)
		}
		if len(api.created) != 1 || api.created[0].BasemapDate != "2022-01" {
			t.Fatalf("created=%+v, want set for 2022-01", api.created)
		}
		snap := s.Snapshot()
		if snap.SelectedDate != "2022-02" || snap.Dirty || snap.PolygonCount != 0 {
			t.Fatalf("snapshot=%+v, want clean 2022-02", snap)
		}
		if !s.Projects().HasTrainingData("2022-01") {
			t.Fatal("saved date not marked")
		}
	})

	t.Run("declined discards", func(t *testing.T) {
		s, api := setup(t)
		if err := s.NextDate(ctx, Answer(Declined)); err != nil {
			t.Fatal(err)
		}
		if len(api.created) != 0 || s.Dirty() || s.Snapshot().SelectedDate != "2022-02" {
			t.Fatalf("snapshot=%+v, want discarded and on 2022-02", s.Snapshot())
		}
	})
}

// slowAPI holds the next ListTrainingSets call until release is closed.
type slowAPI struct {
	*fakeAPI
	block   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (a *slowAPI) ListTrainingSets(ctx context.Context, projectID int) ([]project.TrainingSet, error) {
	if a.block.CompareAndSwap(true, false) {
		close(a.entered)
		<-a.release
	}
	return a.fakeAPI.ListTrainingSets(ctx, projectID)
}

func TestSaveLeavesSessionUsable(t *testing.T) {
	ctx := context.Background()
	api := &slowAPI{fakeAPI: &fakeAPI{}, entered: make(chan struct{}), release: make(chan struct{})}
	s := NewSession(Options{Projects: project.NewStore(api), AOI: api, PlanetAPIKey: "key", Now: clock()})
	s.InitMap("map", false)
	if err := s.SetProject(ctx, testProject()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBasemapDate(ctx, "2022-01"); err != nil {
		t.Fatal(err)
	}
	drawOne(t, s)

	api.block.Store(true)
	saved := make(chan error, 1)
	go func() { saved <- s.Save(ctx) }()
	<-api.entered

	done := make(chan struct{})
	go func() {
		zoom := 9.0
		s.SetView(SurfaceSingle, ViewUpdate{Zoom: &zoom})
		s.Snapshot()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(api.release)
		t.Fatal("session blocked while a save was in flight")
	}
	drawOne(t, s)

	close(api.release)
	if err := <-saved; err != nil {
		t.Fatal(err)
	}
	if len(api.created) != 1 {
		t.Fatalf("created=%d, want 1", len(api.created))
	}
	snap := s.Snapshot()
	if !snap.Dirty || snap.PolygonCount != 2 {
		t.Fatalf("snapshot=%+v, want dirty with 2 polygons", snap)
	}
}

func TestNavigateWithoutConfirmer(t *testing.T) {
	ctx := context.Background()
	s, api := newTestSession(t, "key")
	s.InitMap("map", false)
	if err := s.SetProject(ctx, testProject()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBasemapDate(ctx, "2022-01"); err != nil {
		t.Fatal(err)
	}
	drawOne(t, s)

	if err := s.NavigateDate(ctx, "2022-02", nil); err != nil {
		t.Fatal(err)
	}
	if len(api.created) != 0 {
		t.Fatalf("created=%+v, want nothing saved", api.created)
	}
	if snap := s.Snapshot(); snap.SelectedDate != "2022-02" || !snap.Dirty {
		t.Fatalf("snapshot=%+v, want dirty on 2022-02", snap)
	}
	if err := s.NextDate(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if len(api.created) != 0 {
		t.Fatal("NextDate without a confirmer saved")
	}
}

func TestStepDateBounds(t *testing.T) {
	s, _ := newTestSession(t, "")
	ctx := context.Background()
	if err := s.PrevDate(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().SelectedDate != "" {
		t.Fatal("PrevDate without a date picked one")
	}
	s.NextDate(ctx, nil)
	if got := s.Snapshot().SelectedDate; got != "2022-01" {
		t.Fatalf("date=%s, want 2022-01", got)
	}
	s.PrevDate(ctx, nil)
	if got := s.Snapshot().SelectedDate; got != "2022-01" {
		t.Fatalf("date=%s, want to stay on 2022-01", got)
	}
	s.SetBasemapDate(ctx, "2024-12")
	s.NextDate(ctx, nil)
	if got := s.Snapshot().SelectedDate; got != "2024-12" {
		t.Fatalf("date=%s, want to stay on 2024-12", got)
	}
}

func TestClickSelectsOutsideDrawMode(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitMap("map", false)
	drawOne(t, s)
	if n := s.Snapshot().PolygonCount; n != 1 {
		t.Fatalf("count=%d, want 1", n)
	}

	s.SetMode(ModePan)
	handled, selected := s.Click(orb.Point{-8885000, -55000})
	if handled || selected == "" {
		t.Fatalf("handled=%v selected=%q, want a selection", handled, selected)
	}
	snap := s.Snapshot()
	if snap.Selected != selected || len(snap.Interactions) != 1 || snap.Interactions[0] != InteractionDragPan {
		t.Fatalf("snapshot=%+v", snap)
	}
	if !s.Drag(10, 0) {
		t.Fatal("drag ignored in pan mode")
	}
}

func TestSetProjectAOI(t *testing.T) {
	s, api := newTestSession(t, "")
	ctx := context.Background()
	g := orb.Polygon{{{0, 0}, {100000, 0}, {100000, 100000}, {0, 0}}}

	if err := s.SetProjectAOI(ctx, g); !errors.Is(err, ErrNoProject) {
		t.Fatalf("err=%v, want ErrNoProject", err)
	}

	s.SetProject(ctx, &project.Project{ID: 4})
	api.failWrite = true
	if err := s.SetProjectAOI(ctx, g); err == nil {
		t.Fatal("expected API error")
	}
	if s.Projects().Current().AOI != nil {
		t.Fatal("failed update changed the project")
	}

	api.failWrite = false
	if err := s.SetProjectAOI(ctx, g); err != nil {
		t.Fatal(err)
	}
	if len(api.aoi.BasemapDates) != 36 {
		t.Fatalf("dates=%d, want 36", len(api.aoi.BasemapDates))
	}
	ext := api.aoi.AOIExtentLatLon
	if math.Abs(ext[0]) > 1e-9 || math.Abs(ext[1]) > 1e-9 || ext[2] < 0.89 || ext[2] > 0.9 {
		t.Fatalf("extent=%v, want lon/lat degrees", ext)
	}
	if s.Projects().Current().AOI == nil {
		t.Fatal("project AOI not stored")
	}
}

func TestFitBoundsCapsZoom(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitMap("map", false)
	s.FitBounds(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	v, _ := s.View(SurfaceSingle)
	if v.Zoom > 18+1e-9 {
		t.Fatalf("zoom=%v, want at most 18", v.Zoom)
	}
}

func TestAddGeoJSONLayerAndRestore(t *testing.T) {
	s, _ := newTestSession(t, "")
	s.InitMap("map", false)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
	s.AddGeoJSONLayer("hotspots", fc)
	l := s.Layer("hotspots", SurfaceSingle)
	if l == nil || l.Source.(*VectorSource).Style != OverlayStyle {
		t.Fatalf("layer=%+v, want overlay style", l)
	}

	s.Restore(fc)
	if !s.Dirty() || s.Snapshot().PolygonCount != 1 {
		t.Fatal("restore must load polygons and mark dirty")
	}
	s.Discard()
	if s.Dirty() {
		t.Fatal("discard kept the dirty flag")
	}
}

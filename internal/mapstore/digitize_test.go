package mapstore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-cover/internal/project"
)

// fakeAPI is an in-memory training-set backend.
type fakeAPI struct {
	sets      []project.TrainingSet
	failWrite bool
	failList  bool
	created   []project.TrainingSetInput
	updated   map[int]project.TrainingSetInput
	aoi       *project.AOIUpdate
}

func (f *fakeAPI) ListTrainingSets(ctx context.Context, projectID int) ([]project.TrainingSet, error) {
	if f.failList {
		return nil, errors.New("list failed")
	}
	return f.sets, nil
}

func (f *fakeAPI) GetTrainingSet(ctx context.Context, projectID, setID int) (*project.TrainingSet, error) {
	for i := range f.sets {
		if f.sets[i].ID == setID {
			return &f.sets[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) CreateTrainingSet(ctx context.Context, in project.TrainingSetInput) (*project.TrainingSet, error) {
	if f.failWrite {
		return nil, errors.New("write failed")
	}
	f.created = append(f.created, in)
	set := project.TrainingSet{ID: 100 + len(f.created), BasemapDate: in.BasemapDate, Name: in.Name, FeatureCount: len(in.Polygons.Features)}
	f.sets = append(f.sets, set)
	return &set, nil
}

func (f *fakeAPI) UpdateTrainingSet(ctx context.Context, id int, in project.TrainingSetInput) (*project.TrainingSet, error) {
	if f.failWrite {
		return nil, errors.New("write failed")
	}
	if f.updated == nil {
		f.updated = map[int]project.TrainingSetInput{}
	}
	f.updated[id] = in
	return &project.TrainingSet{ID: id}, nil
}

func (f *fakeAPI) SetTrainingSetExcluded(ctx context.Context, id int, excluded bool) error {
	return nil
}

func (f *fakeAPI) SetProjectAOI(ctx context.Context, id int, u project.AOIUpdate) error {
	if f.failWrite {
		return errors.New("write failed")
	}
	f.aoi = &u
	return nil
}

var testClasses = []project.Class{
	{Name: "Forest", Color: "#00aa00"},
	{Name: "Water", Color: "#0000ff"},
	{Name: "Urban", Color: "#888888"},
}

// clock returns a constant time so ids exercise the collision bump.
func clock() func() time.Time {
	t := time.UnixMilli(1700000000000)
	return func() time.Time { return t }
}

type digitizerFixture struct {
	dig *Digitizer
	set *FeatureSet
	sf  *Surface
	api *fakeAPI
}

func newDigitizer(t *testing.T) digitizerFixture {
	t.Helper()
	api := &fakeAPI{}
	store := project.NewStore(api)
	store.SetCurrent(&project.Project{ID: 1, Classes: testClasses})

	reg := NewRegistry(nil, nil)
	sf := NewSurface(SurfaceSingle, NewView(orb.Point{}, 5))
	reg.SetSurface(SurfaceSingle, sf)
	set := NewFeatureSet(clock())
	reg.AddLayer(trainingLayer(set), SurfaceSingle)

	dig := NewDigitizer(set, reg, store, nil, nil)
	dig.SetDate("2022-01")
	return digitizerFixture{dig: dig, set: set, sf: sf, api: api}
}

func TestSquareDrawing(t *testing.T) {
	fx := newDigitizer(t)
	fx.dig.StartDraw()
	fx.dig.SetClass("Water")

	if !fx.sf.Click(orb.Point{1000, 2000}) {
		t.Fatal("click not handled while drawing")
	}
	ps := fx.set.Polygons()
	if len(ps) != 1 {
		t.Fatalf("len=%d, want 1", len(ps))
	}
	ring := ps[0].Geometry[0]
	if len(ring) != 5 || !ring[0].Equal(ring[4]) {
		t.Fatalf("ring=%v, want closed 5-point ring", ring)
	}
	if !ring[0].Equal(orb.Point{950, 1950}) || !ring[2].Equal(orb.Point{1050, 2050}) {
		t.Fatalf("ring=%v, want 100-unit square around click", ring)
	}
	if ps[0].ClassLabel != "Water" || ps[0].BasemapDate != "2022-01" {
		t.Fatalf("polygon=%+v, want Water/2022-01", ps[0])
	}
	if !fx.dig.Dirty() {
		t.Fatal("drawing must mark dirty")
	}

	fx.sf.Click(orb.Point{0, 0})
	ps = fx.set.Polygons()
	if ps[0].ID == ps[1].ID {
		t.Fatalf("duplicate id %s", ps[0].ID)
	}

	fx.dig.StopDraw()
	fx.dig.StopDraw()
	if fx.sf.Click(orb.Point{0, 0}) {
		t.Fatal("click handled after StopDraw")
	}
}

func TestFreehandDrawing(t *testing.T) {
	fx := newDigitizer(t)
	fx.dig.SetStyle(StyleFreehand)
	fx.dig.StartDraw()

	fx.sf.Stroke([]orb.Point{{0, 0}, {0, 0}, {10, 0}})
	if fx.set.Len() != 0 {
		t.Fatal("degenerate stroke produced a polygon")
	}
	fx.sf.Stroke([]orb.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
	if fx.set.Len() != 1 {
		t.Fatalf("len=%d, want 1", fx.set.Len())
	}
	if ring := fx.set.Polygons()[0].Geometry[0]; len(ring) != 5 {
		t.Fatalf("ring len=%d, want 5", len(ring))
	}
}

func TestStartDrawWithoutTrainingLayer(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.SetSurface(SurfaceSingle, NewSurface(SurfaceSingle, NewView(orb.Point{}, 5)))
	dig := NewDigitizer(NewFeatureSet(nil), reg, nil, nil, nil)
	dig.StartDraw()
	if dig.Drawing() {
		t.Fatal("draw started without training layer")
	}
}

func TestUndoLIFO(t *testing.T) {
	fx := newDigitizer(t)
	fx.dig.StartDraw()
	for _, p := range []orb.Point{{0, 0}, {500, 0}, {1000, 0}} {
		fx.sf.Click(p)
	}
	ids := make([]string, 0, 3)
	for _, p := range fx.set.Polygons() {
		ids = append(ids, p.ID)
	}

	last, ok := fx.dig.UndoLast()
	if !ok || last.ID != ids[2] {
		t.Fatalf("undo removed %s, want %s", last.ID, ids[2])
	}
	fx.dig.UndoLast()
	fx.dig.UndoLast()
	if fx.set.Len() != 0 {
		t.Fatalf("len=%d after three undos, want 0", fx.set.Len())
	}
	if _, ok := fx.dig.UndoLast(); ok {
		t.Fatal("fourth undo reported a removal")
	}
}

func TestSelectAndDelete(t *testing.T) {
	fx := newDigitizer(t)
	fx.dig.StartDraw()
	fx.sf.Click(orb.Point{0, 0})
	fx.sf.Click(orb.Point{20, 20})
	ps := fx.set.Polygons()

	if got := fx.dig.SelectAt(orb.Point{10, 10}); got != ps[1].ID {
		t.Fatalf("SelectAt overlap=%s, want latest %s", got, ps[1].ID)
	}
	if got := fx.dig.SelectAt(orb.Point{5000, 5000}); got != "" {
		t.Fatalf("SelectAt miss=%q, want empty", got)
	}
	if fx.dig.DeleteSelected() {
		t.Fatal("delete without selection reported a removal")
	}

	fx.dig.Discard()
	fx.dig.Select(ps[0].ID)
	if !fx.dig.DeleteSelected() {
		t.Fatal("delete failed")
	}
	if fx.set.Len() != 1 || fx.set.Polygons()[0].ID != ps[1].ID {
		t.Fatalf("remaining=%v, want only %s", fx.set.Polygons(), ps[1].ID)
	}
	if !fx.dig.Dirty() || fx.set.Selected() != "" {
		t.Fatal("delete must mark dirty and clear selection")
	}
}

func TestGeoJSONRoundTrip(t *testing.T) {
	fx := newDigitizer(t)
	fx.dig.StartDraw()
	fx.dig.SetClass("Forest")
	fx.sf.Click(orb.Point{-8885000.123, -51000.456})
	fx.dig.SetClass("Urban")
	fx.dig.SetStyle(StyleFreehand)
	fx.sf.Stroke([]orb.Point{{1, 1}, {7.5, 1}, {7.5, 9.25}, {3, 12}})
	want := fx.set.Polygons()

	data, err := json.Marshal(fx.dig.ToGeoJSON())
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatal(err)
	}

	other := newDigitizer(t)
	other.dig.FromGeoJSON(fc)
	got := other.set.Polygons()
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].ClassLabel != want[i].ClassLabel || got[i].BasemapDate != want[i].BasemapDate {
			t.Fatalf("polygon %d=%+v, want %+v", i, got[i], want[i])
		}
		for j, p := range want[i].Geometry[0] {
			q := got[i].Geometry[0][j]
			if math.Abs(p[0]-q[0]) > 1e-9 || math.Abs(p[1]-q[1]) > 1e-9 {
				t.Fatalf("polygon %d point %d=%v, want %v", i, j, q, p)
			}
		}
	}
	if other.dig.Dirty() {
		t.Fatal("loading must not mark dirty")
	}
}

func TestFromGeoJSONSkipsOtherGeometries(t *testing.T) {
	fx := newDigitizer(t)
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))
	sq := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	sq.ID = 42.0
	sq.Properties["classLabel"] = "Water"
	fc.Append(sq)

	fx.dig.FromGeoJSON(fc)
	ps := fx.set.Polygons()
	if len(ps) != 1 || ps[0].ID != "42" || ps[0].ClassLabel != "Water" {
		t.Fatalf("polygons=%+v, want one Water polygon with id 42", ps)
	}
}

func TestAddPolygonDefaultsDate(t *testing.T) {
	fx := newDigitizer(t)
	feat := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	feat.Properties["classLabel"] = "Urban"
	p, err := fx.dig.AddPolygon(feat)
	if err != nil {
		t.Fatal(err)
	}
	if p.BasemapDate != "2022-01" || p.ID == "" {
		t.Fatalf("polygon=%+v, want date 2022-01 and an id", p)
	}
	if !fx.dig.Dirty() {
		t.Fatal("AddPolygon must mark dirty")
	}
	if _, err := fx.dig.AddPolygon(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})); err == nil {
		t.Fatal("expected error for a line")
	}
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		name     string
		class    string
		selected bool
		want     Style
	}{
		{"unselected", "Forest", false, Style{Fill: "#00aa004d", Stroke: "rgba(0,0,0,0.8)", Width: 2}},
		{"selected", "Water", true, Style{Fill: "#0000ff80", Stroke: "#FF4136", Width: 3}},
		{"unknown", "Lava", false, Style{Fill: "rgba(128,128,128,0.8)", Stroke: "rgba(0,0,0,0.8)", Width: 2}},
		{"unknown selected", "Lava", true, Style{Fill: "rgba(255,255,255,0.5)", Stroke: "#FF4136", Width: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StyleFor(TrainingPolygon{ClassLabel: tt.class}, tt.selected, testClasses)
			if got != tt.want {
				t.Fatalf("got=%+v, want %+v", got, tt.want)
			}
		})
	}
	if got := StyleFor(TrainingPolygon{ClassLabel: "Forest"}, false, nil); got.Fill != "rgba(128,128,128,0.8)" {
		t.Fatalf("no classes fill=%q, want gray", got.Fill)
	}
}

func TestSaveDirtyDiscipline(t *testing.T) {
	fx := newDigitizer(t)
	ctx := context.Background()
	fx.dig.StartDraw()
	fx.sf.Click(orb.Point{0, 0})

	fx.api.failWrite = true
	if err := fx.dig.Save(ctx, "2022-01"); err == nil {
		t.Fatal("expected save error")
	}
	if !fx.dig.Dirty() {
		t.Fatal("failed save cleared the dirty flag")
	}

	fx.api.failWrite = false
	if err := fx.dig.Save(ctx, "2022-01"); err != nil {
		t.Fatal(err)
	}
	if fx.dig.Dirty() {
		t.Fatal("successful save left the dirty flag")
	}
	if len(fx.api.created) != 1 || fx.api.created[0].Name != "Training_Set_2022-01" {
		t.Fatalf("created=%+v, want Training_Set_2022-01", fx.api.created)
	}
	if !fx.dig.projects.HasTrainingData("2022-01") {
		t.Fatal("training dates not refreshed after save")
	}

	fx.sf.Click(orb.Point{500, 500})
	if err := fx.dig.Save(ctx, "2022-01"); err != nil {
		t.Fatal(err)
	}
	if in, ok := fx.api.updated[101]; !ok || len(in.Polygons.Features) != 2 {
		t.Fatalf("updated=%+v, want set 101 with 2 polygons", fx.api.updated)
	}
}

func TestSaveWithoutProject(t *testing.T) {
	reg := NewRegistry(nil, nil)
	dig := NewDigitizer(NewFeatureSet(nil), reg, project.NewStore(&fakeAPI{}), nil, nil)
	if err := dig.Save(context.Background(), "2022-01"); !errors.Is(err, ErrNoProject) {
		t.Fatalf("err=%v, want ErrNoProject", err)
	}
}

func TestPromptSave(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		answer    Resolution
		failWrite bool
		wantErr   bool
		wantDirty bool
		wantSaved int
	}{
		{Confirmed, false, false, false, 1},
		{Confirmed, true, true, true, 0},
		{Declined, false, false, false, 0},
		{Dismissed, false, false, true, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.answer), func(t *testing.T) {
			fx := newDigitizer(t)
			fx.dig.StartDraw()
			fx.sf.Click(orb.Point{0, 0})
			fx.api.failWrite = tt.failWrite

			err := fx.dig.PromptSave(ctx, Answer(tt.answer))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr %v", err, tt.wantErr)
			}
			if fx.dig.Dirty() != tt.wantDirty {
				t.Fatalf("dirty=%v, want %v", fx.dig.Dirty(), tt.wantDirty)
			}
			if len(fx.api.created) != tt.wantSaved {
				t.Fatalf("saved=%d, want %d", len(fx.api.created), tt.wantSaved)
			}
		})
	}

	fx := newDigitizer(t)
	asked := false
	fx.dig.PromptSave(ctx, ConfirmFunc(func(context.Context) Resolution { asked = true; return Confirmed }))
	if asked {
		t.Fatal("clean state must not prompt")
	}
}

func TestLoadForDate(t *testing.T) {
	fx := newDigitizer(t)
	ctx := context.Background()
	fx.api.sets = []project.TrainingSet{{
		ID:           7,
		BasemapDate:  "2022-03",
		FeatureCount: 1,
		Polygons:     json.RawMessage(`{"type":"FeatureCollection","features":[{"type":"Feature","id":"5","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"classLabel":"Water"}}]}`),
	}}

	if err := fx.dig.LoadForDate(ctx, "2022-03"); err != nil {
		t.Fatal(err)
	}
	if fx.set.Len() != 1 || fx.set.Polygons()[0].ClassLabel != "Water" {
		t.Fatalf("polygons=%+v, want one Water polygon", fx.set.Polygons())
	}

	if err := fx.dig.LoadForDate(ctx, "2022-04"); err != nil {
		t.Fatal(err)
	}
	if fx.set.Len() != 0 {
		t.Fatal("date without training set must clear polygons")
	}

	fx.api.failList = true
	if err := fx.dig.LoadForDate(ctx, "2022-03"); err == nil {
		t.Fatal("expected list error")
	}
}

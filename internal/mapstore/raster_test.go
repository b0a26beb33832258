package mapstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-cover/internal/geotiff"
	"github.com/joeblew999/plat-cover/internal/project"
)

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	data, ok := f[path]
	if !ok {
		return nil, errors.New("HTTP error 404 (Not Found)")
	}
	return data, nil
}

func encodeRaster(t *testing.T, w, h int, values ...uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	r := &geotiff.Raster{
		Width:  w,
		Height: h,
		Bound:  orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(w) * 10, float64(h) * 10}},
		Values: values,
	}
	if err := geotiff.Encode(&buf, r, geotiff.EncodeOptions{EPSG: 3857}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestColorTables(t *testing.T) {
	table := LandcoverTable(testClasses)
	if got := table.Lookup(1); got != (color.RGBA{R: 0, G: 0, B: 0xff, A: 0xff}) {
		t.Fatalf("class 1=%v, want blue", got)
	}
	for _, v := range []uint16{NoData, 3, 200} {
		if got := table.Lookup(v); got.A != 0 {
			t.Fatalf("value %d alpha=%d, want transparent", v, got.A)
		}
	}

	change := ChangeTable()
	if got := change.Lookup(1); got.R != 0xff || got.G != 0 {
		t.Fatalf("change=%v, want red", got)
	}
	if _, err := TableFor("ndvi", nil); !errors.Is(err, ErrUnknownRasterMode) {
		t.Fatalf("err=%v, want ErrUnknownRasterMode", err)
	}
}

func TestRenderAllNoData(t *testing.T) {
	data := encodeRaster(t, 2, 2, NoData, NoData, NoData, NoData)
	rz := NewRasterizer(fakeFetcher{"empty.tif": data}, nil)

	l, err := rz.Render(context.Background(), RasterRequest{Path: "empty.tif", LayerID: "landcover-1"}, testClasses)
	if err != nil {
		t.Fatal(err)
	}
	img := l.Source.(*ImageSource).Image
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if a := img.RGBAAt(x, y).A; a != 0 {
				t.Fatalf("pixel %d,%d alpha=%d, want 0", x, y, a)
			}
		}
	}
}

func TestRenderLandcover(t *testing.T) {
	data := encodeRaster(t, 3, 1, 0, 2, 9)
	rz := NewRasterizer(fakeFetcher{"pred.tif": data}, nil)

	l, err := rz.Render(context.Background(), RasterRequest{Path: "pred.tif", LayerID: "landcover-7", Visible: true}, testClasses)
	if err != nil {
		t.Fatal(err)
	}
	if l.Title != "landcover-7" || l.ZIndex != 1 || l.Opacity != 0.7 || !l.Visible {
		t.Fatalf("layer=%+v, want default title, z1, opacity 0.7", l)
	}
	src := l.Source.(*ImageSource)
	if len(src.PNG) == 0 {
		t.Fatal("missing PNG encoding")
	}
	if src.Extent.Max[0] != 30 || src.Extent.Max[1] != 10 {
		t.Fatalf("extent=%v, want raster bound", src.Extent)
	}
	if got := src.Image.RGBAAt(0, 0); got != (color.RGBA{R: 0, G: 0xaa, B: 0, A: 0xff}) {
		t.Fatalf("class 0 pixel=%v, want Forest green", got)
	}
	if got := src.Image.RGBAAt(1, 0); got != (color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}) {
		t.Fatalf("class 2 pixel=%v, want Urban gray", got)
	}
	if got := src.Image.RGBAAt(2, 0); got.A != 0 {
		t.Fatalf("out-of-range pixel=%v, want transparent", got)
	}
}

func TestRenderErrorStages(t *testing.T) {
	rz := NewRasterizer(fakeFetcher{"bad.tif": []byte("not a tiff")}, nil)
	tests := []struct {
		path  string
		stage string
	}{
		{"", "fetch"},
		{"missing.tif", "fetch"},
		{"bad.tif", "decode"},
	}
	for _, tt := range tests {
		_, err := rz.Render(context.Background(), RasterRequest{Path: tt.path, LayerID: "x"}, testClasses)
		var re *RasterError
		if !errors.As(err, &re) {
			t.Fatalf("path %q: err=%v, want RasterError", tt.path, err)
		}
		if re.Stage != tt.stage || re.Path != tt.path {
			t.Fatalf("path %q: stage=%s path=%q, want %s", tt.path, re.Stage, re.Path, tt.stage)
		}
	}

	if _, err := NewRasterizer(nil, nil).Render(context.Background(), RasterRequest{Path: "a.tif"}, nil); err == nil {
		t.Fatal("expected error without fetcher")
	}
}

func TestDisplayRasterPlacement(t *testing.T) {
	data := encodeRaster(t, 1, 1, 1)
	s := NewSession(Options{Fetcher: fakeFetcher{"a.tif": data}})
	ctx := context.Background()
	req := RasterRequest{Path: "a.tif", LayerID: "landcover-1", Visible: true}

	if err := s.DisplayRaster(ctx, req); err != nil {
		t.Fatalf("raster before map: %v", err)
	}
	if len(s.Layers()) != 0 {
		t.Fatal("raster registered without a map")
	}

	s.InitMap("map", false)
	if err := s.DisplayRaster(ctx, req); err != nil {
		t.Fatal(err)
	}
	order := s.Registry().Order(SurfaceSingle)
	if order[0] != "landcover-1" {
		t.Fatalf("order=%v, want raster on top", order)
	}

	if err := s.DisplayRaster(ctx, req); err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, id := range s.Registry().Order(SurfaceSingle) {
		if id == "landcover-1" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("layer appears %d times, want 1", n)
	}

	if s.ClearPredictionLayers() != 1 {
		t.Fatal("prediction layer not cleared")
	}

	err := s.DisplayRaster(ctx, RasterRequest{Path: "gone.tif", LayerID: "landcover-2"})
	if err == nil || s.Layer("landcover-2", SurfaceSingle) != nil {
		t.Fatalf("err=%v, failed raster must not register a layer", err)
	}
}

func TestDisplayRasterOnDualSurface(t *testing.T) {
	data := encodeRaster(t, 1, 1, 0)
	s := NewSession(Options{Fetcher: fakeFetcher{"a.tif": data, "b.tif": data}})
	ctx := context.Background()
	s.InitDual("left", "right")

	err := s.DisplayRasters(ctx,
		RasterRequest{Path: "a.tif", LayerID: "landcover-a", Surface: SurfacePrimary, Visible: true},
		RasterRequest{Path: "b.tif", LayerID: "landcover-b", Surface: SurfaceSecondary, Visible: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	if s.Layer("landcover-a", SurfacePrimary) == nil || s.Layer("landcover-b", SurfaceSecondary) == nil {
		t.Fatal("rasters not placed on their surfaces")
	}
	if s.Layer("landcover-a", SurfaceSecondary) != nil {
		t.Fatal("primary raster leaked onto secondary")
	}
}

func TestDisplayRastersConcurrent(t *testing.T) {
	data := encodeRaster(t, 2, 2, 0, 1, 0, 1)
	files := fakeFetcher{}
	var reqs []RasterRequest
	for i := range 8 {
		path := fmt.Sprintf("tile-%d.tif", i)
		files[path] = data
		reqs = append(reqs, RasterRequest{Path: path, LayerID: fmt.Sprintf("landcover-%d", i%3), Visible: true})
	}
	s := NewSession(Options{Fetcher: files})
	s.InitMap("map", false)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Layers()
				s.Snapshot()
			}
		}
	}()
	err := s.DisplayRasters(ctx, reqs...)
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]int{}
	for _, id := range s.Registry().Order(SurfaceSingle) {
		seen[id]++
	}
	for i := range 3 {
		id := fmt.Sprintf("landcover-%d", i)
		if seen[id] != 1 {
			t.Fatalf("%s appears %d times, want 1", id, seen[id])
		}
	}

	err = s.DisplayRasters(ctx,
		RasterRequest{Path: "gone.tif", LayerID: "landcover-9"},
		RasterRequest{Path: "tile-0.tif", LayerID: "landcover-0"},
	)
	var re *RasterError
	if !errors.As(err, &re) || re.Path != "gone.tif" {
		t.Fatalf("err=%v, want raster error for gone.tif", err)
	}
	if s.Layer("landcover-9", SurfaceSingle) != nil {
		t.Fatal("failed raster registered a layer")
	}
	for i := range 3 {
		if s.Layer(fmt.Sprintf("landcover-%d", i), SurfaceSingle) == nil {
			t.Fatalf("landcover-%d lost after a failed batch", i)
		}
	}
}

func TestRenderUsesProjectClasses(t *testing.T) {
	data := encodeRaster(t, 1, 1, 0)
	store := project.NewStore(&fakeAPI{})
	store.SetCurrent(&project.Project{ID: 3, Classes: []project.Class{{Name: "Bare", Color: "#ff0000"}}})
	s := NewSession(Options{Projects: store, Fetcher: fakeFetcher{"a.tif": data}})
	s.InitMap("map", false)

	if err := s.DisplayRaster(context.Background(), RasterRequest{Path: "a.tif", LayerID: "landcover-1"}); err != nil {
		t.Fatal(err)
	}
	img := s.Layer("landcover-1", SurfaceSingle).Source.(*ImageSource).Image
	if got := img.RGBAAt(0, 0); got.R != 0xff || got.G != 0 {
		t.Fatalf("pixel=%v, want project red", got)
	}
}

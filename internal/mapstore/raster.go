package mapstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/joeblew999/plat-cover/internal/geo"
	"github.com/joeblew999/plat-cover/internal/geotiff"
	"github.com/joeblew999/plat-cover/internal/project"
)

// NoData is the pixel value meaning "no classification".
const NoData = 255

// Raster color modes.
const (
	RasterLandcover     = "landcover"
	RasterChange        = "change"
	RasterDeforestation = "deforestation"
)

// ErrUnknownRasterMode is returned for modes other than landcover or change.
var ErrUnknownRasterMode = errors.New("unknown raster mode")

// Fetcher downloads raster bytes.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// RasterRequest asks for a raster to be colorized into an image layer.
type RasterRequest struct {
	Path    string `json:"path" minLength:"1" doc:"Raster URL or path"`
	LayerID string `json:"layerId" minLength:"1" doc:"Layer id" example:"landcover-12"`
	Title   string `json:"title,omitempty" doc:"Layer title"`
	Mode    string `json:"mode,omitempty" enum:"landcover,change,deforestation" default:"landcover"`
	Surface string `json:"surface,omitempty" enum:"primary,secondary" doc:"Dual surface; empty for the single map"`
	Visible bool   `json:"visible,omitempty" doc:"Initial visibility"`
}

// RasterError names the stage that failed and the raster path.
type RasterError struct {
	Stage string // "fetch", "decode" or "colorize"
	Path  string
	Err   error
}

func (e *RasterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *RasterError) Unwrap() error { return e.Err }

// ColorTable maps pixel values to colors. Values beyond the table and the
// zero color are transparent.
type ColorTable []color.RGBA

// Lookup returns the color of v.
func (t ColorTable) Lookup(v uint16) color.RGBA {
	if v == NoData || int(v) >= len(t) {
		return color.RGBA{}
	}
	return t[v]
}

// LandcoverTable maps class index to class color. Classes with a malformed
// color render transparent.
func LandcoverTable(classes []project.Class) ColorTable {
	t := make(ColorTable, len(classes))
	for i, c := range classes {
		if rgb, err := geo.ParseHex(c.Color); err == nil {
			t[i] = rgb.RGBA()
		}
	}
	return t
}

// ChangeTable maps 0 to green (no change) and 1 to red (change).
func ChangeTable() ColorTable {
	return ColorTable{
		{R: 0x00, G: 0xff, B: 0x00, A: 0xff},
		{R: 0xff, G: 0x00, B: 0x00, A: 0xff},
	}
}

// TableFor picks the color table of a raster mode.
func TableFor(mode string, classes []project.Class) (ColorTable, error) {
	switch mode {
	case "", RasterLandcover:
		return LandcoverTable(classes), nil
	case RasterChange, RasterDeforestation:
		return ChangeTable(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRasterMode, mode)
}

// Colorize paints band values into a new image. The raster's own no-data
// value is transparent as well as NoData.
func Colorize(r *geotiff.Raster, t ColorTable) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			v := r.At(x, y)
			if r.HasNoData && float64(v) == r.NoData {
				continue
			}
			img.SetRGBA(x, y, t.Lookup(v))
		}
	}
	return img
}

// Rasterizer turns remote rasters into image layers. It holds no per-call
// state, so concurrent Render calls are independent.
type Rasterizer struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewRasterizer creates a rasterizer reading through f.
func NewRasterizer(f Fetcher, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{fetcher: f, logger: logger}
}

// Render fetches, decodes and colorizes req into a layer. Nothing is
// registered; on error no layer exists.
func (r *Rasterizer) Render(ctx context.Context, req RasterRequest, classes []project.Class) (*Layer, error) {
	table, err := TableFor(req.Mode, classes)
	if err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, &RasterError{Stage: "fetch", Path: req.Path, Err: errors.New("invalid raster path")}
	}
	if r.fetcher == nil {
		return nil, &RasterError{Stage: "fetch", Path: req.Path, Err: errors.New("no raster source configured")}
	}

	data, err := r.fetcher.Fetch(ctx, req.Path)
	if err != nil {
		return nil, &RasterError{Stage: "fetch", Path: req.Path, Err: err}
	}
	raster, err := geotiff.Decode(data)
	if err != nil {
		return nil, &RasterError{Stage: "decode", Path: req.Path, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &RasterError{Stage: "decode", Path: req.Path, Err: err}
	}

	img := Colorize(raster, table)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &RasterError{Stage: "colorize", Path: req.Path, Err: err}
	}

	title := req.Title
	if title == "" {
		title = req.LayerID
	}
	r.logger.DebugContext(ctx, "raster colorized",
		slog.String("path", req.Path),
		slog.String("layer", req.LayerID),
		slog.Int("width", raster.Width),
		slog.Int("height", raster.Height))

	return &Layer{
		ID:      req.LayerID,
		Title:   title,
		ZIndex:  1,
		Visible: req.Visible,
		Opacity: 0.7,
		Source:  &ImageSource{Extent: raster.Bound, Image: img, PNG: buf.Bytes()},
	}, nil
}

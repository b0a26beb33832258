// Package mapstore is the map session engine: map surfaces and their layer
// stacks, interaction modes, training-polygon digitizing, raster colorizing
// and dual-view synchronization.
//
// Nothing in this package is safe for concurrent use on its own except the
// layer summary; Session serializes every operation.
package mapstore

import (
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Well-known layer ids.
const (
	BaseLayerID     = "osm"
	TrainingLayerID = "training-polygons"
	AOILayerID      = "area-of-interest"
	BasemapLayerID  = "planet-basemap"

	// PredictionLayerPrefix marks layers removed by ClearPredictionLayers.
	PredictionLayerPrefix = "landcover-"
)

// Kind names the variant of a layer source.
type Kind string

const (
	KindTile   Kind = "tile"
	KindImage  Kind = "image"
	KindVector Kind = "vector"
)

// Source is the closed set of layer sources: TileSource, ImageSource and
// VectorSource.
type Source interface {
	kind() Kind
}

// TileSource is an XYZ raster tile service.
type TileSource struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
}

// ImageSource is a single image stretched over Extent (EPSG:3857). Image and
// PNG are not modified after the layer is created.
type ImageSource struct {
	Extent orb.Bound
	Image  *image.RGBA
	PNG    []byte
}

// VectorSource renders features. Training layers point at the live feature
// set; other vector layers carry a fixed collection and a single style.
type VectorSource struct {
	Set    *FeatureSet
	Static *geojson.FeatureCollection
	Style  Style
}

func (TileSource) kind() Kind    { return KindTile }
func (*ImageSource) kind() Kind  { return KindImage }
func (*VectorSource) kind() Kind { return KindVector }

// Layer is one entry of a surface's layer stack.
type Layer struct {
	ID      string
	Title   string
	ZIndex  int
	Visible bool
	Opacity float64
	Source  Source
}

// Kind reports the source variant, or "" for a layer without a source.
func (l *Layer) Kind() Kind {
	if l.Source == nil {
		return ""
	}
	return l.Source.kind()
}

// Clone copies the layer envelope. Tile and image sources are immutable and
// shared; a static vector collection is shared too since nothing edits it.
func (l *Layer) Clone() *Layer {
	c := *l
	return &c
}

// LayerSummary is the presentation row of one layer.
type LayerSummary struct {
	ID      string  `json:"id" doc:"Layer id"`
	Title   string  `json:"title" doc:"Display title"`
	ZIndex  int     `json:"zIndex" doc:"Paint order, higher on top"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity" minimum:"0" maximum:"1"`
	Kind    Kind    `json:"kind" enum:"tile,image,vector"`
	Surface string  `json:"surface,omitempty" doc:"Owning surface in dual mode" enum:"primary,secondary"`
}

func summarize(l *Layer, surface string) LayerSummary {
	return LayerSummary{
		ID:      l.ID,
		Title:   l.Title,
		ZIndex:  l.ZIndex,
		Visible: l.Visible,
		Opacity: l.Opacity,
		Kind:    l.Kind(),
		Surface: surface,
	}
}

func osmLayer() *Layer {
	return &Layer{
		ID:      BaseLayerID,
		Title:   "OpenStreetMap",
		ZIndex:  0,
		Visible: true,
		Opacity: 1,
		Source: TileSource{
			URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: "© OpenStreetMap contributors",
		},
	}
}

// AOIStyle outlines the area of interest without fill.
var AOIStyle = Style{Fill: "rgba(255, 255, 255, 0)", Stroke: "#000000", Width: 2}

// OverlayStyle is used by AddGeoJSONLayer.
var OverlayStyle = Style{Fill: "rgba(255, 68, 68, 0.2)", Stroke: "#FF4444", Width: 2}

func aoiLayer(g orb.Geometry) *Layer {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(g))
	return &Layer{
		ID:      AOILayerID,
		Title:   "Area of Interest",
		ZIndex:  3,
		Visible: true,
		Opacity: 1,
		Source:  &VectorSource{Static: fc, Style: AOIStyle},
	}
}

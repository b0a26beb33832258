package api

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/service"
)

// LayerHandler exposes the layer stacks of a session's surfaces.
type LayerHandler struct {
	base
}

func NewLayerHandler(sessions *service.SessionService) *LayerHandler {
	return &LayerHandler{base{sessions: sessions}}
}

func (h *LayerHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/layers", h.ListLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/sessions/{id}/layers/reorder", h.Reorder, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/sessions/{id}/layers/{layer}/visibility", h.ToggleVisibility, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/sessions/{id}/layers/{layer}/opacity", h.SetOpacity, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/sessions/{id}/layers/{layer}", h.DeleteLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/sessions/{id}/layers/{layer}/image", h.GetImage, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/sessions/{id}/layers/geojson", h.AddGeoJSON, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/sessions/{id}/rasters", h.DisplayRasters, huma.OperationTags("rasters"))
	huma.Delete(api, "/api/v1/sessions/{id}/rasters", h.ClearPredictions, huma.OperationTags("rasters"))
}

type LayerInput struct {
	SessionInput
	Layer   string `path:"layer" doc:"Layer ID" example:"basemap"`
	Surface string `query:"surface" doc:"Surface name; empty for the single map" example:"secondary"`
}

type ReorderBody struct {
	From    int    `json:"from" minimum:"0" doc:"Current position in the stack, 0 is the top layer"`
	To      int    `json:"to" minimum:"0" doc:"Target position"`
	Surface string `json:"surface,omitempty" doc:"Surface name; empty for the single map"`
}

type OpacityBody struct {
	Opacity float64 `json:"opacity" minimum:"0" maximum:"1" doc:"Layer opacity"`
}

type GeoJSONLayerBody struct {
	ID       string                     `json:"id" minLength:"1" doc:"Layer ID" example:"hotspots"`
	Features *geojson.FeatureCollection `json:"features" doc:"Features in EPSG:3857"`
}

type RastersBody struct {
	Rasters []mapstore.RasterRequest `json:"rasters" minItems:"1" doc:"Rasters to colorize"`
}

type LayersBody struct {
	Layers []mapstore.LayerSummary `json:"layers" doc:"Layers of every attached surface"`
}

type RemovedBody struct {
	Removed int `json:"removed" doc:"Number of layers removed"`
}

type ImageOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

func (h *LayerHandler) layers(sess *mapstore.Session) *struct{ Body LayersBody } {
	layers := sess.Layers()
	if layers == nil {
		layers = []mapstore.LayerSummary{}
	}
	return &struct{ Body LayersBody }{Body: LayersBody{Layers: layers}}
}

func (h *LayerHandler) ListLayers(ctx context.Context, input *SessionInput) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.layers(sess), nil
}

func (h *LayerHandler) Reorder(ctx context.Context, input *struct {
	SessionInput
	Body ReorderBody
}) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !sess.Reorder(input.Body.From, input.Body.To, input.Body.Surface) {
		return nil, huma.Error400BadRequest("position out of range")
	}
	return h.layers(sess), nil
}

func (h *LayerHandler) ToggleVisibility(ctx context.Context, input *LayerInput) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !sess.ToggleVisibility(input.Layer, input.Surface) {
		return nil, huma.Error404NotFound("layer not found")
	}
	return h.layers(sess), nil
}

func (h *LayerHandler) SetOpacity(ctx context.Context, input *struct {
	LayerInput
	Body OpacityBody
}) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !sess.SetOpacity(input.Layer, input.Body.Opacity, input.Surface) {
		return nil, huma.Error404NotFound("layer not found")
	}
	return h.layers(sess), nil
}

func (h *LayerHandler) DeleteLayer(ctx context.Context, input *LayerInput) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Layer == mapstore.TrainingLayerID {
		return nil, huma.Error409Conflict("the training layer cannot be removed")
	}
	if !sess.RemoveLayer(input.Layer, input.Surface) {
		return nil, huma.Error404NotFound("layer not found")
	}
	return h.layers(sess), nil
}

func (h *LayerHandler) GetImage(ctx context.Context, input *LayerInput) (*ImageOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	l := sess.Layer(input.Layer, input.Surface)
	if l == nil {
		return nil, huma.Error404NotFound("layer not found")
	}
	img, ok := l.Source.(*mapstore.ImageSource)
	if !ok || len(img.PNG) == 0 {
		return nil, huma.Error404NotFound("layer " + input.Layer + " has no image")
	}
	return &ImageOutput{ContentType: "image/png", CacheControl: "no-store", Body: img.PNG}, nil
}

func (h *LayerHandler) AddGeoJSON(ctx context.Context, input *struct {
	SessionInput
	Body GeoJSONLayerBody
}) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	id := input.Body.ID
	if id == mapstore.TrainingLayerID || id == mapstore.BasemapLayerID || id == mapstore.AOILayerID || strings.HasPrefix(id, mapstore.PredictionLayerPrefix) {
		return nil, huma.Error400BadRequest("layer id " + id + " is reserved")
	}
	fc := input.Body.Features
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	sess.AddGeoJSONLayer(id, fc)
	return h.layers(sess), nil
}

func (h *LayerHandler) DisplayRasters(ctx context.Context, input *struct {
	SessionInput
	Body RastersBody
}) (*struct{ Body LayersBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.DisplayRasters(ctx, input.Body.Rasters...); err != nil {
		return nil, apiError(err)
	}
	return h.layers(sess), nil
}

func (h *LayerHandler) ClearPredictions(ctx context.Context, input *SessionInput) (*struct{ Body RemovedBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body RemovedBody }{Body: RemovedBody{Removed: sess.ClearPredictionLayers()}}, nil
}

package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/service"
)

// MapHandler drives the map surfaces, views, modes and basemap of a session.
type MapHandler struct {
	base
}

func NewMapHandler(sessions *service.SessionService) *MapHandler {
	return &MapHandler{base{sessions: sessions}}
}

func (h *MapHandler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/sessions/{id}/map", h.InitMap, huma.OperationTags("map"))
	huma.Delete(api, "/api/v1/sessions/{id}/map", h.HideMap, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/sessions/{id}/dual", h.ShowDual, huma.OperationTags("map"))
	huma.Delete(api, "/api/v1/sessions/{id}/dual", h.HideDual, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/sessions/{id}/view", h.GetView, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/sessions/{id}/view", h.PutView, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/sessions/{id}/view/fit", h.FitView, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/sessions/{id}/mode", h.SetMode, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/sessions/{id}/drawing", h.SetDrawing, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/sessions/{id}/drawing/toggle", h.ToggleDrawing, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/sessions/{id}/basemap-date", h.SetBasemapDate, huma.OperationTags("basemap"))
	huma.Post(api, "/api/v1/sessions/{id}/basemap-date/{step}", h.StepBasemapDate, huma.OperationTags("basemap"))
	huma.Put(api, "/api/v1/sessions/{id}/aoi", h.SetAOI, huma.OperationTags("map"))
	huma.Delete(api, "/api/v1/sessions/{id}/aoi", h.ClearAOI, huma.OperationTags("map"))
}

type MapBody struct {
	Target string `json:"target" minLength:"1" doc:"Element the map renders into" example:"map"`
	Force  bool   `json:"force,omitempty" doc:"Rebuild the map even when it exists"`
}

type DualBody struct {
	Primary   string `json:"primary" minLength:"1" doc:"Element of the primary map" example:"map-left"`
	Secondary string `json:"secondary" minLength:"1" doc:"Element of the secondary map" example:"map-right"`
	Rebuild   bool   `json:"rebuild,omitempty" doc:"Replace an existing pair"`
}

type SurfaceInput struct {
	SessionInput
	Surface string `query:"surface" doc:"Surface name; empty for the single map" example:"primary"`
}

type FitBody struct {
	Extent [4]float64 `json:"extent" doc:"[minX, minY, maxX, maxY] in EPSG:3857"`
}

type ModeBody struct {
	Mode string `json:"mode" enum:"none,pan,zoom_in,zoom_out,draw" doc:"Interaction mode"`
}

type DrawingBody struct {
	Style string   `json:"style,omitempty" enum:"square,freehand" doc:"Drawing style"`
	Size  *float64 `json:"size,omitempty" exclusiveMinimum:"0" doc:"Square side length in meters"`
	Class string   `json:"class,omitempty" doc:"Class label given to new polygons" example:"Forest"`
}

type DateBody struct {
	Date       string `json:"date" doc:"Basemap month" example:"2023-05"`
	Resolution string `json:"resolution,omitempty" enum:"confirmed,declined,dismissed" doc:"Answer to the unsaved-changes prompt"`
}

type StepInput struct {
	SessionInput
	Step string    `path:"step" enum:"next,prev" doc:"Direction"`
	Body *StepBody `required:"false"`
}

type StepBody struct {
	Resolution string `json:"resolution,omitempty" enum:"confirmed,declined,dismissed" doc:"Answer to the unsaved-changes prompt"`
}

type AOIBody struct {
	Geometry *geojson.Geometry `json:"geometry" doc:"Polygon in EPSG:3857"`
}

// confirmer turns a request's resolution into a Confirmer. Sessions with
// unsaved edits need one.
func confirmer(sess *mapstore.Session, resolution string) (mapstore.Confirmer, error) {
	if resolution == "" {
		if sess.Dirty() {
			return nil, huma.Error409Conflict("unsaved changes: resend with a resolution of confirmed, declined or dismissed")
		}
		return mapstore.Answer(mapstore.Dismissed), nil
	}
	r, ok := mapstore.ParseResolution(resolution)
	if !ok {
		return nil, huma.Error400BadRequest("unknown resolution " + resolution)
	}
	return mapstore.Answer(r), nil
}

func (h *MapHandler) InitMap(ctx context.Context, input *struct {
	SessionInput
	Body MapBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.InitMap(input.Body.Target, input.Body.Force)
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) HideMap(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.HideSingle()
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) ShowDual(ctx context.Context, input *struct {
	SessionInput
	Body DualBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Body.Rebuild {
		sess.InitDual(input.Body.Primary, input.Body.Secondary)
	} else {
		sess.ShowDual(input.Body.Primary, input.Body.Secondary)
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) HideDual(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.HideDual()
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) GetView(ctx context.Context, input *SurfaceInput) (*struct{ Body mapstore.ViewState }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	v, ok := sess.View(input.Surface)
	if !ok {
		return nil, huma.Error404NotFound("surface not initialized")
	}
	return &struct{ Body mapstore.ViewState }{Body: v}, nil
}

func (h *MapHandler) PutView(ctx context.Context, input *struct {
	SurfaceInput
	Body mapstore.ViewUpdate
}) (*struct{ Body mapstore.ViewState }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	v, ok := sess.SetView(input.Surface, input.Body)
	if !ok {
		return nil, huma.Error404NotFound("surface not initialized")
	}
	return &struct{ Body mapstore.ViewState }{Body: v}, nil
}

func (h *MapHandler) FitView(ctx context.Context, input *struct {
	SessionInput
	Body FitBody
}) (*struct{ Body mapstore.ViewState }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	e := input.Body.Extent
	if e[0] > e[2] || e[1] > e[3] {
		return nil, huma.Error400BadRequest("extent must be [minX, minY, maxX, maxY]")
	}
	sess.FitBounds(orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}})
	v, ok := sess.View("")
	if !ok {
		return nil, huma.Error404NotFound("surface not initialized")
	}
	return &struct{ Body mapstore.ViewState }{Body: v}, nil
}

func (h *MapHandler) SetMode(ctx context.Context, input *struct {
	SessionInput
	Body ModeBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	m, err := mapstore.ParseMode(input.Body.Mode)
	if err != nil {
		return nil, apiError(err)
	}
	if err := sess.SetMode(m); err != nil {
		return nil, apiError(err)
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) SetDrawing(ctx context.Context, input *struct {
	SessionInput
	Body DrawingBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Body.Style != "" {
		style, err := mapstore.ParseDrawStyle(input.Body.Style)
		if err != nil {
			return nil, apiError(err)
		}
		sess.SetDrawingStyle(style)
	}
	if input.Body.Size != nil {
		if err := sess.SetPolygonSize(*input.Body.Size); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
	}
	if input.Body.Class != "" {
		sess.SetClass(input.Body.Class)
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) ToggleDrawing(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.ToggleDrawingStyle()
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) SetBasemapDate(ctx context.Context, input *struct {
	SessionInput
	Body DateBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	c, err := confirmer(sess, input.Body.Resolution)
	if err != nil {
		return nil, err
	}
	if err := sess.NavigateDate(ctx, input.Body.Date, c); err != nil {
		return nil, apiError(err)
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) StepBasemapDate(ctx context.Context, input *StepInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	var resolution string
	if input.Body != nil {
		resolution = input.Body.Resolution
	}
	c, err := confirmer(sess, resolution)
	if err != nil {
		return nil, err
	}
	if input.Step == "prev" {
		err = sess.PrevDate(ctx, c)
	} else {
		err = sess.NextDate(ctx, c)
	}
	if err != nil {
		return nil, apiError(err)
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) SetAOI(ctx context.Context, input *struct {
	SessionInput
	Body AOIBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Body.Geometry == nil {
		return nil, huma.Error400BadRequest("geometry is required")
	}
	g := input.Body.Geometry.Geometry()
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, huma.Error400BadRequest("AOI must be a polygon")
	}
	if err := sess.SetProjectAOI(ctx, g); err != nil {
		return nil, apiError(err)
	}
	sess.DisplayAOI(g)
	return h.state(ctx, input.ID, sess), nil
}

func (h *MapHandler) ClearAOI(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.ClearAOI()
	return h.state(ctx, input.ID, sess), nil
}

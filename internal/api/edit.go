package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/service"
)

// EditHandler feeds input events to a session and edits its training
// polygons.
type EditHandler struct {
	base
}

func NewEditHandler(sessions *service.SessionService) *EditHandler {
	return &EditHandler{base{sessions: sessions}}
}

func (h *EditHandler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/sessions/{id}/click", h.Click, huma.OperationTags("input"))
	huma.Post(api, "/api/v1/sessions/{id}/stroke", h.Stroke, huma.OperationTags("input"))
	huma.Post(api, "/api/v1/sessions/{id}/drag", h.Drag, huma.OperationTags("input"))
	huma.Post(api, "/api/v1/sessions/{id}/box", h.Box, huma.OperationTags("input"))
	huma.Put(api, "/api/v1/sessions/{id}/selection", h.Select, huma.OperationTags("polygons"))
	huma.Delete(api, "/api/v1/sessions/{id}/selection", h.DeleteSelected, huma.OperationTags("polygons"))
	huma.Post(api, "/api/v1/sessions/{id}/undo", h.Undo, huma.OperationTags("polygons"))
	huma.Get(api, "/api/v1/sessions/{id}/polygons", h.GetPolygons, huma.OperationTags("polygons"))
	huma.Put(api, "/api/v1/sessions/{id}/polygons", h.PutPolygons, huma.OperationTags("polygons"))
	huma.Post(api, "/api/v1/sessions/{id}/polygons", h.AddPolygon, huma.OperationTags("polygons"))
	huma.Delete(api, "/api/v1/sessions/{id}/polygons", h.ClearPolygons, huma.OperationTags("polygons"))
	huma.Post(api, "/api/v1/sessions/{id}/polygons/reload", h.Reload, huma.OperationTags("polygons"))
	huma.Post(api, "/api/v1/sessions/{id}/save", h.Save, huma.OperationTags("polygons"))
	huma.Post(api, "/api/v1/sessions/{id}/discard", h.Discard, huma.OperationTags("polygons"))
	huma.Get(api, "/api/v1/sessions/{id}/draft", h.GetDraft, huma.OperationTags("drafts"))
	huma.Post(api, "/api/v1/sessions/{id}/draft/restore", h.RestoreDraft, huma.OperationTags("drafts"))
}

type PointBody struct {
	X float64 `json:"x" doc:"EPSG:3857 easting"`
	Y float64 `json:"y" doc:"EPSG:3857 northing"`
}

type StrokeBody struct {
	Points [][2]float64 `json:"points" minItems:"1" doc:"Stroke vertices in EPSG:3857"`
}

type DragBody struct {
	DX float64 `json:"dx" doc:"Horizontal drag in pixels"`
	DY float64 `json:"dy" doc:"Vertical drag in pixels"`
}

type BoxBody struct {
	Extent [4]float64 `json:"extent" doc:"[minX, minY, maxX, maxY] in EPSG:3857"`
}

type InputResult struct {
	Handled  bool   `json:"handled" doc:"Whether an installed interaction consumed the event"`
	Selected string `json:"selected,omitempty" doc:"Polygon selected by the click"`
	SessionState
}

type SelectBody struct {
	PolygonID string `json:"polygonId" doc:"Polygon to highlight; empty clears"`
}

type PolygonsInput struct {
	SessionInput
	Styled bool `query:"styled" doc:"Attach per-feature styles"`
}

type UndoBody struct {
	Removed *mapstore.TrainingPolygon `json:"removed,omitempty" doc:"Polygon that was removed"`
	SessionState
}

func (h *EditHandler) input(ctx context.Context, id string, sess *mapstore.Session, handled bool, selected string) *struct{ Body InputResult } {
	h.sessions.Checkpoint(ctx, id, sess)
	return &struct{ Body InputResult }{Body: InputResult{Handled: handled, Selected: selected, SessionState: SessionState{ID: id, Snapshot: sess.Snapshot()}}}
}

func (h *EditHandler) Click(ctx context.Context, input *struct {
	SessionInput
	Body PointBody
}) (*struct{ Body InputResult }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	handled, selected := sess.Click(orb.Point{input.Body.X, input.Body.Y})
	return h.input(ctx, input.ID, sess, handled, selected), nil
}

func (h *EditHandler) Stroke(ctx context.Context, input *struct {
	SessionInput
	Body StrokeBody
}) (*struct{ Body InputResult }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	points := make([]orb.Point, len(input.Body.Points))
	for i, p := range input.Body.Points {
		points[i] = orb.Point(p)
	}
	return h.input(ctx, input.ID, sess, sess.Stroke(points), ""), nil
}

func (h *EditHandler) Drag(ctx context.Context, input *struct {
	SessionInput
	Body DragBody
}) (*struct{ Body InputResult }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.input(ctx, input.ID, sess, sess.Drag(input.Body.DX, input.Body.DY), ""), nil
}

func (h *EditHandler) Box(ctx context.Context, input *struct {
	SessionInput
	Body BoxBody
}) (*struct{ Body InputResult }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	e := input.Body.Extent
	if e[0] > e[2] || e[1] > e[3] {
		return nil, huma.Error400BadRequest("extent must be [minX, minY, maxX, maxY]")
	}
	box := orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}}
	return h.input(ctx, input.ID, sess, sess.Box(box), ""), nil
}

func (h *EditHandler) Select(ctx context.Context, input *struct {
	SessionInput
	Body SelectBody
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !sess.Select(input.Body.PolygonID) && input.Body.PolygonID != "" {
		return nil, huma.Error404NotFound("polygon not found")
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *EditHandler) DeleteSelected(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !sess.DeleteSelected() {
		return nil, huma.Error404NotFound("no polygon selected")
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *EditHandler) Undo(ctx context.Context, input *SessionInput) (*struct{ Body UndoBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	body := UndoBody{}
	if p, ok := sess.UndoLast(); ok {
		body.Removed = &p
	}
	body.SessionState = h.state(ctx, input.ID, sess).Body
	return &struct{ Body UndoBody }{Body: body}, nil
}

func (h *EditHandler) GetPolygons(ctx context.Context, input *PolygonsInput) (*struct{ Body *geojson.FeatureCollection }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	fc := sess.ToGeoJSON()
	if input.Styled {
		fc = sess.StyledGeoJSON()
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: fc}, nil
}

func (h *EditHandler) PutPolygons(ctx context.Context, input *struct {
	SessionInput
	Body *geojson.FeatureCollection
}) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.Restore(input.Body)
	return h.state(ctx, input.ID, sess), nil
}

func (h *EditHandler) AddPolygon(ctx context.Context, input *struct {
	SessionInput
	Body *geojson.Feature
}) (*struct{ Body mapstore.TrainingPolygon }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if input.Body == nil {
		return nil, huma.Error400BadRequest("feature is required")
	}
	p, err := sess.AddPolygon(input.Body)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	h.sessions.Checkpoint(ctx, input.ID, sess)
	return &struct{ Body mapstore.TrainingPolygon }{Body: p}, nil
}

func (h *EditHandler) ClearPolygons(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.Clear(true)
	return h.state(ctx, input.ID, sess), nil
}

func (h *EditHandler) Reload(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	date := sess.Snapshot().SelectedDate
	if date == "" {
		return nil, huma.Error409Conflict("no basemap date selected")
	}
	if err := sess.LoadForDate(ctx, date); err != nil {
		return nil, apiError(err)
	}
	sess.Discard()
	return h.state(ctx, input.ID, sess), nil
}

func (h *EditHandler) Save(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if sess.Snapshot().SelectedDate == "" {
		return nil, huma.Error409Conflict("no basemap date selected")
	}
	if err := sess.Save(ctx); err != nil {
		return nil, apiError(err)
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *EditHandler) Discard(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	sess.Discard()
	return h.state(ctx, input.ID, sess), nil
}

// draft looks up the stored draft of the session's project and date.
func (h *EditHandler) draft(ctx context.Context, sess *mapstore.Session) (*service.Draft, error) {
	drafts := h.sessions.Drafts()
	if drafts == nil {
		return nil, huma.Error404NotFound("drafts are disabled")
	}
	snap := sess.Snapshot()
	if snap.ProjectID == 0 || snap.SelectedDate == "" {
		return nil, huma.Error409Conflict("open a project and a basemap date first")
	}
	d, err := drafts.Get(ctx, snap.ProjectID, snap.SelectedDate)
	if errors.Is(err, service.ErrNoDraft) {
		return nil, huma.Error404NotFound("no draft for " + snap.SelectedDate)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("reading draft failed", err)
	}
	return d, nil
}

func (h *EditHandler) GetDraft(ctx context.Context, input *SessionInput) (*struct{ Body service.Draft }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	d, err := h.draft(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &struct{ Body service.Draft }{Body: *d}, nil
}

func (h *EditHandler) RestoreDraft(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	d, err := h.draft(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.Restore(d.Polygons)
	return h.state(ctx, input.ID, sess), nil
}

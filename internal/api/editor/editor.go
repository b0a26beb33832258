// Package editor contains Datastar SSE handlers for the editor UI.
package editor

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/humastar"
	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/project"
	"github.com/joeblew999/plat-cover/internal/service"
	"github.com/joeblew999/plat-cover/internal/templates"
)

// EditorHandler serves the Datastar side of the editor: live events, layer
// toggles and toolbar controls, all answered with SSE patches.
type EditorHandler struct {
	humastar.Handler
	sessions *service.SessionService
}

// NewEditorHandler creates the editor handler.
func NewEditorHandler(sessions *service.SessionService, renderer *templates.Renderer) *EditorHandler {
	return &EditorHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
	}
}

func (h *EditorHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/sessions/{id}/events", h.Events, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/sessions/{id}/layers", h.ListLayers, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sessions/{id}/layers/{layer}/visibility", h.ToggleVisibility, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sessions/{id}/layers/{layer}/opacity", h.SetOpacity, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sessions/{id}/controls", h.Controls, huma.OperationTags("editor"))
}

type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// LayerRow is the template data of one layer-row fragment.
type LayerRow struct {
	mapstore.LayerSummary
	Base string
}

// DateOptionData is the template data of one date-option fragment.
type DateOptionData struct {
	project.DateOption
	Selected    bool
	HasTraining bool
}

func basePath(id string) string {
	return "/api/v1/editor/sessions/" + id
}

func (h *EditorHandler) renderLayers(id string, sess *mapstore.Session) string {
	rows := sess.Layers()
	items := make([]any, len(rows))
	for i, l := range rows {
		items[i] = LayerRow{LayerSummary: l, Base: basePath(id)}
	}
	return h.RenderList("layer-row", items, "No layers", "Open a map to see its layers")
}

func (h *EditorHandler) renderDates(sess *mapstore.Session, selected string) string {
	opts := project.BasemapDateOptions()
	items := make([]any, len(opts))
	p := sess.Projects()
	for i, o := range opts {
		items[i] = DateOptionData{DateOption: o, Selected: o.Value == selected, HasTraining: p.HasTrainingData(o.Value)}
	}
	return h.RenderList("date-option", items, "No dates", "")
}

// stateSignals mirrors the toolbar state into Datastar signals.
func stateSignals(snap mapstore.Snapshot) map[string]any {
	return map[string]any{
		"mode":          string(snap.Mode),
		"drawStyle":     string(snap.DrawStyle),
		"drawing":       snap.Drawing,
		"polygonSize":   snap.PolygonSize,
		"selectedClass": snap.SelectedClass,
		"selectedDate":  snap.SelectedDate,
		"selected":      snap.Selected,
		"polygonCount":  snap.PolygonCount,
		"dirty":         snap.Dirty,
		"dual":          snap.Dual,
	}
}

// patchState sends the layer list, the mode indicator, the date picker and
// the state signals.
func (h *EditorHandler) patchState(sse humastar.SSE, id string, sess *mapstore.Session) {
	snap := sess.Snapshot()
	sse.Patch(h.renderLayers(id, sess), "#layer-list")
	if html, err := h.Renderer.Render("mode-indicator", snap.Indicator); err == nil {
		sse.Patch(html, "#mode-indicator")
	}
	sse.Patch(h.renderDates(sess, snap.SelectedDate), "#basemap-date")
	sse.Signals(stateSignals(snap))
}

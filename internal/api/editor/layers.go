package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/humastar"
)

type LayerInput struct {
	SessionInput
	Layer   string `path:"layer" doc:"Layer ID"`
	Surface string `query:"surface" doc:"Surface name; empty for the single map"`
}

func (h *EditorHandler) ListLayers(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	sess, err := h.sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.renderLayers(input.ID, sess), "#layer-list")
	}), nil
}

func (h *EditorHandler) ToggleVisibility(ctx context.Context, input *LayerInput) (*huma.StreamResponse, error) {
	sess, err := h.sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		if !sess.ToggleVisibility(input.Layer, input.Surface) {
			sse.Error("Layer not found: " + input.Layer)
			return
		}
		sse.Patch(h.renderLayers(input.ID, sess), "#layer-list")
	}), nil
}

func (h *EditorHandler) SetOpacity(ctx context.Context, input *struct {
	LayerInput
	humastar.SignalsInput
}) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	if !signals.Has("opacity") {
		return nil, huma.Error400BadRequest("opacity signal is required")
	}
	opacity := signals.Float("opacity")
	if opacity < 0 || opacity > 1 {
		return nil, huma.Error400BadRequest("opacity must be within [0, 1]")
	}
	sess, err := h.sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		if !sess.SetOpacity(input.Layer, opacity, input.Surface) {
			sse.Error("Layer not found: " + input.Layer)
			return
		}
		sse.Patch(h.renderLayers(input.ID, sess), "#layer-list")
	}), nil
}

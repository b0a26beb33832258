package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/humastar"
)

// Events streams a session's changes to the Datastar UI. Each bus event
// re-patches the affected fragments and is re-dispatched as a custom
// "session-changed" DOM event.
func (h *EditorHandler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	sess, err := h.sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	bus := h.sessions.Bus()

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := bus.Subscribe(input.ID)
			defer bus.Unsubscribe(ch)

			h.patchState(sse, input.ID, sess)
			for {
				select {
				case <-ctx.Done():
					return
				case <-humaCtx.Context().Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if ev.Resource == "sessions" && ev.Action == "deleted" {
						sse.Error("session deleted")
						return
					}
					h.patchState(sse, input.ID, sess)
					sse.DispatchCustomEvent("session-changed", map[string]any{
						"session":  ev.Session,
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}

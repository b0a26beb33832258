package editor

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/humastar"
	"github.com/joeblew999/plat-cover/internal/mapstore"
)

// Controls is the toolbar state a client submits as Datastar signals.
// Absent signals leave the session unchanged.
type Controls struct {
	Mode        string
	DrawStyle   string
	PolygonSize float64
	Class       string
	Date        string
	Resolution  string
}

// ParseControls reads the toolbar signals.
func ParseControls(s humastar.Signals) Controls {
	return Controls{
		Mode:        s.String("mode"),
		DrawStyle:   s.String("drawStyle"),
		PolygonSize: s.Float("polygonSize"),
		Class:       s.String("selectedClass"),
		Date:        s.String("selectedDate"),
		Resolution:  s.String("resolution"),
	}
}

// Apply pushes the controls into sess. Date changes go through the
// unsaved-changes prompt; without a resolution a dirty session refuses them
// with ErrUnsaved.
func (c Controls) Apply(ctx context.Context, sess *mapstore.Session) error {
	if c.Mode != "" {
		m, err := mapstore.ParseMode(c.Mode)
		if err != nil {
			return err
		}
		if err := sess.SetMode(m); err != nil {
			return err
		}
	}
	if c.DrawStyle != "" {
		style, err := mapstore.ParseDrawStyle(c.DrawStyle)
		if err != nil {
			return err
		}
		sess.SetDrawingStyle(style)
	}
	if c.PolygonSize > 0 {
		if err := sess.SetPolygonSize(c.PolygonSize); err != nil {
			return err
		}
	}
	if c.Class != "" {
		sess.SetClass(c.Class)
	}
	if c.Date != "" && c.Date != sess.Snapshot().SelectedDate {
		answer := mapstore.Answer(mapstore.Dismissed)
		if c.Resolution != "" {
			r, ok := mapstore.ParseResolution(c.Resolution)
			if !ok {
				return huma.Error400BadRequest("unknown resolution " + c.Resolution)
			}
			answer = mapstore.Answer(r)
		} else if sess.Dirty() {
			return ErrUnsaved
		}
		if err := sess.NavigateDate(ctx, c.Date, answer); err != nil {
			return err
		}
	}
	return nil
}

// ErrUnsaved asks the client to answer the unsaved-changes prompt.
var ErrUnsaved = errors.New("unsaved changes")

func (h *EditorHandler) Controls(ctx context.Context, input *struct {
	SessionInput
	humastar.SignalsInput
}) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sess, err := h.sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	controls := ParseControls(signals)

	return h.Stream(func(sse humastar.SSE) {
		err := controls.Apply(ctx, sess)
		h.sessions.Checkpoint(ctx, input.ID, sess)
		switch {
		case errors.Is(err, ErrUnsaved):
			sse.Signals(map[string]any{"promptSave": true})
		case err != nil:
			sse.Error(err.Error())
		default:
			sse.Success("Updated")
		}
		h.patchState(sse, input.ID, sess)
	}), nil
}

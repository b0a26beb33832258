package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/humastar"
	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/service"
)

// Per-session actions offered as Link headers.
var (
	saveAction     = humastar.ActionDef{Rel: "save", Pattern: "/api/v1/sessions/%s/save", Method: "POST", Title: "Save training polygons"}
	undoAction     = humastar.ActionDef{Rel: "undo", Pattern: "/api/v1/sessions/%s/undo", Method: "POST", Title: "Remove the last polygon"}
	deleteSelected = humastar.ActionDef{Rel: "delete-selected", Pattern: "/api/v1/sessions/%s/selection", Method: "DELETE", Title: "Delete the selected polygon"}
	restoreDraft   = humastar.ActionDef{Rel: "draft", Pattern: "/api/v1/sessions/%s/draft", Method: "GET", Title: "Unsaved draft"}
	eventsAction   = humastar.ActionDef{Rel: "events", Pattern: "/api/v1/editor/sessions/%s/events", Method: "GET", Title: "Live updates"}
)

// Actions implements humastar.Actor.
func (s SessionState) Actions() []humastar.Action {
	actions := []humastar.Action{eventsAction.For(s.ID)}
	if s.Dirty {
		actions = append(actions, saveAction.For(s.ID))
	}
	if s.PolygonCount > 0 {
		actions = append(actions, undoAction.For(s.ID))
	}
	if s.Selected != "" {
		actions = append(actions, deleteSelected.For(s.ID))
	}
	if s.ProjectID > 0 && s.SelectedDate != "" {
		actions = append(actions, restoreDraft.For(s.ID))
	}
	return actions
}

// SessionHandler manages editing sessions.
type SessionHandler struct {
	base
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{base{sessions: sessions}}
}

func (h *SessionHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/sessions", h.ListSessions, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Put(api, "/api/v1/sessions/{id}/project", h.SetProject, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/training-dates", h.GetTrainingDates, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/training-dates/{date}/excluded", h.ToggleExcluded, huma.OperationTags("sessions"))
}

type CreateSessionBody struct {
	ProjectID int `json:"projectId,omitempty" doc:"Project to open; 0 opens none" minimum:"0" example:"12"`
}

type ProjectBody struct {
	ProjectID int `json:"projectId" doc:"Project to open" minimum:"1" example:"12"`
}

type TrainingDatesBody struct {
	Dates    []string `json:"dates" doc:"Basemap months with a training set"`
	Excluded []string `json:"excluded" doc:"Months left out of model training"`
	Included []string `json:"included" doc:"Months used for model training"`
}

type DateInput struct {
	SessionInput
	Date string `path:"date" doc:"Basemap month" example:"2023-05"`
}

type ExcludedBody struct {
	Date     string `json:"date" doc:"Basemap month"`
	Excluded bool   `json:"excluded" doc:"Whether the month is now excluded"`
}

func (h *SessionHandler) ListSessions(ctx context.Context, input *struct{}) (*struct{ Body []service.SessionInfo }, error) {
	return &struct{ Body []service.SessionInfo }{Body: h.sessions.List()}, nil
}

func (h *SessionHandler) CreateSession(ctx context.Context, input *struct{ Body CreateSessionBody }) (*struct{ Body service.SessionInfo }, error) {
	info, err := h.sessions.Create(ctx, input.Body.ProjectID)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body service.SessionInfo }{Body: info}, nil
}

func (h *SessionHandler) GetSession(ctx context.Context, input *SessionInput) (*StateOutput, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &StateOutput{Body: SessionState{ID: input.ID, Snapshot: sess.Snapshot()}}, nil
}

func (h *SessionHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{ Body MessageBody }, error) {
	if err := h.sessions.Delete(input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session deleted"}}, nil
}

func (h *SessionHandler) SetProject(ctx context.Context, input *struct {
	SessionInput
	Body ProjectBody
}) (*StateOutput, error) {
	if err := h.sessions.SetProject(ctx, input.ID, input.Body.ProjectID); err != nil {
		return nil, apiError(err)
	}
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.state(ctx, input.ID, sess), nil
}

func (h *SessionHandler) GetTrainingDates(ctx context.Context, input *SessionInput) (*struct{ Body TrainingDatesBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	p := sess.Projects()
	if p.Current() == nil {
		return nil, apiError(mapstore.ErrNoProject)
	}
	body := TrainingDatesBody{Dates: orEmpty(p.TrainingDates()), Included: orEmpty(p.IncludedTrainingDates()), Excluded: []string{}}
	for _, d := range body.Dates {
		if p.IsExcluded(d) {
			body.Excluded = append(body.Excluded, d)
		}
	}
	return &struct{ Body TrainingDatesBody }{Body: body}, nil
}

func (h *SessionHandler) ToggleExcluded(ctx context.Context, input *DateInput) (*struct{ Body ExcludedBody }, error) {
	sess, err := h.session(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	p := sess.Projects()
	if p.Current() == nil {
		return nil, apiError(mapstore.ErrNoProject)
	}
	if !p.HasTrainingData(input.Date) {
		return nil, huma.Error404NotFound("no training set for " + input.Date)
	}
	excluded, err := p.ToggleExcluded(ctx, input.Date)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body ExcludedBody }{Body: ExcludedBody{Date: input.Date, Excluded: excluded}}, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

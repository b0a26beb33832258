package api

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/project"
)

// ProjectAPI is the part of the remote API proxied to clients.
type ProjectAPI interface {
	ListProjects(ctx context.Context) ([]project.Project, error)
	GetProject(ctx context.Context, id int) (*project.Project, error)
	TrainingSummary(ctx context.Context, projectID int) (json.RawMessage, error)
	ListModels(ctx context.Context, projectID int) (json.RawMessage, error)
	ListPredictions(ctx context.Context, projectID int) (json.RawMessage, error)
	DeforestationHotspots(ctx context.Context, predictionID int, minAreaHa float64, source string) (json.RawMessage, error)
}

// ProjectHandler proxies project lookups to the remote API.
type ProjectHandler struct {
	remote ProjectAPI
}

func NewProjectHandler(remote ProjectAPI) *ProjectHandler {
	return &ProjectHandler{remote: remote}
}

func (h *ProjectHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/projects", h.ListProjects, huma.OperationTags("projects"))
	huma.Get(api, "/api/v1/projects/{project}", h.GetProject, huma.OperationTags("projects"))
	huma.Get(api, "/api/v1/projects/{project}/training-summary", h.TrainingSummary, huma.OperationTags("projects"))
	huma.Get(api, "/api/v1/projects/{project}/models", h.ListModels, huma.OperationTags("projects"))
	huma.Get(api, "/api/v1/projects/{project}/predictions", h.ListPredictions, huma.OperationTags("projects"))
	huma.Get(api, "/api/v1/predictions/{prediction}/hotspots", h.Hotspots, huma.OperationTags("projects"))
}

type ProjectInput struct {
	Project int `path:"project" minimum:"1" doc:"Project ID" example:"12"`
}

type HotspotsInput struct {
	Prediction int     `path:"prediction" minimum:"1" doc:"Prediction ID"`
	MinAreaHa  float64 `query:"min_area_ha" minimum:"0" default:"1" doc:"Smallest hotspot area in hectares"`
	Source     string  `query:"source" enum:"all,ml,gfw" default:"all" doc:"Alert source"`
}

type RawOutput struct {
	Body any
}

func raw(data json.RawMessage, err error) (*RawOutput, error) {
	if err != nil {
		return nil, apiError(err)
	}
	return &RawOutput{Body: data}, nil
}

func (h *ProjectHandler) ListProjects(ctx context.Context, input *struct{}) (*struct{ Body []project.Project }, error) {
	projects, err := h.remote.ListProjects(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	if projects == nil {
		projects = []project.Project{}
	}
	return &struct{ Body []project.Project }{Body: projects}, nil
}

func (h *ProjectHandler) GetProject(ctx context.Context, input *ProjectInput) (*struct{ Body *project.Project }, error) {
	p, err := h.remote.GetProject(ctx, input.Project)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body *project.Project }{Body: p}, nil
}

func (h *ProjectHandler) TrainingSummary(ctx context.Context, input *ProjectInput) (*RawOutput, error) {
	return raw(h.remote.TrainingSummary(ctx, input.Project))
}

func (h *ProjectHandler) ListModels(ctx context.Context, input *ProjectInput) (*RawOutput, error) {
	return raw(h.remote.ListModels(ctx, input.Project))
}

func (h *ProjectHandler) ListPredictions(ctx context.Context, input *ProjectInput) (*RawOutput, error) {
	return raw(h.remote.ListPredictions(ctx, input.Project))
}

func (h *ProjectHandler) Hotspots(ctx context.Context, input *HotspotsInput) (*RawOutput, error) {
	return raw(h.remote.DeforestationHotspots(ctx, input.Prediction, input.MinAreaHa, input.Source))
}

package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/project"
)

type InfoHandler struct {
	dataDir    string
	backendURL string
	drafts     bool
	planet     bool
}

func NewInfoHandler(dataDir, backendURL string, drafts, planet bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, backendURL: backendURL, drafts: drafts, planet: planet}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/basemap-dates", h.GetBasemapDates, huma.OperationTags("basemap"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	BackendURL string   `json:"backend_url" doc:"Remote API root"`
	Drafts     bool     `json:"drafts" doc:"Whether unsaved drafts are kept"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"digitizing", "dual-map", "rasters"}
	if h.planet {
		features = append(features, "planet-basemaps")
	}
	if h.drafts {
		features = append(features, "drafts")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-cover",
		Version:    Version,
		DataDir:    h.dataDir,
		BackendURL: h.backendURL,
		Drafts:     h.drafts,
		Features:   features,
	}}, nil
}

func (h *InfoHandler) GetBasemapDates(ctx context.Context, input *struct{}) (*struct{ Body []project.DateOption }, error) {
	return &struct{ Body []project.DateOption }{Body: project.BasemapDateOptions()}, nil
}

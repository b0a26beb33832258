// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/backend"
	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/service"
)

// Version is reported by the health and info endpoints.
const Version = "0.1.0"

// Types

type SessionInput struct {
	ID string `path:"id" doc:"Session ID" example:"0b7c2f0e-8c1a-4a52-9d0e-2f7a1c9e6b11"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

// StateOutput carries the session state and its action links.
type StateOutput struct {
	Body SessionState
}

// SessionState is a session's descriptor and map state.
type SessionState struct {
	ID string `json:"id" doc:"Session ID"`
	mapstore.Snapshot
}

// Optional holds the handlers that need more than the session service.
type Optional struct {
	Info     *InfoHandler
	Auth     *AuthHandler
	Projects *ProjectHandler
}

// RegisterRoutes registers every REST handler on api. Nil optional handlers
// are skipped.
func RegisterRoutes(api huma.API, sessions *service.SessionService, opt Optional) {
	huma.Get(api, "/health", GetHealth, huma.OperationTags("health"))
	if opt.Info != nil {
		opt.Info.RegisterRoutes(api)
	}
	if opt.Auth != nil {
		opt.Auth.RegisterRoutes(api)
	}
	if opt.Projects != nil {
		opt.Projects.RegisterRoutes(api)
	}
	NewSessionHandler(sessions).RegisterRoutes(api)
	NewMapHandler(sessions).RegisterRoutes(api)
	NewLayerHandler(sessions).RegisterRoutes(api)
	NewEditHandler(sessions).RegisterRoutes(api)
}

// Handlers

func GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

// base holds what every session handler needs.
type base struct {
	sessions *service.SessionService
}

// session resolves the live session of id.
func (b base) session(ctx context.Context, id string) (*mapstore.Session, error) {
	sess, err := b.sessions.Get(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	return sess, nil
}

// state checkpoints the session and reports its state.
func (b base) state(ctx context.Context, id string, sess *mapstore.Session) *StateOutput {
	b.sessions.Checkpoint(ctx, id, sess)
	return &StateOutput{Body: SessionState{ID: id, Snapshot: sess.Snapshot()}}
}

// apiError maps domain errors to HTTP errors.
func apiError(err error) error {
	var rerr *mapstore.RasterError
	var status *backend.StatusError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrSessionNotFound):
		return huma.Error404NotFound("session not found")
	case errors.Is(err, backend.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, backend.ErrUnauthorized):
		return huma.Error401Unauthorized("backend rejected the credentials")
	case errors.Is(err, mapstore.ErrUnknownDate),
		errors.Is(err, mapstore.ErrUnknownMode),
		errors.Is(err, mapstore.ErrUnknownStyle):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, mapstore.ErrNoProject):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &rerr):
		return huma.Error502BadGateway("raster "+rerr.Stage+" failed", err)
	case errors.As(err, &status):
		return huma.Error502BadGateway("backend request failed", err)
	}
	return huma.Error502BadGateway(err.Error())
}

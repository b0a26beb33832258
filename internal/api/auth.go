package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-cover/internal/auth"
	"github.com/joeblew999/plat-cover/internal/backend"
)

// Authenticator exchanges credentials with the remote API.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResult, error)
}

// AuthHandler signs the server in to the remote API.
type AuthHandler struct {
	client Authenticator
	store  *auth.Store
}

func NewAuthHandler(client Authenticator, store *auth.Store) *AuthHandler {
	return &AuthHandler{client: client, store: store}
}

func (h *AuthHandler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/auth/login", h.Login, huma.OperationTags("auth"))
	huma.Post(api, "/api/v1/auth/logout", h.Logout, huma.OperationTags("auth"))
	huma.Get(api, "/api/v1/auth/user", h.CurrentUser, huma.OperationTags("auth"))
}

type LoginBody struct {
	Username string `json:"username" minLength:"1" doc:"Account name"`
	Password string `json:"password" minLength:"1" doc:"Account password"`
	Remember bool   `json:"remember,omitempty" doc:"Keep the token across restarts"`
}

type UserBody struct {
	UserID   int    `json:"userId,omitempty" doc:"Remote user ID"`
	Username string `json:"username,omitempty" doc:"Account name"`
	Email    string `json:"email,omitempty" doc:"Account e-mail"`
}

func userBody(u *auth.User) UserBody {
	return UserBody{UserID: u.UserID, Username: u.Username, Email: u.Email}
}

func (h *AuthHandler) Login(ctx context.Context, input *struct{ Body LoginBody }) (*struct{ Body UserBody }, error) {
	res, err := h.client.Login(ctx, input.Body.Username, input.Body.Password)
	if err != nil {
		return nil, apiError(err)
	}
	u := auth.User{Token: res.Token, UserID: res.UserID, Username: res.Username, Email: res.Email}
	if u.Username == "" {
		u.Username = input.Body.Username
	}
	if err := h.store.SetUser(u, input.Body.Remember); err != nil {
		return nil, huma.Error500InternalServerError("storing the token failed", err)
	}
	return &struct{ Body UserBody }{Body: userBody(&u)}, nil
}

func (h *AuthHandler) Logout(ctx context.Context, input *struct{}) (*struct{ Body MessageBody }, error) {
	h.store.Logout()
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Signed out"}}, nil
}

func (h *AuthHandler) CurrentUser(ctx context.Context, input *struct{}) (*struct{ Body UserBody }, error) {
	u := h.store.CurrentUser()
	if u == nil {
		return nil, huma.Error401Unauthorized("not signed in")
	}
	return &struct{ Body UserBody }{Body: userBody(u)}, nil
}

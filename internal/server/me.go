package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/identity"
)

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: actor}, nil
	})
}

// registerSession wires token logout and, when enabled, the dev login
// that mints a bearer token for any registered actor.
func registerSession(api huma.API, gw identity.Gateway, devLogin bool) {
	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Revoke the presented bearer token",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Authorization string `header:"Authorization"`
	}) (*struct{}, error) {
		token, ok := identity.BearerToken(strings.TrimSpace(input.Authorization))
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "bearer token required", nil)
		}
		if err := gw.Revoke(ctx, token); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	if !devLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for a registered actor",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID := strings.TrimSpace(input.Body.ActorID)
		if actorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, actor, err := gw.Issue(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, Actor: actor}}, nil
	})
}

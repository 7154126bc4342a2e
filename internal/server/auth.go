package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"bidline/internal/domain"
	"bidline/internal/identity"
)

type actorKey struct{}

func withActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// actorFromContext returns the caller resolved by the auth middleware.
func actorFromContext(ctx context.Context) (domain.Actor, huma.StatusError) {
	if a, ok := ctx.Value(actorKey{}).(domain.Actor); ok && a.ID != "" {
		return a, nil
	}
	return domain.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func credentialFromRequest(req *http.Request) (identity.Credential, bool) {
	var cred identity.Credential
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		token, ok := identity.BearerToken(authz)
		if !ok {
			return cred, false
		}
		cred.Bearer = token
	}
	cred.APIKey = strings.TrimSpace(req.Header.Get("X-Api-Key"))
	return cred, true
}

func newAuthMiddleware(basePath string, gw identity.Gateway) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			cred, ok := credentialFromRequest(req)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			if cred.Empty() {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			actor, err := gw.Resolve(req.Context(), cred)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withActor(req.Context(), actor)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

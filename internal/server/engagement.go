package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"bidline/internal/domain"
	"bidline/internal/engine"
)

func registerEngagement(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-work",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/submit-work",
		Summary:     "Submit delivered work for review",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      SubmitWorkRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SubmitWork(ctx, input.ProjectID, actor.ID, input.Body.GithubLink, input.Body.Document)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-funds",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/release-funds",
		Summary:     "Release escrowed funds and complete the project",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ReleaseFunds(ctx, input.ProjectID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/repo"
)

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Create a client-signed contract for an accepted bid",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateContractRequest `json:"body"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateContract(ctx, engine.ContractInput{
			ProjectID:    input.Body.ProjectID,
			BidID:        input.Body.BidID,
			ClientID:     actor.ID,
			Terms:        input.Body.Terms,
			SignatureRef: input.Body.Signature,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts the caller is party to",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedContracts `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cur, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Contracts(ctx, actor, repo.ContractFilters{ProjectID: input.ProjectID, Limit: limit + 1, Cursor: cur})
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, contractKey)
		return &struct {
			Body paginatedContracts `json:"body"`
		}{Body: paginatedContracts{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}",
		Summary:     "Get contract",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Contract(ctx, input.ContractID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sign-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/sign",
		Summary:     "Counter-sign a contract as the provider",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ContractID string              `path:"contract_id"`
		Body       SignContractRequest `json:"body"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CounterSignContract(ctx, input.ContractID, actor.ID, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})
}

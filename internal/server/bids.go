package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/repo"
)

// BidListQuery holds the filters shared by bid listings.
type BidListQuery struct {
	Status string `query:"status" enum:"pending,accepted,rejected"`
	Limit  int    `query:"limit" default:"50"`
	Cursor string `query:"cursor"`
}

func (q BidListQuery) filters() (repo.BidFilters, int, huma.StatusError) {
	cur, err := parseCompositeCursor(q.Cursor)
	if err != nil {
		return repo.BidFilters{}, 0, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": q.Cursor})
	}
	limit := normalizeLimit(q.Limit)
	return repo.BidFilters{Status: q.Status, Limit: limit + 1, Cursor: cur}, limit, nil
}

func registerBids(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-bid",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/bids",
		Summary:       "Submit a bid on an open project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      SubmitBidRequest `json:"body"`
	}) (*struct {
		Body domain.Bid `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.SubmitBid(ctx, engine.BidInput{
			ProjectID:   input.ProjectID,
			ProviderID:  actor.ID,
			Amount:      input.Body.Amount,
			Currency:    input.Body.Currency,
			CoverLetter: input.Body.CoverLetter,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Bid `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-bids",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/bids",
		Summary:     "List bids on an owned project",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		BidListQuery
	}) (*struct {
		Body paginatedBids `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, limit, qErr := input.filters()
		if qErr != nil {
			return nil, qErr
		}
		items, err := e.ProjectBids(ctx, input.ProjectID, actor.ID, f)
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, bidKey)
		return &struct {
			Body paginatedBids `json:"body"`
		}{Body: paginatedBids{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-bid",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/bids/{bid_id}/accept",
		Summary:     "Accept a bid and reject the others",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		BidID     string `path:"bid_id"`
	}) (*struct {
		Body AcceptBidResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, p, err := e.AcceptBid(ctx, input.ProjectID, input.BidID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptBidResponse `json:"body"`
		}{Body: AcceptBidResponse{Bid: b, Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "amend-bid",
		Method:      http.MethodPatch,
		Path:        "/bids/{bid_id}",
		Summary:     "Amend a pending bid",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		BidID string          `path:"bid_id"`
		Body  AmendBidRequest `json:"body"`
	}) (*struct {
		Body domain.Bid `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.AmendBid(ctx, input.BidID, actor.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Bid `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-bids",
		Method:      http.MethodGet,
		Path:        "/me/bids",
		Summary:     "List the caller's bids",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *BidListQuery) (*struct {
		Body paginatedBids `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.ServiceProvider() {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only service providers place bids", nil)
		}
		f, limit, qErr := input.filters()
		if qErr != nil {
			return nil, qErr
		}
		items, err := e.ProviderBids(ctx, actor.ID, f)
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, bidKey)
		return &struct {
			Body paginatedBids `json:"body"`
		}{Body: paginatedBids{Items: items, NextCursor: next}}, nil
	})
}

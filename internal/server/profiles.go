package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"bidline/internal/domain"
	"bidline/internal/engine"
)

type profileBody struct {
	Body domain.Profile `json:"body"`
}

func registerProfiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-my-profile",
		Method:      http.MethodGet,
		Path:        "/me/profile",
		Summary:     "Own profile with every section",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*profileBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Profile(ctx, actor.ID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-my-profile",
		Method:      http.MethodPatch,
		Path:        "/me/profile",
		Summary:     "Update profile sections",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body domain.ProfilePatch `json:"body"`
	}) (*profileBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProfile(ctx, actor.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-actor-profile",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/profile",
		Summary:     "Public profile of an actor",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*profileBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Profile(ctx, input.ActorID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attach-kyc",
		Method:      http.MethodPut,
		Path:        "/me/kyc",
		Summary:     "Attach an uploaded kyc document to the provider profile",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body AttachKYCRequest `json:"body"`
	}) (*profileBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AttachKYC(ctx, actor.ID, input.Body.Document)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileBody{Body: p}, nil
	})

	credentialErrors := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden}

	huma.Register(api, huma.Operation{
		OperationID:   "add-portfolio-item",
		Method:        http.MethodPost,
		Path:          "/me/portfolio",
		Summary:       "Add a portfolio entry",
		DefaultStatus: http.StatusCreated,
		Errors:        credentialErrors,
	}, func(ctx context.Context, input *struct {
		Body PortfolioRequest `json:"body"`
	}) (*struct {
		Body domain.PortfolioItem `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.AddPortfolioItem(ctx, actor.ID, domain.PortfolioItem{
			Title:       input.Body.Title,
			ProjectURL:  input.Body.ProjectURL,
			Description: input.Body.Description,
			ImageURL:    input.Body.ImageURL,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PortfolioItem `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-work-experience",
		Method:        http.MethodPost,
		Path:          "/me/experience",
		Summary:       "Add a work experience entry",
		DefaultStatus: http.StatusCreated,
		Errors:        credentialErrors,
	}, func(ctx context.Context, input *struct {
		Body ExperienceRequest `json:"body"`
	}) (*struct {
		Body domain.WorkExperience `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.AddWorkExperience(ctx, actor.ID, domain.WorkExperience{
			Role:             input.Body.Role,
			Company:          input.Body.Company,
			StartDate:        input.Body.StartDate,
			EndDate:          input.Body.EndDate,
			CurrentlyWorking: input.Body.CurrentlyWorking,
			Summary:          input.Body.Summary,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkExperience `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-education",
		Method:        http.MethodPost,
		Path:          "/me/education",
		Summary:       "Add an education entry",
		DefaultStatus: http.StatusCreated,
		Errors:        credentialErrors,
	}, func(ctx context.Context, input *struct {
		Body EducationRequest `json:"body"`
	}) (*struct {
		Body domain.Education `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ed, err := e.AddEducation(ctx, actor.ID, domain.Education{
			School:       input.Body.School,
			Degree:       input.Body.Degree,
			FieldOfStudy: input.Body.FieldOfStudy,
			StartYear:    input.Body.StartYear,
			EndYear:      input.Body.EndYear,
			Highlights:   input.Body.Highlights,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Education `json:"body"`
		}{Body: ed}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-certification",
		Method:        http.MethodPost,
		Path:          "/me/certifications",
		Summary:       "Add a certification",
		DefaultStatus: http.StatusCreated,
		Errors:        credentialErrors,
	}, func(ctx context.Context, input *struct {
		Body CertificationRequest `json:"body"`
	}) (*struct {
		Body domain.Certification `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddCertification(ctx, actor.ID, domain.Certification{
			Name:   input.Body.Name,
			Issuer: input.Body.Issuer,
			Year:   input.Body.Year,
			Link:   input.Body.Link,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Certification `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-credential",
		Method:        http.MethodDelete,
		Path:          "/me/credentials/{kind}/{id}",
		Summary:       "Remove a portfolio, experience, education or certification entry",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"portfolio,experience,education,certification"`
		ID   string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveCredential(ctx, actor.ID, input.Kind, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

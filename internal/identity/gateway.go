package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bidline/internal/domain"
	"bidline/internal/repo"
)

// Credential is what a caller presents: a bearer token or an API key.
type Credential struct {
	Bearer string
	APIKey string
}

func (c Credential) Empty() bool {
	return strings.TrimSpace(c.Bearer) == "" && strings.TrimSpace(c.APIKey) == ""
}

// Gateway resolves credentials to registered actors.
type Gateway struct {
	Repo        repo.Repo
	Secret      string
	TokenTTL    time.Duration
	Revocations RevocationStore
	Now         func() time.Time
}

func (g Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Resolve returns the actor behind cred. Invalid, expired or revoked
// credentials yield ErrUnauthenticated; deactivated actors ErrInactive.
func (g Gateway) Resolve(ctx context.Context, cred Credential) (domain.Actor, error) {
	var actorID string
	switch {
	case strings.TrimSpace(cred.Bearer) != "":
		claims, err := ParseToken(g.Secret, strings.TrimSpace(cred.Bearer))
		if err != nil {
			return domain.Actor{}, err
		}
		if g.Revocations != nil && claims.ID != "" {
			revoked, err := g.Revocations.IsRevoked(ctx, claims.ID)
			if err != nil {
				return domain.Actor{}, &domain.StorageError{Op: "check revocation", Err: err}
			}
			if revoked {
				return domain.Actor{}, fmt.Errorf("%w: token revoked", domain.ErrUnauthenticated)
			}
		}
		actorID = claims.Subject
	case strings.TrimSpace(cred.APIKey) != "":
		key, err := g.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(cred.APIKey))
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Actor{}, fmt.Errorf("%w: unknown api key", domain.ErrUnauthenticated)
		}
		if err != nil {
			return domain.Actor{}, err
		}
		actorID = key.ActorID
	default:
		return domain.Actor{}, fmt.Errorf("%w: credential required", domain.ErrUnauthenticated)
	}
	actor, err := g.Repo.GetActor(ctx, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Actor{}, fmt.Errorf("%w: unknown actor %s", domain.ErrUnauthenticated, actorID)
	}
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.Active {
		return actor, fmt.Errorf("actor %s: %w", actor.ID, domain.ErrInactive)
	}
	return actor, nil
}

// Issue mints a bearer token for a registered, active actor.
func (g Gateway) Issue(ctx context.Context, actorID string) (string, domain.Actor, error) {
	actor, err := g.Repo.GetActor(ctx, actorID)
	if err != nil {
		return "", actor, err
	}
	if !actor.Active {
		return "", actor, fmt.Errorf("actor %s: %w", actor.ID, domain.ErrInactive)
	}
	ttl := g.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := SignToken(g.Secret, actor, ttl, g.now())
	return token, actor, err
}

// Revoke blocks a bearer token until it would have expired anyway.
func (g Gateway) Revoke(ctx context.Context, token string) error {
	claims, err := ParseToken(g.Secret, token)
	if err != nil {
		return err
	}
	if g.Revocations == nil || claims.ID == "" {
		return nil
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return g.Revocations.Revoke(ctx, claims.ID, exp)
}

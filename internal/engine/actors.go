package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bidline/internal/domain"
	"bidline/internal/events"
	"bidline/internal/repo"
)

// RegisterActor adds a client or service provider. An empty id gets a
// generated one.
func (e Engine) RegisterActor(ctx context.Context, a domain.Actor, operatorID string) (domain.Actor, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if !a.Kind.Valid() {
		return domain.Actor{}, domain.Invalid("kind must be %s or %s", domain.ActorClient, domain.ActorServiceProvider)
	}
	if operatorID == "" {
		operatorID = a.ID
	}
	a.Active = true
	a.CreatedAt = e.stamp()
	err := e.run(ctx, "register_actor", func(t *txn) error {
		if err := e.Repo.InsertActor(ctx, t.Tx, a); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.ActorRegistered, "", "actor", a.ID, operatorID,
			events.EventPayload{"kind": string(a.Kind)})
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("register actor: %w", err)
	}
	return a, nil
}

// DeactivateActor marks an actor inactive; the identity gateway refuses
// its credentials from then on.
func (e Engine) DeactivateActor(ctx context.Context, actorID, operatorID string) error {
	if operatorID == "" {
		operatorID = actorID
	}
	err := e.run(ctx, "deactivate_actor", func(t *txn) error {
		if err := e.Repo.SetActorActive(ctx, t.Tx, actorID, false); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.ActorDeactivated, "", "actor", actorID, operatorID, nil)
	})
	if err != nil {
		return fmt.Errorf("deactivate actor: %w", err)
	}
	return nil
}

// IssueAPIKey creates a key for actorID and returns its plaintext once;
// only the hash is stored.
func (e Engine) IssueAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "bl_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	err := e.run(ctx, "issue_api_key", func(t *txn) error {
		if _, err := e.authorize(ctx, t, actorID, ""); err != nil {
			return err
		}
		return e.Repo.InsertAPIKey(ctx, t.Tx, key)
	})
	if err != nil {
		return "", domain.APIKey{}, fmt.Errorf("issue api key: %w", err)
	}
	return plain, key, nil
}

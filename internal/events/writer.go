package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bidline/internal/db"
	"bidline/internal/domain"
)

// Event types written to the audit log.
const (
	ProjectCreated    = "project.created"
	ProjectUpdated    = "project.updated"
	ProjectDeleted    = "project.deleted"
	ProjectTransition = "project.status_changed"
	ProjectCancelled  = "project.cancelled"
	BidSubmitted      = "bid.submitted"
	BidAmended        = "bid.amended"
	BidAccepted       = "bid.accepted"
	ContractCreated   = "contract.created"
	ContractSigned    = "contract.fully_signed"
	WorkSubmitted     = "work.submitted"
	FundsReleased     = "funds.released"
	ActorRegistered   = "actor.registered"
	ActorDeactivated  = "actor.deactivated"
	ProfileUpdated    = "actor.profile_updated"
	CredentialAdded   = "actor.credential_added"
	CredentialRemoved = "actor.credential_removed"
	KYCSubmitted      = "actor.kyc_submitted"
	DocumentUploaded  = "document.uploaded"
)

// Writer appends audit events inside the caller's transaction so an event
// exists exactly when its state change committed.
type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		domain.Timestamp(now()), evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return db.Classify("append event", err)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStateErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("accept: %w", NewStateError("project", "p1", ProjectOpen, ProjectInProgress))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError")
	}
	if se.Expected != ProjectOpen || se.Actual != ProjectInProgress {
		t.Fatalf("unexpected state error %+v", se)
	}
}

func TestStorageErrorUnwrapsBoth(t *testing.T) {
	cause := errors.New("database is locked")
	err := &StorageError{Op: "begin", Err: cause}
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("storage error should match sentinel and cause: %v", err)
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(BidPatch{}).Empty() || !(ProjectPatch{}).Empty() {
		t.Fatalf("zero patches should be empty")
	}
	amount := int64(10)
	if (BidPatch{Amount: &amount}).Empty() {
		t.Fatalf("patch with amount is not empty")
	}
}

func TestActorKind(t *testing.T) {
	a := Actor{ID: "c1", Kind: ActorClient, Active: true}
	if !a.Client() || a.ServiceProvider() {
		t.Fatalf("client actor misclassified")
	}
	if ActorKind("admin").Valid() {
		t.Fatalf("unknown kind should be invalid")
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":              nil,
		"not_found":       NotFound("bid", "b1"),
		"invalid_state":   NewStateError("bid", "b1", BidPending, BidAccepted),
		"conflict":        fmt.Errorf("insert: %w", ErrConflict),
		"invalid_input":   Invalid("amount must be positive"),
		"forbidden":       ErrInactive,
		"storage_failure": &StorageError{Op: "commit", Err: errors.New("busy")},
		"error":           errors.New("boom"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %s, want %s", err, got, want)
		}
	}
}

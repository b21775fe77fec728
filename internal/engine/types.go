package engine

import (
	"context"
	"fmt"

	"github.com/roach88/synclog/internal/event"
)

// Profile is the deployment profile the engine was constructed for.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileStaging     Profile = "staging"
	ProfileProduction  Profile = "production"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case ProfileDevelopment, ProfileStaging, ProfileProduction:
		return p, nil
	default:
		return "", fmt.Errorf("unknown profile %q", s)
	}
}

// ConflictReason is the closed set of push conflict reasons.
type ConflictReason string

const (
	// ReasonServerAhead means the caller is behind; rebase using Missing.
	ReasonServerAhead ConflictReason = "server_ahead"

	// ReasonServerBehind means the caller's expected head exceeds the true
	// head. Signals a client bug; there is nothing to rebase onto.
	ReasonServerBehind ConflictReason = "server_behind"

	// ReasonMissingDeps means a referenced scope state or grant is unknown.
	ReasonMissingDeps ConflictReason = "missing_deps"

	// ReasonStaleScopeState means the referenced scope state is not the head.
	ReasonStaleScopeState ConflictReason = "stale_scope_state"

	// ReasonStaleGrant means the referenced grant is not the active one.
	ReasonStaleGrant ConflictReason = "stale_grant"
)

// Conflict is a rejected push that the client can resolve.
type Conflict struct {
	Reason ConflictReason
	Head   int64

	// Missing holds events after the caller's expected head, set only for
	// server_ahead and only when non-empty.
	Missing []event.Record

	// Detail is a human readable explanation for dependency failures.
	Detail string
}

// PushResult is the outcome of Push. OK is true iff Conflict is nil.
type PushResult struct {
	OK       bool
	Head     int64
	Assigned []event.Assignment
	Conflict *Conflict
}

// PullResult is a page of events plus the head read after the page.
// Head is a hint: a racing push may move it past the last returned event.
type PullResult struct {
	Events []event.Record
	Head   int64
}

// EventRepository is the append-only log the engine arbitrates.
type EventRepository interface {
	AppendBatch(ctx context.Context, req event.AppendRequest) (event.AppendResult, error)
	GetHeadSequence(ctx context.Context, ownerID, storeID string) (int64, error)
	LoadSince(ctx context.Context, ownerID, storeID string, since int64, limit int) ([]event.Record, error)
	ResetStore(ctx context.Context, ownerID, storeID string) error
}

// StoreOwnerGuard binds store ids to owners. Implemented by ownership.Guard.
// VerifyStoreOwner is the read-only check used by destructive operations.
type StoreOwnerGuard interface {
	EnsureStoreOwner(ctx context.Context, storeID, ownerID string) error
	VerifyStoreOwner(ctx context.Context, storeID, ownerID string) error
}

// AccessPolicy authorizes identities. Refusals must satisfy IsAccessDenied.
type AccessPolicy interface {
	EnsureCanPush(ctx context.Context, ownerID, storeID string) error
	EnsureCanPull(ctx context.Context, ownerID, storeID string) error
}

package sharing

import "context"

// ScopeState is the part of a scope's hash-chained state the validator reads.
type ScopeState struct {
	Ref     string   `json:"ref"`
	ScopeID string   `json:"scope_id"`
	Seq     int64    `json:"seq"`
	PrevRef string   `json:"prev_ref,omitempty"`
	OwnerID string   `json:"owner_id"`
	Epoch   int64    `json:"epoch"`
	Members []string `json:"members,omitempty"`
}

// Grant is a resource grant as seen by the validator.
type Grant struct {
	GrantID       string `json:"grant_id"`
	ScopeID       string `json:"scope_id"`
	ResourceID    string `json:"resource_id"`
	ResourceKeyID string `json:"resource_key_id"`
	WrappedKey    []byte `json:"wrapped_key"`
	ScopeEpoch    int64  `json:"scope_epoch"`
	ScopeStateRef string `json:"scope_state_ref"`
}

// ScopeStateReader resolves scope-state snapshots. Lookups of absent
// records return nil with no error.
type ScopeStateReader interface {
	LoadScopeStateByRef(ctx context.Context, ref string) (*ScopeState, error)
	GetScopeHeadRef(ctx context.Context, scopeID string) (ref string, found bool, err error)
}

// GrantReader resolves resource grants. Lookups of absent records return
// nil with no error.
type GrantReader interface {
	LoadGrant(ctx context.Context, grantID string) (*Grant, error)
	GetActiveGrant(ctx context.Context, scopeID, resourceID string) (*Grant, error)
}

// Reason names a dependency failure.
type Reason string

const (
	ReasonMissingDeps     Reason = "missing_deps"
	ReasonStaleScopeState Reason = "stale_scope_state"
	ReasonStaleGrant      Reason = "stale_grant"
)

// Failure describes the first event in a batch that failed validation.
type Failure struct {
	Reason  Reason
	Index   int
	EventID string
	Detail  string
}

func (f *Failure) String() string {
	return string(f.Reason) + ": event " + f.EventID + ": " + f.Detail
}

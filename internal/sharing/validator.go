package sharing

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/synclog/internal/event"
)

// Mode selects the dependency checking variant.
type Mode string

const (
	ModeEnforced Mode = "enforced"
	ModeDisabled Mode = "disabled"
)

// Checker validates a batch before append. A nil Failure with a nil error
// means every event passed. Errors are reader failures and are fatal.
type Checker interface {
	CheckBatch(ctx context.Context, events []event.Record) (*Failure, error)
	Mode() Mode
}

// ErrPortsRequired is returned when ModeEnforced is requested without both
// read ports.
var ErrPortsRequired = errors.New("sharing: enforced mode requires scope-state and grant readers")

// NewChecker builds the checker for mode. Unknown modes are rejected rather
// than defaulted.
func NewChecker(mode Mode, scopes ScopeStateReader, grants GrantReader) (Checker, error) {
	switch mode {
	case ModeEnforced:
		if scopes == nil || grants == nil {
			return nil, ErrPortsRequired
		}
		return &Validator{scopes: scopes, grants: grants}, nil
	case ModeDisabled:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("sharing: unknown mode %q", mode)
	}
}

// Disabled accepts every batch.
type Disabled struct{}

func (Disabled) CheckBatch(context.Context, []event.Record) (*Failure, error) { return nil, nil }
func (Disabled) Mode() Mode                                                   { return ModeDisabled }

// Validator checks events against scope-state and grant readers.
type Validator struct {
	scopes ScopeStateReader
	grants GrantReader
}

func (v *Validator) Mode() Mode { return ModeEnforced }

// CheckBatch validates events in order and stops at the first failure.
func (v *Validator) CheckBatch(ctx context.Context, events []event.Record) (*Failure, error) {
	for i, ev := range events {
		if ev.Sharing.IsEmpty() {
			continue
		}
		reason, detail, err := v.check(ctx, ev.Sharing)
		if err != nil {
			return nil, fmt.Errorf("validate sharing for event %s: %w", ev.ID, err)
		}
		if reason != "" {
			return &Failure{Reason: reason, Index: i, EventID: ev.ID, Detail: detail}, nil
		}
	}
	return nil, nil
}

func (v *Validator) check(ctx context.Context, ref *event.SharingReference) (Reason, string, error) {
	state, err := v.scopes.LoadScopeStateByRef(ctx, ref.ScopeStateRef)
	if err != nil {
		return "", "", err
	}
	if state == nil {
		return ReasonMissingDeps, fmt.Sprintf("scope state %q not found", ref.ScopeStateRef), nil
	}

	grant, err := v.grants.LoadGrant(ctx, ref.GrantID)
	if err != nil {
		return "", "", err
	}
	if grant == nil {
		return ReasonMissingDeps, fmt.Sprintf("grant %q not found", ref.GrantID), nil
	}

	head, found, err := v.scopes.GetScopeHeadRef(ctx, ref.ScopeID)
	if err != nil {
		return "", "", err
	}
	if !found || head != ref.ScopeStateRef {
		return ReasonStaleScopeState, fmt.Sprintf("scope %q head is %q, event references %q", ref.ScopeID, head, ref.ScopeStateRef), nil
	}

	if ref.ResourceID != "" {
		active, err := v.grants.GetActiveGrant(ctx, ref.ScopeID, ref.ResourceID)
		if err != nil {
			return "", "", err
		}
		if active == nil || active.GrantID != ref.GrantID {
			activeID := ""
			if active != nil {
				activeID = active.GrantID
			}
			return ReasonStaleGrant, fmt.Sprintf("resource %q active grant is %q, event references %q", ref.ResourceID, activeID, ref.GrantID), nil
		}
	}
	return "", "", nil
}

package engine

import "context"

// SelfOwnedPolicy admits any authenticated identity. Which stores it may
// touch is decided by the ownership guard.
type SelfOwnedPolicy struct{}

func (SelfOwnedPolicy) EnsureCanPush(_ context.Context, ownerID, storeID string) error {
	return requireIdentity(ownerID, storeID)
}

func (SelfOwnedPolicy) EnsureCanPull(_ context.Context, ownerID, storeID string) error {
	return requireIdentity(ownerID, storeID)
}

func requireIdentity(ownerID, storeID string) error {
	if ownerID == "" {
		return &AccessDeniedError{
			Code:    CodeUnauthenticated,
			Message: "no identity presented",
			StoreID: storeID,
		}
	}
	return nil
}

// DenyListPolicy refuses blocked identities and defers everything else to
// Next.
type DenyListPolicy struct {
	Next    AccessPolicy
	blocked map[string]struct{}
}

// NewDenyListPolicy wraps next with a fixed set of blocked identities.
func NewDenyListPolicy(next AccessPolicy, blocked ...string) *DenyListPolicy {
	p := &DenyListPolicy{Next: next, blocked: make(map[string]struct{}, len(blocked))}
	for _, id := range blocked {
		p.blocked[id] = struct{}{}
	}
	return p
}

func (p *DenyListPolicy) EnsureCanPush(ctx context.Context, ownerID, storeID string) error {
	if err := p.check(ownerID, storeID); err != nil {
		return err
	}
	return p.Next.EnsureCanPush(ctx, ownerID, storeID)
}

func (p *DenyListPolicy) EnsureCanPull(ctx context.Context, ownerID, storeID string) error {
	if err := p.check(ownerID, storeID); err != nil {
		return err
	}
	return p.Next.EnsureCanPull(ctx, ownerID, storeID)
}

func (p *DenyListPolicy) check(ownerID, storeID string) error {
	if _, ok := p.blocked[ownerID]; ok {
		return &AccessDeniedError{
			Code:    CodeBlocked,
			Message: "identity is blocked",
			OwnerID: ownerID,
			StoreID: storeID,
		}
	}
	return nil
}

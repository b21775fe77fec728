package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultLegacyPrefix marks store ids minted before per-workspace store ids.
const DefaultLegacyPrefix = "legacy-"

// Relation is the transactional store_id → owner relation, scoped to one
// transaction. Implementations must run every call inside the transaction
// opened by Transactor.WithinOwnershipTx.
type Relation interface {
	// StoreOwner returns the owner bound to storeID, if any.
	StoreOwner(ctx context.Context, storeID string) (ownerID string, found bool, err error)

	// StoresOwnedBy lists store ids bound to ownerID in id order.
	StoresOwnedBy(ctx context.Context, ownerID string) ([]string, error)

	// InsertStore binds storeID to ownerID. Must be a no-op if the row exists.
	InsertStore(ctx context.Context, storeID, ownerID string) error

	// CountEvents counts ownerID's events stored under storeID.
	CountEvents(ctx context.Context, ownerID, storeID string) (int64, error)

	// MoveStore re-points ownerID's events and head from one store id to
	// another and renames the store row.
	MoveStore(ctx context.Context, ownerID, fromStoreID, toStoreID string) error
}

// Transactor opens a serializable transaction over the relation. The
// transaction commits iff fn returns nil.
type Transactor interface {
	WithinOwnershipTx(ctx context.Context, fn func(Relation) error) error
}

// Outcome describes how EnsureStoreOwner satisfied the binding.
type Outcome string

const (
	OutcomeExisting Outcome = "existing"
	OutcomeClaimed  Outcome = "claimed"
	OutcomeMigrated Outcome = "migrated"
)

// LegacyPolicy recognizes legacy store ids by prefix.
type LegacyPolicy struct {
	Prefix string
}

// IsLegacy reports whether id follows the legacy naming convention.
func (p LegacyPolicy) IsLegacy(id string) bool {
	return p.Prefix != "" && strings.HasPrefix(id, p.Prefix)
}

// Guard enforces single ownership per store id.
type Guard struct {
	tx     Transactor
	legacy LegacyPolicy
}

// Option configures a Guard.
type Option func(*Guard)

// WithLegacyPrefix overrides DefaultLegacyPrefix. An empty prefix disables
// migration entirely.
func WithLegacyPrefix(prefix string) Option {
	return func(g *Guard) {
		g.legacy = LegacyPolicy{Prefix: prefix}
	}
}

// NewGuard creates a Guard over tx.
func NewGuard(tx Transactor, opts ...Option) *Guard {
	g := &Guard{
		tx:     tx,
		legacy: LegacyPolicy{Prefix: DefaultLegacyPrefix},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureStoreOwner succeeds iff ownerID owns storeID once it returns,
// claiming or migrating as needed. Refusals are *DeniedError.
func (g *Guard) EnsureStoreOwner(ctx context.Context, storeID, ownerID string) error {
	_, err := g.Bind(ctx, storeID, ownerID)
	return err
}

// VerifyStoreOwner succeeds iff storeID is already bound to ownerID. It
// never claims or migrates.
func (g *Guard) VerifyStoreOwner(ctx context.Context, storeID, ownerID string) error {
	return g.tx.WithinOwnershipTx(ctx, func(rel Relation) error {
		current, found, err := rel.StoreOwner(ctx, storeID)
		if err != nil {
			return fmt.Errorf("verify store owner: lookup: %w", err)
		}
		switch {
		case !found:
			return denied(CodeNotBound, storeID, ownerID, "store is not bound to any identity")
		case current != ownerID:
			return denied(CodeOwnedByOther, storeID, ownerID, "store is owned by a different identity")
		}
		return nil
	})
}

// Bind is EnsureStoreOwner that also reports which path was taken.
func (g *Guard) Bind(ctx context.Context, storeID, ownerID string) (Outcome, error) {
	var outcome Outcome
	err := g.tx.WithinOwnershipTx(ctx, func(rel Relation) error {
		var err error
		outcome, err = g.bind(ctx, rel, storeID, ownerID)
		return err
	})
	if err != nil {
		return "", err
	}
	if outcome != OutcomeExisting {
		slog.Info("store ownership bound", "store", storeID, "owner", ownerID, "outcome", outcome)
	}
	return outcome, nil
}

func (g *Guard) bind(ctx context.Context, rel Relation, storeID, ownerID string) (Outcome, error) {
	current, found, err := rel.StoreOwner(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("ensure store owner: lookup: %w", err)
	}
	if found {
		if current != ownerID {
			return "", denied(CodeOwnedByOther, storeID, ownerID, "store is owned by a different identity")
		}
		return OutcomeExisting, nil
	}

	owned, err := rel.StoresOwnedBy(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("ensure store owner: list owned: %w", err)
	}

	switch len(owned) {
	case 0:
		return g.claim(ctx, rel, storeID, ownerID)
	case 1:
		return g.migrate(ctx, rel, owned[0], storeID, ownerID)
	default:
		return "", denied(CodeAmbiguous, storeID, ownerID,
			"identity already owns %d stores, cannot migrate automatically", len(owned))
	}
}

func (g *Guard) claim(ctx context.Context, rel Relation, storeID, ownerID string) (Outcome, error) {
	if err := rel.InsertStore(ctx, storeID, ownerID); err != nil {
		return "", fmt.Errorf("ensure store owner: insert: %w", err)
	}
	current, found, err := rel.StoreOwner(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("ensure store owner: re-read: %w", err)
	}
	if !found || current != ownerID {
		return "", denied(CodeClaimRace, storeID, ownerID, "store was claimed concurrently by a different identity")
	}
	return OutcomeClaimed, nil
}

func (g *Guard) migrate(ctx context.Context, rel Relation, priorID, storeID, ownerID string) (Outcome, error) {
	if !g.legacy.IsLegacy(priorID) {
		return "", denied(CodeMigrationRefused, storeID, ownerID,
			"identity already owns store %q which is not a legacy store", priorID)
	}
	if g.legacy.IsLegacy(storeID) {
		return "", denied(CodeMigrationRefused, storeID, ownerID,
			"cannot migrate legacy store %q to another legacy id", priorID)
	}

	collisions, err := rel.CountEvents(ctx, ownerID, storeID)
	if err != nil {
		return "", fmt.Errorf("ensure store owner: count events: %w", err)
	}
	if collisions > 0 {
		return "", denied(CodeMigrationRefused, storeID, ownerID,
			"%d events already exist under the new store id", collisions)
	}

	if err := rel.MoveStore(ctx, ownerID, priorID, storeID); err != nil {
		return "", fmt.Errorf("ensure store owner: migrate %s: %w", priorID, err)
	}
	return OutcomeMigrated, nil
}

package manifest

import (
	"math/big"

	"golang.org/x/text/unicode/norm"
)

// Validate checks structural rules for a domain-event manifest.
func (m DomainEventManifestV1) Validate() error {
	k := m.Kind()
	if m.Version != DomainEventVersionV1 {
		return invalid(k, "version", "expected %q, got %q", DomainEventVersionV1, m.Version)
	}
	for _, f := range []struct{ name, value string }{
		{"event_id", m.EventID},
		{"aggregate_id", m.AggregateID},
		{"event_type", m.EventType},
		{"owner_id", m.OwnerID},
		{"store_id", m.StoreID},
	} {
		if err := checkIdentifier(k, f.name, f.value); err != nil {
			return err
		}
	}
	if err := checkCounter(k, "version_number", m.VersionNumber); err != nil {
		return err
	}
	if err := checkCounter(k, "epoch", m.Epoch); err != nil {
		return err
	}
	if err := checkHash(k, "payload_hash", m.PayloadHash); err != nil {
		return err
	}

	present := 0
	if m.ScopeID != "" {
		present++
	}
	if m.GrantID != "" {
		present++
	}
	if m.ScopeStateRef != nil {
		present++
	}
	switch present {
	case 0:
		return nil
	case 3:
		if err := checkIdentifier(k, "scope_id", m.ScopeID); err != nil {
			return err
		}
		if err := checkIdentifier(k, "grant_id", m.GrantID); err != nil {
			return err
		}
		return checkHash(k, "scope_state_ref", m.ScopeStateRef)
	default:
		return invalid(k, "", "scope_id, grant_id and scope_state_ref must be set together")
	}
}

// Validate checks structural rules for a scope-state manifest.
func (m ScopeStateManifestV1) Validate() error {
	k := m.Kind()
	if m.Version != ScopeStateVersionV1 {
		return invalid(k, "version", "expected %q, got %q", ScopeStateVersionV1, m.Version)
	}
	if err := checkIdentifier(k, "scope_id", m.ScopeID); err != nil {
		return err
	}
	if err := checkIdentifier(k, "owner_id", m.OwnerID); err != nil {
		return err
	}
	if err := checkCounter(k, "seq", m.Seq); err != nil {
		return err
	}
	if err := checkCounter(k, "epoch", m.Epoch); err != nil {
		return err
	}
	if m.Seq.Sign() == 0 {
		if m.PrevHash != nil {
			return invalid(k, "prev_hash", "must be absent for the genesis state")
		}
	} else if err := checkHash(k, "prev_hash", m.PrevHash); err != nil {
		return err
	}
	if err := checkSortedSet(k, "members", m.Members); err != nil {
		return err
	}
	return checkSortedSet(k, "signers", m.Signers)
}

// Validate checks structural rules for a resource-grant manifest.
func (m ResourceGrantManifestV1) Validate() error {
	k := m.Kind()
	if m.Version != ResourceGrantVersionV1 {
		return invalid(k, "version", "expected %q, got %q", ResourceGrantVersionV1, m.Version)
	}
	for _, f := range []struct{ name, value string }{
		{"grant_id", m.GrantID},
		{"scope_id", m.ScopeID},
		{"resource_id", m.ResourceID},
		{"resource_key_id", m.ResourceKeyID},
	} {
		if err := checkIdentifier(k, f.name, f.value); err != nil {
			return err
		}
	}
	if len(m.WrappedKey) == 0 {
		return invalid(k, "wrapped_key", "must not be empty")
	}
	if err := checkCounter(k, "scope_epoch", m.ScopeEpoch); err != nil {
		return err
	}
	return checkHash(k, "scope_state_ref", m.ScopeStateRef)
}

// Identifiers must be non-empty and NFC-normalized so that two devices never
// sign different bytes for what a user sees as the same string.
func checkIdentifier(k Kind, field, v string) error {
	if v == "" {
		return invalid(k, field, "must not be empty")
	}
	if !norm.NFC.IsNormalString(v) {
		return invalid(k, field, "must be NFC normalized")
	}
	return nil
}

func checkCounter(k Kind, field string, v *big.Int) error {
	if v == nil {
		return invalid(k, field, "is required")
	}
	if v.Sign() < 0 {
		return invalid(k, field, "must not be negative, got %s", v.String())
	}
	return nil
}

func checkHash(k Kind, field string, v []byte) error {
	if len(v) != HashSize {
		return invalid(k, field, "must be %d bytes, got %d", HashSize, len(v))
	}
	return nil
}

func checkSortedSet(k Kind, field string, v []string) error {
	if len(v) == 0 {
		return invalid(k, field, "must not be empty")
	}
	for i, s := range v {
		if err := checkIdentifier(k, field, s); err != nil {
			return err
		}
		if i > 0 && v[i-1] >= s {
			return invalid(k, field, "must be sorted and unique (%q before %q)", v[i-1], s)
		}
	}
	return nil
}

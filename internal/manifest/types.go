package manifest

import "math/big"

// Kind identifies one of the manifest variants.
type Kind string

const (
	KindDomainEvent   Kind = "domain-event"
	KindScopeState    Kind = "scope-state"
	KindResourceGrant Kind = "resource-grant"
)

// Version tags. Decode rejects anything that does not match exactly.
const (
	DomainEventVersionV1   = "synclog.domain-event.v1"
	ScopeStateVersionV1    = "synclog.scope-state.v1"
	ResourceGrantVersionV1 = "synclog.resource-grant.v1"
)

// HashSize is the length of every hash and reference field.
const HashSize = 32

// Manifest is implemented by every manifest variant.
type Manifest interface {
	Kind() Kind
	Validate() error
}

// DomainEventManifestV1 is signed by the authoring device for each event.
// The sharing fields are either all present or all absent.
type DomainEventManifestV1 struct {
	Version       string   `cbor:"version" json:"version"`
	EventID       string   `cbor:"event_id" json:"event_id"`
	AggregateID   string   `cbor:"aggregate_id" json:"aggregate_id"`
	EventType     string   `cbor:"event_type" json:"event_type"`
	OwnerID       string   `cbor:"owner_id" json:"owner_id"`
	StoreID       string   `cbor:"store_id" json:"store_id"`
	VersionNumber *big.Int `cbor:"version_number" json:"version_number"`
	Epoch         *big.Int `cbor:"epoch" json:"epoch"`
	PayloadHash   []byte   `cbor:"payload_hash" json:"payload_hash"`
	ScopeID       string   `cbor:"scope_id,omitempty" json:"scope_id,omitempty"`
	GrantID       string   `cbor:"grant_id,omitempty" json:"grant_id,omitempty"`
	ScopeStateRef []byte   `cbor:"scope_state_ref,omitempty" json:"scope_state_ref,omitempty"`
}

func (DomainEventManifestV1) Kind() Kind { return KindDomainEvent }

// ScopeStateManifestV1 is one link in a scope's hash chain. PrevHash is
// absent only for the genesis state (Seq == 0).
type ScopeStateManifestV1 struct {
	Version  string   `cbor:"version" json:"version"`
	ScopeID  string   `cbor:"scope_id" json:"scope_id"`
	OwnerID  string   `cbor:"owner_id" json:"owner_id"`
	Seq      *big.Int `cbor:"seq" json:"seq"`
	PrevHash []byte   `cbor:"prev_hash,omitempty" json:"prev_hash,omitempty"`
	Epoch    *big.Int `cbor:"epoch" json:"epoch"`
	Members  []string `cbor:"members" json:"members"`
	Signers  []string `cbor:"signers" json:"signers"`
}

func (ScopeStateManifestV1) Kind() Kind { return KindScopeState }

// ResourceGrantManifestV1 authorizes decryption of one resource key under a
// scope epoch.
type ResourceGrantManifestV1 struct {
	Version       string   `cbor:"version" json:"version"`
	GrantID       string   `cbor:"grant_id" json:"grant_id"`
	ScopeID       string   `cbor:"scope_id" json:"scope_id"`
	ResourceID    string   `cbor:"resource_id" json:"resource_id"`
	ResourceKeyID string   `cbor:"resource_key_id" json:"resource_key_id"`
	WrappedKey    []byte   `cbor:"wrapped_key" json:"wrapped_key"`
	ScopeEpoch    *big.Int `cbor:"scope_epoch" json:"scope_epoch"`
	ScopeStateRef []byte   `cbor:"scope_state_ref" json:"scope_state_ref"`
}

func (ResourceGrantManifestV1) Kind() Kind { return KindResourceGrant }

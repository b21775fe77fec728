package manifest

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.BigIntConvert = cbor.BigIntConvertShortest
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("manifest: build encode mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
		MaxNestedLevels:   4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("manifest: build decode mode: %v", err))
	}
	return dm
}

// Encode validates m and returns its canonical bytes.
func Encode(m Manifest) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s manifest: %w", m.Kind(), err)
	}
	return data, nil
}

// DecodeDomainEvent parses and validates canonical domain-event bytes.
func DecodeDomainEvent(data []byte) (DomainEventManifestV1, error) {
	var m DomainEventManifestV1
	if err := decodeInto(KindDomainEvent, data, &m); err != nil {
		return DomainEventManifestV1{}, err
	}
	return m, nil
}

// DecodeScopeState parses and validates canonical scope-state bytes.
func DecodeScopeState(data []byte) (ScopeStateManifestV1, error) {
	var m ScopeStateManifestV1
	if err := decodeInto(KindScopeState, data, &m); err != nil {
		return ScopeStateManifestV1{}, err
	}
	return m, nil
}

// DecodeResourceGrant parses and validates canonical resource-grant bytes.
func DecodeResourceGrant(data []byte) (ResourceGrantManifestV1, error) {
	var m ResourceGrantManifestV1
	if err := decodeInto(KindResourceGrant, data, &m); err != nil {
		return ResourceGrantManifestV1{}, err
	}
	return m, nil
}

// Decode dispatches on kind and returns the decoded manifest.
func Decode(kind Kind, data []byte) (Manifest, error) {
	switch kind {
	case KindDomainEvent:
		return DecodeDomainEvent(data)
	case KindScopeState:
		return DecodeScopeState(data)
	case KindResourceGrant:
		return DecodeResourceGrant(data)
	default:
		return nil, fmt.Errorf("unknown manifest kind %q", kind)
	}
}

// decodeInto unmarshals data into m, validates it, and checks that the input
// was already in canonical form. Any failure is reported as a ValidationError
// so callers never proceed with partially checked bytes.
func decodeInto(kind Kind, data []byte, m Manifest) error {
	if err := decMode.Unmarshal(data, m); err != nil {
		return invalid(kind, "", "malformed encoding: %v", err)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	canonical, err := encMode.Marshal(m)
	if err != nil {
		return fmt.Errorf("re-encode %s manifest: %w", kind, err)
	}
	if !bytes.Equal(canonical, data) {
		return invalid(kind, "", "encoding is not canonical")
	}
	return nil
}

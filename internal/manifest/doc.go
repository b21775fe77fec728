// Package manifest provides the canonical encoding of the three signable
// synclog structures:
//
//   - DomainEventManifestV1: binds an event's identity and payload hash
//   - ScopeStateManifestV1: one snapshot in a scope's hash chain
//   - ResourceGrantManifestV1: a wrapped resource key under a scope epoch
//
// The encoded bytes are the signed payload, so encoding must be byte-for-byte
// deterministic across devices and implementations. Manifests are encoded as
// CBOR maps with text keys using RFC 8949 core deterministic rules (shortest
// integer forms, sorted keys, definite lengths).
//
// Validation runs before encode and after decode. Decode additionally
// rejects unknown fields, duplicate keys, trailing bytes, and any input whose
// re-encoding is not byte-identical to the input.
//
// Digests use SHA-256 with domain separation, the same construction as the
// content-addressed identities elsewhere in synclog.
package manifest

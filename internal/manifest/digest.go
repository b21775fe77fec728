package manifest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("manifest signature does not verify")

// Domain returns the domain-separation prefix for a manifest kind.
// Version suffix enables future algorithm migration.
func Domain(kind Kind) string {
	return "synclog/" + string(kind) + "/v1"
}

// Digest computes SHA256(domain + 0x00 + encoded).
// The null separator prevents domain/data boundary ambiguity.
func Digest(kind Kind, encoded []byte) []byte {
	h := sha256.New()
	h.Write([]byte(Domain(kind)))
	h.Write([]byte{0x00})
	h.Write(encoded)
	return h.Sum(nil)
}

// DigestHex is Digest rendered as lowercase hex, the form used for
// scope-state references in the event log.
func DigestHex(kind Kind, encoded []byte) string {
	return hex.EncodeToString(Digest(kind, encoded))
}

// ParseRef decodes a hex hash reference and checks its length.
func ParseRef(ref string) ([]byte, error) {
	b, err := hex.DecodeString(ref)
	if err != nil {
		return nil, fmt.Errorf("parse ref: %w", err)
	}
	if len(b) != HashSize {
		return nil, fmt.Errorf("parse ref: want %d bytes, got %d", HashSize, len(b))
	}
	return b, nil
}

// Signer produces signatures over manifest digests.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
}

// Verifier checks signatures over manifest digests.
type Verifier interface {
	Verify(digest, signature []byte) error
}

// Ed25519Signer signs digests with an Ed25519 private key.
type Ed25519Signer struct {
	Key ed25519.PrivateKey
}

func (s Ed25519Signer) Sign(digest []byte) ([]byte, error) {
	if len(s.Key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 signer: bad private key length %d", len(s.Key))
	}
	return ed25519.Sign(s.Key, digest), nil
}

// Ed25519Verifier verifies digests against an Ed25519 public key.
type Ed25519Verifier struct {
	Key ed25519.PublicKey
}

func (v Ed25519Verifier) Verify(digest, signature []byte) error {
	if len(v.Key) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 verifier: bad public key length %d", len(v.Key))
	}
	if !ed25519.Verify(v.Key, digest, signature) {
		return ErrBadSignature
	}
	return nil
}

// Sign encodes m canonically and signs its digest, returning both the
// encoded bytes and the signature.
func Sign(m Manifest, signer Signer) (encoded, signature []byte, err error) {
	encoded, err = Encode(m)
	if err != nil {
		return nil, nil, err
	}
	signature, err = signer.Sign(Digest(m.Kind(), encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("sign %s manifest: %w", m.Kind(), err)
	}
	return encoded, signature, nil
}

// Verify decodes encoded as kind (with full validation) and checks the
// signature over its digest. The decoded manifest is returned only when the
// signature verifies.
func Verify(kind Kind, encoded, signature []byte, verifier Verifier) (Manifest, error) {
	m, err := Decode(kind, encoded)
	if err != nil {
		return nil, err
	}
	if err := verifier.Verify(Digest(kind, encoded), signature); err != nil {
		return nil, err
	}
	return m, nil
}

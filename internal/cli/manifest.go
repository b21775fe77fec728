package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/manifest"
)

// ManifestOptions holds flags for the manifest subcommands.
type ManifestOptions struct {
	*RootOptions
	Kind      string
	SignKey   string // hex ed25519 seed
	PublicKey string // hex ed25519 public key
	Signature string // hex
}

// ManifestOutput is the result of encode and verify.
type ManifestOutput struct {
	Kind      string            `json:"kind"`
	Encoded   string            `json:"encoded"`
	Digest    string            `json:"digest"`
	Signature string            `json:"signature,omitempty"`
	Verified  bool              `json:"verified"`
	Manifest  manifest.Manifest `json:"manifest,omitempty"`
}

// NewManifestCommand creates the manifest command group.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Encode, sign and verify canonical manifests",
		Long: `Work with the canonical CBOR manifests clients sign.

Kinds: domain-event, scope-state, resource-grant. Byte fields are
base64 in JSON input and hex on the command line.`,
	}
	cmd.AddCommand(newManifestEncodeCommand(rootOpts))
	cmd.AddCommand(newManifestVerifyCommand(rootOpts))
	return cmd
}

func newManifestEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManifestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <manifest.json>",
		Short: "Validate a JSON manifest and print its canonical encoding and digest",
		Long: `Validate a JSON manifest, encode it canonically, and print the hex
encoding and domain-separated digest. With --sign-key the digest is also
signed. Use - to read from stdin.

Example:
  synclogd manifest encode --kind scope-state state.json
  synclogd manifest encode --kind domain-event --sign-key $SEED event.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestEncode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "manifest kind (required)")
	_ = cmd.MarkFlagRequired("kind")
	cmd.Flags().StringVar(&opts.SignKey, "sign-key", "", "hex ed25519 seed to sign with")
	return cmd
}

func newManifestVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManifestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <encoded-hex>",
		Short: "Decode a canonical manifest and check its signature",
		Long: `Decode hex canonical bytes, rejecting non-canonical or invalid input.
With --public-key and --signature, the signature over the digest is
checked too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "manifest kind (required)")
	_ = cmd.MarkFlagRequired("kind")
	cmd.Flags().StringVar(&opts.PublicKey, "public-key", "", "hex ed25519 public key")
	cmd.Flags().StringVar(&opts.Signature, "signature", "", "hex signature")
	cmd.MarkFlagsRequiredTogether("public-key", "signature")
	return cmd
}

func runManifestEncode(opts *ManifestOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	kind := manifest.Kind(opts.Kind)

	m, err := newManifest(kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}
	if err := decodeJSONFile(path, cmd.InOrStdin(), m); err != nil {
		return WrapExitError(ExitCommandError, "failed to read manifest", err)
	}

	var signer manifest.Signer
	if opts.SignKey != "" {
		seed, err := hex.DecodeString(opts.SignKey)
		if err != nil || len(seed) != ed25519.SeedSize {
			return NewExitError(ExitCommandError, fmt.Sprintf("--sign-key must be %d hex-encoded bytes", ed25519.SeedSize))
		}
		signer = manifest.Ed25519Signer{Key: ed25519.NewKeyFromSeed(seed)}
	}

	var encoded, sig []byte
	if signer != nil {
		encoded, sig, err = manifest.Sign(m, signer)
	} else {
		encoded, err = manifest.Encode(m)
	}
	if err != nil {
		_ = formatter.Error("E_MANIFEST_INVALID", err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid manifest", err)
	}

	out := ManifestOutput{
		Kind:    string(kind),
		Encoded: hex.EncodeToString(encoded),
		Digest:  manifest.DigestHex(kind, encoded),
	}
	if sig != nil {
		out.Signature = hex.EncodeToString(sig)
	}

	return formatter.Success(out, func(w io.Writer) { writeManifestText(w, out) })
}

func runManifestVerify(opts *ManifestOptions, encodedHex string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	kind := manifest.Kind(opts.Kind)

	encoded, err := hex.DecodeString(strings.TrimSpace(encodedHex))
	if err != nil {
		return WrapExitError(ExitCommandError, "encoded manifest is not hex", err)
	}

	var m manifest.Manifest
	verified := false
	if opts.PublicKey != "" {
		pub, err := hex.DecodeString(opts.PublicKey)
		if err != nil {
			return WrapExitError(ExitCommandError, "--public-key is not hex", err)
		}
		sig, err := hex.DecodeString(opts.Signature)
		if err != nil {
			return WrapExitError(ExitCommandError, "--signature is not hex", err)
		}
		m, err = manifest.Verify(kind, encoded, sig, manifest.Ed25519Verifier{Key: pub})
		if err != nil {
			_ = formatter.Error("E_MANIFEST_REJECTED", err.Error(), nil)
			return WrapExitError(ExitFailure, "manifest rejected", err)
		}
		verified = true
	} else {
		m, err = manifest.Decode(kind, encoded)
		if err != nil {
			_ = formatter.Error("E_MANIFEST_REJECTED", err.Error(), nil)
			return WrapExitError(ExitFailure, "manifest rejected", err)
		}
	}

	out := ManifestOutput{
		Kind:      string(kind),
		Encoded:   hex.EncodeToString(encoded),
		Digest:    manifest.DigestHex(kind, encoded),
		Signature: opts.Signature,
		Verified:  verified,
		Manifest:  m,
	}
	return formatter.Success(out, func(w io.Writer) { writeManifestText(w, out) })
}

func newManifest(kind manifest.Kind) (manifest.Manifest, error) {
	switch kind {
	case manifest.KindDomainEvent:
		return &manifest.DomainEventManifestV1{}, nil
	case manifest.KindScopeState:
		return &manifest.ScopeStateManifestV1{}, nil
	case manifest.KindResourceGrant:
		return &manifest.ResourceGrantManifestV1{}, nil
	default:
		return nil, fmt.Errorf("unknown manifest kind %q", kind)
	}
}

func decodeJSONFile(path string, stdin io.Reader, v any) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeManifestText(w io.Writer, out ManifestOutput) {
	fmt.Fprintf(w, "kind:      %s\n", out.Kind)
	fmt.Fprintf(w, "digest:    %s\n", out.Digest)
	fmt.Fprintf(w, "encoded:   %s\n", out.Encoded)
	if out.Signature != "" {
		fmt.Fprintf(w, "signature: %s\n", out.Signature)
	}
	if out.Verified {
		fmt.Fprintln(w, "✓ signature verified")
	} else if out.Manifest != nil {
		fmt.Fprintln(w, "✓ canonical and valid")
	}
}

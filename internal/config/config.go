package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/sharing"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables that override file values.
const (
	EnvProfile  = "SYNCLOG_PROFILE"
	EnvDatabase = "SYNCLOG_DATABASE"
	EnvListen   = "SYNCLOG_LISTEN"
	EnvSharing  = "SYNCLOG_SHARING"
)

// Config is the synclogd runtime configuration.
type Config struct {
	Profile           string    `json:"profile"`
	Database          string    `json:"database"`
	Listen            string    `json:"listen"`
	Sharing           string    `json:"sharing"`
	LegacyStorePrefix string    `json:"legacy_store_prefix"`
	MaxBatchSize      int       `json:"max_batch_size"`
	MaxPullLimit      int       `json:"max_pull_limit"`
	RebaseLimit       int       `json:"rebase_limit"`
	RateLimit         RateLimit `json:"rate_limit"`
	Auth              Auth      `json:"auth"`
}

// RateLimit configures per-identity token buckets. RPS 0 disables limiting.
type RateLimit struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// Auth configures identity token verification. Blocked identities are
// refused every operation after authentication.
type Auth struct {
	SigningKeys []string `json:"signing_keys"`
	Blocked     []string `json:"blocked"`
}

// LoadError is a configuration that failed to parse or validate.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Lookup reads an environment variable. os.LookupEnv in production.
type Lookup func(key string) (string, bool)

// LoadDotEnv loads a .env file into the process environment. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the CUE file at path (defaults only if path is empty),
// applies environment overrides from lookup, and validates the result.
func Load(path string, lookup Lookup) (*Config, error) {
	var src []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		src = b
	}

	cfg, err := Parse(path, src)
	if err != nil {
		return nil, err
	}
	if lookup != nil {
		cfg.applyEnv(lookup)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse unifies src with the embedded schema and decodes it. filename is
// used in error positions only.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Path: "schema.cue", Err: err}
	}

	v := schema.LookupPath(cue.ParsePath("#Config"))
	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, &LoadError{Path: filename, Err: err}
		}
		v = v.Unify(user)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Path: filename, Err: err}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, &LoadError{Path: filename, Err: err}
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup Lookup) {
	if v, ok := lookup(EnvProfile); ok && v != "" {
		c.Profile = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup(EnvSharing); ok && v != "" {
		c.Sharing = v
	}
}

// Validate checks cross-field rules the schema does not express and
// values that may have come from the environment.
func (c *Config) Validate() error {
	profile, err := engine.ParseProfile(c.Profile)
	if err != nil {
		return err
	}
	switch sharing.Mode(c.Sharing) {
	case sharing.ModeEnforced, sharing.ModeDisabled:
	default:
		return fmt.Errorf("unknown sharing mode %q", c.Sharing)
	}
	if c.Database == "" {
		return errors.New("database must not be empty")
	}
	if profile == engine.ProfileProduction && len(c.Auth.SigningKeys) == 0 {
		return errors.New("production profile requires auth.signing_keys")
	}
	return nil
}

// AccessPolicy returns the engine policy, with the deny list applied when
// any identity is blocked.
func (c *Config) AccessPolicy() engine.AccessPolicy {
	if len(c.Auth.Blocked) == 0 {
		return engine.SelfOwnedPolicy{}
	}
	return engine.NewDenyListPolicy(engine.SelfOwnedPolicy{}, c.Auth.Blocked...)
}

// EngineProfile returns the validated profile.
func (c *Config) EngineProfile() engine.Profile {
	return engine.Profile(c.Profile)
}

// SharingMode returns the validated sharing mode.
func (c *Config) SharingMode() sharing.Mode {
	return sharing.Mode(c.Sharing)
}

// String renders the config for logs with signing keys redacted.
func (c *Config) String() string {
	return fmt.Sprintf("profile=%s database=%s listen=%s sharing=%s legacy_prefix=%q max_batch=%d max_pull=%d rebase=%d rps=%s burst=%d signing_keys=%d blocked=%d",
		c.Profile, c.Database, c.Listen, c.Sharing, c.LegacyStorePrefix,
		c.MaxBatchSize, c.MaxPullLimit, c.RebaseLimit,
		strconv.FormatFloat(c.RateLimit.RPS, 'g', -1, 64), c.RateLimit.Burst, len(c.Auth.SigningKeys), len(c.Auth.Blocked))
}

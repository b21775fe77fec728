package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
	"github.com/roach88/synclog/internal/sharing"
)

// Scenario is a conformance test loaded from YAML.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Profile     string      `yaml:"profile,omitempty"`
	Sharing     string      `yaml:"sharing,omitempty"`
	RebaseLimit int         `yaml:"rebase_limit,omitempty"`
	Setup       Setup       `yaml:"setup,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions,omitempty"`
}

// Setup seeds sharing records before the first step.
type Setup struct {
	ScopeStates []ScopeStateFixture `yaml:"scope_states,omitempty"`
	Grants      []GrantFixture      `yaml:"grants,omitempty"`
}

// ScopeStateFixture is recorded as the head of its scope, in file order.
type ScopeStateFixture struct {
	Ref     string   `yaml:"ref"`
	ScopeID string   `yaml:"scope_id"`
	Seq     int64    `yaml:"seq"`
	PrevRef string   `yaml:"prev_ref,omitempty"`
	OwnerID string   `yaml:"owner_id"`
	Epoch   int64    `yaml:"epoch"`
	Members []string `yaml:"members,omitempty"`
}

func (f ScopeStateFixture) state() sharing.ScopeState {
	return sharing.ScopeState{
		Ref:     f.Ref,
		ScopeID: f.ScopeID,
		Seq:     f.Seq,
		PrevRef: f.PrevRef,
		OwnerID: f.OwnerID,
		Epoch:   f.Epoch,
		Members: f.Members,
	}
}

// GrantFixture is a resource grant. Active grants replace earlier ones for
// the same resource.
type GrantFixture struct {
	GrantID       string `yaml:"grant_id"`
	ScopeID       string `yaml:"scope_id"`
	ResourceID    string `yaml:"resource_id"`
	ResourceKeyID string `yaml:"resource_key_id,omitempty"`
	ScopeEpoch    int64  `yaml:"scope_epoch,omitempty"`
	ScopeStateRef string `yaml:"scope_state_ref"`
	Active        bool   `yaml:"active"`
}

func (f GrantFixture) grant() sharing.Grant {
	return sharing.Grant{
		GrantID:       f.GrantID,
		ScopeID:       f.ScopeID,
		ResourceID:    f.ResourceID,
		ResourceKeyID: f.ResourceKeyID,
		ScopeEpoch:    f.ScopeEpoch,
		ScopeStateRef: f.ScopeStateRef,
	}
}

// Step operations.
const (
	OpPush  = "push"
	OpPull  = "pull"
	OpReset = "reset"
)

// Step is one engine call. A pull without a limit asks for the engine's
// maximum page.
type Step struct {
	Op           string         `yaml:"op"`
	Owner        string         `yaml:"owner"`
	Store        string         `yaml:"store"`
	ExpectedHead int64          `yaml:"expected_head,omitempty"`
	Events       []EventFixture `yaml:"events,omitempty"`
	Since        int64          `yaml:"since,omitempty"`
	Limit        int            `yaml:"limit,omitempty"`
	Expect       *Expect        `yaml:"expect,omitempty"`
}

// EventFixture is an event submitted by a push step.
type EventFixture struct {
	ID        string          `yaml:"id"`
	Aggregate string          `yaml:"aggregate"`
	Type      string          `yaml:"type"`
	Version   int64           `yaml:"version,omitempty"`
	Payload   string          `yaml:"payload,omitempty"`
	Sharing   *SharingFixture `yaml:"sharing,omitempty"`
}

// SharingFixture is an event's sharing reference.
type SharingFixture struct {
	ScopeID       string `yaml:"scope_id"`
	ResourceID    string `yaml:"resource_id,omitempty"`
	ResourceKeyID string `yaml:"resource_key_id,omitempty"`
	GrantID       string `yaml:"grant_id"`
	ScopeStateRef string `yaml:"scope_state_ref"`
}

func (f EventFixture) record() event.Record {
	version := f.Version
	if version == 0 {
		version = 1
	}
	rec := event.Record{
		ID:          f.ID,
		AggregateID: f.Aggregate,
		EventType:   f.Type,
		Payload:     []byte(f.Payload),
		Version:     version,
	}
	if f.Sharing != nil {
		rec.Sharing = &event.SharingReference{
			ScopeID:       f.Sharing.ScopeID,
			ResourceID:    f.Sharing.ResourceID,
			ResourceKeyID: f.Sharing.ResourceKeyID,
			GrantID:       f.Sharing.GrantID,
			ScopeStateRef: f.Sharing.ScopeStateRef,
		}
	}
	return rec
}

// Expect is checked against the step's trace entry. Unset fields are not
// checked.
type Expect struct {
	Outcome string   `yaml:"outcome"`
	Head    *int64   `yaml:"head,omitempty"`
	Reason  string   `yaml:"reason,omitempty"`
	Missing []string `yaml:"missing,omitempty"`
	Events  []string `yaml:"events,omitempty"`
	Error   string   `yaml:"error,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos do not silently disable checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Profile != "" {
		if _, err := engine.ParseProfile(s.Profile); err != nil {
			return err
		}
	}
	switch sharing.Mode(s.Sharing) {
	case "", sharing.ModeDisabled, sharing.ModeEnforced:
	default:
		return fmt.Errorf("unknown sharing mode %q", s.Sharing)
	}
	if s.RebaseLimit < 0 {
		return fmt.Errorf("rebase_limit must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpPush, OpPull, OpReset:
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Op != OpPush && len(step.Events) > 0 {
			return fmt.Errorf("steps[%d]: events are only valid for push", i)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("steps[%d].expect: outcome is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

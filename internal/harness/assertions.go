package harness

import (
	"context"
	"fmt"
	"strings"
)

// Assertion types.
const (
	AssertHead         = "head"
	AssertStoreOwner   = "store_owner"
	AssertOutcomeCount = "outcome_count"
)

// Assertion checks state after every step has run.
type Assertion struct {
	Type string `yaml:"type"`

	// head and store_owner
	Owner string `yaml:"owner,omitempty"`
	Store string `yaml:"store,omitempty"`

	// head
	Equals int64 `yaml:"equals,omitempty"`

	// store_owner: an empty owner asserts the store is unclaimed.

	// outcome_count
	Outcome string `yaml:"outcome,omitempty"`
	Count   int    `yaml:"count,omitempty"`
}

// StateReader is the store surface assertions query.
type StateReader interface {
	GetHeadSequence(ctx context.Context, ownerID, storeID string) (int64, error)
	LookupStoreOwner(ctx context.Context, storeID string) (string, bool, error)
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s/%s -> %s head=%d\n", ev.Step, ev.Op, ev.Owner, ev.Store, ev.Outcome, ev.Head)
	}
	return buf.String()
}

// EvaluateAssertions returns one message per failed assertion.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, state StateReader) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertHead:
			err = assertHead(ctx, state, result, a)
		case AssertStoreOwner:
			err = assertStoreOwner(ctx, state, result, a)
		case AssertOutcomeCount:
			err = assertOutcomeCount(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertHead(ctx context.Context, state StateReader, result *Result, a Assertion) error {
	head, err := state.GetHeadSequence(ctx, a.Owner, a.Store)
	if err != nil {
		return fmt.Errorf("head assertion: %w", err)
	}
	if head != a.Equals {
		return &AssertionError{
			Type:     AssertHead,
			Expected: fmt.Sprintf("%s/%s head %d", a.Owner, a.Store, a.Equals),
			Actual:   fmt.Sprintf("head %d", head),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStoreOwner(ctx context.Context, state StateReader, result *Result, a Assertion) error {
	owner, found, err := state.LookupStoreOwner(ctx, a.Store)
	if err != nil {
		return fmt.Errorf("store_owner assertion: %w", err)
	}
	if !found {
		owner = ""
	}
	if owner != a.Owner {
		return &AssertionError{
			Type:     AssertStoreOwner,
			Expected: fmt.Sprintf("store %s owned by %q", a.Store, a.Owner),
			Actual:   fmt.Sprintf("owned by %q", owner),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertOutcomeCount(result *Result, a Assertion) error {
	if n := result.CountOutcome(a.Outcome); n != a.Count {
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d steps with outcome %s", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertHead:
		if a.Owner == "" || a.Store == "" {
			return fmt.Errorf("assertions[%d]: owner and store are required for head", index)
		}
	case AssertStoreOwner:
		if a.Store == "" {
			return fmt.Errorf("assertions[%d]: store is required for store_owner", index)
		}
	case AssertOutcomeCount:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcome_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for outcome_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

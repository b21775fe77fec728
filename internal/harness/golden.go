package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden file form of a scenario run.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Profile  string       `json:"profile"`
	Sharing  string       `json:"sharing"`
	Trace    []TraceEvent `json:"trace"`
}

// Snapshot builds the golden form of result for scenario.
func Snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	profile := scenario.Profile
	if profile == "" {
		profile = "development"
	}
	mode := scenario.Sharing
	if mode == "" {
		mode = "disabled"
	}
	return TraceSnapshot{
		Scenario: scenario.Name,
		Profile:  profile,
		Sharing:  mode,
		Trace:    result.Trace,
	}
}

// MarshalSnapshot renders s as indented JSON with a trailing newline.
// Struct field order fixes the key order, so output is byte-stable.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(Snapshot(scenario, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}

package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSnapshot_StableKeyOrder(t *testing.T) {
	snap := Snapshot(&Scenario{Name: "tiny"}, &Result{Trace: []TraceEvent{
		{Step: 1, Op: OpPush, Owner: "u1", Store: "s1", Outcome: OutcomeCommitted, Head: 1, Assigned: []int64{1}},
	}})

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	want := `{
  "scenario": "tiny",
  "profile": "development",
  "sharing": "disabled",
  "trace": [
    {
      "step": 1,
      "op": "push",
      "owner": "u1",
      "store": "s1",
      "outcome": "committed",
      "head": 1,
      "assigned": [
        1
      ]
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}

func TestSnapshot_UsesScenarioSettings(t *testing.T) {
	snap := Snapshot(&Scenario{Name: "n", Profile: "production", Sharing: "enforced"}, NewResult())
	assert.Equal(t, "production", snap.Profile)
	assert.Equal(t, "enforced", snap.Sharing)
	assert.Empty(t, snap.Trace)
}

func TestAssertGolden_ExistingRun(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/push_conflict_rebase.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario, result))
}

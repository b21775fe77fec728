// Package harness runs YAML conformance scenarios against a real sync engine.
//
// Each scenario gets a fresh SQLite store in a temporary directory, an
// ownership guard, the sharing checker the scenario names, and an engine at
// the scenario's profile. Steps are executed in order and every step leaves
// one entry in the trace.
//
// # Scenario Format
//
//	name: rebase_after_concurrent_push
//	description: "A stale replica is told what it missed"
//	profile: development        # default development
//	sharing: disabled           # enforced | disabled, default disabled
//	setup:
//	  scope_states:
//	    - { ref: s1, scope_id: scope-a, seq: 1, owner_id: u1, epoch: 1 }
//	  grants:
//	    - { grant_id: g1, scope_id: scope-a, resource_id: r1, scope_state_ref: s1, active: true }
//	steps:
//	  - op: push
//	    owner: u1
//	    store: s1
//	    expected_head: 0
//	    events:
//	      - { id: e1, aggregate: a1, type: created }
//	    expect:
//	      outcome: committed
//	      head: 1
//	  - op: pull
//	    owner: u1
//	    store: s1
//	    since: 0
//	    expect:
//	      outcome: pulled
//	      events: [e1]
//	assertions:
//	  - type: head
//	    owner: u1
//	    store: s1
//	    equals: 1
//
// # Outcomes
//
// committed, probe (an empty push), conflict, pulled, reset and error.
// Errors are classified as access_denied, reset_forbidden, invalid_request or
// duplicate_event. Any other error aborts the run.
//
// # Assertion Types
//
//   - head: the store's head sequence after all steps
//   - store_owner: who a store id is bound to
//   - outcome_count: how many steps ended with an outcome
//
// Timestamps come from a step clock so traces are byte-stable for golden
// comparison.
package harness

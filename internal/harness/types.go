package harness

// Step outcomes recorded in the trace.
const (
	OutcomeCommitted = "committed"
	OutcomeProbe     = "probe"
	OutcomeConflict  = "conflict"
	OutcomePulled    = "pulled"
	OutcomeReset     = "reset"
	OutcomeError     = "error"
)

// Error classes for the error outcome.
const (
	ErrorAccessDenied   = "access_denied"
	ErrorResetForbidden = "reset_forbidden"
	ErrorInvalidRequest = "invalid_request"
	ErrorDuplicateEvent = "duplicate_event"
)

// TraceEvent is the observable result of one step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Owner   string `json:"owner"`
	Store   string `json:"store"`
	Outcome string `json:"outcome"`
	Head    int64  `json:"head"`

	// Assigned holds the global sequences given to a committed batch.
	Assigned []int64 `json:"assigned,omitempty"`

	Reason  string   `json:"reason,omitempty"`
	Missing []string `json:"missing,omitempty"`

	// Events holds pulled event ids in stream order.
	Events []string `json:"events,omitempty"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CountOutcome returns how many steps ended with outcome.
func (r *Result) CountOutcome(outcome string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Outcome == outcome {
			n++
		}
	}
	return n
}

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
	"github.com/roach88/synclog/internal/ownership"
	"github.com/roach88/synclog/internal/sharing"
	"github.com/roach88/synclog/internal/store"
	"github.com/roach88/synclog/internal/testutil"
)

// LegacyPrefix marks store ids the harness guard may migrate from.
const LegacyPrefix = "legacy-"

// Epoch is the first timestamp handed out by the harness clock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness executes scenario steps against one engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.StepClock
	logger *slog.Logger
}

// Run executes a scenario in a fresh store and returns the result.
//
// Expect and assertion failures are reported in Result.Errors. The returned
// error is reserved for setup failures and for engine errors outside the
// known classes, which mean the engine itself is broken.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "synclog-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}
	if err := h.seed(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		result.Trace = append(result.Trace, ev)
		if step.Expect != nil {
			for _, msg := range checkExpect(i, *step.Expect, ev) {
				result.AddError(msg)
			}
		}
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	profile := engine.ProfileDevelopment
	if scenario.Profile != "" {
		profile = engine.Profile(scenario.Profile)
	}
	mode := sharing.ModeDisabled
	if scenario.Sharing != "" {
		mode = sharing.Mode(scenario.Sharing)
	}

	checker, err := sharing.NewChecker(mode, st, st)
	if err != nil {
		return nil, err
	}
	guard := ownership.NewGuard(st, ownership.WithLegacyPrefix(LegacyPrefix))

	var opts []engine.Option
	if scenario.RebaseLimit > 0 {
		opts = append(opts, engine.WithRebaseLimit(scenario.RebaseLimit))
	}
	eng, err := engine.New(st, guard, engine.SelfOwnedPolicy{}, checker, profile, opts...)
	if err != nil {
		return nil, err
	}

	return &Harness{
		store:  st,
		engine: eng,
		clock:  testutil.NewStepClock(Epoch, time.Second),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

func (h *Harness) seed(ctx context.Context, setup Setup) error {
	for _, f := range setup.ScopeStates {
		if err := h.store.RecordScopeState(ctx, f.state()); err != nil {
			return err
		}
	}
	for _, f := range setup.Grants {
		if err := h.store.RecordGrant(ctx, f.grant(), f.Active); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, index int, step Step) (TraceEvent, error) {
	ev := TraceEvent{
		Step:  index + 1,
		Op:    step.Op,
		Owner: step.Owner,
		Store: step.Store,
	}
	h.logger.Debug("executing step", "step", ev.Step, "op", step.Op, "owner", step.Owner, "store", step.Store)

	var err error
	switch step.Op {
	case OpPush:
		err = h.push(ctx, step, &ev)
	case OpPull:
		err = h.pull(ctx, step, &ev)
	case OpReset:
		err = h.reset(ctx, step, &ev)
	default:
		return ev, fmt.Errorf("unknown op %q", step.Op)
	}
	if err == nil {
		return ev, nil
	}

	class, ok := classify(err)
	if !ok {
		return ev, err
	}
	ev.Outcome = OutcomeError
	ev.Error = class
	return ev, nil
}

func (h *Harness) push(ctx context.Context, step Step, ev *TraceEvent) error {
	events := make([]event.Record, len(step.Events))
	for i, f := range step.Events {
		events[i] = f.record()
		events[i].OccurredAt = h.clock.Now()
	}

	res, err := h.engine.Push(ctx, step.Owner, step.Store, step.ExpectedHead, events)
	if err != nil {
		return err
	}
	ev.Head = res.Head
	if res.Conflict != nil {
		ev.Outcome = OutcomeConflict
		ev.Head = res.Conflict.Head
		ev.Reason = string(res.Conflict.Reason)
		ev.Missing = recordIDs(res.Conflict.Missing)
		return nil
	}
	if len(res.Assigned) == 0 {
		ev.Outcome = OutcomeProbe
		return nil
	}
	ev.Outcome = OutcomeCommitted
	for _, a := range res.Assigned {
		ev.Assigned = append(ev.Assigned, a.GlobalSequence)
	}
	return nil
}

func (h *Harness) pull(ctx context.Context, step Step, ev *TraceEvent) error {
	limit := step.Limit
	if limit == 0 {
		limit = engine.DefaultMaxPullLimit
	}
	res, err := h.engine.Pull(ctx, step.Owner, step.Store, step.Since, limit)
	if err != nil {
		return err
	}
	ev.Outcome = OutcomePulled
	ev.Head = res.Head
	ev.Events = recordIDs(res.Events)
	return nil
}

func (h *Harness) reset(ctx context.Context, step Step, ev *TraceEvent) error {
	if err := h.engine.Reset(ctx, step.Owner, step.Store); err != nil {
		return err
	}
	head, err := h.store.GetHeadSequence(ctx, step.Owner, step.Store)
	if err != nil {
		return err
	}
	ev.Outcome = OutcomeReset
	ev.Head = head
	return nil
}

func classify(err error) (string, bool) {
	switch {
	case errors.Is(err, engine.ErrResetForbidden):
		return ErrorResetForbidden, true
	case engine.IsAccessDenied(err):
		return ErrorAccessDenied, true
	case engine.IsRequestError(err):
		return ErrorInvalidRequest, true
	case errors.Is(err, event.ErrDuplicateEvent):
		return ErrorDuplicateEvent, true
	}
	return "", false
}

func recordIDs(records []event.Record) []string {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func checkExpect(index int, want Expect, got TraceEvent) []string {
	var errs []string
	fail := func(field string, expected, actual any) {
		errs = append(errs, fmt.Sprintf("steps[%d]: expected %s %v, got %v", index, field, expected, actual))
	}

	if want.Outcome != got.Outcome {
		fail("outcome", want.Outcome, got.Outcome)
	}
	if want.Head != nil && *want.Head != got.Head {
		fail("head", *want.Head, got.Head)
	}
	if want.Reason != "" && want.Reason != got.Reason {
		fail("reason", want.Reason, got.Reason)
	}
	if want.Missing != nil && !slices.Equal(want.Missing, got.Missing) {
		fail("missing", want.Missing, got.Missing)
	}
	if want.Events != nil && !slices.Equal(want.Events, got.Events) {
		fail("events", want.Events, got.Events)
	}
	if want.Error != "" && want.Error != got.Error {
		fail("error", want.Error, got.Error)
	}
	return errs
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/synclog/internal/event"
	"github.com/roach88/synclog/internal/sharing"
)

// Default limits.
const (
	DefaultMaxBatchSize = 500
	DefaultMaxPullLimit = 1000
	DefaultRebaseLimit  = 1000
)

// Engine arbitrates pushes and pulls for every (owner, store) pair.
// It is safe for concurrent use; serialization is delegated to the
// repository's transactions.
type Engine struct {
	repo    EventRepository
	guard   StoreOwnerGuard
	policy  AccessPolicy
	checker sharing.Checker
	profile Profile
	metrics *Metrics

	maxBatchSize int
	maxPullLimit int
	rebaseLimit  int
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithMaxBatchSize caps the number of events in one push.
func WithMaxBatchSize(n int) Option {
	return func(e *Engine) { e.maxBatchSize = n }
}

// WithMaxPullLimit caps the page size of a pull.
func WithMaxPullLimit(n int) Option {
	return func(e *Engine) { e.maxPullLimit = n }
}

// WithRebaseLimit caps the number of missing events attached to a
// server_ahead conflict.
func WithRebaseLimit(n int) Option {
	return func(e *Engine) { e.rebaseLimit = n }
}

// WithMetrics records outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine. The sharing checker and profile are fixed for the
// engine's lifetime; pass sharing.Disabled{} to run without dependency
// validation.
func New(
	repo EventRepository,
	guard StoreOwnerGuard,
	policy AccessPolicy,
	checker sharing.Checker,
	profile Profile,
	opts ...Option,
) (*Engine, error) {
	if repo == nil || guard == nil || policy == nil || checker == nil {
		return nil, errors.New("engine: repository, guard, policy and checker are required")
	}
	if _, err := ParseProfile(string(profile)); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		repo:         repo,
		guard:        guard,
		policy:       policy,
		checker:      checker,
		profile:      profile,
		maxBatchSize: DefaultMaxBatchSize,
		maxPullLimit: DefaultMaxPullLimit,
		rebaseLimit:  DefaultRebaseLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxBatchSize < 1 || e.maxPullLimit < 1 || e.rebaseLimit < 1 {
		return nil, errors.New("engine: limits must be positive")
	}
	return e, nil
}

// Profile returns the deployment profile.
func (e *Engine) Profile() Profile { return e.profile }

// SharingMode returns the dependency checking variant.
func (e *Engine) SharingMode() sharing.Mode { return e.checker.Mode() }

// Push appends events iff expectedHead is the store's current head.
//
// Access and ownership refusals, malformed requests, and repository faults
// are returned as errors. Every other rejection is a Conflict in the result.
func (e *Engine) Push(ctx context.Context, ownerID, storeID string, expectedHead int64, events []event.Record) (PushResult, error) {
	if err := e.authorize(ctx, "push", ownerID, storeID, e.policy.EnsureCanPush); err != nil {
		return PushResult{}, err
	}
	if expectedHead < 0 {
		return PushResult{}, badRequest("expected_head", "must be non-negative, got %d", expectedHead)
	}

	if len(events) == 0 {
		head, err := e.repo.GetHeadSequence(ctx, ownerID, storeID)
		if err != nil {
			return PushResult{}, err
		}
		e.metrics.pushProbe()
		return PushResult{OK: true, Head: head, Assigned: []event.Assignment{}}, nil
	}
	if err := e.validateBatch(events); err != nil {
		return PushResult{}, err
	}

	failure, err := e.checker.CheckBatch(ctx, events)
	if err != nil {
		return PushResult{}, err
	}
	if failure != nil {
		head, err := e.repo.GetHeadSequence(ctx, ownerID, storeID)
		if err != nil {
			return PushResult{}, err
		}
		return e.reject(ownerID, storeID, expectedHead, &Conflict{
			Reason: ConflictReason(failure.Reason),
			Head:   head,
			Detail: failure.String(),
		}), nil
	}

	res, err := e.repo.AppendBatch(ctx, event.AppendRequest{
		OwnerID:      ownerID,
		StoreID:      storeID,
		ExpectedHead: expectedHead,
		Events:       events,
	})
	if err != nil {
		return PushResult{}, err
	}
	if res.Mismatch != nil {
		conflict, err := e.classifyMismatch(ctx, ownerID, storeID, *res.Mismatch)
		if err != nil {
			return PushResult{}, err
		}
		return e.reject(ownerID, storeID, expectedHead, conflict), nil
	}

	e.metrics.pushCommitted()
	slog.Info("push accepted",
		"owner", ownerID,
		"store", storeID,
		"expected_head", expectedHead,
		"head", res.Head,
		"events", len(events),
	)
	return PushResult{OK: true, Head: res.Head, Assigned: res.Assigned}, nil
}

// Pull returns up to limit events after since, then the current head.
// limit must be positive and is capped at the max pull limit.
func (e *Engine) Pull(ctx context.Context, ownerID, storeID string, since int64, limit int) (PullResult, error) {
	if err := e.authorize(ctx, "pull", ownerID, storeID, e.policy.EnsureCanPull); err != nil {
		return PullResult{}, err
	}
	if since < 0 {
		return PullResult{}, badRequest("since", "must be non-negative, got %d", since)
	}
	if limit < 1 {
		return PullResult{}, badRequest("limit", "must be at least 1, got %d", limit)
	}

	events, err := e.repo.LoadSince(ctx, ownerID, storeID, since, e.clampLimit(limit))
	if err != nil {
		return PullResult{}, err
	}
	// Read after the range so Head is never behind the returned events.
	head, err := e.repo.GetHeadSequence(ctx, ownerID, storeID)
	if err != nil {
		return PullResult{}, err
	}

	e.metrics.pulled(len(events))
	slog.Debug("pull served", "owner", ownerID, "store", storeID, "since", since, "events", len(events), "head", head)
	return PullResult{Events: events, Head: head}, nil
}

// Reset deletes every event in the store. Always refused in production.
// The store must already be bound to ownerID.
func (e *Engine) Reset(ctx context.Context, ownerID, storeID string) error {
	if e.profile == ProfileProduction {
		e.metrics.accessDenied("reset")
		slog.Warn("reset refused in production", "owner", ownerID, "store", storeID)
		return ErrResetForbidden
	}
	if storeID == "" {
		return badRequest("store_id", "must not be empty")
	}
	if err := e.policy.EnsureCanPush(ctx, ownerID, storeID); err != nil {
		e.denied("reset", ownerID, storeID, err)
		return err
	}
	// Reset never binds: claiming or migrating here would move another
	// store's events under storeID and then delete them.
	if err := e.guard.VerifyStoreOwner(ctx, storeID, ownerID); err != nil {
		e.denied("reset", ownerID, storeID, err)
		return err
	}
	if err := e.repo.ResetStore(ctx, ownerID, storeID); err != nil {
		return err
	}
	slog.Warn("store reset", "owner", ownerID, "store", storeID, "profile", e.profile)
	return nil
}

func (e *Engine) authorize(
	ctx context.Context,
	op, ownerID, storeID string,
	check func(context.Context, string, string) error,
) error {
	if storeID == "" {
		return badRequest("store_id", "must not be empty")
	}
	if err := check(ctx, ownerID, storeID); err != nil {
		e.denied(op, ownerID, storeID, err)
		return err
	}
	if err := e.guard.EnsureStoreOwner(ctx, storeID, ownerID); err != nil {
		e.denied(op, ownerID, storeID, err)
		return err
	}
	return nil
}

func (e *Engine) denied(op, ownerID, storeID string, err error) {
	if !IsAccessDenied(err) {
		return
	}
	e.metrics.accessDenied(op)
	slog.Warn("access denied", "op", op, "owner", ownerID, "store", storeID, "error", err)
}

func (e *Engine) validateBatch(events []event.Record) error {
	if len(events) > e.maxBatchSize {
		return badRequest("events", "batch of %d exceeds limit %d", len(events), e.maxBatchSize)
	}
	seen := make(map[string]struct{}, len(events))
	for i, ev := range events {
		if ev.ID == "" {
			return badRequest("events", "event %d has no id", i)
		}
		if _, dup := seen[ev.ID]; dup {
			return badRequest("events", "event id %q repeated in batch", ev.ID)
		}
		seen[ev.ID] = struct{}{}
	}
	return nil
}

// classifyMismatch maps a head mismatch onto the conflict taxonomy.
func (e *Engine) classifyMismatch(ctx context.Context, ownerID, storeID string, m event.HeadMismatch) (*Conflict, error) {
	if m.Current < m.Expected {
		return &Conflict{Reason: ReasonServerBehind, Head: m.Current}, nil
	}

	missing, err := e.repo.LoadSince(ctx, ownerID, storeID, m.Expected, e.rebaseLimit)
	if err != nil {
		return nil, err
	}
	c := &Conflict{Reason: ReasonServerAhead, Head: m.Current}
	if len(missing) > 0 {
		c.Missing = missing
	}
	return c, nil
}

func (e *Engine) reject(ownerID, storeID string, expectedHead int64, c *Conflict) PushResult {
	e.metrics.conflict(c.Reason)
	attrs := []any{
		"owner", ownerID,
		"store", storeID,
		"expected_head", expectedHead,
		"head", c.Head,
		"reason", c.Reason,
	}
	if c.Reason == ReasonServerBehind {
		slog.Warn("push conflict: client ahead of server", attrs...)
	} else {
		slog.Info("push conflict", append(attrs, "missing", len(c.Missing))...)
	}
	return PushResult{OK: false, Head: c.Head, Conflict: c}
}

func (e *Engine) clampLimit(limit int) int {
	if limit > e.maxPullLimit {
		return e.maxPullLimit
	}
	return limit
}

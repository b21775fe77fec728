package event

import "errors"

// AppendRequest is one optimistic append against an owner's store.
type AppendRequest struct {
	OwnerID      string
	StoreID      string
	ExpectedHead int64
	Events       []Record
}

// HeadMismatch means the log head moved away from the caller's expectation.
type HeadMismatch struct {
	Expected int64
	Current  int64
}

// AppendResult is the outcome of an append. Exactly one of two shapes:
// Mismatch == nil means the events were committed with Assigned sequences
// and Head is the new head; Mismatch != nil means nothing was written and
// Head is the current head. Infrastructure failures are returned as errors.
type AppendResult struct {
	Head     int64
	Assigned []Assignment
	Mismatch *HeadMismatch
}

// Committed reports whether the append was applied.
func (r AppendResult) Committed() bool {
	return r.Mismatch == nil
}

// ErrDuplicateEvent is returned by repositories when an appended event id
// already exists in the target store. Nothing from the batch is written.
var ErrDuplicateEvent = errors.New("duplicate event id")

// Package cursor defines the ordering model over committed and pending
// events.
//
// A CommitCursor orders writes within a physical commit. An EffectiveCursor
// is a reader's position: GlobalSequence tracks globally ordered events,
// PendingCommitSequence tracks the highest commit seen locally before it
// was assigned a global position. Both comparisons are strict weak orders
// over their fields, which deterministic projection replay depends on.
package cursor

import (
	"strings"

	"github.com/roach88/synclog/internal/event"
)

// Ordering is the result of comparing two cursors.
type Ordering int

const (
	Before Ordering = -1
	Equal  Ordering = 0
	After  Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case Equal:
		return "equal"
	case After:
		return "after"
	default:
		return "invalid"
	}
}

// CommitCursor is the total order key for events within a commit batch.
type CommitCursor struct {
	CommitSequence int64  `json:"commit_sequence"`
	EventID        string `json:"event_id"`
	Version        int64  `json:"version"`
}

// EffectiveCursor is the position a reader uses to decide what it has
// already observed.
type EffectiveCursor struct {
	GlobalSequence        int64 `json:"global_sequence"`
	PendingCommitSequence int64 `json:"pending_commit_sequence"`
}

// CompareCommit orders by CommitSequence, then EventID (bytewise), then Version.
func CompareCommit(a, b CommitCursor) Ordering {
	if o := compareInt(a.CommitSequence, b.CommitSequence); o != Equal {
		return o
	}
	if o := Ordering(strings.Compare(a.EventID, b.EventID)); o != Equal {
		return o
	}
	return compareInt(a.Version, b.Version)
}

// CompareEffective orders by GlobalSequence, then PendingCommitSequence.
func CompareEffective(a, b EffectiveCursor) Ordering {
	if o := compareInt(a.GlobalSequence, b.GlobalSequence); o != Equal {
		return o
	}
	return compareInt(a.PendingCommitSequence, b.PendingCommitSequence)
}

// CommitFromRecord projects the commit cursor fields of a record.
func CommitFromRecord(r event.Record) CommitCursor {
	return CommitCursor{
		CommitSequence: r.CommitSequence,
		EventID:        r.ID,
		Version:        r.Version,
	}
}

// Advance moves c past r. A synced record updates only the global
// component; a pending record updates only the pending component.
func Advance(c EffectiveCursor, r event.Record) EffectiveCursor {
	if r.GlobalSequence != nil {
		return EffectiveCursor{
			GlobalSequence:        *r.GlobalSequence,
			PendingCommitSequence: c.PendingCommitSequence,
		}
	}
	return EffectiveCursor{
		GlobalSequence:        c.GlobalSequence,
		PendingCommitSequence: r.CommitSequence,
	}
}

// AdvanceAll folds Advance over records in order.
func AdvanceAll(c EffectiveCursor, records []event.Record) EffectiveCursor {
	for _, r := range records {
		c = Advance(c, r)
	}
	return c
}

// Observed reports whether r is at or behind c, i.e. the reader has
// already seen it.
func Observed(c EffectiveCursor, r event.Record) bool {
	if r.GlobalSequence != nil {
		return *r.GlobalSequence <= c.GlobalSequence
	}
	return r.CommitSequence <= c.PendingCommitSequence
}

func compareInt(a, b int64) Ordering {
	switch {
	case a < b:
		return Before
	case a > b:
		return After
	default:
		return Equal
	}
}

package event

import "time"

// Record is a single entry in an owner's append-only event log.
type Record struct {
	ID            string    `json:"id"`
	AggregateID   string    `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	Payload       []byte    `json:"payload"`
	Version       int64     `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
	ActorID       string    `json:"actor_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Epoch         *int64    `json:"epoch,omitempty"`
	KeyringUpdate []byte    `json:"keyring_update,omitempty"`

	// Sharing is set only when the payload belongs to a shared encryption scope.
	Sharing *SharingReference `json:"sharing,omitempty"`

	// Server-assigned.
	CommitSequence int64  `json:"commit_sequence"`
	GlobalSequence *int64 `json:"global_sequence"`
}

// IsSynced reports whether the record has been ordered into the global stream.
func (r Record) IsSynced() bool {
	return r.GlobalSequence != nil
}

// SharingReference ties an event to the scope state and grant it was
// encrypted against.
type SharingReference struct {
	ScopeID       string `json:"scope_id"`
	ResourceID    string `json:"resource_id,omitempty"`
	ResourceKeyID string `json:"resource_key_id,omitempty"`
	GrantID       string `json:"grant_id"`
	ScopeStateRef string `json:"scope_state_ref"`
}

// IsEmpty reports whether the reference carries none of the fields that opt
// an event into sharing validation.
func (s *SharingReference) IsEmpty() bool {
	return s == nil || (s.ScopeID == "" && s.GrantID == "" && s.ScopeStateRef == "")
}

// Assignment maps a submitted event id to the sequences it received.
type Assignment struct {
	EventID        string `json:"event_id"`
	CommitSequence int64  `json:"commit_sequence"`
	GlobalSequence int64  `json:"global_sequence"`
}

// Seq returns a pointer to v, for populating optional sequence fields.
func Seq(v int64) *int64 {
	return &v
}

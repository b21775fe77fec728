// Package sharing cross-checks events against the encrypted-sharing
// subsystem before they are appended.
//
// An event opts in by carrying a SharingReference. For each such event, in
// submission order, the validator checks that the referenced scope state and
// grant exist, that the scope state is still the scope's head, and that the
// grant is still the active grant for the resource. The first failure ends
// validation for the whole batch.
//
// The two engine variants are chosen at construction through Mode:
// ModeEnforced requires both read ports, ModeDisabled runs the log as plain
// event sourcing with no sharing cross-checks.
package sharing

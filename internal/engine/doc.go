// Package engine implements the synclog sync consistency engine.
//
// The engine arbitrates pushes and pulls against one (owner, store) event
// log. It holds no state between calls; every decision is made against the
// backing repository.
//
// PUSH PIPELINE:
//
// 1. Access policy (EnsureCanPush). Failures are fatal, never conflicts.
// 2. Store ownership (EnsureStoreOwner). Claims or migrates as needed.
// 3. Empty batches return the current head without touching the log.
// 4. Sharing dependency validation over the whole batch, fail fast.
// 5. Optimistic append. The repository reports a head mismatch as a
// result value; the engine classifies it as server_ahead or
// server_behind.
//
// Nothing is written unless every step before the append passed.
//
// CRITICAL PATTERNS:
//
// Conflicts are values
// PushResult carries a Conflict for every expected protocol condition.
// Errors are reserved for access denial, malformed requests, and
// infrastructure faults, and are propagated unmodified.
//
// Explicit variants
// The sharing checker (enforced or disabled) and the deployment profile are
// fixed at construction. The engine never inspects process state.
package engine

// Package replica is a client-side reconciler for one (owner, store) log.
//
// A Replica keeps synced events (server-assigned global sequence) and
// pending events (local commit sequence only) and an EffectiveCursor over
// both. Sync pushes pending events at the cursor's global component; on a
// server_ahead conflict it applies the returned missing events, catches up
// with pulls if the rebase page was capped, and retries at the new head.
//
// Retry-on-conflict lives here, never in the server engine.
package replica

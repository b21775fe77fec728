// Package ownership binds each sync store id to exactly one owning identity.
//
// EnsureStoreOwner runs as one transaction through a Transactor supplied by
// the backing store:
//
//  1. Existing row: succeed iff the owner matches.
//  2. Identity owns nothing: claim the id (idempotent insert), then re-read
//     to detect a racing claim by another identity.
//  3. Identity owns exactly one legacy store: re-point its events to the new
//     id and rename the row, provided the new id is not legacy itself and
//     no events already exist under the new id.
//  4. Identity owns two or more stores: refuse, the target is ambiguous.
//
// Serialization is delegated to the backing store's transaction isolation.
// Nothing here holds an in-process lock, so several server processes can
// share one database.
package ownership

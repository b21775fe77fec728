// Package event defines the log entry types shared by every synclog layer.
//
// An EventRecord is immutable once written. Its payload is opaque
// ciphertext: the server never inspects it. Two integers are assigned by
// the server:
//
//   - CommitSequence: monotonic per physical commit, never nil
//   - GlobalSequence: position in the logical stream; nil while a commit is
//     still pending relative to readers
//
// GlobalSequence, once set, never changes and is strictly increasing in
// commit order.
package event

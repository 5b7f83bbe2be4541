// Package history is a replicated, file-backed store of captured-text history items.
//
// Items live in a replicated document (see Document) as one nested map per item id inside
// the top-level "history" container. Every mutation rewrites the whole document snapshot to
// the backing file, and snapshots exported by one replica can be merged into another with
// Store.Import. Merges are causal unions: they are commutative and idempotent.
//
// A Store is not safe for concurrent use; callers serialise access (see package replica).
package history

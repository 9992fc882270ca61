// Package collab is the content model behind every document handle.
//
// A Document is a tree of blocks rooted at a page block. Text lives outside
// the blocks in a text map keyed by the block's external id and is stored as
// a delta (a list of inserts with optional attributes). The model exposes
// three event streams that the document registry subscribes to when a
// document is opened for syncing:
//
//   - change events, emitted after every local mutation
//   - sync state transitions (init sync begin/end, syncing, finished)
//   - snapshot state transitions, reported by the snapshot service
//
// Documents are built from a DataSource (bytes previously produced by
// EncodeCollab) through a Builder, which runs decoding on a bounded set of
// worker goroutines so that large documents do not starve callers.
//
// A Document is not safe for concurrent mutation. The registry wraps each one
// in a handle holding a read/write lock; the only methods safe to call
// without that lock are the Subscribe*, StartInitSync and RecordSnapshotState
// methods.
package collab

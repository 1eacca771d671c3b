package cstask

// BlobProp is the simpler sibling of PublicComment: it resolves
// whether a blob's own flags (without consulting status history at
// all) mark it as unavailable, and reports which condition applies.
// It is the cheap Init-only fast path promoted to a standalone task
// for callers that only need the blob-level flags, not the
// history-derived comment.
type BlobProp struct {
	State State

	blobFlags BlobFlags
	callback  func(withdrawn, suppressed bool)
	fired     bool
}

// NewBlobProp constructs a fast-path resolver over flags.
func NewBlobProp(flags BlobFlags) *BlobProp {
	return &BlobProp{State: StateInit, blobFlags: flags}
}

// SetCallback registers the completion callback.
func (t *BlobProp) SetCallback(cb func(withdrawn, suppressed bool)) {
	t.callback = cb
}

// Advance runs the (trivial, single-step, no-I/O) state machine.
func (t *BlobProp) Advance() {
	if t.State != StateInit {
		return
	}
	if t.callback != nil && !t.fired {
		t.fired = true
		t.callback(isBlobWithdrawn(t.blobFlags), isBlobSuppressed(t.blobFlags))
	}
	t.State = StateDone
}

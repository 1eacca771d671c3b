package cstask

import (
	"fmt"

	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/schema"
)

// Blob status/flag bits relevant to public-comment resolution. Only
// the bits this FSM inspects are named; the rest of BlobRecord's
// bitfield is opaque to this package.
type BlobFlags uint64

const (
	FlagWithdrawn            BlobFlags = 1 << 0
	FlagWithdrawnPermanently BlobFlags = 1 << 1
	FlagSuppress             BlobFlags = 1 << 2
	FlagSuppressPermanently  BlobFlags = 1 << 3
)

const withdrawnMask = FlagWithdrawn | FlagWithdrawnPermanently

func isBlobWithdrawn(f BlobFlags) bool  { return f&FlagWithdrawn != 0 }
func isBlobSuppressed(f BlobFlags) bool { return f&FlagSuppress != 0 }
func sameWithdrawn(a, b BlobFlags) bool { return a&withdrawnMask == b&withdrawnMask }
func isHistorySuppressed(f BlobFlags) bool {
	return f&FlagSuppressPermanently != 0
}

// MaxReplacesRetries bounds how many times the FSM will jump to a
// replaces key.
const MaxReplacesRetries = 5

const (
	DefaultSuppressedMessageKey = "BLOB_STATUS_SUPPRESSED"
	DefaultWithdrawnMessageKey  = "BLOB_STATUS_WITHDRAWN"
)

// public-comment-specific states, continuing from the shared base.
const (
	statePCStartReading State = iota + stateTaskSpecific
	statePCReadingHistory
	statePCReturnResult
)

// CommentCallback delivers the resolved comment and whether one was
// found at all, exactly once per task.
type CommentCallback func(comment string, found bool)

// PublicComment resolves the current public comment for a blob whose
// flags indicate it is suppressed and/or withdrawn, walking
// blob_status_history and following `replaces` links up to
// MaxReplacesRetries times. Grounded on
// original_source/.../get_public_comment.cpp, translated into a
// blocking-Advance FSM (see task.go's package doc).
type PublicComment struct {
	Base

	keyspace string
	messages *schema.Messages
	callback CommentCallback

	blobFlags         BlobFlags
	firstHistoryFlags BlobFlags
	firstHistorySet   bool
	matchingRowFound  bool
	replacesRetries   int
	publicComment     string
	currentKey        int32

	callbackFired bool
}

// NewPublicComment constructs the FSM for one blob. session issues
// the blob_status_history queries; keyspace names the blob's
// keyspace; satKey and flags come from the blob record being
// resolved.
func NewPublicComment(session QuerySession, keyspace string, satKey int32, flags BlobFlags) *PublicComment {
	return &PublicComment{
		Base:            NewBase(session),
		keyspace:        keyspace,
		blobFlags:       flags,
		currentKey:      satKey,
		replacesRetries: MaxReplacesRetries,
	}
}

// SetMessages attaches the messages snapshot used for the default
// suppressed/withdrawn text when no matching history row is found.
func (t *PublicComment) SetMessages(m *schema.Messages) { t.messages = m }

// SetCommentCallback registers the completion callback.
func (t *PublicComment) SetCommentCallback(cb CommentCallback) { t.callback = cb }

func (t *PublicComment) fireCallback(comment string, found bool) {
	if t.callbackFired || t.callback == nil {
		return
	}
	t.callbackFired = true
	t.callback(comment, found)
}

func (t *PublicComment) jumpToReplaced(replaced int32) {
	t.replacesRetries--
	t.currentKey = replaced
	t.matchingRowFound = false
	t.publicComment = ""
	t.State = statePCStartReading
}

// Advance drives the FSM, looping internally while need_repeat is set.
// Queries run in blocking mode, so issuing the history query sets
// need_repeat as well and its rows are read within the same call.
func (t *PublicComment) Advance() {
	needRepeat := true
	for needRepeat {
		needRepeat = false
		switch t.State {
		case StateError, StateDone:
			return

		case StateInit:
			if !isBlobSuppressed(t.blobFlags) && !isBlobWithdrawn(t.blobFlags) {
				t.fireCallback("", false)
				t.State = StateDone
			} else {
				t.State = statePCStartReading
				needRepeat = true
			}

		case statePCStartReading:
			t.CloseAll()
			t.Query(
				"SELECT flags, public_comment, replaces FROM "+t.keyspace+".blob_status_history WHERE sat_key = ?",
				t.currentKey,
			)
			t.State = statePCReadingHistory
			needRepeat = true

		case statePCReadingHistory:
			needRepeat = t.advanceReadingHistory()

		case statePCReturnResult:
			t.advanceReturnResult()

		default:
			t.Fail(502, errors.MissData, "Error", fmt.Sprintf(
				"unexpected public comment resolution state (%d)", t.State))
		}
	}
}

// advanceReadingHistory consumes rows from the in-flight query,
// implementing the ReadingHistory state's transitions. It returns true
// when the caller should immediately re-enter Advance's loop (a
// state change requiring no further I/O happened).
func (t *PublicComment) advanceReadingHistory() bool {
	if !t.CheckReady(t.iterField()) {
		return false
	}
	iter := t.iterField()

	var flags int64
	var comment string
	var replaces int32
	for t.State == statePCReadingHistory && iter.Scan(&flags, &comment, &replaces) {
		rowFlags := BlobFlags(flags)
		if !t.firstHistorySet {
			t.firstHistoryFlags = rowFlags
			t.firstHistorySet = true
		}

		var discriminatorMatches bool
		if isBlobWithdrawn(t.blobFlags) {
			discriminatorMatches = sameWithdrawn(rowFlags, t.firstHistoryFlags)
		} else {
			discriminatorMatches = isHistorySuppressed(rowFlags)
		}

		if !discriminatorMatches {
			switch {
			case t.matchingRowFound:
				t.State = statePCReturnResult
			case replaces > 0 && t.replacesRetries > 0:
				t.jumpToReplaced(replaces)
			default:
				t.State = statePCReturnResult
			}
			return true
		}
		t.matchingRowFound = true
		t.publicComment = comment
	}

	if err := iter.Close(); err != nil {
		t.Fail(502, errors.QueryFailedRestartable, "Error", "blob_status_history query failed: "+err.Error())
		return false
	}
	t.iter = nil

	if t.State == statePCReadingHistory {
		t.State = statePCReturnResult
		return true
	}
	return false
}

// iterField exposes the embedded Base's private iter for the
// blocking-scan loop above; CheckReady only ever compares it to
// itself in this driver, per task.go's doc comment.
func (t *PublicComment) iterField() QueryIter { return t.iter }

func (t *PublicComment) advanceReturnResult() {
	t.CloseAll()

	if t.publicComment != "" {
		t.fireCallback(t.publicComment, true)
		t.State = StateDone
		return
	}

	if t.messages == nil {
		t.Fail(502, errors.MissData, "Error", "Messages provider not configured for Public Comment retrieval")
		return
	}

	var key string
	switch {
	case isBlobSuppressed(t.blobFlags):
		key = DefaultSuppressedMessageKey
	case isBlobWithdrawn(t.blobFlags):
		key = DefaultWithdrawnMessageKey
	}
	comment := t.messages.Get(key)
	if comment == "" {
		t.Fail(502, errors.MissData, "Error", fmt.Sprintf("Message is empty for (%s)", key))
		return
	}
	t.fireCallback(comment, true)
	t.State = StateDone
}

package cstask

import (
	"testing"

	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/schema"
)

type historyRow struct {
	flags    int64
	comment  string
	replaces int32
}

type fakeHistoryIter struct {
	rows []historyRow
	pos  int
	err  error
}

func (it *fakeHistoryIter) Scan(dest ...interface{}) bool {
	if it.pos >= len(it.rows) {
		return false
	}
	row := it.rows[it.pos]
	it.pos++
	*dest[0].(*int64) = row.flags
	*dest[1].(*string) = row.comment
	*dest[2].(*int32) = row.replaces
	return true
}

func (it *fakeHistoryIter) Close() error { return it.err }

// fakeQuerySession hands out one canned iterator per Query call, in order.
type fakeQuerySession struct {
	responses []*fakeHistoryIter
	calls     int
}

func (s *fakeQuerySession) Query(stmt string, values ...interface{}) QueryIter {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		return &fakeHistoryIter{}
	}
	return s.responses[idx]
}

func newSession(rowSets ...[]historyRow) *fakeQuerySession {
	s := &fakeQuerySession{}
	for _, rows := range rowSets {
		s.responses = append(s.responses, &fakeHistoryIter{rows: rows})
	}
	return s
}

func TestPublicCommentNotSuppressedOrWithdrawnSkipsQuery(t *testing.T) {
	session := &fakeQuerySession{}
	task := NewPublicComment(session, "ks", 1, 0)

	var comment string
	var found bool
	task.SetCommentCallback(func(c string, f bool) { comment, found = c, f })

	task.Advance()

	if task.State != StateDone {
		t.Fatalf("state = %v, want StateDone", task.State)
	}
	if found {
		t.Fatal("expected found=false when blob is neither suppressed nor withdrawn")
	}
	if comment != "" {
		t.Fatalf("comment = %q, want empty", comment)
	}
	if session.calls != 0 {
		t.Fatal("expected no history query when discriminator flags are absent")
	}
}

func TestPublicCommentStraightforwardMatch(t *testing.T) {
	session := newSession([]historyRow{{flags: int64(FlagWithdrawn), comment: "withdrawn for cause", replaces: 0}})
	task := NewPublicComment(session, "ks", 1, FlagWithdrawn)

	var comment string
	var found bool
	task.SetCommentCallback(func(c string, f bool) { comment, found = c, f })
	task.Advance()

	if task.State != StateDone {
		t.Fatalf("state = %v, want StateDone", task.State)
	}
	if !found || comment != "withdrawn for cause" {
		t.Fatalf("comment=%q found=%v, want the matching history row's text", comment, found)
	}
}

func TestPublicCommentWithdrawnDiscriminatorStopsAtFirstMismatch(t *testing.T) {
	rows := []historyRow{
		{flags: int64(FlagWithdrawn), comment: "first withdrawal", replaces: 0},
		{flags: int64(FlagWithdrawnPermanently), comment: "later, different withdrawal kind", replaces: 0},
	}
	session := newSession(rows)
	task := NewPublicComment(session, "ks", 1, FlagWithdrawn)

	var comment string
	var found bool
	task.SetCommentCallback(func(c string, f bool) { comment, found = c, f })
	task.Advance()

	if !found || comment != "first withdrawal" {
		t.Fatalf("comment=%q found=%v, want the first matching row's text preserved once a later row's discriminator disagrees", comment, found)
	}
}

func TestPublicCommentSuppressedDiscriminatorFallsBackToDefaultMessage(t *testing.T) {
	session := newSession([]historyRow{{flags: 0, comment: "ignored", replaces: 0}})
	task := NewPublicComment(session, "ks", 1, FlagSuppress)
	task.SetMessages(schema.NewMessages(map[string]string{
		DefaultSuppressedMessageKey: "this record has been suppressed",
	}))

	var comment string
	var found bool
	task.SetCommentCallback(func(c string, f bool) { comment, found = c, f })
	task.Advance()

	if task.State != StateDone {
		t.Fatalf("state = %v, want StateDone", task.State)
	}
	if !found || comment != "this record has been suppressed" {
		t.Fatalf("comment=%q found=%v, want the default suppressed message", comment, found)
	}
}

func TestPublicCommentFollowsReplacesChainUntilRetriesExhausted(t *testing.T) {
	rowSets := make([][]historyRow, 0, MaxReplacesRetries+1)
	for i := 0; i < MaxReplacesRetries+1; i++ {
		rowSets = append(rowSets, []historyRow{{flags: 0, comment: "", replaces: 42}})
	}
	session := newSession(rowSets...)
	task := NewPublicComment(session, "ks", 1, FlagSuppress)
	task.SetMessages(schema.NewMessages(map[string]string{
		DefaultSuppressedMessageKey: "this record has been suppressed",
	}))

	var found bool
	task.SetCommentCallback(func(c string, f bool) { found = f })
	task.Advance()

	if task.State != StateDone {
		t.Fatalf("state = %v, want StateDone", task.State)
	}
	if !found {
		t.Fatal("expected the default message once replaces retries are exhausted")
	}
	if session.calls != MaxReplacesRetries+1 {
		t.Fatalf("query calls = %d, want %d (initial lookup plus %d replaces hops)",
			session.calls, MaxReplacesRetries+1, MaxReplacesRetries)
	}
}

func TestPublicCommentMissingMessagesFailsWithMissData(t *testing.T) {
	session := newSession([]historyRow{{flags: 0, comment: "", replaces: 0}})
	task := NewPublicComment(session, "ks", 1, FlagSuppress)

	var gotCode errors.Code
	task.SetOnError(func(status int, code errors.Code, severity, message string) { gotCode = code })

	callbackCalled := false
	task.SetCommentCallback(func(c string, f bool) { callbackCalled = true })

	task.Advance()

	if task.State != StateError {
		t.Fatalf("state = %v, want StateError", task.State)
	}
	if gotCode != errors.MissData {
		t.Fatalf("error code = %v, want MissData", gotCode)
	}
	if callbackCalled {
		t.Fatal("comment callback must not fire when resolution fails")
	}
}

func TestPublicCommentCallbackFiresExactlyOnce(t *testing.T) {
	session := newSession([]historyRow{{flags: int64(FlagWithdrawn), comment: "c1", replaces: 0}})
	task := NewPublicComment(session, "ks", 1, FlagWithdrawn)

	calls := 0
	task.SetCommentCallback(func(c string, f bool) { calls++ })

	task.fireCallback("first", true)
	task.fireCallback("second", true)

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", calls)
	}
}

func TestSetOnErrorFailsAfterTaskStarted(t *testing.T) {
	session := newSession([]historyRow{{flags: int64(FlagWithdrawn), comment: "c1", replaces: 0}})
	task := NewPublicComment(session, "ks", 1, FlagWithdrawn)

	task.Advance()

	if err := task.SetOnError(func(int, errors.Code, string, string) {}); err == nil {
		t.Fatal("expected SetOnError to fail once the task has started")
	}
}

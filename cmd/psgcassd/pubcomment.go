package main

import (
	"fmt"
	"sync/atomic"

	"github.com/ncbi/psg-cassvc/blobid"
	"github.com/ncbi/psg-cassvc/cassandra"
	"github.com/ncbi/psg-cassvc/cstask"
	"github.com/ncbi/psg-cassvc/errors"
	"github.com/ncbi/psg-cassvc/processor"
	"github.com/ncbi/psg-cassvc/schema"
)

// blobRequest carries a parsed blob id and its known status flags
// through the dispatcher. This daemon has no blob_prop reader of its
// own, so flags arrive with the request rather than being looked up.
type blobRequest struct {
	id    blobid.ID
	flags cstask.BlobFlags
}

func (blobRequest) RequestType() string { return "get_public_comment" }

// blobReply collects one dispatch's outcome. Canceled always reports
// false: the debug endpoint driving this has no client connection of
// its own to go away.
type blobReply struct {
	comment string
	found   bool
	err     error
}

func (*blobReply) Canceled() bool { return false }

// publicCommentProcessor resolves a blob's current public comment by
// driving a cstask.PublicComment FSM to completion against the
// keyspace the schema provider currently maps the blob's sat to. It
// is the one concrete Processor this daemon registers; other request
// kinds (get_blob, get_na, accession resolve) stay represented only by
// the processor.Processor interface, per this module's Non-goals.
type publicCommentProcessor struct {
	processor.Base

	req      blobRequest
	reply    *blobReply
	session  cstask.QuerySession
	keyspace string
	messages *schema.Messages

	status int32 // processor.Status, accessed atomically
}

func newPublicCommentProcessor(req blobRequest, reply *blobReply, session cstask.QuerySession, keyspace string, messages *schema.Messages) *publicCommentProcessor {
	return &publicCommentProcessor{
		req:      req,
		reply:    reply,
		session:  session,
		keyspace: keyspace,
		messages: messages,
		status:   int32(processor.StatusInProgress),
	}
}

// Process races for the right to answer, then drives the FSM to
// completion on the worker-loop goroutine the dispatcher pinned it to.
func (p *publicCommentProcessor) Process() {
	if p.SignalStartProcessing() != processor.Proceed {
		p.setStatus(processor.StatusCanceled)
		p.SignalFinishProcessing()
		return
	}

	task := cstask.NewPublicComment(p.session, p.keyspace, p.req.id.SatKey, p.req.flags)
	task.SetMessages(p.messages)
	task.SetCommentCallback(func(comment string, found bool) {
		p.reply.comment = comment
		p.reply.found = found
	})
	var taskErr error
	task.SetOnError(func(status int, code errors.Code, severity, message string) {
		taskErr = errors.New(code, message)
	})

	for task.State != cstask.StateDone && task.State != cstask.StateError {
		task.Advance()
	}

	p.SignalFinishProcessing()
	if task.State == cstask.StateError {
		p.reply.err = taskErr
		p.setStatus(processor.StatusError)
		return
	}
	p.setStatus(processor.StatusDone)
}

// Cancel marks the processor canceled. The FSM itself is not
// interruptible mid-query (it runs to completion once started, like
// every cstask FSM in this tree); Cancel only affects GetStatus for a
// processor the race already lost before Process began its query.
func (p *publicCommentProcessor) Cancel() {
	p.setStatus(processor.StatusCanceled)
}

func (p *publicCommentProcessor) setStatus(s processor.Status) {
	atomic.StoreInt32(&p.status, int32(s))
}

func (p *publicCommentProcessor) GetStatus() processor.Status {
	return processor.Status(atomic.LoadInt32(&p.status))
}

func (p *publicCommentProcessor) Name() string      { return "public_comment" }
func (p *publicCommentProcessor) GroupName() string { return "cassandra" }
func (p *publicCommentProcessor) OnEvent()          {}

// publicCommentFactory builds publicCommentProcessors for blobRequests
// whose sat currently resolves against the published schema.
type publicCommentFactory struct {
	provider *schema.Provider
}

func (f *publicCommentFactory) blobEntry(req processor.Request) (blobRequest, schema.Entry, bool) {
	br, ok := req.(blobRequest)
	if !ok {
		return blobRequest{}, schema.Entry{}, false
	}
	s := f.provider.GetSchema()
	if s == nil {
		return blobRequest{}, schema.Entry{}, false
	}
	entry, ok := s.GetBlobKeyspace(br.id.Sat)
	return br, entry, ok
}

func (f *publicCommentFactory) CanProcess(req processor.Request, reply processor.Reply) bool {
	_, _, ok := f.blobEntry(req)
	return ok
}

func (f *publicCommentFactory) WhatCanProcess(req processor.Request, reply processor.Reply) []string {
	return nil
}

func (f *publicCommentFactory) CreateProcessor(req processor.Request, reply processor.Reply, priority processor.Priority) processor.Processor {
	br, entry, ok := f.blobEntry(req)
	if !ok {
		return nil
	}
	bReply, ok := reply.(*blobReply)
	if !ok {
		return nil
	}
	session, err := taskSessionFor(entry.Connection)
	if err != nil {
		bReply.err = err
		return nil
	}
	return newPublicCommentProcessor(br, bReply, session, entry.Keyspace, f.provider.GetMessages())
}

// taskSessionFor narrows the schema.Connection a resolved entry
// carries down to the cstask.QuerySession a task FSM issues its own
// queries against. schema.Connection only promises Endpoints/Close;
// package cassandra's concrete type is the only implementation that
// also exposes the underlying *gocql.Session.
func taskSessionFor(conn schema.Connection) (cstask.QuerySession, error) {
	c, ok := conn.(*cassandra.Connection)
	if !ok {
		return nil, fmt.Errorf("connection %T does not expose a Cassandra session", conn)
	}
	return cassandra.NewTaskSessionAdapter(c.Session()), nil
}

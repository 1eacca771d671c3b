// Package processor implements the per-request processor dispatch
// contract (component C5): a fixed set of registered factories each
// get a chance to build a processor for an incoming request, and the
// processors that agree to participate race to completion under a
// shared cancellation and worst-status-wins aggregation rule.
package processor

// Status is a processor's completion state. Its enum ORDER matters:
// Dispatcher.Dispatch computes the worst of all participating
// processors' statuses by comparing these values, so declaration
// order below is the severity order, best to worst.
type Status int

const (
	StatusInProgress Status = iota
	StatusDone
	StatusNotFound
	StatusCanceled
	StatusTimeout
	StatusError
	StatusUnauthorized
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusNotFound:
		return "not_found"
	case StatusCanceled:
		return "canceled"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Worse reports whether a is a strictly worse outcome than b, per the
// declared enum order.
func (a Status) Worse(b Status) bool { return a > b }

// Priority orders which processor factory gets first refusal on a
// request when more than one is able to handle it exclusively.
type Priority int

// Request and Reply are the narrow seams a Processor needs from the
// surrounding request/response machinery; the concrete types live
// above this package (in the request-handling layer) to avoid a
// dependency cycle.
type Request interface {
	// RequestType identifies the PSG request kind, e.g. "resolve",
	// "get_blob", "get_na".
	RequestType() string
}

type Reply interface {
	// Canceled reports whether the client side has gone away.
	Canceled() bool
}

// Processor is one participant created for a single request. All
// methods except Cancel and GetStatus are expected to run on the
// worker-loop goroutine the dispatcher pins it to.
type Processor interface {
	// Process performs the (possibly blocking) work. It must not
	// return until GetStatus() would no longer report InProgress, or
	// it must arrange for SignalFinishProcessing to be called from
	// elsewhere once that becomes true.
	Process()

	// Cancel requests early termination. Safe to call from any
	// goroutine, at most once meaningfully; must not block.
	Cancel()

	// GetStatus returns the processor's current status. Safe to call
	// from any goroutine.
	GetStatus() Status

	// Name identifies this processor for logging.
	Name() string

	// GroupName identifies the backend this processor draws from
	// (e.g. "cassandra"), used to cap concurrent work per backend.
	GroupName() string

	// OnEvent is invoked periodically in addition to I/O completion,
	// letting a processor make progress without a dedicated callback
	// for every possible wakeup source.
	OnEvent()

	// SignalStartProcessing is called by Process, from within itself,
	// once the processor holds data worth returning. The first caller
	// among every processor racing this request gets Proceed; every
	// later caller gets Cancel, and every other still-running
	// processor for the request is sent Cancel() as a side effect of
	// the winning call. Concrete processors get this for free by
	// embedding Base.
	SignalStartProcessing() StartDecision

	// SignalFinishProcessing is called by Process exactly once, when
	// the processor has nothing further to do, whether it proceeded or
	// was told to cancel. Concrete processors get this for free by
	// embedding Base.
	SignalFinishProcessing()
}

// Factory builds Processors for requests it recognizes.
type Factory interface {
	// CanProcess reports whether this factory can participate in
	// answering req at all.
	CanProcess(req Request, reply Reply) bool

	// WhatCanProcess is meaningful only for named-annotation
	// requests: it reports which annotation names this factory
	// recognizes among those requested.
	WhatCanProcess(req Request, reply Reply) []string

	// CreateProcessor returns a new Processor for req, or nil if this
	// factory, on reflection, cannot help with it after all.
	CreateProcessor(req Request, reply Reply, priority Priority) Processor
}

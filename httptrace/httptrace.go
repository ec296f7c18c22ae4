// Package httptrace implements the HTTP correlator. It
// detects plaintext requests in outbound stream payload
// and pairs them with the receive call that carries the
// response, reporting both as records.
package httptrace

import (
	"sync/atomic"

	"github.com/aegistudio/shaft"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/pkg/boundmap"
	"github.com/chaitin/socktrace/pkg/httpwire"
)

// DefaultCapacity bounds the outstanding request table
// unless overridden.
const DefaultCapacity = 65536

// DefaultPendingCapacity bounds the table bridging the
// enter and exit phases of receive calls. Entries in it
// live only for the duration of one call, so it stays far
// smaller than the request table.
const DefaultPendingCapacity = 1024

type option struct {
	capacity        int
	pendingCapacity int
	sinkSize        int
}

// Option to initialize the HTTP correlator.
type Option func(*option)

// WithCapacity bounds the number of outstanding requests
// tracked at once. The default value is DefaultCapacity.
func WithCapacity(capacity int) Option {
	return func(opt *option) {
		opt.capacity = capacity
	}
}

// WithPendingCapacity bounds the number of receive calls
// between their enter and exit phases. The default value
// is DefaultPendingCapacity.
func WithPendingCapacity(capacity int) Option {
	return func(opt *option) {
		opt.pendingCapacity = capacity
	}
}

// WithSinkSize specifies the record buffering of the
// correlator sink. The default value is
// socktrace.DefaultSinkSize.
func WithSinkSize(size int) Option {
	return func(opt *option) {
		opt.sinkSize = size
	}
}

// newOption creates the option with all default values.
func newOption() *option {
	return &option{
		capacity:        DefaultCapacity,
		pendingCapacity: DefaultPendingCapacity,
		sinkSize:        socktrace.DefaultSinkSize,
	}
}

// Tracker is the HTTP correlator. It consumes stream send
// and receive invocations and emits one record per
// detected request and one per correlated response.
type Tracker struct {
	sink       *socktrace.Sink
	starts     *boundmap.Table[socktrace.ConnKey, uint64]
	pending    *boundmap.Table[uint64, socktrace.ConnKey]
	numRefused uint64
}

// New creates an HTTP correlator.
func New(opts ...Option) *Tracker {
	opt := newOption()
	for _, setter := range opts {
		setter(opt)
	}
	return &Tracker{
		sink:    socktrace.NewSink(opt.sinkSize),
		starts:  boundmap.New[socktrace.ConnKey, uint64](opt.capacity),
		pending: boundmap.New[uint64, socktrace.ConnKey](opt.pendingCapacity),
	}
}

// Sink returns the sink the correlator emits records to.
func (t *Tracker) Sink() *socktrace.Sink {
	return t.sink
}

// Hooks returns the instrumentation bindings of the
// correlator. The enter and exit handlers bind to the
// same point; the handler type selects the phase.
func (t *Tracker) Hooks() []socktrace.Hook {
	return []socktrace.Hook{{
		Point:   socktrace.PointStreamSend,
		Handler: t.handleStreamSend,
	}, {
		Point:   socktrace.PointStreamReceive,
		Handler: t.handleReceiveEnter,
	}, {
		Point:   socktrace.PointStreamReceive,
		Handler: t.handleReceiveExit,
	}}
}

// handleStreamSend detects a request line in outbound
// payload. Payload carrying no method signature is not
// HTTP as far as the correlator is concerned and leaves
// no trace behind.
func (t *Tracker) handleStreamSend(ev socktrace.StreamSend) {
	if ev.Family != socktrace.FamilyInet {
		return
	}
	method, ok := httpwire.DetectMethod(ev.Payload)
	if !ok {
		return
	}

	// Remember the send for latency attribution. A second
	// request on the same key before its response simply
	// replaces the timestamp, so the most recent request
	// wins.
	key := ev.Key()
	if !t.starts.Put(key, ev.NowNS) {
		atomic.AddUint64(&t.numRefused, 1)
	}

	event := socktrace.HTTPEvent{
		TimestampNS: ev.NowNS,
		SrcIP:       key.SrcIP,
		DstIP:       key.DstIP,
		SrcPort:     key.SrcPort,
		DstPort:     key.DstPort,
		Method:      method,
		Path:        httpwire.CutPath(ev.Payload, method),
	}
	t.sink.Emit(event.Marshal())
}

// handleReceiveEnter opens the two phase correlation of a
// receive call. Data is arriving rather than leaving, so
// the endpoints swap back into the direction the request
// was sent under, and the swapped key parks under the
// call id until the exit phase.
func (t *Tracker) handleReceiveEnter(ev socktrace.ReceiveEnter) {
	if ev.Family != socktrace.FamilyInet {
		return
	}
	if !t.pending.Put(ev.CallID, ev.Key().Swap()) {
		atomic.AddUint64(&t.numRefused, 1)
	}
}

// handleReceiveExit closes the two phase correlation.
// When the key recovered from the enter phase holds an
// outstanding request, the completed receive is its
// response and their distance is the latency. Responses
// to untracked or already correlated requests silently
// drop out here.
func (t *Tracker) handleReceiveExit(ev socktrace.ReceiveExit) {
	key, ok := t.pending.Take(ev.CallID)
	if !ok {
		return
	}
	startNS, ok := t.starts.Take(key)
	if !ok {
		return
	}
	event := socktrace.HTTPEvent{
		TimestampNS: ev.NowNS,
		SrcIP:       key.SrcIP,
		DstIP:       key.DstIP,
		SrcPort:     key.SrcPort,
		DstPort:     key.DstPort,
		Method:      httpwire.MethodResponse,
		LatencyNS:   ev.NowNS - startNS,
	}
	t.sink.Emit(event.Marshal())
}

// Stats is a point in time view of the correlator tables.
type Stats struct {
	// Outstanding is the number of requests awaiting
	// their response.
	Outstanding int

	// Pending is the number of receive calls currently
	// between their enter and exit phases.
	Pending int

	// Refused counts inserts refused by full tables.
	Refused uint64
}

// Stats samples the correlator tables.
func (t *Tracker) Stats() Stats {
	return Stats{
		Outstanding: t.starts.Len(),
		Pending:     t.pending.Len(),
		Refused:     atomic.LoadUint64(&t.numRefused),
	}
}

// stackHTTPEventSource is the stack provider of the HTTP
// correlator.
func stackHTTPEventSource(
	next func(*Tracker, []socktrace.Hook) error,
	opts []Option,
) error {
	tracker := New(opts...)
	return next(tracker, tracker.Hooks())
}

// Module is the module of the HTTP correlator event
// source.
var Module = shaft.Stack(stackHTTPEventSource)

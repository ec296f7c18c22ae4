// Package conntrack implements the connection tracker,
// which folds the lifecycle of each transport connection
// into a single summary record emitted at close.
package conntrack

import (
	"sync/atomic"

	"github.com/aegistudio/shaft"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/pkg/boundmap"
)

// DefaultCapacity bounds the connection and retransmit
// counter tables unless overridden.
const DefaultCapacity = 65536

type option struct {
	capacity int
	sinkSize int
}

// Option to initialize the connection tracker.
type Option func(*option)

// WithCapacity bounds the number of connections and of
// retransmit counters tracked at once. The default value
// is DefaultCapacity.
func WithCapacity(capacity int) Option {
	return func(opt *option) {
		opt.capacity = capacity
	}
}

// WithSinkSize specifies the record buffering of the
// tracker sink. The default value is
// socktrace.DefaultSinkSize.
func WithSinkSize(size int) Option {
	return func(opt *option) {
		opt.sinkSize = size
	}
}

// newOption creates the option with all default values.
func newOption() *option {
	return &option{
		capacity: DefaultCapacity,
		sinkSize: socktrace.DefaultSinkSize,
	}
}

// connInfo is the per connection state kept from the
// establishment to the close of a connection.
//
// The byte counters exist because the summary record
// reserves fields for them; no invocation reports
// transfer sizes, so they remain zero.
type connInfo struct {
	key       socktrace.ConnKey
	startNS   uint64
	bytesSent uint64
	bytesRecv uint64
	protocol  uint8
}

// Tracker is the connection tracker. It consumes state
// change and retransmission invocations and emits one
// ConnEvent per tracked connection when it closes.
type Tracker struct {
	sink       *socktrace.Sink
	conns      *boundmap.Table[socktrace.ConnKey, connInfo]
	retrans    *boundmap.Table[socktrace.ConnKey, uint32]
	numRefused uint64
}

// New creates a connection tracker.
func New(opts ...Option) *Tracker {
	opt := newOption()
	for _, setter := range opts {
		setter(opt)
	}
	return &Tracker{
		sink:    socktrace.NewSink(opt.sinkSize),
		conns:   boundmap.New[socktrace.ConnKey, connInfo](opt.capacity),
		retrans: boundmap.New[socktrace.ConnKey, uint32](opt.capacity),
	}
}

// Sink returns the sink the tracker emits records to.
func (t *Tracker) Sink() *socktrace.Sink {
	return t.sink
}

// Hooks returns the instrumentation bindings of the
// tracker.
func (t *Tracker) Hooks() []socktrace.Hook {
	return []socktrace.Hook{{
		Point:   socktrace.PointSockStateChange,
		Handler: t.handleStateChange,
	}, {
		Point:   socktrace.PointTCPRetransmit,
		Handler: t.handleRetransmit,
	}}
}

// handleStateChange tracks the transitions of interest,
// establishment and close. All other transitions and all
// non-IPv4 sockets are ignored.
func (t *Tracker) handleStateChange(ev socktrace.StateChange) {
	if ev.Family != socktrace.FamilyInet {
		return
	}
	switch ev.NewState {
	case socktrace.StateEstablished:
		t.handleEstablish(ev)
	case socktrace.StateClose:
		t.handleClose(ev)
	}
}

// handleEstablish starts tracking a connection. A stale
// entry under the same key is overwritten, so the last
// establishment wins.
func (t *Tracker) handleEstablish(ev socktrace.StateChange) {
	info := connInfo{
		key:      ev.Key(),
		startNS:  ev.NowNS,
		protocol: socktrace.ProtoTCP,
	}
	if !t.conns.Put(info.key, info) {
		atomic.AddUint64(&t.numRefused, 1)
	}
}

// handleClose finalizes a tracked connection into its
// summary record. A close for an untracked key is a no-op
// which touches no state, leaving any orphaned retransmit
// counter in place.
func (t *Tracker) handleClose(ev socktrace.StateChange) {
	info, ok := t.conns.Take(ev.Key())
	if !ok {
		return
	}
	retransmits, _ := t.retrans.Take(info.key)
	event := socktrace.ConnEvent{
		TimestampNS: ev.NowNS,
		SrcIP:       info.key.SrcIP,
		DstIP:       info.key.DstIP,
		SrcPort:     info.key.SrcPort,
		DstPort:     info.key.DstPort,
		BytesSent:   info.bytesSent,
		BytesRecv:   info.bytesRecv,
		DurationNS:  ev.NowNS - info.startNS,
		Retransmits: retransmits,
		Protocol:    info.protocol,
	}
	t.sink.Emit(event.Marshal())
}

// handleRetransmit counts one retransmitted segment. The
// counter is created on first sight so that segments of
// untracked connections still leave an orphaned counter
// behind.
func (t *Tracker) handleRetransmit(ev socktrace.Retransmit) {
	ok := t.retrans.Upsert(ev.Key(),
		func(count uint32, _ bool) uint32 {
			return count + 1
		})
	if !ok {
		atomic.AddUint64(&t.numRefused, 1)
	}
}

// Stats is a point in time view of the tracker tables.
type Stats struct {
	// Active is the number of connections being tracked.
	Active int

	// Counters is the number of retransmit counters held,
	// orphaned ones included.
	Counters int

	// Refused counts inserts refused by full tables.
	Refused uint64
}

// Stats samples the tracker tables.
func (t *Tracker) Stats() Stats {
	return Stats{
		Active:   t.conns.Len(),
		Counters: t.retrans.Len(),
		Refused:  atomic.LoadUint64(&t.numRefused),
	}
}

// stackConnEventSource is the stack provider of the
// connection tracker.
func stackConnEventSource(
	next func(*Tracker, []socktrace.Hook) error,
	opts []Option,
) error {
	tracker := New(opts...)
	return next(tracker, tracker.Hooks())
}

// Module is the module of the connection tracker event
// source.
var Module = shaft.Stack(stackConnEventSource)

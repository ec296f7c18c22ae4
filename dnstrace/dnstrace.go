// Package dnstrace implements the DNS extractor, which
// reports one record per outbound query observed on the
// resolver port.
package dnstrace

import (
	"sync/atomic"

	"github.com/aegistudio/shaft"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/pkg/dnswire"
)

// ResolverPort is the destination port the extractor
// watches. Datagrams to any other port are ignored
// immediately.
const ResolverPort = 53

type option struct {
	sinkSize int
}

// Option to initialize the DNS extractor.
type Option func(*option)

// WithSinkSize specifies the record buffering of the
// extractor sink. The default value is
// socktrace.DefaultSinkSize.
func WithSinkSize(size int) Option {
	return func(opt *option) {
		opt.sinkSize = size
	}
}

// newOption creates the option with all default values.
func newOption() *option {
	return &option{
		sinkSize: socktrace.DefaultSinkSize,
	}
}

// Tracker is the DNS extractor. Unlike the other trackers
// it keeps no keyed state at all: queries are reported as
// they pass by and answers are never observed.
type Tracker struct {
	sink         *socktrace.Sink
	numMalformed uint64
}

// New creates a DNS extractor.
func New(opts ...Option) *Tracker {
	opt := newOption()
	for _, setter := range opts {
		setter(opt)
	}
	return &Tracker{
		sink: socktrace.NewSink(opt.sinkSize),
	}
}

// Sink returns the sink the extractor emits records to.
func (t *Tracker) Sink() *socktrace.Sink {
	return t.sink
}

// Hooks returns the instrumentation bindings of the
// extractor.
func (t *Tracker) Hooks() []socktrace.Hook {
	return []socktrace.Hook{{
		Point:   socktrace.PointDatagramSend,
		Handler: t.handleDatagramSend,
	}}
}

// handleDatagramSend extracts the query of one outbound
// datagram on the resolver port. Payload that yields no
// name is counted and dropped.
func (t *Tracker) handleDatagramSend(ev socktrace.DatagramSend) {
	if ev.Family != socktrace.FamilyInet {
		return
	}
	if ev.DstPort != ResolverPort {
		return
	}

	name := dnswire.CutName(ev.Payload, dnswire.HeaderSize)
	if len(name) == 0 {
		atomic.AddUint64(&t.numMalformed, 1)
		return
	}

	// The query type trails the encoded name: one byte
	// for the terminator label plus one for the length
	// byte the dotted form does not reproduce.
	offset := dnswire.HeaderSize + len(name) + 2
	event := socktrace.DNSEvent{
		TimestampNS: ev.NowNS,
		SrcIP:       ev.SrcIP,
		DstIP:       ev.DstIP,
		SrcPort:     ev.SrcPort,
		QueryType:   dnswire.QueryType(ev.Payload, offset),
		QueryName:   name,
	}
	t.sink.Emit(event.Marshal())
}

// Stats is a point in time view of the extractor.
type Stats struct {
	// Malformed counts datagrams on the resolver port
	// that yielded no query name.
	Malformed uint64
}

// Stats samples the extractor counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Malformed: atomic.LoadUint64(&t.numMalformed),
	}
}

// stackDNSEventSource is the stack provider of the DNS
// extractor.
func stackDNSEventSource(
	next func(*Tracker, []socktrace.Hook) error,
	opts []Option,
) error {
	tracker := New(opts...)
	return next(tracker, tracker.Hooks())
}

// Module is the module of the DNS extractor event source.
var Module = shaft.Stack(stackDNSEventSource)

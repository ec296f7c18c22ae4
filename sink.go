package socktrace

import "sync/atomic"

// DefaultSinkSize is the record buffering used by the
// tracker module compositions unless overridden.
const DefaultSinkSize = 4096

// Sink is the bounded, lossy channel the trackers emit
// finished records into.
//
// Emission is fire and forget: when the buffer is full
// the record is dropped on the spot and only a counter
// remembers it. Nothing in the emit path ever blocks.
type Sink struct {
	ch      chan []byte
	numDone uint64
	numLost uint64
}

// NewSink creates a sink buffering up to size records.
func NewSink(size int) *Sink {
	return &Sink{ch: make(chan []byte, size)}
}

// Emit hands one encoded record to the sink, reporting
// whether the consumer side will ever see it.
func (s *Sink) Emit(record []byte) bool {
	select {
	case s.ch <- record:
		atomic.AddUint64(&s.numDone, 1)
		return true
	default:
		atomic.AddUint64(&s.numLost, 1)
		return false
	}
}

// Records returns the consumer side of the sink.
func (s *Sink) Records() <-chan []byte {
	return s.ch
}

// GetDone returns the number of records accepted so far.
func (s *Sink) GetDone() uint64 {
	return atomic.LoadUint64(&s.numDone)
}

// GetLost returns the number of records dropped because
// the buffer was full.
func (s *Sink) GetLost() uint64 {
	return atomic.LoadUint64(&s.numLost)
}

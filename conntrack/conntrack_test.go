package conntrack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chaitin/socktrace"
)

var testKey = socktrace.ConnKey{
	SrcIP:   0x0100000a,
	DstIP:   0x0200000a,
	SrcPort: 34567,
	DstPort: 443,
}

// stateChange builds a state change invocation for key.
func stateChange(
	key socktrace.ConnKey, newState uint8, nowNS uint64,
) socktrace.StateChange {
	return socktrace.StateChange{
		Family:   socktrace.FamilyInet,
		SrcIP:    key.SrcIP,
		DstIP:    key.DstIP,
		SrcPort:  key.SrcPort,
		DstPort:  key.DstPort,
		NewState: newState,
		NowNS:    nowNS,
	}
}

// retransmit builds a retransmission invocation for key.
func retransmit(key socktrace.ConnKey) socktrace.Retransmit {
	return socktrace.Retransmit{
		SrcIP:   key.SrcIP,
		DstIP:   key.DstIP,
		SrcPort: key.SrcPort,
		DstPort: key.DstPort,
	}
}

// drainRecord pops one record from the tracker sink
// without blocking.
func drainRecord(tracker *Tracker) []byte {
	select {
	case record := <-tracker.Sink().Records():
		return record
	default:
		return nil
	}
}

func TestConnLifecycle(t *testing.T) {
	assert := assert.New(t)
	tracker := New()

	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateEstablished, 100))
	tracker.handleRetransmit(retransmit(testKey))
	tracker.handleRetransmit(retransmit(testKey))
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateClose, 500))

	record := drainRecord(tracker)
	assert.NotNil(record)
	event, err := socktrace.DecodeConnEvent(record)
	assert.NoError(err)
	assert.Equal(testKey.SrcIP, event.SrcIP)
	assert.Equal(testKey.DstIP, event.DstIP)
	assert.Equal(testKey.SrcPort, event.SrcPort)
	assert.Equal(testKey.DstPort, event.DstPort)
	assert.Equal(uint64(500), event.TimestampNS)
	assert.Equal(uint64(400), event.DurationNS)
	assert.Equal(uint32(2), event.Retransmits)
	assert.Equal(socktrace.ProtoTCP, event.Protocol)
	assert.Equal(uint64(0), event.BytesSent)
	assert.Equal(uint64(0), event.BytesRecv)

	// Both the connection and its counter are gone once
	// the summary is out.
	stats := tracker.Stats()
	assert.Equal(0, stats.Active)
	assert.Equal(0, stats.Counters)
	assert.Nil(drainRecord(tracker))
}

func TestCloseWithoutEstablish(t *testing.T) {
	assert := assert.New(t)
	tracker := New()

	// An orphaned counter from an untracked connection.
	tracker.handleRetransmit(retransmit(testKey))
	assert.Equal(1, tracker.Stats().Counters)

	// A close for an untracked key emits nothing and must
	// not consume the orphaned counter either.
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateClose, 500))
	assert.Nil(drainRecord(tracker))
	assert.Equal(0, tracker.Stats().Active)
	assert.Equal(1, tracker.Stats().Counters)
}

func TestLastEstablishmentWins(t *testing.T) {
	assert := assert.New(t)
	tracker := New()

	// A second establishment for the same key replaces
	// the first one, so the duration counts from it.
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateEstablished, 100))
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateEstablished, 200))
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateClose, 500))

	record := drainRecord(tracker)
	assert.NotNil(record)
	event, err := socktrace.DecodeConnEvent(record)
	assert.NoError(err)
	assert.Equal(uint64(300), event.DurationNS)
}

func TestRetransmitBeforeEstablish(t *testing.T) {
	assert := assert.New(t)
	tracker := New()

	// A counter created before the establishment still
	// rides along into the summary.
	tracker.handleRetransmit(retransmit(testKey))
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateEstablished, 100))
	tracker.handleRetransmit(retransmit(testKey))
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateClose, 500))

	record := drainRecord(tracker)
	assert.NotNil(record)
	event, err := socktrace.DecodeConnEvent(record)
	assert.NoError(err)
	assert.Equal(uint32(2), event.Retransmits)
}

func TestIgnoresOtherFamilies(t *testing.T) {
	assert := assert.New(t)
	tracker := New()

	ev := stateChange(testKey, socktrace.StateEstablished, 100)
	ev.Family = socktrace.FamilyInet6
	tracker.handleStateChange(ev)
	assert.Equal(0, tracker.Stats().Active)
}

func TestCapacityRefusal(t *testing.T) {
	assert := assert.New(t)
	tracker := New(WithCapacity(1))
	other := testKey.Swap()

	// The second connection is refused silently; only its
	// refusal is accounted for.
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateEstablished, 100))
	tracker.handleStateChange(
		stateChange(other, socktrace.StateEstablished, 150))
	assert.Equal(1, tracker.Stats().Active)
	assert.Equal(uint64(1), tracker.Stats().Refused)

	// Closing the refused connection is a lookup miss.
	tracker.handleStateChange(
		stateChange(other, socktrace.StateClose, 400))
	assert.Nil(drainRecord(tracker))

	// The accepted one still finalizes as usual.
	tracker.handleStateChange(
		stateChange(testKey, socktrace.StateClose, 500))
	assert.NotNil(drainRecord(tracker))
}

func TestHooksAttach(t *testing.T) {
	assert := assert.New(t)
	tracker := New()

	mux := socktrace.NewMux()
	assert.NoError(mux.Attach(tracker.Hooks()...))
}

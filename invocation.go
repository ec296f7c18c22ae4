package socktrace

// MaxPayload is the size of the payload prefix the mux
// materializes for send invocations. Bytes past the
// prefix are never observed by any handler.
const MaxPayload = 256

// boundPayload clips payload to the prefix handlers are
// allowed to observe.
func boundPayload(payload []byte) []byte {
	if len(payload) > MaxPayload {
		return payload[:MaxPayload]
	}
	return payload
}

// StateChange is the invocation delivered when a
// transport socket transitions between states.
type StateChange struct {
	Family   uint16
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	OldState uint8
	NewState uint8
	NowNS    uint64
}

// Key builds the connection key of the affected flow.
func (ev StateChange) Key() ConnKey {
	return ConnKey{
		SrcIP:   ev.SrcIP,
		DstIP:   ev.DstIP,
		SrcPort: ev.SrcPort,
		DstPort: ev.DstPort,
	}
}

// Retransmit is the invocation delivered when a transport
// segment is retransmitted. Only the flow identity is
// known at that point, so neither the family nor a
// timestamp accompanies it.
type Retransmit struct {
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
}

// Key builds the connection key of the affected flow.
func (ev Retransmit) Key() ConnKey {
	return ConnKey{
		SrcIP:   ev.SrcIP,
		DstIP:   ev.DstIP,
		SrcPort: ev.SrcPort,
		DstPort: ev.DstPort,
	}
}

// StreamSend is the invocation delivered when payload is
// written to a connected stream socket. Payload holds at
// most the MaxPayload leading bytes of the write.
type StreamSend struct {
	Family  uint16
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
	Payload []byte
	NowNS   uint64
}

// Key builds the connection key of the affected flow.
func (ev StreamSend) Key() ConnKey {
	return ConnKey{
		SrcIP:   ev.SrcIP,
		DstIP:   ev.DstIP,
		SrcPort: ev.SrcPort,
		DstPort: ev.DstPort,
	}
}

// DatagramSend is the invocation delivered when payload
// is written to a datagram socket. Payload holds at most
// the MaxPayload leading bytes of the write.
type DatagramSend struct {
	Family  uint16
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
	Payload []byte
	NowNS   uint64
}

// Key builds the connection key of the affected flow.
func (ev DatagramSend) Key() ConnKey {
	return ConnKey{
		SrcIP:   ev.SrcIP,
		DstIP:   ev.DstIP,
		SrcPort: ev.SrcPort,
		DstPort: ev.DstPort,
	}
}

// ReceiveEnter is the invocation delivered when a stream
// read call starts. The endpoints are in the perspective
// of the reading socket, its local endpoint being the
// source.
type ReceiveEnter struct {
	CallID  uint64
	Family  uint16
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
}

// Key builds the connection key in the perspective of the
// reading socket.
func (ev ReceiveEnter) Key() ConnKey {
	return ConnKey{
		SrcIP:   ev.SrcIP,
		DstIP:   ev.DstIP,
		SrcPort: ev.SrcPort,
		DstPort: ev.DstPort,
	}
}

// ReceiveExit is the invocation delivered when the stream
// read call identified by CallID completes. It pairs with
// the ReceiveEnter carrying the same CallID.
type ReceiveExit struct {
	CallID uint64
	NowNS  uint64
}

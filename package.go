// Package socktrace is the socket event correlation core
// of the network tracing system developed by Chaitin Tech.
//
// Three trackers turn raw socket level invocations into
// fixed layout binary records: conntrack summarizes the
// lifecycle of transport connections, httptrace pairs
// plaintext HTTP requests with their responses, and
// dnstrace extracts outbound DNS queries. The delivery of
// raw invocations is owned by an instrumentation layer
// outside this module, which drives a Mux; the finished
// records leave through bounded sinks read by whatever
// consumer the composition installs.
package socktrace

import (
	"github.com/pkg/errors"
)

// Names of the instrumentation points the trackers bind
// their handlers to. The delivery layer is free to map
// them onto its own probing mechanism, the names only
// serve binding and diagnostics.
const (
	PointSockStateChange = "sock/inet_sock_set_state"
	PointTCPRetransmit   = "tcp/tcp_retransmit_skb"
	PointStreamSend      = "tcp/tcp_sendmsg"
	PointStreamReceive   = "tcp/tcp_recvmsg"
	PointDatagramSend    = "udp/udp_sendmsg"
)

// Hook binds one instrumentation point to one typed
// handler. The handler must be a func accepting a single
// invocation struct, one of:
//
//	func(StateChange)
//	func(Retransmit)
//	func(StreamSend)
//	func(DatagramSend)
//	func(ReceiveEnter)
//	func(ReceiveExit)
//
// Handlers must return quickly and must never block, as
// the delivery layer invokes them inline on its own
// execution path. Hooks of any other handler type are
// rejected by Attach.
type Hook struct {
	Point   string
	Handler interface{}
}

// Mux fans invocations from the delivery layer out to the
// attached tracker handlers.
//
// All Attach calls must complete before the first
// invocation is delivered. Dispatching never mutates the
// mux, so any number of delivery contexts may invoke it
// concurrently afterwards.
type Mux struct {
	stateChange  []func(StateChange)
	retransmit   []func(Retransmit)
	streamSend   []func(StreamSend)
	datagramSend []func(DatagramSend)
	receiveEnter []func(ReceiveEnter)
	receiveExit  []func(ReceiveExit)
}

// NewMux creates a mux with no hooks attached.
func NewMux() *Mux {
	return &Mux{}
}

// Attach registers hooks with the mux.
func (m *Mux) Attach(hooks ...Hook) error {
	for _, hook := range hooks {
		switch handler := hook.Handler.(type) {
		case func(StateChange):
			m.stateChange = append(m.stateChange, handler)
		case func(Retransmit):
			m.retransmit = append(m.retransmit, handler)
		case func(StreamSend):
			m.streamSend = append(m.streamSend, handler)
		case func(DatagramSend):
			m.datagramSend = append(m.datagramSend, handler)
		case func(ReceiveEnter):
			m.receiveEnter = append(m.receiveEnter, handler)
		case func(ReceiveExit):
			m.receiveExit = append(m.receiveExit, handler)
		default:
			return errors.Errorf(
				"unsupported handler %T for point %q",
				hook.Handler, hook.Point)
		}
	}
	return nil
}

// StateChange reports a transport state transition on sk.
func (m *Mux) StateChange(
	sk Sock, oldState, newState uint8, nowNS uint64,
) {
	srcIP, srcPort := sk.Src()
	dstIP, dstPort := sk.Dst()
	ev := StateChange{
		Family:   sk.Family(),
		SrcIP:    srcIP,
		DstIP:    dstIP,
		SrcPort:  srcPort,
		DstPort:  dstPort,
		OldState: oldState,
		NewState: newState,
		NowNS:    nowNS,
	}
	for _, handler := range m.stateChange {
		handler(ev)
	}
}

// Retransmit reports one retransmitted segment on sk.
func (m *Mux) Retransmit(sk Sock) {
	srcIP, srcPort := sk.Src()
	dstIP, dstPort := sk.Dst()
	ev := Retransmit{
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: srcPort,
		DstPort: dstPort,
	}
	for _, handler := range m.retransmit {
		handler(ev)
	}
}

// StreamSend reports payload written to a connected
// stream socket. Handlers observe at most the MaxPayload
// leading bytes of it.
func (m *Mux) StreamSend(sk Sock, payload []byte, nowNS uint64) {
	srcIP, srcPort := sk.Src()
	dstIP, dstPort := sk.Dst()
	ev := StreamSend{
		Family:  sk.Family(),
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: srcPort,
		DstPort: dstPort,
		Payload: boundPayload(payload),
		NowNS:   nowNS,
	}
	for _, handler := range m.streamSend {
		handler(ev)
	}
}

// DatagramSend reports payload written to a datagram
// socket. Handlers observe at most the MaxPayload leading
// bytes of it.
func (m *Mux) DatagramSend(sk Sock, payload []byte, nowNS uint64) {
	srcIP, srcPort := sk.Src()
	dstIP, dstPort := sk.Dst()
	ev := DatagramSend{
		Family:  sk.Family(),
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: srcPort,
		DstPort: dstPort,
		Payload: boundPayload(payload),
		NowNS:   nowNS,
	}
	for _, handler := range m.datagramSend {
		handler(ev)
	}
}

// ReceiveEnter reports that a stream read call identified
// by callID started on sk. The endpoints are reported in
// the perspective of the reading socket, with its local
// endpoint as the source.
func (m *Mux) ReceiveEnter(callID uint64, sk Sock) {
	srcIP, srcPort := sk.Src()
	dstIP, dstPort := sk.Dst()
	ev := ReceiveEnter{
		CallID:  callID,
		Family:  sk.Family(),
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: srcPort,
		DstPort: dstPort,
	}
	for _, handler := range m.receiveEnter {
		handler(ev)
	}
}

// ReceiveExit reports that the stream read call
// identified by callID has completed.
func (m *Mux) ReceiveExit(callID, nowNS uint64) {
	ev := ReceiveExit{
		CallID: callID,
		NowNS:  nowNS,
	}
	for _, handler := range m.receiveExit {
		handler(ev)
	}
}

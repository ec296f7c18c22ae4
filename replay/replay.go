// Package replay implements a capture file event source.
//
// The replayer stands in for the live instrumentation
// layer: it reads packets from a capture stream, rebuilds
// the socket level happenings they imply and drives a mux
// with them, using capture timestamps as the event clock.
package replay

import (
	"context"
	"io"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chaitin/socktrace"
)

// Transport states the two handshake sides leave when
// their connection establishes.
const (
	stateSynSent uint8 = 2
	stateSynRecv uint8 = 3
)

type option struct {
	logger *zap.SugaredLogger
}

// Option to initialize the replayer.
type Option func(*option)

// WithLogger specifies the logger for the replayer. The
// default value is zap.S().
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(opt *option) {
		opt.logger = logger
	}
}

// newOption creates the option with all default values.
func newOption() *option {
	return &option{
		logger: zap.S(),
	}
}

// packetSock adapts one observed packet direction to the
// endpoint accessor the mux consumes.
type packetSock struct {
	family  uint16
	srcIP   uint32
	dstIP   uint32
	srcPort uint16
	dstPort uint16
}

func (p packetSock) Family() uint16        { return p.family }
func (p packetSock) Src() (uint32, uint16) { return p.srcIP, p.srcPort }
func (p packetSock) Dst() (uint32, uint16) { return p.dstIP, p.dstPort }

// key builds the connection key of the packet direction.
func (p packetSock) key() socktrace.ConnKey {
	return socktrace.ConnKey{
		SrcIP:   p.srcIP,
		DstIP:   p.dstIP,
		SrcPort: p.srcPort,
		DstPort: p.dstPort,
	}
}

// swap returns the accessor of the opposite direction,
// which is the packet as seen by its receiver.
func (p packetSock) swap() packetSock {
	return packetSock{
		family:  p.family,
		srcIP:   p.dstIP,
		dstIP:   p.srcIP,
		srcPort: p.dstPort,
		dstPort: p.srcPort,
	}
}

// flowState follows one TCP flow direction across the
// packets of a capture.
type flowState struct {
	sawSyn      bool
	established bool
	hasSeq      bool
	nextSeq     uint32
}

// Replayer drives a mux from capture streams.
//
// A replayer delivers strictly in capture order from a
// single goroutine; the delivery concurrency of a live
// instrumentation layer is not reproduced.
type Replayer struct {
	mux    *socktrace.Mux
	logger *zap.SugaredLogger
	flows  map[socktrace.ConnKey]*flowState
	callID uint64
}

// New creates a replayer delivering to mux.
func New(mux *socktrace.Mux, opts ...Option) *Replayer {
	opt := newOption()
	for _, setter := range opts {
		setter(opt)
	}
	return &Replayer{
		mux:    mux,
		logger: opt.logger,
		flows:  make(map[socktrace.ConnKey]*flowState),
	}
}

// Replay delivers the packets of one capture stream,
// returning early when ctx is done.
func (r *Replayer) Replay(ctx context.Context, stream io.Reader) error {
	reader, err := pcapgo.NewReader(stream)
	if err != nil {
		return errors.Wrap(err, "read capture header")
	}
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	numPackets := 0
	for packet := range source.Packets() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		r.handlePacket(packet)
		numPackets++
	}
	r.logger.Infof("replayed %d packets", numPackets)
	return nil
}

// ReplayFile replays the capture file at path.
func (r *Replayer) ReplayFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open capture %q", path)
	}
	defer file.Close()
	return r.Replay(ctx, file)
}

// handlePacket rebuilds the invocations one packet
// implies. Anything outside IPv4 TCP and UDP passes by
// silently.
func (r *Replayer) handlePacket(packet gopacket.Packet) {
	nowNS := uint64(packet.Metadata().Timestamp.UnixNano())
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return
	}
	ip := ipLayer.(*layers.IPv4)

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		r.handleTCP(ip, tcpLayer.(*layers.TCP), nowNS)
		return
	}
	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		r.handleUDP(ip, udpLayer.(*layers.UDP), nowNS)
	}
}

// handleTCP rebuilds the stream events one segment
// implies for both endpoint sockets.
func (r *Replayer) handleTCP(
	ip *layers.IPv4, tcp *layers.TCP, nowNS uint64,
) {
	sock := packetSock{
		family:  socktrace.FamilyInet,
		srcIP:   socktrace.IPv4Addr(ip.SrcIP),
		dstIP:   socktrace.IPv4Addr(ip.DstIP),
		srcPort: uint16(tcp.SrcPort),
		dstPort: uint16(tcp.DstPort),
	}
	key := sock.key()

	// SYNs only arm the handshake tracking of their own
	// direction.
	if tcp.SYN {
		flow := r.flow(key)
		flow.sawSyn = true
		flow.nextSeq = tcp.Seq + 1
		flow.hasSeq = true
		return
	}
	if tcp.RST {
		r.closeFlow(sock, nowNS)
		return
	}

	// The first ACK after both SYNs completes the
	// handshake; both endpoint sockets transition to
	// established at that moment.
	flow, peer := r.flows[key], r.flows[key.Swap()]
	if tcp.ACK && flow != nil && peer != nil &&
		flow.sawSyn && peer.sawSyn && !flow.established {
		flow.established = true
		peer.established = true
		r.mux.StateChange(sock, stateSynSent,
			socktrace.StateEstablished, nowNS)
		r.mux.StateChange(sock.swap(), stateSynRecv,
			socktrace.StateEstablished, nowNS)
	}

	if len(tcp.Payload) > 0 {
		r.handleSegment(sock, tcp, nowNS)
	}
	if tcp.FIN {
		r.closeFlow(sock, nowNS)
	}
}

// handleSegment reports one payload bearing segment. A
// segment replaying already covered sequence space counts
// as a retransmission and its payload is not delivered
// again.
func (r *Replayer) handleSegment(
	sock packetSock, tcp *layers.TCP, nowNS uint64,
) {
	flow := r.flow(sock.key())
	if flow.hasSeq && int32(tcp.Seq-flow.nextSeq) < 0 {
		r.mux.Retransmit(sock)
		return
	}
	flow.nextSeq = tcp.Seq + uint32(len(tcp.Payload))
	flow.hasSeq = true

	r.mux.StreamSend(sock, tcp.Payload, nowNS)

	// The receiving socket observes the same bytes in a
	// read call completing on arrival. Enter and exit
	// bridge over one call id.
	callID := r.callID
	r.callID++
	r.mux.ReceiveEnter(callID, sock.swap())
	r.mux.ReceiveExit(callID, nowNS)
}

// handleUDP reports one outbound datagram. Filtering by
// port is up to the attached handlers, the way it is on a
// live system.
func (r *Replayer) handleUDP(
	ip *layers.IPv4, udp *layers.UDP, nowNS uint64,
) {
	sock := packetSock{
		family:  socktrace.FamilyInet,
		srcIP:   socktrace.IPv4Addr(ip.SrcIP),
		dstIP:   socktrace.IPv4Addr(ip.DstIP),
		srcPort: uint16(udp.SrcPort),
		dstPort: uint16(udp.DstPort),
	}
	r.mux.DatagramSend(sock, udp.Payload, nowNS)
}

// closeFlow reports the end of both directions of a flow
// and forgets them. Directions never seen stay silent, so
// the second FIN of a connection reports nothing anymore.
func (r *Replayer) closeFlow(sock packetSock, nowNS uint64) {
	key := sock.key()
	if r.flows[key] != nil {
		delete(r.flows, key)
		r.mux.StateChange(sock, socktrace.StateEstablished,
			socktrace.StateClose, nowNS)
	}
	if swapped := key.Swap(); r.flows[swapped] != nil {
		delete(r.flows, swapped)
		r.mux.StateChange(sock.swap(), socktrace.StateEstablished,
			socktrace.StateClose, nowNS)
	}
}

// flow returns the state of one flow direction, creating
// it on first sight.
func (r *Replayer) flow(key socktrace.ConnKey) *flowState {
	flow := r.flows[key]
	if flow == nil {
		flow = &flowState{}
		r.flows[key] = flow
	}
	return flow
}

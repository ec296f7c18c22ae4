package socktrace

import "net"

// Address families in AF_* numbering as the delivery
// layer reports them. Only FamilyInet sockets are ever
// tracked.
const (
	FamilyInet  uint16 = 2
	FamilyInet6 uint16 = 10
)

// Transport states of interest, numbered the way state
// change notifications report them.
const (
	StateEstablished uint8 = 1
	StateClose       uint8 = 7
)

// ProtoTCP is the transport protocol number recorded in
// connection summary records.
const ProtoTCP uint8 = 6

// ConnKey identifies one direction of a transport flow.
//
// The key is not symmetric: the two directions of one
// connection use keys with the endpoints in opposite
// roles, and no canonical ordering across the two is ever
// applied. Addresses are IPv4 in wire byte order, ports
// are in host byte order.
type ConnKey struct {
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
}

// Swap returns the key of the opposite flow direction.
func (k ConnKey) Swap() ConnKey {
	return ConnKey{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
	}
}

// IPv4 converts a wire order address to its net.IP form.
func IPv4(addr uint32) net.IP {
	return net.IPv4(byte(addr), byte(addr>>8),
		byte(addr>>16), byte(addr>>24))
}

// IPv4Addr converts ip into the wire order form ConnKey
// uses, reading as 0 when ip is not an IPv4 address.
func IPv4Addr(ip net.IP) uint32 {
	ipv4 := ip.To4()
	if ipv4 == nil {
		return 0
	}
	return uint32(ipv4[0]) | uint32(ipv4[1])<<8 |
		uint32(ipv4[2])<<16 | uint32(ipv4[3])<<24
}

package socktrace

// Sock is the read only accessor of an opaque connection
// handle owned by the delivery layer.
//
// Implementations must answer in constant time and must
// never block, since the accessor is consulted inline on
// the dispatch path.
type Sock interface {
	// Family reports the address family of the socket in
	// AF_* numbering, FamilyInet for IPv4.
	Family() uint16

	// Src reports the local address and port of the
	// socket in the encoding ConnKey uses.
	Src() (ip uint32, port uint16)

	// Dst reports the remote address and port of the
	// socket in the encoding ConnKey uses.
	Dst() (ip uint32, port uint16)
}

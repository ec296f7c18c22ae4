package socktrace

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/chaitin/socktrace/pkg/httpwire"
)

// Sizes of the encoded record kinds. All layouts are
// little endian with fixed field offsets and form the
// compatibility contract with the downstream consumer;
// neither field order nor offsets may change.
const (
	ConnEventSize = 52
	HTTPEventSize = 160
	DNSEventSize  = 148
)

// ConnEvent is the summary record emitted once per
// tracked connection when it closes.
type ConnEvent struct {
	TimestampNS uint64
	SrcIP       uint32
	DstIP       uint32
	SrcPort     uint16
	DstPort     uint16
	BytesSent   uint64
	BytesRecv   uint64
	DurationNS  uint64
	Retransmits uint32
	Protocol    uint8
}

// Marshal encodes the record into its wire layout.
func (ev *ConnEvent) Marshal() []byte {
	buf := make([]byte, ConnEventSize)
	binary.LittleEndian.PutUint64(buf[0:], ev.TimestampNS)
	binary.LittleEndian.PutUint32(buf[8:], ev.SrcIP)
	binary.LittleEndian.PutUint32(buf[12:], ev.DstIP)
	binary.LittleEndian.PutUint16(buf[16:], ev.SrcPort)
	binary.LittleEndian.PutUint16(buf[18:], ev.DstPort)
	binary.LittleEndian.PutUint64(buf[20:], ev.BytesSent)
	binary.LittleEndian.PutUint64(buf[28:], ev.BytesRecv)
	binary.LittleEndian.PutUint64(buf[36:], ev.DurationNS)
	binary.LittleEndian.PutUint32(buf[44:], ev.Retransmits)
	buf[48] = ev.Protocol
	return buf
}

// DecodeConnEvent decodes a record in the ConnEvent wire
// layout.
func DecodeConnEvent(buf []byte) (*ConnEvent, error) {
	if len(buf) < ConnEventSize {
		return nil, errors.Errorf(
			"conn event too short: %d bytes", len(buf))
	}
	return &ConnEvent{
		TimestampNS: binary.LittleEndian.Uint64(buf[0:]),
		SrcIP:       binary.LittleEndian.Uint32(buf[8:]),
		DstIP:       binary.LittleEndian.Uint32(buf[12:]),
		SrcPort:     binary.LittleEndian.Uint16(buf[16:]),
		DstPort:     binary.LittleEndian.Uint16(buf[18:]),
		BytesSent:   binary.LittleEndian.Uint64(buf[20:]),
		BytesRecv:   binary.LittleEndian.Uint64(buf[28:]),
		DurationNS:  binary.LittleEndian.Uint64(buf[36:]),
		Retransmits: binary.LittleEndian.Uint32(buf[44:]),
		Protocol:    buf[48],
	}, nil
}

// HTTPEvent is the record emitted by the HTTP correlator.
// A request record carries the detected method and path;
// a response record carries MethodResponse and the
// measured latency instead.
//
// The multi byte fields behind Method sit at unaligned
// offsets. That is part of the layout contract and the
// reason the codec works byte-wise.
type HTTPEvent struct {
	TimestampNS uint64
	SrcIP       uint32
	DstIP       uint32
	SrcPort     uint16
	DstPort     uint16
	Method      httpwire.Method
	StatusCode  uint16
	LatencyNS   uint64
	Path        string
}

// Marshal encodes the record into its wire layout. The
// path is cut silently to fit its fixed field.
func (ev *HTTPEvent) Marshal() []byte {
	buf := make([]byte, HTTPEventSize)
	binary.LittleEndian.PutUint64(buf[0:], ev.TimestampNS)
	binary.LittleEndian.PutUint32(buf[8:], ev.SrcIP)
	binary.LittleEndian.PutUint32(buf[12:], ev.DstIP)
	binary.LittleEndian.PutUint16(buf[16:], ev.SrcPort)
	binary.LittleEndian.PutUint16(buf[18:], ev.DstPort)
	buf[20] = uint8(ev.Method)
	binary.LittleEndian.PutUint16(buf[21:], ev.StatusCode)
	binary.LittleEndian.PutUint64(buf[23:], ev.LatencyNS)
	putZeroTerminated(buf[31:159], ev.Path)
	return buf
}

// DecodeHTTPEvent decodes a record in the HTTPEvent wire
// layout.
func DecodeHTTPEvent(buf []byte) (*HTTPEvent, error) {
	if len(buf) < HTTPEventSize {
		return nil, errors.Errorf(
			"http event too short: %d bytes", len(buf))
	}
	return &HTTPEvent{
		TimestampNS: binary.LittleEndian.Uint64(buf[0:]),
		SrcIP:       binary.LittleEndian.Uint32(buf[8:]),
		DstIP:       binary.LittleEndian.Uint32(buf[12:]),
		SrcPort:     binary.LittleEndian.Uint16(buf[16:]),
		DstPort:     binary.LittleEndian.Uint16(buf[18:]),
		Method:      httpwire.Method(buf[20]),
		StatusCode:  binary.LittleEndian.Uint16(buf[21:]),
		LatencyNS:   binary.LittleEndian.Uint64(buf[23:]),
		Path:        cutZeroTerminated(buf[31:159]),
	}, nil
}

// DNSEvent is the record emitted by the DNS extractor,
// one per observed outbound query.
//
// The layout carries no destination port field since only
// queries towards the resolver port are ever observed.
type DNSEvent struct {
	TimestampNS uint64
	SrcIP       uint32
	DstIP       uint32
	SrcPort     uint16
	QueryType   uint16
	QueryName   string
}

// Marshal encodes the record into its wire layout. The
// query name is cut silently to fit its fixed field.
func (ev *DNSEvent) Marshal() []byte {
	buf := make([]byte, DNSEventSize)
	binary.LittleEndian.PutUint64(buf[0:], ev.TimestampNS)
	binary.LittleEndian.PutUint32(buf[8:], ev.SrcIP)
	binary.LittleEndian.PutUint32(buf[12:], ev.DstIP)
	binary.LittleEndian.PutUint16(buf[16:], ev.SrcPort)
	binary.LittleEndian.PutUint16(buf[18:], ev.QueryType)
	putZeroTerminated(buf[20:148], ev.QueryName)
	return buf
}

// DecodeDNSEvent decodes a record in the DNSEvent wire
// layout.
func DecodeDNSEvent(buf []byte) (*DNSEvent, error) {
	if len(buf) < DNSEventSize {
		return nil, errors.Errorf(
			"dns event too short: %d bytes", len(buf))
	}
	return &DNSEvent{
		TimestampNS: binary.LittleEndian.Uint64(buf[0:]),
		SrcIP:       binary.LittleEndian.Uint32(buf[8:]),
		DstIP:       binary.LittleEndian.Uint32(buf[12:]),
		SrcPort:     binary.LittleEndian.Uint16(buf[16:]),
		QueryType:   binary.LittleEndian.Uint16(buf[18:]),
		QueryName:   cutZeroTerminated(buf[20:148]),
	}, nil
}

// putZeroTerminated copies s into dst as a zero
// terminated string, truncating it silently when it does
// not fit.
func putZeroTerminated(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}

// cutZeroTerminated cuts b at its first zero byte.
func cutZeroTerminated(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		return string(b[:idx])
	}
	return string(b)
}

// Package dnswire implements the bounded DNS wire format
// primitives used by the DNS extractor.
//
// Only the leading query of a message is understood: the
// length prefixed name right behind the header and the
// two byte query type behind the name. Malformed or
// truncated payload reads as a shorter or empty name
// rather than an error.
package dnswire

import "encoding/binary"

// HeaderSize is the size of the fixed DNS message header
// the first query name follows.
const HeaderSize = 12

// Bounds of the name decoder. Names are cut after 16
// labels and 127 output bytes no matter what the payload
// announces.
const (
	maxLabels    = 16
	maxLabelLen  = 63
	maxNameBytes = 127
)

// CutName decodes the length prefixed label sequence at
// offset into a dotted name.
//
// Decoding ends at the zero length terminator label, at a
// label length above 63 which is read as the end of the
// name, after 16 labels, or at the end of the payload.
// The dotted result is bounded to 127 bytes and truncated
// silently beyond that.
func CutName(payload []byte, offset int) string {
	if offset < 0 {
		return ""
	}
	name := make([]byte, 0, maxNameBytes)
	pos := offset
	for label := 0; label < maxLabels && pos < len(payload); label++ {
		length := int(payload[pos])
		if length == 0 || length > maxLabelLen {
			break
		}
		pos++
		if label > 0 && len(name) < maxNameBytes {
			name = append(name, '.')
		}
		for i := 0; i < length && pos < len(payload); i++ {
			if len(name) < maxNameBytes {
				name = append(name, payload[pos])
			}
			pos++
		}
	}
	return string(name)
}

// QueryType reads the two byte query type at offset,
// converting from network byte order. A payload too short
// to carry it reads as type 0, the way a zero padded
// capture buffer would.
func QueryType(payload []byte, offset int) uint16 {
	if offset < 0 || offset+2 > len(payload) {
		return 0
	}
	return binary.BigEndian.Uint16(payload[offset:])
}

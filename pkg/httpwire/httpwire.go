// Package httpwire implements the bounded HTTP request
// line primitives used by the HTTP correlator.
//
// The functions operate on raw, possibly truncated socket
// payload prefixes. Malformed or foreign payload is never
// an error, it simply reads as "not an HTTP request".
package httpwire

import (
	"encoding/binary"
	"fmt"
)

// Method is the request method code carried in emitted
// records. MethodResponse is the zero sentinel marking
// response records, which carry no request line of their
// own.
type Method uint8

// Method codes of the supported request methods.
const (
	MethodResponse Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodHead
	MethodOptions
)

// Request line signatures, being the first four payload
// bytes of each supported method read as a little endian
// 32-bit word.
const (
	sigGet     = uint32(0x20544547) // "GET "
	sigPost    = uint32(0x54534f50) // "POST"
	sigPut     = uint32(0x20545550) // "PUT "
	sigDelete  = uint32(0x454c4544) // "DELE"
	sigPatch   = uint32(0x43544150) // "PATC"
	sigHead    = uint32(0x44414548) // "HEAD"
	sigOptions = uint32(0x4954504f) // "OPTI"
)

// maxPathBytes bounds the path text cut out of a request
// line, leaving room for the terminator byte of the fixed
// record field it is copied into.
const maxPathBytes = 127

// String returns the usual spelling of the method.
func (m Method) String() string {
	switch m {
	case MethodResponse:
		return "RESPONSE"
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodPatch:
		return "PATCH"
	case MethodHead:
		return "HEAD"
	case MethodOptions:
		return "OPTIONS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// pathOffset is the offset the request path starts at,
// which is the length of the method name plus one space.
func (m Method) pathOffset() int {
	switch m {
	case MethodGet, MethodPut:
		return 4
	case MethodPost, MethodHead:
		return 5
	case MethodPatch:
		return 6
	case MethodDelete:
		return 7
	case MethodOptions:
		return 8
	default:
		return 0
	}
}

// DetectMethod matches the first four payload bytes
// against the supported method signatures. It reports
// MethodResponse and false when the payload cannot be the
// start of an HTTP request.
func DetectMethod(payload []byte) (Method, bool) {
	if len(payload) < 4 {
		return MethodResponse, false
	}
	switch binary.LittleEndian.Uint32(payload) {
	case sigGet:
		return MethodGet, true
	case sigPost:
		return MethodPost, true
	case sigPut:
		return MethodPut, true
	case sigDelete:
		return MethodDelete, true
	case sigPatch:
		return MethodPatch, true
	case sigHead:
		return MethodHead, true
	case sigOptions:
		return MethodOptions, true
	}
	return MethodResponse, false
}

// CutPath cuts the request path of a detected method out
// of the payload, scanning from the method specific
// offset up to the first terminator. The query string is
// cut away together with the protocol suffix. The result
// is bounded to 127 bytes; a payload ending before the
// path starts reads as the empty path.
func CutPath(payload []byte, method Method) string {
	start := method.pathOffset()
	if start == 0 || start >= len(payload) {
		return ""
	}
	end := start
	for end < len(payload) && end-start < maxPathBytes {
		if terminatesPath(payload[end]) {
			break
		}
		end++
	}
	return string(payload[start:end])
}

// terminatesPath reports whether c ends the path part of
// a request line.
func terminatesPath(c byte) bool {
	switch c {
	case ' ', '?', '\r', '\n', 0:
		return true
	}
	return false
}

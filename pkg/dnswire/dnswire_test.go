package dnswire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// encodeName builds the length prefixed wire form of a
// dotted name, including the terminator label.
func encodeName(name string) []byte {
	var wire []byte
	for _, label := range strings.Split(name, ".") {
		wire = append(wire, byte(len(label)))
		wire = append(wire, label...)
	}
	return append(wire, 0)
}

func TestCutName(t *testing.T) {
	assert := assert.New(t)

	payload := encodeName("www.example.com")
	assert.Equal("www.example.com", CutName(payload, 0))

	// The name may start anywhere in the payload, which
	// is how it is read from behind a message header.
	padded := append(make([]byte, HeaderSize), payload...)
	assert.Equal("www.example.com", CutName(padded, HeaderSize))

	// A single label name carries no dots.
	assert.Equal("localhost", CutName(encodeName("localhost"), 0))
}

func TestCutNameMalformed(t *testing.T) {
	assert := assert.New(t)

	// An immediate terminator label reads as the empty
	// name, as does an offset past the payload.
	assert.Equal("", CutName([]byte{0}, 0))
	assert.Equal("", CutName([]byte{3, 'f', 'o', 'o', 0}, 32))
	assert.Equal("", CutName(nil, 0))
	assert.Equal("", CutName([]byte{3, 'f', 'o', 'o', 0}, -1))

	// A label length above 63 is a compression pointer or
	// garbage; either way it ends the name.
	payload := append([]byte{3, 'w', 'w', 'w', 0xc0, 0x0c},
		encodeName("tail")...)
	assert.Equal("www", CutName(payload, 0))

	// A payload ending inside a label yields the bytes
	// seen so far.
	assert.Equal("www.exa", CutName(
		[]byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a'}, 0))
}

func TestCutNameBounds(t *testing.T) {
	assert := assert.New(t)

	// Only the first 16 labels are decoded.
	name := strings.TrimSuffix(strings.Repeat("a.", 20), ".")
	assert.Equal(strings.TrimSuffix(strings.Repeat("a.", 16), "."),
		CutName(encodeName(name), 0))

	// The dotted output is cut at 127 bytes even when the
	// wire form announces more.
	long := strings.Repeat("a", 63) + "." +
		strings.Repeat("b", 63) + "." +
		strings.Repeat("c", 63)
	cut := CutName(encodeName(long), 0)
	assert.Len(cut, 127)
	assert.Equal(long[:127], cut)
}

func TestQueryType(t *testing.T) {
	assert := assert.New(t)

	// The type trails the encoded name in network byte
	// order.
	payload := append(encodeName("example.com"), 0x00, 0x1c)
	offset := len(encodeName("example.com"))
	assert.Equal(uint16(28), QueryType(payload, offset))

	// Truncated payload reads as type 0.
	assert.Equal(uint16(0), QueryType(payload, len(payload)-1))
	assert.Equal(uint16(0), QueryType(nil, 0))
	assert.Equal(uint16(0), QueryType(payload, -2))
}

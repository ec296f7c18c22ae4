package httpwire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMethod(t *testing.T) {
	assert := assert.New(t)
	for payload, method := range map[string]Method{
		"GET /health HTTP/1.1\r\n":     MethodGet,
		"POST /api/v1/users HTTP/1.1":  MethodPost,
		"PUT /api/v1/users/7 HTTP/1.1": MethodPut,
		"DELETE /session HTTP/1.1":     MethodDelete,
		"PATCH /config HTTP/1.1":       MethodPatch,
		"HEAD / HTTP/1.1":              MethodHead,
		"OPTIONS * HTTP/1.1":           MethodOptions,
	} {
		detected, ok := DetectMethod([]byte(payload))
		assert.True(ok, payload)
		assert.Equal(method, detected, payload)
	}
}

func TestDetectMethodRejects(t *testing.T) {
	assert := assert.New(t)
	for _, payload := range []string{
		"",
		"GET",
		"HTTP/1.1 200 OK\r\n",
		"get /health HTTP/1.1",
		"TRACE / HTTP/1.1",
		"\x16\x03\x01\x02\x00",
		"GETX/ HTTP/1.1",
	} {
		method, ok := DetectMethod([]byte(payload))
		assert.False(ok, payload)
		assert.Equal(MethodResponse, method, payload)
	}
}

func TestCutPath(t *testing.T) {
	assert := assert.New(t)

	// The path ends at the protocol separator space.
	assert.Equal("/health", CutPath(
		[]byte("GET /health HTTP/1.1\r\n"), MethodGet))

	// Each method scans from its own offset.
	assert.Equal("/session", CutPath(
		[]byte("DELETE /session HTTP/1.1"), MethodDelete))
	assert.Equal("*", CutPath(
		[]byte("OPTIONS * HTTP/1.1"), MethodOptions))

	// The query string is not part of the path.
	assert.Equal("/search", CutPath(
		[]byte("GET /search?q=name HTTP/1.1"), MethodGet))

	// A request line cut short by the payload bound still
	// yields the path prefix seen so far.
	assert.Equal("/trunc", CutPath(
		[]byte("POST /trunc"), MethodPost))

	// A payload ending before the path starts reads as
	// the empty path, as does a response sentinel.
	assert.Equal("", CutPath([]byte("GET "), MethodGet))
	assert.Equal("", CutPath(
		[]byte("HTTP/1.1 200 OK"), MethodResponse))
}

func TestCutPathBound(t *testing.T) {
	assert := assert.New(t)

	// Paths longer than the record field are truncated
	// silently.
	long := "/" + strings.Repeat("a", 300)
	payload := []byte("GET " + long + " HTTP/1.1\r\n")
	path := CutPath(payload, MethodGet)
	assert.Len(path, 127)
	assert.Equal(long[:127], path)
}

func TestMethodString(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("RESPONSE", MethodResponse.String())
	assert.Equal("GET", MethodGet.String())
	assert.Equal("OPTIONS", MethodOptions.String())
	assert.Equal("UNKNOWN(200)", Method(200).String())
}

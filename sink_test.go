package socktrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkEmit(t *testing.T) {
	assert := assert.New(t)
	sink := NewSink(2)

	assert.True(sink.Emit([]byte{1}))
	assert.True(sink.Emit([]byte{2}))
	assert.Equal(uint64(2), sink.GetDone())
	assert.Equal(uint64(0), sink.GetLost())

	// A full sink drops on the spot instead of blocking.
	assert.False(sink.Emit([]byte{3}))
	assert.Equal(uint64(2), sink.GetDone())
	assert.Equal(uint64(1), sink.GetLost())

	// Draining makes room again; delivery keeps order.
	assert.Equal([]byte{1}, <-sink.Records())
	assert.True(sink.Emit([]byte{4}))
	assert.Equal([]byte{2}, <-sink.Records())
	assert.Equal([]byte{4}, <-sink.Records())
	assert.Equal(uint64(3), sink.GetDone())
	assert.Equal(uint64(1), sink.GetLost())
}

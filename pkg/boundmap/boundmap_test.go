package boundmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableCapacity(t *testing.T) {
	assert := assert.New(t)
	table := New[string, int](2)

	// Fill the table up to its capacity.
	assert.True(table.Put("a", 1))
	assert.True(table.Put("b", 2))
	assert.Equal(2, table.Len())

	// A third key must be refused without disturbing the
	// entries already stored.
	assert.False(table.Put("c", 3))
	assert.Equal(2, table.Len())
	_, ok := table.Get("c")
	assert.False(ok)

	// Replacing a present key never counts against the
	// capacity.
	assert.True(table.Put("a", 10))
	value, ok := table.Get("a")
	assert.True(ok)
	assert.Equal(10, value)

	// Removing an entry frees room for a new key.
	value, ok = table.Take("b")
	assert.True(ok)
	assert.Equal(2, value)
	assert.True(table.Put("c", 3))
}

func TestTableTake(t *testing.T) {
	assert := assert.New(t)
	table := New[string, int](4)

	assert.True(table.Put("a", 1))
	value, ok := table.Take("a")
	assert.True(ok)
	assert.Equal(1, value)

	// The entry is gone after the take, and taking an
	// absent key reports the zero value.
	_, ok = table.Get("a")
	assert.False(ok)
	value, ok = table.Take("a")
	assert.False(ok)
	assert.Equal(0, value)
}

func TestTableUpsert(t *testing.T) {
	assert := assert.New(t)
	table := New[string, uint32](1)

	// The first upsert observes the zero value.
	assert.True(table.Upsert("a", func(old uint32, ok bool) uint32 {
		assert.False(ok)
		assert.Equal(uint32(0), old)
		return old + 1
	}))

	// The second one observes the stored value.
	assert.True(table.Upsert("a", func(old uint32, ok bool) uint32 {
		assert.True(ok)
		assert.Equal(uint32(1), old)
		return old + 1
	}))
	value, ok := table.Get("a")
	assert.True(ok)
	assert.Equal(uint32(2), value)

	// A full table refuses upserts of absent keys without
	// invoking the update function, but keeps accepting
	// upserts of present ones.
	assert.False(table.Upsert("b", func(uint32, bool) uint32 {
		t.Fatal("update called for refused upsert")
		return 0
	}))
	assert.True(table.Upsert("a", func(old uint32, _ bool) uint32 {
		return old + 1
	}))
}

func TestTableUpsertConcurrent(t *testing.T) {
	assert := assert.New(t)
	table := New[string, uint32](4)

	// Hammer a single counter from several goroutines. No
	// increment may be lost.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				table.Upsert("key", func(old uint32, _ bool) uint32 {
					return old + 1
				})
			}
		}()
	}
	wg.Wait()

	value, ok := table.Get("key")
	assert.True(ok)
	assert.Equal(uint32(8000), value)
}

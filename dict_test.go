package netconf

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictInsert(t *testing.T) {
	d := NewDict()

	h := d.Insert("in-use")
	require.NotZero(t, h)
	assert.Equal(t, h, d.Insert("in-use"))
	assert.Equal(t, 2, d.Refs(h))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "in-use", d.Lookup(h))

	d.Remove(h)
	assert.Equal(t, "in-use", d.Lookup(h))
	assert.Equal(t, 1, d.Refs(h))

	d.Remove(h)
	assert.Empty(t, d.Lookup(h))
	assert.Zero(t, d.Refs(h))
	assert.Zero(t, d.Len())

	// removing a dead handle does nothing
	d.Remove(h)
	assert.Zero(t, d.Len())
}

func TestDictEmptyString(t *testing.T) {
	d := NewDict()

	assert.Zero(t, d.Insert(""))
	assert.Zero(t, d.Len())
	assert.Empty(t, d.Lookup(0))
	d.Remove(0)
	assert.Empty(t, d.Lookup(Handle(42)))
}

func TestDictReusesSlots(t *testing.T) {
	d := NewDict()

	a := d.Insert("a")
	b := d.Insert("b")
	d.Remove(a)

	c := d.Insert("c")
	assert.Equal(t, a, c)
	assert.Equal(t, "c", d.Lookup(c))
	assert.Equal(t, "b", d.Lookup(b))

	// the old string is gone from the index
	assert.NotEqual(t, a, d.Insert("a"))
}

func TestDictConcurrent(t *testing.T) {
	d := NewDict()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				shared := d.Insert("error")
				own := d.Insert(fmt.Sprintf("worker-%d-%d", i, j))
				if d.Lookup(own) != fmt.Sprintf("worker-%d-%d", i, j) {
					t.Errorf("lookup mismatch for worker %d", i)
				}
				d.Remove(own)
				d.Remove(shared)
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, d.Len())
}

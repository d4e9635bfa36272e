package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOAndEndOfStream(t *testing.T) {
	q := NewQueue[uint8](4)
	a := &Buffer[uint8]{Offset: 1}
	b := &Buffer[uint8]{Offset: 2}
	q.Push(a)
	q.Push(b)
	q.PushEnd()
	assert.Equal(t, 3, q.Len())

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, a, got)
	got, ok = q.Pop()
	require.True(t, ok)
	assert.Same(t, b, got)
	got, ok = q.Pop()
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue[float64](1)
	done := make(chan *Buffer[float64])
	go func() {
		buf, _ := q.Pop()
		done <- buf
	}()
	want := &Buffer[float64]{Len: 3}
	q.Push(want)
	assert.Same(t, want, <-done)
}

func TestPoolAllocate(t *testing.T) {
	p := NewPool[int16](3, 16)
	assert.False(t, p.Allocated())
	p.Allocate()
	p.Allocate()
	assert.True(t, p.Allocated())
	assert.Equal(t, 3, p.Count())
	assert.Equal(t, 16, p.Capacity())

	seen := map[*Buffer[int16]]bool{}
	for i := 0; i < 3; i++ {
		buf := p.NextEmpty()
		assert.Len(t, buf.Data, 16)
		assert.Zero(t, buf.Len)
		seen[buf] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 3, p.InFlight())
}

func TestPoolCycle(t *testing.T) {
	p := NewPool[uint8](2, 4)
	p.Allocate()

	buf := p.NextEmpty()
	buf.Len = 2
	buf.Offset = 8
	p.ReturnFull(buf)
	p.EndOfStream()

	got, ok := p.NextFull()
	require.True(t, ok)
	assert.Same(t, buf, got)
	assert.Equal(t, uint64(8), got.Offset)
	p.ReturnEmpty(got)
	assert.Zero(t, got.Len)
	assert.Zero(t, got.Offset)

	_, ok = p.NextFull()
	assert.False(t, ok)
	assert.Equal(t, 0, p.InFlight())
	assert.Equal(t, 1, p.HighWater())
}

// A producer and a consumer cycling many buffers through a small pool must
// never hold more than the pool's buffers at once.
func TestPoolHighWaterBounded(t *testing.T) {
	const count, rounds = 3, 1000
	p := NewPool[uint32](count, 8)
	p.Allocate()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			buf := p.NextEmpty()
			buf.Len = 1
			buf.Data[0] = uint32(i)
			buf.Offset = uint64(i)
			p.ReturnFull(buf)
		}
		p.EndOfStream()
	}()

	var n int
	for {
		buf, ok := p.NextFull()
		if !ok {
			break
		}
		assert.Equal(t, uint32(n), buf.Data[0])
		n++
		p.ReturnEmpty(buf)
	}
	wg.Wait()
	assert.Equal(t, rounds, n)
	assert.LessOrEqual(t, p.HighWater(), count)
	assert.GreaterOrEqual(t, p.HighWater(), 1)
}

func TestBufferValues(t *testing.T) {
	b := &Buffer[float32]{Data: []float32{1, 2, 3, 4}, Len: 2}
	assert.Equal(t, []float32{1, 2}, b.Values())
}

func TestPlan(t *testing.T) {
	s, err := Plan(64, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 16, s.Capacity)
	assert.Equal(t, 2, s.RawBuffers)
	// 32 bytes hold no full 16-element float64 buffer
	assert.Equal(t, 1, s.RelevanceBuffers)
	assert.Equal(t, uint64(32), s.RawBytes(1))

	s, err = Plan(1<<20, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, (1<<19)/4/8, s.Capacity)
	assert.Equal(t, 4, s.RelevanceBuffers)
	assert.Equal(t, uint64(1<<19), s.RelevanceBytes())

	_, err = Plan(4, 4, 2)
	assert.Error(t, err)
	_, err = Plan(1024, 0, 1)
	assert.Error(t, err)
}

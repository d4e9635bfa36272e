// Package bufpool provides the bounded buffer pool that moves fixed-size
// typed buffers between the reader, the processing loop and the writer.
//
// A pool owns a fixed number of buffers which cycle through two queues:
// empty buffers wait to be filled, full buffers wait to be consumed. A
// buffer taken from a queue belongs to the caller until it is pushed to
// the other queue.
package bufpool

import (
	"sync"
)

// Element is the set of raw voxel types a buffer may hold.
type Element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~float32 | ~float64
}

// Buffer is a fixed-capacity window over a stream of elements.
type Buffer[T Element] struct {
	// Data has the pool's capacity; only Data[:Len] is meaningful.
	Data []T

	// Len is the logical number of elements held.
	Len int

	// Offset is the global element index of Data[0] within the stream.
	Offset uint64
}

// Values returns the logical contents of the buffer.
func (b *Buffer[T]) Values() []T {
	return b.Data[:b.Len]
}

// Reset clears the logical length and offset for reuse.
func (b *Buffer[T]) Reset() {
	b.Len = 0
	b.Offset = 0
}

type item[T Element] struct {
	buf *Buffer[T]
	eos bool
}

// Queue is a blocking FIFO of buffers. Besides buffers it can carry an
// end-of-stream marker, which Pop reports instead of a buffer.
type Queue[T Element] struct {
	ch chan item[T]
}

// NewQueue returns a queue that can hold size items without blocking Push.
func NewQueue[T Element](size int) *Queue[T] {
	return &Queue[T]{ch: make(chan item[T], size)}
}

// Push appends buf and wakes one waiting Pop.
func (q *Queue[T]) Push(buf *Buffer[T]) {
	q.ch <- item[T]{buf: buf}
}

// PushEnd appends the end-of-stream marker.
func (q *Queue[T]) PushEnd() {
	q.ch <- item[T]{eos: true}
}

// Pop blocks until an item is available. It returns false when the item is
// the end-of-stream marker.
func (q *Queue[T]) Pop() (*Buffer[T], bool) {
	it := <-q.ch
	if it.eos {
		return nil, false
	}
	return it.buf, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Pool preallocates count buffers of a fixed capacity and hands them out
// through an empty and a full queue.
type Pool[T Element] struct {
	count    int
	capacity int

	empty *Queue[T]
	full  *Queue[T]

	mu        sync.Mutex
	allocated bool
	out       int
	highWater int
}

// NewPool returns a pool of count buffers holding capacity elements each.
// Buffers are not allocated until Allocate is called.
func NewPool[T Element](count, capacity int) *Pool[T] {
	if count < 1 {
		count = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	// one extra slot in each queue for the end-of-stream marker
	return &Pool[T]{
		count:    count,
		capacity: capacity,
		empty:    NewQueue[T](count + 1),
		full:     NewQueue[T](count + 1),
	}
}

// Allocate creates the buffers and places all of them in the empty queue.
// Calling it more than once has no effect.
func (p *Pool[T]) Allocate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocated {
		return
	}
	for i := 0; i < p.count; i++ {
		p.empty.Push(&Buffer[T]{Data: make([]T, p.capacity)})
	}
	p.allocated = true
}

// NextEmpty blocks until an empty buffer is available and takes ownership of it.
func (p *Pool[T]) NextEmpty() *Buffer[T] {
	buf, _ := p.empty.Pop()
	p.mu.Lock()
	p.out++
	if p.out > p.highWater {
		p.highWater = p.out
	}
	p.mu.Unlock()
	return buf
}

// ReturnEmpty hands a consumed buffer back to the empty queue.
func (p *Pool[T]) ReturnEmpty(buf *Buffer[T]) {
	buf.Reset()
	p.mu.Lock()
	p.out--
	p.mu.Unlock()
	p.empty.Push(buf)
}

// NextFull blocks until a filled buffer or end-of-stream is available. It
// returns false on end-of-stream.
func (p *Pool[T]) NextFull() (*Buffer[T], bool) {
	return p.full.Pop()
}

// ReturnFull hands a filled buffer to the full queue.
func (p *Pool[T]) ReturnFull(buf *Buffer[T]) {
	p.full.Push(buf)
}

// EndOfStream signals consumers of the full queue that no more buffers follow.
func (p *Pool[T]) EndOfStream() {
	p.full.PushEnd()
}

// Count returns the number of buffers owned by the pool.
func (p *Pool[T]) Count() int {
	return p.count
}

// Capacity returns the element capacity of each buffer.
func (p *Pool[T]) Capacity() int {
	return p.capacity
}

// Allocated reports whether Allocate has been called.
func (p *Pool[T]) Allocated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// HighWater returns the largest number of buffers simultaneously taken out
// of the empty queue since the pool was created.
func (p *Pool[T]) HighWater() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highWater
}

// InFlight returns the number of buffers currently outside the empty queue.
func (p *Pool[T]) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

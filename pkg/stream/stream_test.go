package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"volpreproc/pkg/bufpool"
)

func drain[T bufpool.Element](pool *bufpool.Pool[T]) (lens []int, values []T, offsets []uint64) {
	for {
		buf, ok := pool.NextFull()
		if !ok {
			return
		}
		lens = append(lens, buf.Len)
		offsets = append(offsets, buf.Offset)
		values = append(values, buf.Values()...)
		pool.ReturnEmpty(buf)
	}
}

// A file whose element count is not a multiple of the buffer capacity ends
// with a short buffer holding exactly the remainder.
func TestReaderShortFinalBuffer(t *testing.T) {
	const n, capacity = 23, 5
	data := make([]uint16, n)
	for i := range data {
		data[i] = uint16(i * 3)
	}
	raw, err := binary.Append(nil, binary.LittleEndian, data)
	require.NoError(t, err)

	pool := bufpool.NewPool[uint16](2, capacity)
	pool.Allocate()
	r := NewReader[uint16](bytes.NewReader(raw), pool, zaptest.NewLogger(t))

	type result struct {
		n   uint64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.Run(context.Background())
		done <- result{n, err}
	}()

	lens, values, offsets := drain(pool)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, uint64(len(raw)), res.n)
	assert.Equal(t, []int{5, 5, 5, 5, 3}, lens)
	assert.Equal(t, []uint64{0, 5, 10, 15, 20}, offsets)
	assert.Equal(t, data, values)
	assert.LessOrEqual(t, pool.HighWater(), 2)
}

// The consumer owns a popped buffer outright; scribbling over it before
// handing it back must not disturb what the reader produces next.
func TestReaderConsumerOwnsBuffers(t *testing.T) {
	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = byte(i)
	}
	pool := bufpool.NewPool[uint8](2, 100)
	pool.Allocate()
	r := NewReader[uint8](bytes.NewReader(raw), pool, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()

	var offsets []uint64
	var values []uint8
	for {
		buf, ok := pool.NextFull()
		if !ok {
			break
		}
		offsets = append(offsets, buf.Offset)
		values = append(values, buf.Values()...)
		buf.Offset = 0xdead
		buf.Len = 0
		for i := range buf.Data {
			buf.Data[i] = 0xff
		}
		pool.ReturnEmpty(buf)
	}
	require.NoError(t, <-done)
	assert.Equal(t, raw, values)
	require.Len(t, offsets, 41)
	for i, off := range offsets {
		assert.Equal(t, uint64(i*100), off)
	}
}

func TestReaderExactMultiple(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5, 6}
	pool := bufpool.NewPool[uint8](3, 3)
	pool.Allocate()
	r := NewReader[uint8](bytes.NewReader(raw), pool, zaptest.NewLogger(t))

	go r.Run(context.Background())
	lens, values, _ := drain(pool)
	assert.Equal(t, []int{3, 3}, lens)
	assert.Equal(t, raw, values)
}

func TestReaderDropsPartialElement(t *testing.T) {
	raw := []byte{0, 0, 128, 63, 0xff, 0xff} // 1.0f plus two stray bytes
	pool := bufpool.NewPool[float32](1, 4)
	pool.Allocate()
	r := NewReader[float32](bytes.NewReader(raw), pool, zaptest.NewLogger(t))

	go r.Run(context.Background())
	_, values, _ := drain(pool)
	assert.Equal(t, []float32{1}, values)
}

func TestReaderStop(t *testing.T) {
	pool := bufpool.NewPool[uint8](1, 1)
	pool.Allocate()
	r := NewReader[uint8](bytes.NewReader(make([]byte, 100)), pool, zaptest.NewLogger(t))
	r.Stop()

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok := pool.NextFull()
	assert.False(t, ok)
}

func TestReaderCancelled(t *testing.T) {
	pool := bufpool.NewPool[uint8](1, 1)
	pool.Allocate()
	r := NewReader[uint8](bytes.NewReader(make([]byte, 100)), pool, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := pool.NextFull()
	assert.False(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReaderError(t *testing.T) {
	pool := bufpool.NewPool[uint8](1, 4)
	pool.Allocate()
	r := NewReader[uint8](failingReader{}, pool, zaptest.NewLogger(t))

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "disk on fire")
	_, ok := pool.NextFull()
	assert.False(t, ok)
	assert.Equal(t, 0, pool.InFlight())
}

func TestWriter(t *testing.T) {
	pool := bufpool.NewPool[float64](2, 2)
	pool.Allocate()
	var out bytes.Buffer
	w := NewWriter[float64](&out, pool, zaptest.NewLogger(t))

	go func() {
		for i, vals := range [][]float64{{0.5, 1}, {0.25}} {
			buf := pool.NextEmpty()
			buf.Len = copy(buf.Data, vals)
			buf.Offset = uint64(i * 2)
			pool.ReturnFull(buf)
		}
		pool.EndOfStream()
	}()

	n, err := w.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(24), n)

	got := make([]float64, 3)
	_, err = binary.Decode(out.Bytes(), binary.LittleEndian, got)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1, 0.25}, got)
	assert.Equal(t, 0, pool.InFlight())
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

// After a failed write the writer keeps recycling buffers so the producer
// can run to completion.
func TestWriterDrainsAfterError(t *testing.T) {
	pool := bufpool.NewPool[uint8](1, 1)
	pool.Allocate()
	fw := &failingWriter{}
	w := NewWriter[uint8](fw, pool, zaptest.NewLogger(t))

	go func() {
		for i := 0; i < 10; i++ {
			buf := pool.NextEmpty()
			buf.Data[0] = uint8(i)
			buf.Len = 1
			pool.ReturnFull(buf)
		}
		pool.EndOfStream()
	}()

	_, err := w.Run()
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, w.Failed())
	assert.Equal(t, 1, fw.calls)
}

// Reader and writer sharing one pool copy a stream unchanged.
func TestReaderWriterCopy(t *testing.T) {
	data := make([]int32, 1001)
	for i := range data {
		data[i] = int32(i*7 - 3000)
	}
	raw, err := binary.Append(nil, binary.LittleEndian, data)
	require.NoError(t, err)

	pool := bufpool.NewPool[int32](3, 64)
	pool.Allocate()
	logger := zaptest.NewLogger(t)
	var out bytes.Buffer
	r := NewReader[int32](bytes.NewReader(raw), pool, logger)
	w := NewWriter[int32](&out, pool, logger)

	errc := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		errc <- err
	}()
	n, err := w.Run()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, uint64(len(raw)), n)
	assert.Equal(t, raw, out.Bytes())
}

package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"volpreproc/pkg/bufpool"
)

// Writer drains full buffers to a little-endian output stream and recycles
// them to the pool's empty queue until it sees end-of-stream.
type Writer[T bufpool.Element] struct {
	w      io.Writer
	pool   *bufpool.Pool[T]
	logger *zap.Logger

	failed atomic.Bool
}

// NewWriter returns a writer of pool's full buffers to w.
func NewWriter[T bufpool.Element](w io.Writer, pool *bufpool.Pool[T], logger *zap.Logger) *Writer[T] {
	return &Writer[T]{
		w:      w,
		pool:   pool,
		logger: logger.Named("writer"),
	}
}

// Failed reports whether a write has failed. Once failed, the writer keeps
// recycling buffers without writing them.
func (w *Writer[T]) Failed() bool {
	return w.failed.Load()
}

// Run writes buffers until end-of-stream and returns the number of bytes
// written along with the first write error.
func (w *Writer[T]) Run() (uint64, error) {
	var zero T
	scratch := make([]byte, 0, w.pool.Capacity()*int(unsafe.Sizeof(zero)))

	var (
		nbytes   uint64
		firstErr error
	)
	for {
		buf, ok := w.pool.NextFull()
		if !ok {
			w.logger.Debug("end of stream", zap.Uint64("bytes", nbytes))
			return nbytes, firstErr
		}
		if firstErr == nil && buf.Len > 0 {
			if err := w.write(buf, &scratch, &nbytes); err != nil {
				firstErr = err
				w.failed.Store(true)
				w.logger.Debug("write failed, draining", zap.Error(err))
			}
		}
		w.pool.ReturnEmpty(buf)
	}
}

func (w *Writer[T]) write(buf *bufpool.Buffer[T], scratch *[]byte, nbytes *uint64) error {
	out, err := binary.Append((*scratch)[:0], binary.LittleEndian, buf.Values())
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	*scratch = out
	n, err := w.w.Write(out)
	*nbytes += uint64(n)
	if err != nil {
		return fmt.Errorf("write at element %d: %w", buf.Offset, err)
	}
	return nil
}

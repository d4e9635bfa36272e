// Package stream moves buffers between files and a bufpool.Pool on
// background goroutines.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"volpreproc/pkg/bufpool"
)

// Reader fills empty buffers from a little-endian raw stream and hands them
// to the pool's full queue. It always finishes by signalling end-of-stream.
type Reader[T bufpool.Element] struct {
	r      io.Reader
	pool   *bufpool.Pool[T]
	logger *zap.Logger

	stop atomic.Bool
}

// NewReader returns a reader of r into pool. The pool must be allocated
// before Run is called.
func NewReader[T bufpool.Element](r io.Reader, pool *bufpool.Pool[T], logger *zap.Logger) *Reader[T] {
	return &Reader[T]{
		r:      r,
		pool:   pool,
		logger: logger.Named("reader"),
	}
}

// Stop asks the reader to exit after its current read. Stop does not
// interrupt a read in progress.
func (r *Reader[T]) Stop() {
	r.stop.Store(true)
}

// Run reads until end of file, Stop, context cancellation or a read error
// and returns the number of bytes read. A short read marks the end of the
// stream. Trailing bytes that do not form a whole element are dropped.
func (r *Reader[T]) Run(ctx context.Context) (uint64, error) {
	defer r.pool.EndOfStream()

	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	scratch := make([]byte, r.pool.Capacity()*elemSize)

	var nbytes, offset uint64
	for {
		if r.stop.Load() {
			r.logger.Debug("stop requested", zap.Uint64("bytes", nbytes))
			return nbytes, nil
		}
		if err := ctx.Err(); err != nil {
			return nbytes, err
		}
		buf := r.pool.NextEmpty()
		n, err := io.ReadFull(r.r, scratch)
		nbytes += uint64(n)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			r.pool.ReturnEmpty(buf)
			return nbytes, fmt.Errorf("read: %w", err)
		}
		elems := n / elemSize
		if rem := n % elemSize; rem != 0 {
			r.logger.Debug("dropping partial trailing element", zap.Int("bytes", rem))
		}
		if elems > 0 {
			if _, err := binary.Decode(scratch[:elems*elemSize], binary.LittleEndian, buf.Data[:elems]); err != nil {
				r.pool.ReturnEmpty(buf)
				return nbytes, fmt.Errorf("decode: %w", err)
			}
			buf.Len = elems
			buf.Offset = offset
			r.logger.Debug("buffer read", zap.Uint64("offset", offset), zap.Int("len", elems))
			offset += uint64(elems)
			// buf belongs to the consumer from here on
			r.pool.ReturnFull(buf)
		} else {
			r.pool.ReturnEmpty(buf)
		}
		if eof {
			r.logger.Debug("end of file", zap.Uint64("bytes", nbytes), zap.Uint64("elements", offset))
			return nbytes, nil
		}
	}
}

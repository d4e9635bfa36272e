package reduce

import (
	"volpreproc/pkg/bufpool"
	"volpreproc/pkg/tfunc"
)

// Relevance classifies every voxel of src through f into dst. dst takes the
// length and offset of src and must have at least its capacity.
func (r *Reducer[T]) Relevance(src *bufpool.Buffer[T], dst *bufpool.Buffer[float64], f *tfunc.OpacityFunction[T]) {
	vals := src.Values()
	out := dst.Data[:len(vals)]
	r.parallel(len(vals), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = f.Relevance(vals[i])
		}
	})
	dst.Len = len(vals)
	dst.Offset = src.Offset
}

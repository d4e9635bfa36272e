// Package reduce implements the data-parallel reductions run over each
// buffer of a pass.
//
// Every operator splits the buffer into contiguous ranges, one per worker.
// Workers accumulate into private partials which are folded into the shared
// volume or block state once per buffer, after all workers are done.
package reduce

import (
	"sync"

	"volpreproc/internal/models"
	"volpreproc/pkg/blocks"
	"volpreproc/pkg/bufpool"
)

// defaultMinChunk is the smallest range handed to a worker.
const defaultMinChunk = 4096

// Reducer runs reductions over buffers of T using a fixed number of workers.
// A Reducer is not safe for concurrent use; the processing loop owns it.
type Reducer[T bufpool.Element] struct {
	workers  int
	minChunk int
	decomp   blocks.Decomposition

	accums []*blockAccum
	hists  [][]Bucket
}

// New returns a reducer with the given worker count over decomposition d.
func New[T bufpool.Element](workers int, d blocks.Decomposition) *Reducer[T] {
	if workers < 1 {
		workers = 1
	}
	r := &Reducer[T]{
		workers:  workers,
		minChunk: defaultMinChunk,
		decomp:   d,
		accums:   make([]*blockAccum, workers),
	}
	for i := range r.accums {
		r.accums[i] = newBlockAccum()
	}
	return r
}

// Workers returns the worker count.
func (r *Reducer[T]) Workers() int {
	return r.workers
}

// parallel calls fn for contiguous subranges of [0, n), at most one per
// worker, and waits for all of them.
func (r *Reducer[T]) parallel(n int, fn func(worker, lo, hi int)) int {
	workers := r.workers
	if limit := n / r.minChunk; limit < workers {
		workers = limit
	}
	if workers < 1 {
		workers = 1
	}
	if workers == 1 {
		fn(0, 0, n)
		return 1
	}

	var wg sync.WaitGroup
	per := (n + workers - 1) / workers
	used := 0
	for w := 0; w < workers; w++ {
		lo := w * per
		hi := lo + per
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		used++
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			fn(w, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
	return used
}

// partial is a running min/max/total/count.
type partial struct {
	min, max, total float64
	count           uint64
}

func (p *partial) add(v float64) {
	if p.count == 0 || v < p.min {
		p.min = v
	}
	if p.count == 0 || v > p.max {
		p.max = v
	}
	p.total += v
	p.count++
}

// blockAccum holds one worker's partials for the blocks its range touched.
type blockAccum struct {
	index map[uint64]int
	ids   []uint64
	parts []partial
}

func newBlockAccum() *blockAccum {
	return &blockAccum{index: make(map[uint64]int)}
}

func (a *blockAccum) get(block uint64) *partial {
	i, ok := a.index[block]
	if !ok {
		i = len(a.parts)
		a.index[block] = i
		a.ids = append(a.ids, block)
		a.parts = append(a.parts, partial{})
	}
	return &a.parts[i]
}

func (a *blockAccum) reset() {
	clear(a.index)
	a.ids = a.ids[:0]
	a.parts = a.parts[:0]
}

// mergeBlocks folds the first n worker accumulators into blocks with fold
// and resets them.
func (r *Reducer[T]) mergeBlocks(n int, blks []models.FileBlock, fold func(b *models.FileBlock, p *partial)) {
	for _, a := range r.accums[:n] {
		for i, id := range a.ids {
			fold(&blks[id], &a.parts[i])
		}
		a.reset()
	}
}

// BlockMinMax folds buf into the min, max and total of the blocks it covers.
// Voxels outside the decomposition are skipped.
func (r *Reducer[T]) BlockMinMax(buf *bufpool.Buffer[T], blks []models.FileBlock) {
	vals := buf.Values()
	n := r.parallel(len(vals), func(w, lo, hi int) {
		acc := r.accums[w]
		var (
			last uint64
			p    *partial
		)
		for i := lo; i < hi; i++ {
			b, ok := r.decomp.BlockIndex(buf.Offset + uint64(i))
			if !ok {
				continue
			}
			if p == nil || b != last {
				p, last = acc.get(b), b
			}
			p.add(float64(vals[i]))
		}
	})
	r.mergeBlocks(n, blks, func(b *models.FileBlock, p *partial) {
		if p.min < b.MinVal {
			b.MinVal = p.min
		}
		if p.max > b.MaxVal {
			b.MaxVal = p.max
		}
		b.TotalVal += p.total
	})
}

// BlockEmpties counts, per block, the voxels of buf for which relevant
// returns false.
func (r *Reducer[T]) BlockEmpties(buf *bufpool.Buffer[T], blks []models.FileBlock, relevant func(float64) bool) {
	vals := buf.Values()
	n := r.parallel(len(vals), func(w, lo, hi int) {
		acc := r.accums[w]
		for i := lo; i < hi; i++ {
			if relevant(float64(vals[i])) {
				continue
			}
			b, ok := r.decomp.BlockIndex(buf.Offset + uint64(i))
			if !ok {
				continue
			}
			acc.get(b).count++
		}
	})
	r.mergeBlocks(n, blks, func(b *models.FileBlock, p *partial) {
		b.EmptyVoxels += p.count
	})
}

// BlockRelevance adds the values of buf to the relevance totals of the
// blocks they fall in.
func (r *Reducer[T]) BlockRelevance(buf *bufpool.Buffer[T], blks []models.FileBlock) {
	vals := buf.Values()
	n := r.parallel(len(vals), func(w, lo, hi int) {
		acc := r.accums[w]
		var (
			last uint64
			p    *partial
		)
		for i := lo; i < hi; i++ {
			b, ok := r.decomp.BlockIndex(buf.Offset + uint64(i))
			if !ok {
				continue
			}
			if p == nil || b != last {
				p, last = acc.get(b), b
			}
			p.total += float64(vals[i])
		}
	})
	r.mergeBlocks(n, blks, func(b *models.FileBlock, p *partial) {
		b.RelevanceTotal += p.total
	})
}

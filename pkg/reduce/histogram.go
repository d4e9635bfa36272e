package reduce

import (
	"math"

	"volpreproc/pkg/bufpool"
)

// DefaultBuckets is the bucket count of the raw value histogram.
const DefaultBuckets = 1536

// Bucket counts the values binned into it and the tightest range they span.
type Bucket struct {
	Count uint64
	Min   float64
	Max   float64
}

// Histogram bins raw values into equal-width buckets over [RawMin, RawMax].
type Histogram struct {
	Buckets []Bucket
	RawMin  float64
	RawMax  float64
}

// NewHistogram returns an empty histogram of n buckets over [rawMin, rawMax].
func NewHistogram(n int, rawMin, rawMax float64) *Histogram {
	if n < 1 {
		n = 1
	}
	return &Histogram{
		Buckets: emptyBuckets(n),
		RawMin:  rawMin,
		RawMax:  rawMax,
	}
}

func emptyBuckets(n int) []Bucket {
	b := make([]Bucket, n)
	for i := range b {
		b[i] = Bucket{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	return b
}

// Index returns the bucket of v: round((v-min)/(max-min) * (n-1)), clamped.
// Every value lands in bucket 0 when the range is empty.
func (h *Histogram) Index(v float64) int {
	n := len(h.Buckets)
	diff := h.RawMax - h.RawMin
	if diff <= 0 {
		return 0
	}
	i := int(math.Round((v - h.RawMin) / diff * float64(n-1)))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Total returns the number of values binned.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, b := range h.Buckets {
		n += b.Count
	}
	return n
}

func (h *Histogram) merge(part []Bucket) {
	for i := range part {
		p := &part[i]
		if p.Count == 0 {
			continue
		}
		b := &h.Buckets[i]
		b.Count += p.Count
		b.Min = math.Min(b.Min, p.Min)
		b.Max = math.Max(b.Max, p.Max)
		*p = Bucket{Min: math.Inf(1), Max: math.Inf(-1)}
	}
}

// Histogram bins every value of buf into h.
func (r *Reducer[T]) Histogram(buf *bufpool.Buffer[T], h *Histogram) {
	if len(r.hists) != r.workers || len(r.hists[0]) != len(h.Buckets) {
		r.hists = make([][]Bucket, r.workers)
		for i := range r.hists {
			r.hists[i] = emptyBuckets(len(h.Buckets))
		}
	}
	vals := buf.Values()
	n := r.parallel(len(vals), func(w, lo, hi int) {
		part := r.hists[w]
		for _, v := range vals[lo:hi] {
			f := float64(v)
			b := &part[h.Index(f)]
			b.Count++
			if f < b.Min {
				b.Min = f
			}
			if f > b.Max {
				b.Max = f
			}
		}
	})
	for _, part := range r.hists[:n] {
		h.merge(part)
	}
}

package reduce

import (
	"math"
	"math/big"

	"volpreproc/internal/models"
	"volpreproc/pkg/bufpool"
)

// totalPrec is the mantissa precision of the volume total.
const totalPrec = 512

// VolumeStats accumulates volume-wide statistics across the buffers of a
// pass. Per-buffer partial sums are float64; the running total across
// buffers is kept at extended precision.
type VolumeStats struct {
	Min   float64
	Max   float64
	Count uint64

	total *big.Float
}

// NewVolumeStats returns empty statistics.
func NewVolumeStats() *VolumeStats {
	return &VolumeStats{
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
		total: new(big.Float).SetPrec(totalPrec),
	}
}

// Total returns the running total rounded to float64.
func (s *VolumeStats) Total() float64 {
	f, _ := s.total.Float64()
	return f
}

// Avg returns the running mean, or 0 before any value was added.
func (s *VolumeStats) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	n := new(big.Float).SetPrec(totalPrec).SetUint64(s.Count)
	avg, _ := new(big.Float).SetPrec(totalPrec).Quo(s.total, n).Float64()
	return avg
}

func (s *VolumeStats) merge(p *partial) {
	if p.count == 0 {
		return
	}
	if p.min < s.Min {
		s.Min = p.min
	}
	if p.max > s.Max {
		s.Max = p.max
	}
	s.total.Add(s.total, new(big.Float).SetFloat64(p.total))
	s.Count += p.count
}

// Apply writes min, max, total, average and count into vol.
func (s *VolumeStats) Apply(vol *models.Volume) {
	vol.Min = s.Min
	vol.Max = s.Max
	vol.Total = s.Total()
	vol.Avg = s.Avg()
	vol.Count = s.Count
}

// VolumeMinMax folds every value of buf into s.
func (r *Reducer[T]) VolumeMinMax(buf *bufpool.Buffer[T], s *VolumeStats) {
	vals := buf.Values()
	parts := make([]partial, r.workers)
	n := r.parallel(len(vals), func(w, lo, hi int) {
		p := &parts[w]
		for _, v := range vals[lo:hi] {
			p.add(float64(v))
		}
	})
	for i := range parts[:n] {
		s.merge(&parts[i])
	}
}

package indexfile

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of block statistics of an index.
type Summary struct {
	Blocks      int
	EmptyBlocks int

	RovMean   float64
	RovStdDev float64
	RovMin    float64
	RovMedian float64
	RovMax    float64

	AvgMean   float64
	AvgStdDev float64
}

// Summarize computes the Summary of ix. Rov is working state that binary
// files do not carry, so rov figures of a decoded file are zero.
func Summarize(ix *IndexFile) Summary {
	s := Summary{Blocks: len(ix.Blocks)}
	if s.Blocks == 0 {
		return s
	}
	rov := make([]float64, 0, s.Blocks)
	avg := make([]float64, 0, s.Blocks)
	for i := range ix.Blocks {
		b := &ix.Blocks[i]
		if b.Empty() {
			s.EmptyBlocks++
		}
		rov = append(rov, b.Rov)
		avg = append(avg, b.AvgVal)
	}
	s.RovMean, s.RovStdDev = stat.MeanStdDev(rov, nil)
	s.AvgMean, s.AvgStdDev = stat.MeanStdDev(avg, nil)
	if s.Blocks == 1 {
		s.RovStdDev, s.AvgStdDev = 0, 0
	}

	sort.Float64s(rov)
	s.RovMin = rov[0]
	s.RovMax = rov[len(rov)-1]
	s.RovMedian = stat.Quantile(0.5, stat.Empirical, rov, nil)
	return s
}

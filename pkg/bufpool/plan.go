package bufpool

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// relevanceElemSize is the byte size of one relevance map value.
const relevanceElemSize = 8

// Sizing describes how a byte budget is split between the raw and the
// relevance pools.
type Sizing struct {
	// Capacity is the element count of every buffer in both pools. Raw and
	// relevance buffers with the same offset cover the same voxels.
	Capacity int

	RawBuffers       int
	RelevanceBuffers int
}

// RawBytes returns the memory held by the raw pool.
func (s Sizing) RawBytes(elemSize int) uint64 {
	return uint64(s.RawBuffers) * uint64(s.Capacity) * uint64(elemSize)
}

// RelevanceBytes returns the memory held by the relevance pool.
func (s Sizing) RelevanceBytes() uint64 {
	return uint64(s.RelevanceBuffers) * uint64(s.Capacity) * relevanceElemSize
}

func (s Sizing) String() string {
	return fmt.Sprintf("%d raw + %d relevance buffers of %s elements",
		s.RawBuffers, s.RelevanceBuffers, humanize.Comma(int64(s.Capacity)))
}

// Plan splits budget bytes between count raw buffers of elemSize-byte
// elements and a relevance pool of float64 buffers with the same element
// count. Half of the budget goes to the raw buffers; the relevance pool gets
// as many buffers as fit into the other half, and at least one.
func Plan(budget uint64, count, elemSize int) (Sizing, error) {
	if count < 1 {
		return Sizing{}, fmt.Errorf("buffer count %d must be positive", count)
	}
	if elemSize < 1 {
		return Sizing{}, fmt.Errorf("element size %d must be positive", elemSize)
	}
	half := budget / 2
	capacity := half / uint64(count) / uint64(elemSize)
	if capacity == 0 {
		return Sizing{}, fmt.Errorf("budget %s too small for %d buffers of %d-byte elements",
			humanize.IBytes(budget), count, elemSize)
	}
	rel := half / (capacity * relevanceElemSize)
	if rel < 1 {
		rel = 1
	}
	return Sizing{
		Capacity:         int(capacity),
		RawBuffers:       count,
		RelevanceBuffers: int(rel),
	}, nil
}

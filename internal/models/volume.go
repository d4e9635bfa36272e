package models

import (
	"fmt"
	"math"
)

// Vec3 is an unsigned 3-vector of voxel or block extents, ordered x, y, z.
type Vec3 [3]uint64

// Product returns x*y*z.
func (v Vec3) Product() uint64 {
	return v[0] * v[1] * v[2]
}

// Div divides component-wise, truncating.
func (v Vec3) Div(o Vec3) Vec3 {
	return Vec3{v[0] / o[0], v[1] / o[1], v[2] / o[2]}
}

// IsZero reports whether any component is zero.
func (v Vec3) IsZero() bool {
	return v[0] == 0 || v[1] == 0 || v[2] == 0
}

func (v Vec3) String() string {
	return fmt.Sprintf("%d-%d-%d", v[0], v[1], v[2])
}

// Volume describes the dataset being processed and its running statistics.
//
// Statistics are in the raw value domain. Min, Max and Total are accumulated
// over every voxel of the file, including voxels in the remainder strip that
// no block covers.
type Volume struct {
	// VoxelDims is the volume extent in voxels.
	VoxelDims Vec3

	// BlockDims is the voxel extent of one block (VoxelDims / BlockCount, truncated).
	BlockDims Vec3

	// BlockCount is the number of blocks along each axis.
	BlockCount Vec3

	// Type is the element kind of the raw file.
	Type DataType

	Min   float64
	Max   float64
	Avg   float64
	Total float64

	// Count is the number of voxels that contributed to Total.
	Count uint64

	// RovMin and RovMax span the ratio-of-visibility over all blocks.
	RovMin float64
	RovMax float64

	// EmptyVoxels counts voxels whose relevance fell outside the relevant interval.
	EmptyVoxels uint64
}

// NewVolume returns a volume with block dims derived from voxel dims and
// block count and with its running statistics reset.
func NewVolume(voxelDims, blockCount Vec3, t DataType) *Volume {
	v := &Volume{
		VoxelDims:  voxelDims,
		BlockCount: blockCount,
		Type:       t,
	}
	if !blockCount.IsZero() {
		v.BlockDims = voxelDims.Div(blockCount)
	}
	v.ResetStats()
	return v
}

// ResetStats sets min/max to their identities so the first voxel seen wins.
func (v *Volume) ResetStats() {
	v.Min = math.Inf(1)
	v.Max = math.Inf(-1)
	v.Avg = 0
	v.Total = 0
	v.Count = 0
	v.RovMin = math.Inf(1)
	v.RovMax = math.Inf(-1)
	v.EmptyVoxels = 0
}

// TotalBlocks returns the number of blocks in the decomposition.
func (v *Volume) TotalBlocks() uint64 {
	return v.BlockCount.Product()
}

// Package blocks decomposes a volume into a regular grid of blocks and
// finalizes the per-block statistics gathered by the reduction passes.
package blocks

import (
	"math"

	"volpreproc/internal/models"
)

// Decomposition maps global voxel indices to block indices.
//
// Voxels are ordered row-major with x fastest. When the voxel dims are not
// a multiple of the block count, voxels past the last whole block on an
// axis belong to no block.
type Decomposition struct {
	VoxelDims  models.Vec3
	BlockDims  models.Vec3
	BlockCount models.Vec3
}

// NewDecomposition returns the decomposition described by vol.
func NewDecomposition(vol *models.Volume) Decomposition {
	return Decomposition{
		VoxelDims:  vol.VoxelDims,
		BlockDims:  vol.BlockDims,
		BlockCount: vol.BlockCount,
	}
}

// Voxels returns the number of voxels in the volume.
func (d Decomposition) Voxels() uint64 {
	return d.VoxelDims.Product()
}

// Blocks returns the number of blocks in the grid.
func (d Decomposition) Blocks() uint64 {
	return d.BlockCount.Product()
}

// BlockIndex returns the block containing voxel v. It returns false for
// voxels in the remainder strip.
func (d Decomposition) BlockIndex(v uint64) (uint64, bool) {
	X, Y := d.VoxelDims[0], d.VoxelDims[1]
	vx := v % X
	vy := (v / X) % Y
	vz := (v / X) / Y

	bx := vx / d.BlockDims[0]
	by := vy / d.BlockDims[1]
	bz := vz / d.BlockDims[2]
	if bx >= d.BlockCount[0] || by >= d.BlockCount[1] || bz >= d.BlockCount[2] {
		return 0, false
	}
	return bx + d.BlockCount[0]*(by+d.BlockCount[1]*bz), true
}

// Linear returns the row-major index of voxel (x, y, z).
func (d Decomposition) Linear(x, y, z uint64) uint64 {
	return x + d.VoxelDims[0]*(y+d.VoxelDims[1]*z)
}

// NewBlocks allocates the block array for vol. Each block records its raw
// file byte offset, its voxel extent and its centroid in the [-0.5, 0.5]^3
// cube. Statistics start at their identities.
func NewBlocks(vol *models.Volume, elemSize int) []models.FileBlock {
	d := NewDecomposition(vol)
	bc, bd := vol.BlockCount, vol.BlockDims
	out := make([]models.FileBlock, 0, bc.Product())
	for bz := uint64(0); bz < bc[2]; bz++ {
		for by := uint64(0); by < bc[1]; by++ {
			for bx := uint64(0); bx < bc[0]; bx++ {
				b := models.NewFileBlock()
				b.Index = bx + bc[0]*(by+bc[1]*bz)
				b.DataOffset = d.Linear(bx*bd[0], by*bd[1], bz*bd[2]) * uint64(elemSize)
				b.VoxelDims = bd
				b.WorldPos = [3]float64{
					centroid(bx, bc[0]),
					centroid(by, bc[1]),
					centroid(bz, bc[2]),
				}
				out = append(out, b)
			}
		}
	}
	return out
}

func centroid(b, count uint64) float64 {
	return (float64(b)+0.5)/float64(count) - 0.5
}

// FinalizeAverages sets every block's average from its accumulated total.
func FinalizeAverages(blocks []models.FileBlock) {
	for i := range blocks {
		b := &blocks[i]
		if n := b.VoxelCount(); n > 0 {
			b.AvgVal = b.TotalVal / float64(n)
		}
	}
}

// FinalizeRelevance computes each block's rov from its relevance total,
// classifies the block against the [tmin, tmax] threshold and folds rov
// bounds and empty voxel counts into vol. It returns the number of blocks
// marked empty.
func FinalizeRelevance(vol *models.Volume, blocks []models.FileBlock, tmin, tmax float64) int {
	vol.RovMin = math.Inf(1)
	vol.RovMax = math.Inf(-1)
	vol.EmptyVoxels = 0
	for i := range blocks {
		b := &blocks[i]
		if n := b.VoxelCount(); n > 0 {
			b.Rov = b.RelevanceTotal / float64(n)
		}
		vol.RovMin = math.Min(vol.RovMin, b.Rov)
		vol.RovMax = math.Max(vol.RovMax, b.Rov)
		vol.EmptyVoxels += b.EmptyVoxels
	}
	return Classify(blocks, tmin, tmax)
}

// Classify marks a block empty when its rov lies outside [tmin, tmax].
// Both bounds are inclusive: a block whose rov equals a bound is kept.
// It returns the number of empty blocks.
func Classify(blocks []models.FileBlock, tmin, tmax float64) int {
	var empty int
	for i := range blocks {
		b := &blocks[i]
		if b.Rov < tmin || b.Rov > tmax {
			b.IsEmpty = 1
			empty++
		} else {
			b.IsEmpty = 0
		}
	}
	return empty
}

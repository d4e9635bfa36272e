package models

import "math"

// FileBlock is one cell of the spatial decomposition of a volume.
//
// The fields up to IsEmpty are persisted in the binary index file. Rov,
// RelevanceTotal and EmptyVoxels are working state of the relevance passes.
type FileBlock struct {
	// Index is the 1D block index, row-major over the block grid (x fastest).
	Index uint64

	// DataOffset is the byte offset of the block's first voxel in the raw file.
	DataOffset uint64

	// VoxelDims is the voxel extent of the block.
	VoxelDims Vec3

	// WorldPos is the block centroid in the [-0.5, 0.5]^3 canonical cube.
	WorldPos [3]float64

	MinVal   float64
	MaxVal   float64
	AvgVal   float64
	TotalVal float64

	// IsEmpty is 1 when the renderer may cull this block.
	IsEmpty uint32

	Rov            float64
	RelevanceTotal float64
	EmptyVoxels    uint64
}

// NewFileBlock returns a block with min/max reset to their identities.
func NewFileBlock() FileBlock {
	return FileBlock{
		MinVal: math.Inf(1),
		MaxVal: math.Inf(-1),
	}
}

// VoxelCount returns the number of voxels covered by the block.
func (b *FileBlock) VoxelCount() uint64 {
	return b.VoxelDims.Product()
}

// Empty reports whether the block has been classified as empty.
func (b *FileBlock) Empty() bool {
	return b.IsEmpty != 0
}

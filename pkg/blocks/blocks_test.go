package blocks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volpreproc/internal/models"
)

func TestBlockIndex(t *testing.T) {
	vol := models.NewVolume(models.Vec3{4, 4, 4}, models.Vec3{2, 2, 2}, models.Uint8)
	d := NewDecomposition(vol)

	tests := []struct {
		x, y, z uint64
		want    uint64
	}{
		{0, 0, 0, 0},
		{1, 1, 1, 0},
		{2, 0, 0, 1},
		{0, 2, 0, 2},
		{3, 3, 0, 3},
		{0, 0, 2, 4},
		{3, 3, 3, 7},
	}
	for _, tt := range tests {
		got, ok := d.BlockIndex(d.Linear(tt.x, tt.y, tt.z))
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "voxel (%d,%d,%d)", tt.x, tt.y, tt.z)
	}
}

func TestBlockIndexRemainder(t *testing.T) {
	// 5 voxels split into 2 blocks of 2 leaves x == 4 uncovered
	vol := models.NewVolume(models.Vec3{5, 3, 1}, models.Vec3{2, 1, 1}, models.Uint8)
	d := NewDecomposition(vol)
	require.Equal(t, models.Vec3{2, 3, 1}, vol.BlockDims)

	for y := uint64(0); y < 3; y++ {
		_, ok := d.BlockIndex(d.Linear(4, y, 0))
		assert.False(t, ok)
		idx, ok := d.BlockIndex(d.Linear(3, y, 0))
		assert.True(t, ok)
		assert.Equal(t, uint64(1), idx)
	}
}

// Every voxel maps to at most one block, no block receives more than its
// extent, and blocks are filled exactly when dims divide evenly.
func TestDecompositionPartitions(t *testing.T) {
	tests := []struct {
		dims, count models.Vec3
		even        bool
	}{
		{models.Vec3{8, 8, 8}, models.Vec3{2, 2, 2}, true},
		{models.Vec3{6, 4, 2}, models.Vec3{3, 1, 2}, true},
		{models.Vec3{7, 5, 3}, models.Vec3{2, 2, 2}, false},
		{models.Vec3{9, 1, 4}, models.Vec3{4, 1, 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.dims.String()+"_"+tt.count.String(), func(t *testing.T) {
			vol := models.NewVolume(tt.dims, tt.count, models.Uint8)
			d := NewDecomposition(vol)
			sizes := make([]uint64, d.Blocks())
			var covered uint64
			for v := uint64(0); v < d.Voxels(); v++ {
				if idx, ok := d.BlockIndex(v); ok {
					require.Less(t, idx, d.Blocks())
					sizes[idx]++
					covered++
				}
			}
			for i, n := range sizes {
				if tt.even {
					assert.Equal(t, vol.BlockDims.Product(), n, "block %d", i)
				} else {
					assert.LessOrEqual(t, n, vol.BlockDims.Product(), "block %d", i)
				}
			}
			if tt.even {
				assert.Equal(t, d.Voxels(), covered)
			} else {
				assert.Less(t, covered, d.Voxels())
			}
		})
	}
}

func TestNewBlocks(t *testing.T) {
	vol := models.NewVolume(models.Vec3{8, 8, 8}, models.Vec3{2, 2, 2}, models.Uint16)
	blocks := NewBlocks(vol, 2)
	require.Len(t, blocks, 8)

	for i, b := range blocks {
		assert.Equal(t, uint64(i), b.Index)
		assert.Equal(t, models.Vec3{4, 4, 4}, b.VoxelDims)
		assert.True(t, math.IsInf(b.MinVal, 1))
		assert.True(t, math.IsInf(b.MaxVal, -1))
	}
	assert.Equal(t, uint64(0), blocks[0].DataOffset)
	assert.Equal(t, uint64(4*2), blocks[1].DataOffset)
	assert.Equal(t, uint64(4*8*2), blocks[2].DataOffset)
	assert.Equal(t, uint64((4*64+4*8+4)*2), blocks[7].DataOffset)

	assert.Equal(t, [3]float64{-0.25, -0.25, -0.25}, blocks[0].WorldPos)
	assert.Equal(t, [3]float64{0.25, -0.25, -0.25}, blocks[1].WorldPos)
	assert.Equal(t, [3]float64{0.25, 0.25, 0.25}, blocks[7].WorldPos)

	single := NewBlocks(models.NewVolume(models.Vec3{3, 3, 3}, models.Vec3{1, 1, 1}, models.Uint8), 1)
	require.Len(t, single, 1)
	assert.Equal(t, [3]float64{0, 0, 0}, single[0].WorldPos)
}

func TestFinalizeAverages(t *testing.T) {
	blocks := []models.FileBlock{
		{VoxelDims: models.Vec3{2, 2, 2}, TotalVal: 40},
		{VoxelDims: models.Vec3{1, 1, 1}, TotalVal: 3},
	}
	FinalizeAverages(blocks)
	assert.Equal(t, 5.0, blocks[0].AvgVal)
	assert.Equal(t, 3.0, blocks[1].AvgVal)
}

func TestClassifyBoundaries(t *testing.T) {
	blocks := []models.FileBlock{
		{Rov: 0.1},   // at min: kept
		{Rov: 0.5},   // inside: kept
		{Rov: 1.0},   // at max: kept
		{Rov: 0.099}, // below: empty
		{Rov: 0},     // below: empty
	}
	empty := Classify(blocks, 0.1, 1.0)
	assert.Equal(t, 2, empty)
	assert.False(t, blocks[0].Empty())
	assert.False(t, blocks[1].Empty())
	assert.False(t, blocks[2].Empty())
	assert.True(t, blocks[3].Empty())
	assert.True(t, blocks[4].Empty())

	// above the max is empty too
	blocks = []models.FileBlock{{Rov: 0.6}, {Rov: 0.5}}
	assert.Equal(t, 1, Classify(blocks, 0, 0.5))
	assert.True(t, blocks[0].Empty())
	assert.False(t, blocks[1].Empty())
}

func TestFinalizeRelevance(t *testing.T) {
	vol := models.NewVolume(models.Vec3{4, 2, 2}, models.Vec3{2, 1, 1}, models.Uint8)
	blocks := NewBlocks(vol, 1)
	blocks[0].RelevanceTotal = 8 // all relevant
	blocks[0].EmptyVoxels = 0
	blocks[1].RelevanceTotal = 0.4
	blocks[1].EmptyVoxels = 7

	empty := FinalizeRelevance(vol, blocks, 0.1, 1)
	assert.Equal(t, 1, empty)
	assert.Equal(t, 1.0, blocks[0].Rov)
	assert.InDelta(t, 0.05, blocks[1].Rov, 1e-12)
	assert.InDelta(t, 0.05, vol.RovMin, 1e-12)
	assert.Equal(t, 1.0, vol.RovMax)
	assert.Equal(t, uint64(7), vol.EmptyVoxels)
	assert.False(t, blocks[0].Empty())
	assert.True(t, blocks[1].Empty())
}

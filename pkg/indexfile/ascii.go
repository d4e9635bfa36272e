package indexfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// number encodes non-finite values as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

type asciiHeader struct {
	Magic        uint16    `json:"magic"`
	Version      uint16    `json:"version"`
	HeaderLength uint32    `json:"header_length"`
	NumBlocks    [3]uint64 `json:"num_blocks"`
	DataType     string    `json:"data_type"`
	NumVox       [3]uint64 `json:"num_vox"`
	VolMin       number    `json:"vol_min"`
	VolMax       number    `json:"vol_max"`
	VolAvg       number    `json:"vol_avg"`
}

type asciiBlock struct {
	Index      uint64    `json:"index"`
	DataOffset uint64    `json:"data_offset"`
	VoxelDims  [3]uint64 `json:"voxel_dims"`
	WorldPos   [3]number `json:"world_pos"`
	MinVal     number    `json:"min_val"`
	MaxVal     number    `json:"max_val"`
	AvgVal     number    `json:"avg_val"`
	TotalVal   number    `json:"total_val"`
	Empty      bool      `json:"empty"`
}

// WriteASCII writes ix as a JSON document with a "header" object and a
// "blocks" object whose members "block_<index>" appear in block order.
func WriteASCII(w io.Writer, ix *IndexFile) error {
	h := &ix.Header
	hdr := asciiHeader{
		Magic:        h.Magic,
		Version:      h.Version,
		HeaderLength: h.HeaderLength,
		NumBlocks:    h.BlockCount,
		DataType:     h.Type().String(),
		NumVox:       h.VoxelDims,
		VolMin:       number(h.VolMin),
		VolMax:       number(h.VolMax),
		VolAvg:       number(h.VolAvg),
	}
	bw := bufio.NewWriter(w)
	out, err := json.MarshalIndent(hdr, "  ", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(bw, "{\n  \"header\": %s,\n  \"blocks\": {", out)

	for i := range ix.Blocks {
		b := &ix.Blocks[i]
		blk := asciiBlock{
			Index:      b.Index,
			DataOffset: b.DataOffset,
			VoxelDims:  b.VoxelDims,
			WorldPos:   [3]number{number(b.WorldPos[0]), number(b.WorldPos[1]), number(b.WorldPos[2])},
			MinVal:     number(b.MinVal),
			MaxVal:     number(b.MaxVal),
			AvgVal:     number(b.AvgVal),
			TotalVal:   number(b.TotalVal),
			Empty:      b.Empty(),
		}
		out, err := json.MarshalIndent(blk, "    ", "  ")
		if err != nil {
			return err
		}
		sep := ","
		if i == 0 {
			sep = ""
		}
		fmt.Fprintf(bw, "%s\n    \"block_%d\": %s", sep, b.Index, out)
	}
	fmt.Fprint(bw, "\n  }\n}\n")
	return bw.Flush()
}

// Package indexfile reads and writes block index files.
//
// A binary index file is a fixed-size little-endian header followed by one
// fixed-size record per block, in row-major block order, without padding.
// The ASCII form carries the same fields as JSON.
package indexfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"

	"volpreproc/internal/models"
)

const (
	// Magic identifies a binary index file.
	Magic uint16 = 7376

	// Version is the only supported format version.
	Version uint16 = 1

	// HeaderLength is the encoded size of Header in bytes.
	HeaderLength = 2 + 2 + 4 + 3*8 + 4 + 3*8 + 3*8

	// BlockLength is the encoded size of one block record in bytes.
	BlockLength = 8 + 8 + 3*8 + 3*8 + 4*8 + 4
)

var (
	ErrBadMagic   = errors.New("not an index file")
	ErrBadVersion = errors.New("unsupported index file version")
	ErrTruncated  = errors.New("index file truncated")
	ErrBadHeader  = errors.New("unsupported index file header length")
)

// Header is the fixed-size preamble of a binary index file.
type Header struct {
	Magic        uint16
	Version      uint16
	HeaderLength uint32
	BlockCount   models.Vec3
	DataType     uint32
	VoxelDims    models.Vec3
	VolAvg       float64
	VolMin       float64
	VolMax       float64
}

// Blocks returns the number of block records that follow the header.
func (h *Header) Blocks() uint64 {
	return h.BlockCount.Product()
}

// Type returns the element type recorded in the header.
func (h *Header) Type() models.DataType {
	return models.DataTypeFromCode(h.DataType)
}

// blockRecord is the on-disk layout of a block.
type blockRecord struct {
	Index      uint64
	DataOffset uint64
	VoxelDims  [3]uint64
	WorldPos   [3]float64
	MinVal     float64
	MaxVal     float64
	AvgVal     float64
	TotalVal   float64
	IsEmpty    uint32
}

// IndexFile is a header together with its blocks.
type IndexFile struct {
	Header Header
	Blocks []models.FileBlock
}

// New returns the index file describing vol and its finalized blocks.
func New(vol *models.Volume, blocks []models.FileBlock) *IndexFile {
	return &IndexFile{
		Header: Header{
			Magic:        Magic,
			Version:      Version,
			HeaderLength: HeaderLength,
			BlockCount:   vol.BlockCount,
			DataType:     vol.Type.Code(),
			VoxelDims:    vol.VoxelDims,
			VolAvg:       vol.Avg,
			VolMin:       vol.Min,
			VolMax:       vol.Max,
		},
		Blocks: blocks,
	}
}

// WriteBinary encodes ix to w.
func WriteBinary(w io.Writer, ix *IndexFile) error {
	if uint64(len(ix.Blocks)) != ix.Header.Blocks() {
		return fmt.Errorf("header declares %d blocks, have %d", ix.Header.Blocks(), len(ix.Blocks))
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &ix.Header); err != nil {
		return err
	}
	for i := range ix.Blocks {
		b := &ix.Blocks[i]
		rec := blockRecord{
			Index:      b.Index,
			DataOffset: b.DataOffset,
			VoxelDims:  b.VoxelDims,
			WorldPos:   b.WorldPos,
			MinVal:     b.MinVal,
			MaxVal:     b.MaxVal,
			AvgVal:     b.AvgVal,
			TotalVal:   b.TotalVal,
			IsEmpty:    b.IsEmpty,
		}
		if err := binary.Write(bw, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadBinary decodes an index file from r. The header must be the packed
// HeaderLength-byte layout written by WriteBinary; padded headers from
// other writers are rejected with ErrBadHeader.
func ReadBinary(r io.Reader) (*IndexFile, error) {
	br := bufio.NewReader(r)
	ix := &IndexFile{}
	if err := read(br, &ix.Header); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	h := &ix.Header
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %d", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.HeaderLength != HeaderLength {
		return nil, fmt.Errorf("%w: %d, want %d", ErrBadHeader, h.HeaderLength, HeaderLength)
	}

	n := h.Blocks()
	ix.Blocks = make([]models.FileBlock, 0, min(n, 1<<20))
	for i := uint64(0); i < n; i++ {
		var rec blockRecord
		if err := read(br, &rec); err != nil {
			return nil, fmt.Errorf("block %d of %d: %w", i, n, err)
		}
		ix.Blocks = append(ix.Blocks, models.FileBlock{
			Index:      rec.Index,
			DataOffset: rec.DataOffset,
			VoxelDims:  rec.VoxelDims,
			WorldPos:   rec.WorldPos,
			MinVal:     rec.MinVal,
			MaxVal:     rec.MaxVal,
			AvgVal:     rec.AvgVal,
			TotalVal:   rec.TotalVal,
			IsEmpty:    rec.IsEmpty,
		})
	}
	return ix, nil
}

func read(r io.Reader, v any) error {
	return truncated(binary.Read(r, binary.LittleEndian, v))
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// Load reads a binary index file from path.
func Load(path string) (*IndexFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ix, err := ReadBinary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}

// Save writes ix to path, as JSON when ascii is set. The file is synced
// before it is closed.
func Save(path string, ix *IndexFile, ascii bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	if ascii {
		err = WriteASCII(f, ix)
	} else {
		err = WriteBinary(f, ix)
	}
	if err != nil {
		return err
	}
	return f.Sync()
}

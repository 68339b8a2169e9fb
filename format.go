package flatfs

import (
	"io"

	"github.com/aligator/flatfs/checkpoint"
)

// DefaultIdentifier is written into the first 8 bytes of newly formatted images.
var DefaultIdentifier = [8]byte{'F', 'L', 'A', 'T', 'F', 'S', '0', '1'}

// Geometry describes the size of a new image.
type Geometry struct {
	BlockSize   uint16 `yaml:"block-size"`
	TotalBlocks uint32 `yaml:"blocks"`
	FDTBlocks   uint32 `yaml:"fdt-blocks"`
}

// DefaultGeometry is a 3.2 MB image with 512 byte blocks and 64 directory slots.
var DefaultGeometry = Geometry{
	BlockSize:   512,
	TotalBlocks: 6400,
	FDTBlocks:   8,
}

// Superblock computes the superblock of the geometry.
// The FAT starts at block 1 and has exactly enough blocks for one entry per block
// of the image, the FDT follows directly.
func (g Geometry) Superblock(id [8]byte) (Superblock, error) {
	// Block 0 has to hold the whole superblock.
	if g.BlockSize < SuperblockSize || g.BlockSize%DirEntrySize != 0 {
		return Superblock{}, checkpoint.With(nil, ErrFormat, "reason", "invalid block size", "blockSize", g.BlockSize)
	}

	perBlock := uint32(g.BlockSize) / FATEntrySize
	fatBlocks := (g.TotalBlocks + perBlock - 1) / perBlock

	sb := Superblock{
		Identifier:    id,
		BlockSize:     g.BlockSize,
		TotalBlocks:   g.TotalBlocks,
		FATStartBlock: 1,
		FATBlockCount: fatBlocks,
		FDTStartBlock: 1 + fatBlocks,
		FDTBlockCount: g.FDTBlocks,
	}

	if uint64(sb.FDTStartBlock)+uint64(sb.FDTBlockCount) >= uint64(g.TotalBlocks) {
		return Superblock{}, checkpoint.With(nil, ErrFormat, "reason", "no room for data blocks", "blocks", g.TotalBlocks, "fatBlocks", fatBlocks, "fdtBlocks", g.FDTBlocks)
	}

	if err := sb.Validate(true); err != nil {
		return Superblock{}, err
	}

	return sb, nil
}

// Format writes an empty image of the given geometry to w.
// All blocks are zeroed first, so w ends up with exactly the image size.
// The FAT marks the superblock, FAT and FDT blocks reserved, as well as the entries
// which exist only because the last FAT block is not full.
func Format(w io.WriterAt, g Geometry, id [8]byte) (Superblock, error) {
	sb, err := g.Superblock(id)
	if err != nil {
		return Superblock{}, err
	}

	write := func(p []byte, offset int64) error {
		n, err := w.WriteAt(p, offset)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return checkpoint.With(err, ErrIO, "offset", offset)
		}
		return nil
	}

	zero := make([]byte, sb.BlockSize)
	for i := uint32(0); i < sb.TotalBlocks; i++ {
		if err := write(zero, sb.BlockOffset(i)); err != nil {
			return Superblock{}, err
		}
	}

	if err := write(sb.encode(), 0); err != nil {
		return Superblock{}, err
	}

	metadataEnd := sb.FDTStartBlock + sb.FDTBlockCount
	perBlock := uint32(sb.EntriesPerFATBlock())
	block := make([]byte, sb.BlockSize)
	for i := uint32(0); i < sb.FATBlockCount; i++ {
		for j := uint32(0); j < perBlock; j++ {
			index := i*perBlock + j

			value := fatAvailable
			if index < metadataEnd || index >= sb.TotalBlocks {
				value = fatReserved
			}

			if err := putBeUint32(block, int(j)*FATEntrySize, value); err != nil {
				return Superblock{}, err
			}
		}

		if err := write(block, sb.BlockOffset(sb.FATStartBlock+i)); err != nil {
			return Superblock{}, err
		}
	}

	return sb, nil
}

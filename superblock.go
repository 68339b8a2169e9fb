package flatfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/aligator/flatfs/checkpoint"
)

// Superblock describes the layout of the whole image.
type Superblock struct {
	Identifier    [8]byte
	BlockSize     uint16
	TotalBlocks   uint32
	FATStartBlock uint32
	FATBlockCount uint32
	FDTStartBlock uint32
	FDTBlockCount uint32
}

// ParseSuperblock reads block 0 of the image and decodes the superblock fields.
// It fails with ErrFormat if the image is shorter than SuperblockSize.
// No field is validated here, use Superblock.Validate for that.
func ParseSuperblock(r io.ReaderAt) (Superblock, error) {
	buffer := make([]byte, SuperblockSize)
	n, err := r.ReadAt(buffer, 0)
	if n < SuperblockSize {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Superblock{}, checkpoint.With(err, ErrFormat, "offset", 0, "read", n)
	}

	layout := superblockLayout{}
	err = binary.Read(bytes.NewReader(buffer), binary.BigEndian, &layout)
	if err != nil {
		return Superblock{}, checkpoint.Wrap(err, ErrFormat)
	}

	return Superblock(layout), nil
}

// Validate checks that the superblock describes a usable layout.
// The non-strict checks are needed to parse the image safely at all.
// In strict mode it additionally expects the FAT to be followed directly by the FDT
// and the FAT to hold an entry for every block of the image.
func (sb Superblock) Validate(strict bool) error {
	if sb.BlockSize == 0 || sb.BlockSize%DirEntrySize != 0 {
		return checkpoint.With(nil, ErrFormat, "reason", "invalid block size", "blockSize", sb.BlockSize)
	}

	if sb.FATBlockCount == 0 || sb.FDTBlockCount == 0 {
		return checkpoint.With(nil, ErrFormat, "reason", "empty FAT or FDT", "fatBlocks", sb.FATBlockCount, "fdtBlocks", sb.FDTBlockCount)
	}

	if err := sb.checkExtent("FAT", sb.FATStartBlock, sb.FATBlockCount); err != nil {
		return err
	}
	if err := sb.checkExtent("FDT", sb.FDTStartBlock, sb.FDTBlockCount); err != nil {
		return err
	}

	if !strict {
		return nil
	}

	if uint64(sb.FATStartBlock)+uint64(sb.FATBlockCount) != uint64(sb.FDTStartBlock) {
		return checkpoint.With(nil, ErrFormat, "reason", "FDT does not follow the FAT", "fatStart", sb.FATStartBlock, "fatBlocks", sb.FATBlockCount, "fdtStart", sb.FDTStartBlock)
	}

	if uint64(sb.FATEntries()) < uint64(sb.TotalBlocks) {
		return checkpoint.With(nil, ErrFormat, "reason", "FAT too small for the image", "fatEntries", sb.FATEntries(), "totalBlocks", sb.TotalBlocks)
	}

	return nil
}

func (sb Superblock) checkExtent(region string, start, count uint32) error {
	// Block 0 is always the superblock.
	if start == 0 || uint64(start)+uint64(count) > uint64(sb.TotalBlocks) {
		return checkpoint.With(nil, ErrFormat, "reason", fmt.Sprintf("%s outside of the image", region), "start", start, "blocks", count, "totalBlocks", sb.TotalBlocks)
	}
	return nil
}

// EntriesPerFATBlock returns how many FAT entries fit into one block.
func (sb Superblock) EntriesPerFATBlock() int {
	return int(sb.BlockSize) / FATEntrySize
}

// EntriesPerFDTBlock returns how many directory records fit into one block.
func (sb Superblock) EntriesPerFDTBlock() int {
	return int(sb.BlockSize) / DirEntrySize
}

// FATEntries is the total number of FAT entries.
func (sb Superblock) FATEntries() int {
	return int(sb.FATBlockCount) * sb.EntriesPerFATBlock()
}

// FDTEntries is the total number of directory slots.
func (sb Superblock) FDTEntries() int {
	return int(sb.FDTBlockCount) * sb.EntriesPerFDTBlock()
}

// BlockOffset returns the byte offset of a block inside the image.
func (sb Superblock) BlockOffset(block uint32) int64 {
	return int64(block) * int64(sb.BlockSize)
}

// MetadataEnd is the offset of the first byte after both the FAT and the FDT.
func (sb Superblock) MetadataEnd() int64 {
	fatEnd := (int64(sb.FATStartBlock) + int64(sb.FATBlockCount)) * int64(sb.BlockSize)
	fdtEnd := (int64(sb.FDTStartBlock) + int64(sb.FDTBlockCount)) * int64(sb.BlockSize)
	if fatEnd > fdtEnd {
		return fatEnd
	}
	return fdtEnd
}

// Size is the expected size of the image in bytes.
func (sb Superblock) Size() int64 {
	return sb.BlockOffset(sb.TotalBlocks)
}

func (sb Superblock) encode() []byte {
	buffer := new(bytes.Buffer)
	// Writing into a bytes.Buffer does not fail.
	_ = binary.Write(buffer, binary.BigEndian, superblockLayout(sb))
	block := make([]byte, SuperblockSize)
	copy(block, buffer.Bytes())
	return block
}

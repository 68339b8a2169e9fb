// File model contains the structs and constants which match the direct structures of the on-disk format.

package flatfs

const (
	// SuperblockSize is the size of block 0 which is always read, independent of the block size.
	SuperblockSize = 512
	// superblockFieldsOffset is where the geometry fields start, after the identifier.
	superblockFieldsOffset = 8

	// FATEntrySize is the size of one FAT entry in bytes.
	FATEntrySize = 4
	// DirEntrySize is the size of one directory record in bytes.
	DirEntrySize = 64
	// MaxNameLength is the size of the filename field.
	MaxNameLength = 31
)

// Raw FAT entry values.
const (
	fatAvailable    uint32 = 0x00000000
	fatReserved     uint32 = 0x00000001
	fatMinAllocated uint32 = 0x00000002
	fatMaxAllocated uint32 = 0xFFFFFF00
	fatEnd          uint32 = 0xFFFFFFFF
)

// Directory entry status bits.
const (
	StatusInUse byte = 0x01
	StatusFile  byte = 0x02
)

// Byte offsets of the directory entry fields.
const (
	dirStatusOffset     = 0
	dirStartOffset      = 1
	dirBlockCountOffset = 5
	dirSizeOffset       = 9
	dirCreateOffset     = 13
	dirModifyOffset     = dirCreateOffset + TimestampSize
	dirNameOffset       = dirModifyOffset + TimestampSize
	dirUnusedOffset     = dirNameOffset + MaxNameLength
)

// superblockLayout matches the first 30 bytes of block 0.
type superblockLayout struct {
	Identifier    [8]byte
	BlockSize     uint16
	TotalBlocks   uint32
	FATStartBlock uint32
	FATBlockCount uint32
	FDTStartBlock uint32
	FDTBlockCount uint32
}

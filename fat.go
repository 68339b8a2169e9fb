package flatfs

import (
	"fmt"
	"io"

	"github.com/aligator/flatfs/checkpoint"
	"github.com/willf/bitset"
)

// EntryKind classifies a FAT entry.
type EntryKind uint8

const (
	// Available marks a free block.
	Available EntryKind = iota
	// Reserved marks a system block, e.g. the superblock, FAT or FDT blocks.
	Reserved
	// End marks the last block of a chain.
	End
	// Next means the entry links to the next block of a chain.
	Next
	// Invalid covers the values between the highest link and End,
	// which are neither a status nor a usable link.
	Invalid
)

func (k EntryKind) String() string {
	switch k {
	case Available:
		return "available"
	case Reserved:
		return "reserved"
	case End:
		return "end"
	case Next:
		return "next"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("EntryKind(%d)", uint8(k))
}

// FATEntry is a decoded FAT entry.
// Value is the raw on-disk value, for Kind == Next it is the index of the next block.
type FATEntry struct {
	Kind  EntryKind
	Value uint32
}

// Entry constructors for the sentinel values.
var (
	AvailableEntry = FATEntry{Kind: Available, Value: fatAvailable}
	ReservedEntry  = FATEntry{Kind: Reserved, Value: fatReserved}
	EndEntry       = FATEntry{Kind: End, Value: fatEnd}
)

// NextEntry returns an entry linking to block.
func NextEntry(block uint32) FATEntry {
	return DecodeFATEntry(block)
}

// DecodeFATEntry classifies a raw FAT value.
func DecodeFATEntry(value uint32) FATEntry {
	switch {
	case value == fatAvailable:
		return AvailableEntry
	case value == fatReserved:
		return ReservedEntry
	case value == fatEnd:
		return EndEntry
	case value >= fatMinAllocated && value < fatMaxAllocated:
		return FATEntry{Kind: Next, Value: value}
	default:
		return FATEntry{Kind: Invalid, Value: value}
	}
}

// FAT is the decoded file allocation table.
// Index i of the table describes block i of the image.
type FAT struct {
	entries []FATEntry

	// offset of entry 0 inside the image.
	offset int64
	// entries with an index >= usable do not describe a block of the image.
	usable int

	Free      int
	Reserved  int
	Allocated int
}

// maxCapacityHint limits slices which are sized by superblock fields before
// the blocks they describe have been read.
const maxCapacityHint = 1 << 16

func capacityHint(n int) int {
	if n > maxCapacityHint {
		return maxCapacityHint
	}
	return n
}

// ParseFAT reads all FAT blocks described by the superblock.
// Entries are numbered by their absolute position in the concatenation of all FAT blocks.
func ParseFAT(r io.ReaderAt, sb Superblock) (*FAT, error) {
	perBlock := sb.EntriesPerFATBlock()
	total := sb.FATEntries()

	fat := &FAT{
		entries: make([]FATEntry, 0, capacityHint(total)),
		offset:  sb.BlockOffset(sb.FATStartBlock),
		usable:  int(sb.TotalBlocks),
	}

	if fat.usable > total {
		fat.usable = total
	}

	block := make([]byte, sb.BlockSize)
	end := sb.BlockOffset(sb.FATStartBlock + sb.FATBlockCount)
	for i := uint32(0); i < sb.FATBlockCount; i++ {
		blockOffset := sb.BlockOffset(sb.FATStartBlock + i)
		if blockOffset >= end {
			break
		}

		if err := readFull(r, block, blockOffset); err != nil {
			return nil, checkpoint.With(err, ErrFormat, "region", "FAT", "offset", blockOffset)
		}

		for j := 0; j < perBlock; j++ {
			value, err := beUint32(block, j*FATEntrySize)
			if err != nil {
				return nil, checkpoint.With(err, ErrFormat, "index", len(fat.entries))
			}

			entry := DecodeFATEntry(value)
			fat.count(entry, 1)
			fat.entries = append(fat.entries, entry)
		}
	}

	return fat, nil
}

func (f *FAT) count(entry FATEntry, delta int) {
	switch entry.Kind {
	case Available:
		f.Free += delta
	case Reserved:
		f.Reserved += delta
	default:
		f.Allocated += delta
	}
}

// Len returns the number of entries.
func (f *FAT) Len() int {
	return len(f.entries)
}

// Entry returns the entry at index.
func (f *FAT) Entry(index uint32) (FATEntry, error) {
	if int64(index) >= int64(len(f.entries)) {
		return FATEntry{}, checkpoint.With(nil, ErrOutOfBounds, "index", index, "entries", len(f.entries))
	}
	return f.entries[index], nil
}

// EntryOffset returns the byte offset of an entry inside the image.
func (f *FAT) EntryOffset(index uint32) int64 {
	return f.offset + int64(index)*FATEntrySize
}

// Set replaces the entry at index and keeps the statistics in sync.
// It only changes the in-memory table.
func (f *FAT) Set(index uint32, entry FATEntry) error {
	if int64(index) >= int64(len(f.entries)) {
		return checkpoint.With(nil, ErrOutOfBounds, "index", index, "entries", len(f.entries))
	}

	f.count(f.entries[index], -1)
	f.entries[index] = entry
	f.count(entry, 1)
	return nil
}

// AllocateNextFree finds the first available entry in FAT order and returns its
// index together with the byte offset of the entry inside the image.
// It does not change the entry, the caller has to mark it.
// Fails with ErrFilesystemFull if no entry is available.
func (f *FAT) AllocateNextFree() (uint32, int64, error) {
	blocks, err := f.planChain(1)
	if err != nil {
		return 0, 0, err
	}
	return blocks[0], f.EntryOffset(blocks[0]), nil
}

// planChain collects the first n available entries in FAT order without changing anything.
func (f *FAT) planChain(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}

	blocks := make([]uint32, 0, n)
	for i := 0; i < f.usable && len(blocks) < n; i++ {
		if f.entries[i].Kind == Available {
			blocks = append(blocks, uint32(i))
		}
	}

	if len(blocks) < n {
		return nil, checkpoint.With(nil, ErrFilesystemFull, "required", n, "available", len(blocks))
	}

	return blocks, nil
}

// FollowChain returns an iterator over the chain starting at start.
//  it := fat.FollowChain(start)
//  for it.Next() {
//  	block := it.Block()
//  }
//  if err := it.Err(); err != nil {
//  	...
//  }
func (f *FAT) FollowChain(start uint32) *ChainIterator {
	return &ChainIterator{
		fat:     f,
		next:    start,
		visited: bitset.New(uint(len(f.entries))),
	}
}

// ChainIterator lazily walks a chain of blocks.
// The entry of a block is only looked at when the block after it is requested,
// so a caller which knows how many blocks it needs never depends on the last entry.
// It stops successfully at the End sentinel and fails on any link which cannot
// be part of a chain, including cycles.
type ChainIterator struct {
	fat     *FAT
	next    uint32
	current uint32
	started bool
	done    bool
	err     error
	visited *bitset.BitSet
}

// Next advances to the next block of the chain.
// It returns false at the end of the chain or on an error.
func (c *ChainIterator) Next() bool {
	if c.done {
		return false
	}

	if c.started {
		entry := c.fat.entries[c.current]
		switch entry.Kind {
		case End:
			c.done = true
			return false
		case Next:
			c.next = entry.Value
		default:
			return c.fail(c.current, fmt.Sprintf("%v entry inside chain", entry.Kind))
		}
	}

	index := c.next
	if int64(index) >= int64(c.fat.usable) {
		return c.fail(index, "link out of range")
	}

	if c.visited.Test(uint(index)) {
		return c.fail(index, "cycle")
	}
	c.visited.Set(uint(index))

	c.current = index
	c.started = true
	return true
}

func (c *ChainIterator) fail(index uint32, reason string) bool {
	c.done = true
	c.err = checkpoint.With(nil, ErrCorruptChain, "index", index, "reason", reason)
	return false
}

// Block returns the block the iterator currently points to.
func (c *ChainIterator) Block() uint32 {
	return c.current
}

// Err returns the error which stopped the iteration, if any.
func (c *ChainIterator) Err() error {
	return c.err
}

// Blocks collects at most limit blocks of the chain.
// A limit < 0 collects the whole chain.
func (c *ChainIterator) Blocks(limit int) ([]uint32, error) {
	var blocks []uint32
	for (limit < 0 || len(blocks) < limit) && c.Next() {
		blocks = append(blocks, c.Block())
	}
	return blocks, c.Err()
}

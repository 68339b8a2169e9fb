package flatfs

import (
	"bytes"
	"io"

	"github.com/aligator/flatfs/checkpoint"
)

// DirEntry is one decoded record of the flat root directory.
type DirEntry struct {
	// Index is the slot of the entry inside the FDT.
	Index int

	Status     byte
	StartBlock uint32
	BlockCount uint32
	Size       uint32
	Created    Timestamp
	Modified   Timestamp

	// Name is the filename up to the first NUL byte.
	Name string
}

// InUse reports whether the slot holds an entry.
func (e DirEntry) InUse() bool {
	return e.Status&StatusInUse == StatusInUse
}

// IsFile reports whether the entry is a file. Only meaningful if InUse.
func (e DirEntry) IsFile() bool {
	return e.Status&StatusFile == StatusFile
}

// IsDir reports whether the entry is an in use directory.
func (e DirEntry) IsDir() bool {
	return e.InUse() && !e.IsFile()
}

// decodeDirEntry decodes a 64 byte record in the field order
// status, start block, block count, size, create time, modify time, name.
func decodeDirEntry(record []byte, index int) (DirEntry, error) {
	if len(record) < DirEntrySize {
		return DirEntry{}, checkpoint.With(nil, ErrOutOfBounds, "index", index, "length", len(record))
	}

	entry := DirEntry{
		Index:  index,
		Status: record[dirStatusOffset],
	}

	var err error
	if entry.StartBlock, err = beUint32(record, dirStartOffset); err != nil {
		return DirEntry{}, err
	}
	if entry.BlockCount, err = beUint32(record, dirBlockCountOffset); err != nil {
		return DirEntry{}, err
	}
	if entry.Size, err = beUint32(record, dirSizeOffset); err != nil {
		return DirEntry{}, err
	}
	if entry.Created, err = DecodeTimestamp(record[dirCreateOffset:]); err != nil {
		return DirEntry{}, err
	}
	if entry.Modified, err = DecodeTimestamp(record[dirModifyOffset:]); err != nil {
		return DirEntry{}, err
	}

	entry.Name = cString(record[dirNameOffset : dirNameOffset+MaxNameLength])
	return entry, nil
}

// encode builds the on-disk record. The unused bytes are zero.
func (e DirEntry) encode() []byte {
	record := make([]byte, DirEntrySize)
	record[dirStatusOffset] = e.Status
	// The record is large enough for all fields.
	_ = putBeUint32(record, dirStartOffset, e.StartBlock)
	_ = putBeUint32(record, dirBlockCountOffset, e.BlockCount)
	_ = putBeUint32(record, dirSizeOffset, e.Size)

	created := e.Created.Encode()
	copy(record[dirCreateOffset:], created[:])
	modified := e.Modified.Encode()
	copy(record[dirModifyOffset:], modified[:])

	copy(record[dirNameOffset:dirNameOffset+MaxNameLength], e.Name)
	return record
}

// cString returns the bytes up to the first NUL, like C string functions see them.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Directory is the decoded flat directory table.
type Directory struct {
	entries   []DirEntry
	firstFree int

	// offset of slot 0 inside the image.
	offset int64
}

// ParseFDT reads all directory blocks described by the superblock and remembers
// the first slot which is not in use.
func ParseFDT(r io.ReaderAt, sb Superblock) (*Directory, error) {
	perBlock := sb.EntriesPerFDTBlock()

	dir := &Directory{
		entries:   make([]DirEntry, 0, capacityHint(sb.FDTEntries())),
		firstFree: -1,
		offset:    sb.BlockOffset(sb.FDTStartBlock),
	}

	block := make([]byte, sb.BlockSize)
	for i := uint32(0); i < sb.FDTBlockCount; i++ {
		blockOffset := sb.BlockOffset(sb.FDTStartBlock + i)
		if err := readFull(r, block, blockOffset); err != nil {
			return nil, checkpoint.With(err, ErrFormat, "region", "FDT", "offset", blockOffset)
		}

		for j := 0; j < perBlock; j++ {
			index := len(dir.entries)
			entry, err := decodeDirEntry(block[j*DirEntrySize:], index)
			if err != nil {
				return nil, checkpoint.With(err, ErrFormat, "index", index)
			}

			if !entry.InUse() && dir.firstFree == -1 {
				dir.firstFree = index
			}
			dir.entries = append(dir.entries, entry)
		}
	}

	return dir, nil
}

// FirstFree returns the lowest slot which is not in use.
func (d *Directory) FirstFree() (int, bool) {
	return d.firstFree, d.firstFree >= 0
}

// Len returns the number of slots.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Entry returns the record in the given slot.
func (d *Directory) Entry(index int) (DirEntry, error) {
	if index < 0 || index >= len(d.entries) {
		return DirEntry{}, checkpoint.With(nil, ErrOutOfBounds, "index", index, "entries", len(d.entries))
	}
	return d.entries[index], nil
}

// EntryOffset returns the byte offset of a slot inside the image.
func (d *Directory) EntryOffset(index int) int64 {
	return d.offset + int64(index)*DirEntrySize
}

// InUse returns all entries in use, in slot order.
func (d *Directory) InUse() []DirEntry {
	var result []DirEntry
	for _, e := range d.entries {
		if e.InUse() {
			result = append(result, e)
		}
	}
	return result
}

// FindByName returns the first file in use with the given name.
// If the name exists more than once, the lowest slot wins.
func (d *Directory) FindByName(name string) (DirEntry, bool) {
	for _, e := range d.entries {
		if e.InUse() && e.IsFile() && e.Name == name {
			return e, true
		}
	}
	return DirEntry{}, false
}

// set stores entry in its slot and moves the free slot cursor forward if needed.
// It only changes the in-memory table.
func (d *Directory) set(entry DirEntry) error {
	if entry.Index < 0 || entry.Index >= len(d.entries) {
		return checkpoint.With(nil, ErrOutOfBounds, "index", entry.Index, "entries", len(d.entries))
	}

	d.entries[entry.Index] = entry

	if entry.InUse() && entry.Index == d.firstFree {
		d.firstFree = -1
		for i := entry.Index + 1; i < len(d.entries); i++ {
			if !d.entries[i].InUse() {
				d.firstFree = i
				break
			}
		}
	} else if !entry.InUse() && (d.firstFree == -1 || entry.Index < d.firstFree) {
		d.firstFree = entry.Index
	}

	return nil
}

package flatfs

import (
	"fmt"
	"io"
)

// WriteInfo prints the superblock fields and the FAT statistics.
func WriteInfo(w io.Writer, fsys *Fs) error {
	fsys.lock.Lock()
	defer fsys.lock.Unlock()

	sb := fsys.sb
	_, err := fmt.Fprintf(w, `Super block information:
Block size: %d
Block count: %d
FAT starts: %d
FAT blocks: %d
Root directory start: %d
Root directory blocks: %d

FAT information:
Free Blocks: %d
Reserved Blocks: %d
Allocated Blocks: %d
`,
		sb.BlockSize,
		sb.TotalBlocks,
		sb.FATStartBlock,
		sb.FATBlockCount,
		sb.FDTStartBlock,
		sb.FDTBlockCount,
		fsys.fat.Free,
		fsys.fat.Reserved,
		fsys.fat.Allocated,
	)
	return err
}

// FormatEntry renders one directory entry as
//  F       1025                       notes.txt 2021/03/04 05:06:07
// with D for directories, the size, the name and the modification time.
func FormatEntry(e DirEntry) string {
	kind := 'F'
	if !e.IsFile() {
		kind = 'D'
	}

	return fmt.Sprintf("%c %10d %30s %s", kind, e.Size, e.Name, e.Modified)
}

// WriteListing prints every entry in use, one per line.
func WriteListing(w io.Writer, entries []DirEntry) error {
	for _, e := range entries {
		if !e.InUse() {
			continue
		}

		if _, err := fmt.Fprintln(w, FormatEntry(e)); err != nil {
			return err
		}
	}
	return nil
}

package flatfs

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/aligator/flatfs/checkpoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// blocksFor returns how many blocks are needed to store size bytes.
func (fs *Fs) blocksFor(size int64) int64 {
	bs := int64(fs.sb.BlockSize)
	return (size + bs - 1) / bs
}

// Open opens a file of the root directory by name.
// The names "", "." and "/" open the root directory itself.
func (fs *Fs) Open(name string) (*File, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if name == "" || name == "." || name == "/" {
		return &File{
			fs:          fs,
			path:        "",
			isDirectory: true,
			stat:        rootFileInfo{},
		}, nil
	}

	for _, entry := range fs.dir.entries {
		if entry.InUse() && entry.Name == name {
			return &File{
				fs:          fs,
				path:        name,
				isDirectory: entry.IsDir(),
				entry:       entry,
				stat:        entry.FileInfo(),
			}, nil
		}
	}

	return nil, checkpoint.With(os.ErrNotExist, ErrNotFound, "name", name)
}

// Extract writes the content of the file with the given name to w.
func (fs *Fs) Extract(name string, w io.Writer) (int64, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, ok := fs.dir.FindByName(name)
	if !ok {
		return 0, checkpoint.With(os.ErrNotExist, ErrNotFound, "name", name)
	}

	return fs.extract(entry, w)
}

// extract copies size / blockSize whole blocks and then size % blockSize bytes of the
// following block. Only the file size decides how much is read, the End marker of
// the last block is never checked.
func (fs *Fs) extract(entry DirEntry, w io.Writer) (int64, error) {
	bs := int64(fs.sb.BlockSize)
	size := int64(entry.Size)
	fullBlocks := size / bs
	tailBytes := size % bs

	blocks := fullBlocks
	if tailBytes > 0 {
		blocks++
	}

	chain := fs.fat.FollowChain(entry.StartBlock)
	buffer := make([]byte, bs)

	var written int64
	for i := int64(0); i < blocks; i++ {
		if !chain.Next() {
			if err := chain.Err(); err != nil {
				return written, checkpoint.With(err, nil, "name", entry.Name, "block", i)
			}
			return written, checkpoint.With(nil, ErrCorruptChain, "name", entry.Name, "reason", "chain shorter than file", "blocks", i, "want", blocks)
		}

		chunk := buffer
		if i == fullBlocks {
			chunk = buffer[:tailBytes]
		}

		if err := readFull(fs.image, chunk, fs.sb.BlockOffset(chain.Block())); err != nil {
			return written, checkpoint.With(err, nil, "name", entry.Name)
		}

		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, checkpoint.With(err, ErrIO, "name", entry.Name)
		}
	}

	fs.log.WithFields(logrus.Fields{
		"name":   entry.Name,
		"size":   size,
		"blocks": blocks,
	}).Debug("extracted file")

	return written, nil
}

// Get extracts the file with the given name into localPath inside of afs.
// The local file is only created if name exists and removed again if the extraction fails.
func (fs *Fs) Get(name string, afs afero.Fs, localPath string) (err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, ok := fs.dir.FindByName(name)
	if !ok {
		return checkpoint.With(os.ErrNotExist, ErrNotFound, "name", name)
	}

	out, err := afs.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return checkpoint.With(err, ErrIO, "path", localPath)
	}

	defer func() {
		closeErr := out.Close()
		if err == nil && closeErr != nil {
			err = checkpoint.With(closeErr, ErrIO, "path", localPath)
		}
		if err != nil {
			_ = afs.Remove(localPath)
		}
	}()

	_, err = fs.extract(entry, out)
	return err
}

// readFileAt returns at most size bytes of the file starting at offset.
// Nothing is returned for offsets at or after the end of the file.
func (fs *Fs) readFileAt(entry DirEntry, offset int64, size int64) ([]byte, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fileSize := int64(entry.Size)
	if offset < 0 || offset >= fileSize || size <= 0 {
		return nil, nil
	}

	if offset+size > fileSize {
		size = fileSize - offset
	}

	bs := int64(fs.sb.BlockSize)
	first := offset / bs
	last := (offset + size - 1) / bs

	blocks, err := fs.fileBlocks(entry)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, size)
	buffer := make([]byte, bs)
	for i := first; i <= last; i++ {
		if err := readFull(fs.image, buffer, fs.sb.BlockOffset(blocks[i])); err != nil {
			return result, checkpoint.With(err, nil, "name", entry.Name)
		}

		start := int64(0)
		if i == first {
			start = offset % bs
		}
		end := bs
		if i == last {
			end = (offset+size-1)%bs + 1
		}

		result = append(result, buffer[start:end]...)
	}

	return result, nil
}

// fileBlocks returns the blocks holding the content of entry.
// The result is cached by start block until the next Insert changes the FAT.
func (fs *Fs) fileBlocks(entry DirEntry) ([]uint32, error) {
	need := int(fs.blocksFor(int64(entry.Size)))
	if blocks, ok := fs.chains[entry.StartBlock]; ok && len(blocks) >= need {
		return blocks[:need], nil
	}

	blocks, err := fs.fat.FollowChain(entry.StartBlock).Blocks(need)
	if err != nil {
		return nil, checkpoint.With(err, nil, "name", entry.Name)
	}
	if len(blocks) < need {
		return nil, checkpoint.With(nil, ErrCorruptChain, "name", entry.Name, "reason", "chain shorter than file", "blocks", len(blocks), "want", need)
	}

	if fs.chains == nil {
		fs.chains = make(map[uint32][]uint32)
	}
	fs.chains[entry.StartBlock] = blocks
	return blocks, nil
}

func (fs *Fs) readRoot() ([]DirEntry, error) {
	return fs.Entries(), nil
}

// ValidateName checks that name can be stored in a directory entry:
// It must not be empty and must not contain NUL or '/'.
// Longer names than MaxNameLength bytes are valid, see TruncateName.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, "\x00/") {
		return checkpoint.With(nil, ErrInvalidName, "name", name)
	}
	return nil
}

// TruncateName cuts name to at most MaxNameLength bytes without splitting a UTF-8 sequence.
func TruncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}

	cut := MaxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// Insert stores size bytes read from r as a new file.
//
// Names longer than MaxNameLength bytes are truncated. The returned entry holds the stored name.
//
// All checks happen before anything is written: a free directory slot, a valid and
// unused name and enough available FAT entries for the whole chain. The chain is
// allocated in FAT order, the data written, then the FAT entries linked and the
// directory entry written last.
// If writing the FAT or the directory entry fails, the image may keep a partially
// linked chain as there is no way to roll back.
func (fs *Fs) Insert(name string, r io.Reader, size int64) (DirEntry, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.writer == nil {
		return DirEntry{}, checkpoint.With(nil, ErrReadOnly, "name", name)
	}

	slot, ok := fs.dir.FirstFree()
	if !ok {
		return DirEntry{}, checkpoint.With(nil, ErrDirectoryFull, "name", name)
	}

	if err := ValidateName(name); err != nil {
		return DirEntry{}, err
	}
	name = TruncateName(name)

	if _, exists := fs.dir.FindByName(name); exists {
		return DirEntry{}, checkpoint.With(nil, ErrExists, "name", name)
	}

	if size < 0 || size > math.MaxUint32 {
		return DirEntry{}, checkpoint.With(nil, ErrFilesystemFull, "name", name, "size", size, "reason", "size does not fit into a directory entry")
	}

	blocks := fs.blocksFor(size)
	chain, err := fs.fat.planChain(int(blocks))
	if err != nil {
		return DirEntry{}, checkpoint.With(err, nil, "name", name, "size", size)
	}

	if err := fs.writeChain(name, r, size, chain); err != nil {
		return DirEntry{}, err
	}

	// Link the chain. From here on a failure leaves a partially linked chain.
	fs.chains = nil
	for i, block := range chain {
		entry := EndEntry
		if i < len(chain)-1 {
			entry = NextEntry(chain[i+1])
		}

		if err := fs.patchFAT(block, entry); err != nil {
			return DirEntry{}, checkpoint.With(err, nil, "name", name, "block", block)
		}
	}

	now := TimestampFromTime(fs.clock.Now())
	entry := DirEntry{
		Index:      slot,
		Status:     StatusInUse | StatusFile,
		BlockCount: uint32(blocks),
		Size:       uint32(size),
		Created:    now,
		Modified:   now,
		Name:       name,
	}
	if len(chain) > 0 {
		entry.StartBlock = chain[0]
	}

	if err := fs.writeFull(entry.encode(), fs.dir.EntryOffset(slot)); err != nil {
		return DirEntry{}, checkpoint.With(err, nil, "name", name, "slot", slot)
	}
	if err := fs.dir.set(entry); err != nil {
		return DirEntry{}, err
	}

	fs.log.WithFields(logrus.Fields{
		"name":   name,
		"size":   size,
		"slot":   slot,
		"start":  entry.StartBlock,
		"blocks": blocks,
	}).Debug("inserted file")

	return entry, nil
}

// writeChain streams size bytes from r into the blocks of chain, one block at a time.
func (fs *Fs) writeChain(name string, r io.Reader, size int64, chain []uint32) error {
	bs := int64(fs.sb.BlockSize)
	buffer := make([]byte, bs)

	var total int64
	for _, block := range chain {
		chunk := buffer
		if size-total < bs {
			chunk = buffer[:size-total]
		}

		n, err := io.ReadFull(r, chunk)
		total += int64(n)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return checkpoint.With(err, ErrIO, "name", name, "read", total, "size", size)
		}

		if err := fs.writeFull(chunk, fs.sb.BlockOffset(block)); err != nil {
			return checkpoint.With(err, nil, "name", name, "block", block)
		}
	}

	return nil
}

// patchFAT writes entry to the image and then to the in-memory FAT,
// so that both never disagree.
func (fs *Fs) patchFAT(index uint32, entry FATEntry) error {
	raw := make([]byte, FATEntrySize)
	if err := putBeUint32(raw, 0, entry.Value); err != nil {
		return err
	}

	if err := fs.writeFull(raw, fs.fat.EntryOffset(index)); err != nil {
		return checkpoint.With(err, nil, "index", index)
	}

	return fs.fat.Set(index, entry)
}

// Put inserts the local file at localPath of afs. If name is empty, the base name of
// localPath is used.
func (fs *Fs) Put(afs afero.Fs, localPath string, name string) (DirEntry, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}

	in, err := afs.Open(localPath)
	if err != nil {
		return DirEntry{}, checkpoint.With(err, ErrIO, "path", localPath)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return DirEntry{}, checkpoint.With(err, ErrIO, "path", localPath)
	}

	if info.IsDir() {
		return DirEntry{}, checkpoint.With(syscall.EISDIR, ErrIO, "path", localPath)
	}

	return fs.Insert(name, in, info.Size())
}

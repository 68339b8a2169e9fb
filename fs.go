package flatfs

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/aligator/flatfs/checkpoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// These errors may occur while working with an image.
var (
	// ErrFormat means the image is not a valid instance of the format.
	ErrFormat = errors.New("invalid image format")
	// ErrOutOfBounds means a value was read or written outside of its buffer or table.
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrCorruptChain means a block chain contains a link which cannot be followed.
	ErrCorruptChain = errors.New("corrupt block chain")
	// ErrNotFound means no file with the requested name exists.
	ErrNotFound = errors.New("file not found")
	// ErrExists means a file with the requested name already exists.
	ErrExists = errors.New("file already exists")
	// ErrInvalidName means a name cannot be stored in a directory entry.
	ErrInvalidName = errors.New("invalid file name")
	// ErrCapacityExhausted is the common error of ErrDirectoryFull and ErrFilesystemFull.
	ErrCapacityExhausted = errors.New("capacity exhausted")
	// ErrDirectoryFull means no directory slot is free.
	ErrDirectoryFull = &capacityError{"directory is full"}
	// ErrFilesystemFull means the FAT has no available entries left.
	ErrFilesystemFull = &capacityError{"filesystem is full"}
	// ErrIO wraps failures of the underlying image or local files.
	ErrIO = errors.New("i/o error")
	// ErrReadOnly means the image was opened without write access.
	ErrReadOnly = errors.New("image is read only")
)

type capacityError struct {
	msg string
}

func (e *capacityError) Error() string {
	return e.msg
}

func (e *capacityError) Is(target error) bool {
	return target == ErrCapacityExhausted
}

// Fs is an opened image. It holds the decoded superblock, FAT and directory
// which are kept in sync with the image by all write operations.
//
// An Fs must not be shared between processes. Within one process all methods
// are serialized.
type Fs struct {
	lock sync.Mutex

	image  io.ReaderAt
	writer io.WriterAt
	closer io.Closer

	sb  Superblock
	fat *FAT
	dir *Directory

	// chains caches the block lists of files read through File.
	chains map[uint32][]uint32

	clock Clock
	log   logrus.FieldLogger
}

// Option configures an Fs.
type Option func(fs *Fs)

// WithClock sets the time source used for new directory entries.
// The default is SystemClock.
func WithClock(clock Clock) Option {
	return func(fs *Fs) {
		fs.clock = clock
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(fs *Fs) {
		fs.log = log
	}
}

// New opens an image. If image also implements io.WriterAt, files can be inserted.
// It reads the superblock, the FAT and the directory, in that order.
func New(image io.ReaderAt, opts ...Option) (*Fs, error) {
	return newFs(image, true, opts)
}

// NewSkipChecks opens an image just like New but skips the layout checks which are
// not needed to read it safely. This may allow you to open not perfectly standard images.
// Use with caution!
func NewSkipChecks(image io.ReaderAt, opts ...Option) (*Fs, error) {
	return newFs(image, false, opts)
}

// Open opens the image at path inside of afs.
// The returned Fs has to be closed to release the file.
func Open(afs afero.Fs, path string, writable bool, opts ...Option) (*Fs, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}

	file, err := afs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, checkpoint.With(err, ErrIO, "image", path)
	}

	var image io.ReaderAt = file
	if !writable {
		image = readOnly{file}
	}

	fs, err := New(image, opts...)
	if err != nil {
		_ = file.Close()
		return nil, checkpoint.With(err, nil, "image", path)
	}

	fs.closer = file
	return fs, nil
}

// readOnly hides the io.WriterAt of files opened without write access.
type readOnly struct {
	file afero.File
}

func (r readOnly) ReadAt(p []byte, off int64) (int, error) {
	return r.file.ReadAt(p, off)
}

func (r readOnly) Stat() (os.FileInfo, error) {
	return r.file.Stat()
}

// imageSize returns the length of image if it exposes one through Size
// (bytes.Reader, io.SectionReader) or Stat (files).
func imageSize(image io.ReaderAt) (int64, bool) {
	switch i := image.(type) {
	case interface{ Size() int64 }:
		return i.Size(), true
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := i.Stat()
		if err != nil {
			return 0, false
		}
		return info.Size(), true
	}
	return 0, false
}

func newFs(image io.ReaderAt, strict bool, opts []Option) (*Fs, error) {
	fs := &Fs{
		image: image,
		clock: SystemClock{},
		log:   logrus.StandardLogger(),
	}

	if w, ok := image.(io.WriterAt); ok {
		fs.writer = w
	}

	for _, opt := range opts {
		opt(fs)
	}

	if err := fs.initialize(strict); err != nil {
		return nil, err
	}

	return fs, nil
}

func (fs *Fs) initialize(strict bool) error {
	sb, err := ParseSuperblock(fs.image)
	if err != nil {
		return err
	}

	if err := sb.Validate(strict); err != nil {
		return err
	}

	if size, ok := imageSize(fs.image); ok && size < sb.MetadataEnd() {
		return checkpoint.With(nil, ErrFormat, "reason", "image too short", "size", size, "want", sb.MetadataEnd())
	}
	fs.sb = sb

	fs.fat, err = ParseFAT(fs.image, sb)
	if err != nil {
		return err
	}

	fs.dir, err = ParseFDT(fs.image, sb)
	if err != nil {
		return err
	}

	fs.log.WithFields(logrus.Fields{
		"blockSize": sb.BlockSize,
		"blocks":    sb.TotalBlocks,
		"free":      fs.fat.Free,
		"reserved":  fs.fat.Reserved,
		"allocated": fs.fat.Allocated,
	}).Debug("opened image")

	return nil
}

// Close releases the image file if the Fs was created by Open.
func (fs *Fs) Close() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.closer == nil {
		return nil
	}
	err := fs.closer.Close()
	fs.closer = nil
	return checkpoint.Wrap(err, ErrIO)
}

// Superblock returns the decoded superblock.
func (fs *Fs) Superblock() Superblock {
	return fs.sb
}

// FAT returns the in-memory FAT. It must not be changed by the caller.
func (fs *Fs) FAT() *FAT {
	return fs.fat
}

// Directory returns the in-memory directory. It must not be changed by the caller.
func (fs *Fs) Directory() *Directory {
	return fs.dir
}

// Entries returns all directory entries in use.
func (fs *Fs) Entries() []DirEntry {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	return fs.dir.InUse()
}

// Stat returns the file info of the file with the given name.
func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, ok := fs.dir.FindByName(name)
	if !ok {
		return nil, checkpoint.With(os.ErrNotExist, ErrNotFound, "name", name)
	}
	return entry.FileInfo(), nil
}

// readFull reads exactly len(p) bytes at offset. Short reads are reported as io.ErrUnexpectedEOF.
func readFull(r io.ReaderAt, p []byte, offset int64) error {
	n, err := r.ReadAt(p, offset)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return checkpoint.With(err, ErrIO, "offset", offset, "read", n, "want", len(p))
}

// writeFull writes p at offset into the image.
func (fs *Fs) writeFull(p []byte, offset int64) error {
	if fs.writer == nil {
		return checkpoint.From(ErrReadOnly)
	}

	n, err := fs.writer.WriteAt(p, offset)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return checkpoint.With(err, ErrIO, "offset", offset, "written", n)
	}
	return nil
}

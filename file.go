package flatfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/aligator/flatfs/checkpoint"
	"github.com/spf13/afero"
)

// These errors may occur while processing a file.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

// fileFs provides all methods needed from an Fs for File.
// It mainly exists to be able to mock the Fs in tests.
// Generated mock using mockgen:
//  mockgen -source=file.go -destination=file_mock.go -package flatfs
type fileFs interface {
	readFileAt(entry DirEntry, offset int64, size int64) ([]byte, error)
	readRoot() ([]DirEntry, error)
}

// File is an opened file or directory of an image. It is read only,
// new files are added with Fs.Insert.
type File struct {
	fs   fileFs
	path string

	isDirectory bool

	entry  DirEntry
	stat   os.FileInfo
	offset int64

	closed bool
}

// Close resets the file. Any further call fails with os.ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return checkpoint.From(os.ErrClosed)
	}
	*f = File{closed: true}
	return nil
}

func (f *File) checkClosed() error {
	if f.closed {
		return checkpoint.From(os.ErrClosed)
	}
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	if err := f.checkClosed(); err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, nil
	}

	if f.isDirectory {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.stat.Size() <= f.offset {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.entry, f.offset, int64(len(p)))
	n = copy(p, data)
	f.offset += int64(n)

	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	return n, nil
}

// ReadAt reads len(p) bytes starting at off. It does not use or change the offset used by Read.
// If less than len(p) bytes are left in the file, io.EOF is returned with the remaining bytes.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if err := f.checkClosed(); err != nil {
		return 0, err
	}

	if f.isDirectory {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}

	if off < 0 {
		return 0, checkpoint.Wrap(ErrReadFile, fmt.Errorf("%w, offset: %v", syscall.EINVAL, off))
	}

	if len(p) == 0 {
		return 0, nil
	}

	// Reading over the end makes no sense.
	if f.stat.Size() <= off {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.entry, off, int64(len(p)))
	n = copy(p, data)

	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek jumps to a specific offset in the file. This affects all Read operation except ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkClosed(); err != nil {
		return 0, err
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.stat.Size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.stat.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

// Name returns the name of the file as stored in the directory.
// It is empty after Close.
func (f *File) Name() string {
	if f.closed {
		return ""
	}
	return f.stat.Name()
}

// Readdir reads the contents of a directory like os.File.Readdir:
// For count > 0 it returns at most count entries and io.EOF once nothing is left.
// For count <= 0 it returns all remaining entries.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if err := f.checkClosed(); err != nil {
		return nil, err
	}

	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	var content []DirEntry
	if f.path == "" {
		var err error
		content, err = f.fs.readRoot()
		if err != nil {
			return nil, checkpoint.Wrap(err, ErrReadDir)
		}
	}
	// Other directories can not have children as only the root exists.

	start := int(f.offset)
	if start > len(content) {
		start = len(content)
	}

	end := len(content)
	if count > 0 {
		if start == end {
			return nil, io.EOF
		}
		if start+count < end {
			end = start + count
		}
	}

	f.offset = int64(end)

	result := make([]os.FileInfo, 0, end-start)
	for _, entry := range content[start:end] {
		result = append(result, entry.FileInfo())
	}

	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, err
}

func (f *File) Stat() (os.FileInfo, error) {
	if err := f.checkClosed(); err != nil {
		return nil, err
	}
	return f.stat, nil
}

package flatfs

import (
	"io/fs"
)

// GoDirEntry adapts the os.FileInfo of a directory entry to fs.DirEntry.
type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile is a File which also implements fs.ReadDirFile.
type GoFile struct {
	*File
}

// ReadDir reads the root directory like fs.ReadDirFile.ReadDir.
func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs exposes the root directory of an image as read only fs.FS.
type GoFs struct {
	fsys *Fs
}

// NewGoFS wraps fsys to be compatible with fs.FS.
func NewGoFS(fsys *Fs) GoFs {
	return GoFs{fsys: fsys}
}

// Open opens name, which has to be a valid fs.FS path.
func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	file, err := g.fsys.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	return GoFile{file}, nil
}

package flatfs

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reopen parses the image again, so that only what was written to it is seen.
func reopen(t *testing.T, image io.ReaderAt) *Fs {
	t.Helper()
	return testingNew(t, image)
}

func TestFs_Insert(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantBlocks uint32
	}{
		{name: "empty file", size: 0, wantBlocks: 0},
		{name: "one byte", size: 1, wantBlocks: 1},
		{name: "exactly one block", size: 512, wantBlocks: 1},
		{name: "one byte more than two blocks", size: 1025, wantBlocks: 3},
		{name: "exactly four blocks", size: 2048, wantBlocks: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := testImage(t, smallGeometry)
			fs := testingNew(t, image)
			content := testContent(tt.size)

			entry, err := fs.Insert("file.bin", bytes.NewReader(content), int64(len(content)))
			require.NoError(t, err)

			assert.Equal(t, 0, entry.Index)
			assert.Equal(t, tt.wantBlocks, entry.BlockCount)
			assert.Equal(t, uint32(tt.size), entry.Size)
			assert.True(t, entry.InUse())
			assert.True(t, entry.IsFile())
			if tt.wantBlocks == 0 {
				assert.Equal(t, uint32(0), entry.StartBlock)
			} else {
				assert.Equal(t, uint32(3), entry.StartBlock, "first data block")
			}

			assert.Equal(t, smallDataBlocks-int(tt.wantBlocks), fs.FAT().Free)
			assert.Equal(t, int(tt.wantBlocks), fs.FAT().Allocated)

			// Everything has to survive parsing the image again.
			parsed := reopen(t, image)
			got, ok := parsed.Directory().FindByName("file.bin")
			require.True(t, ok)
			assert.Equal(t, entry, got)
			assert.Equal(t, fs.FAT().entries, parsed.FAT().entries)

			if tt.wantBlocks > 0 {
				blocks, err := parsed.FAT().FollowChain(got.StartBlock).Blocks(-1)
				require.NoError(t, err, "the chain has to end with the End marker")
				assert.Len(t, blocks, int(tt.wantBlocks))
			}

			var out bytes.Buffer
			n, err := parsed.Extract("file.bin", &out)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.size), n)
			assert.Equal(t, content, out.Bytes())
		})
	}
}

func TestFs_Insert_Timestamps(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clock := NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC))

	fs := testingNew(t, testImage(t, smallGeometry), WithClock(clock))

	entry, err := fs.Insert("a.txt", strings.NewReader("abc"), 3)
	require.NoError(t, err)

	want := Timestamp{Year: 2021, Month: 3, Day: 4, Hour: 5, Minute: 6, Second: 7}
	assert.Equal(t, want, entry.Created)
	assert.Equal(t, want, entry.Modified)
}

func TestFs_Insert_ZeroClock(t *testing.T) {
	fs := testingNew(t, testImage(t, smallGeometry))

	entry, err := fs.Insert("a.txt", strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.True(t, entry.Created.IsZero())
	assert.True(t, entry.Modified.IsZero())
}

func TestFs_Insert_Fragmented(t *testing.T) {
	image := testImage(t, smallGeometry)
	sb, err := ParseSuperblock(image)
	require.NoError(t, err)

	// Blocks 4 and 6 belong to a file which is not in the directory.
	writeRawFATEntry(t, image, sb, 4, 6)
	writeRawFATEntry(t, image, sb, 6, fatEnd)

	fs := testingNew(t, image)
	content := testContent(3 * 512)

	entry, err := fs.Insert("a.bin", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	blocks, err := fs.FAT().FollowChain(entry.StartBlock).Blocks(-1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 5, 7}, blocks, "blocks are taken in FAT order")

	var out bytes.Buffer
	_, err = fs.Extract("a.bin", &out)
	require.NoError(t, err)
	assert.Equal(t, content, out.Bytes())
}

func TestFs_Insert_Exclusive(t *testing.T) {
	image := testImage(t, smallGeometry)
	fs := testingNew(t, image)

	files := map[string][]byte{
		"a": testContent(700),
		"b": testContent(1),
		"c": testContent(1536),
		"d": testContent(0),
	}

	used := map[uint32]string{}
	for _, name := range []string{"a", "b", "c", "d"} {
		entry, err := fs.Insert(name, bytes.NewReader(files[name]), int64(len(files[name])))
		require.NoError(t, err)

		if entry.BlockCount == 0 {
			continue
		}

		blocks, err := fs.FAT().FollowChain(entry.StartBlock).Blocks(-1)
		require.NoError(t, err)
		for _, b := range blocks {
			other, taken := used[b]
			assert.False(t, taken, "block %v of %v is already used by %v", b, name, other)
			used[b] = name
		}
	}

	parsed := reopen(t, image)
	assert.Len(t, parsed.Entries(), 4)
	for name, content := range files {
		var out bytes.Buffer
		_, err := parsed.Extract(name, &out)
		require.NoError(t, err)
		assert.Equal(t, content, out.Bytes(), name)
	}
}

func TestFs_Insert_Errors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, fs *Fs)
		file    string
		content io.Reader
		size    int64
		wantErr error
	}{
		{
			name:    "name already exists",
			prepare: insert("a.txt", 10),
			file:    "a.txt",
			content: bytes.NewReader(testContent(10)),
			size:    10,
			wantErr: ErrExists,
		},
		{
			name:    "empty name",
			file:    "",
			content: bytes.NewReader(testContent(10)),
			size:    10,
			wantErr: ErrInvalidName,
		},
		{
			name:    "truncated name already exists",
			prepare: insert(strings.Repeat("a", 31), 10),
			file:    strings.Repeat("a", 40),
			content: bytes.NewReader(testContent(10)),
			size:    10,
			wantErr: ErrExists,
		},
		{
			name:    "name with a slash",
			file:    "dir/a.txt",
			content: bytes.NewReader(testContent(10)),
			size:    10,
			wantErr: ErrInvalidName,
		},
		{
			name:    "too large for the free blocks",
			file:    "big.bin",
			content: bytes.NewReader(testContent((smallDataBlocks + 1) * 512)),
			size:    (smallDataBlocks + 1) * 512,
			wantErr: ErrFilesystemFull,
		},
		{
			name: "directory full",
			prepare: func(t *testing.T, fs *Fs) {
				for _, name := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
					insert(name, 1)(t, fs)
				}
			},
			file:    "9",
			content: bytes.NewReader(testContent(1)),
			size:    1,
			wantErr: ErrDirectoryFull,
		},
		{
			name:    "reader shorter than size",
			file:    "short.bin",
			content: bytes.NewReader(testContent(600)),
			size:    1000,
			wantErr: ErrIO,
		},
		{
			name:    "failing reader",
			file:    "broken.bin",
			content: iotest.TimeoutReader(bytes.NewReader(testContent(1000))),
			size:    1000,
			wantErr: ErrIO,
		},
		{
			name:    "negative size",
			file:    "negative.bin",
			content: bytes.NewReader(nil),
			size:    -1,
			wantErr: ErrFilesystemFull,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := testImage(t, smallGeometry)
			fs := testingNew(t, image)
			if tt.prepare != nil {
				tt.prepare(t, fs)
			}

			before := imageBytes(t, image)
			entries := fs.Entries()
			free := fs.FAT().Free

			_, err := fs.Insert(tt.file, tt.content, tt.size)
			assert.True(t, errors.Is(err, tt.wantErr), "Insert() error = %v, wantErr %v", err, tt.wantErr)

			// The metadata is only touched after everything was read.
			assert.Equal(t, entries, fs.Entries())
			assert.Equal(t, free, fs.FAT().Free)

			after := imageBytes(t, image)
			sb := fs.Superblock()
			metadataEnd := sb.BlockOffset(sb.FDTStartBlock + sb.FDTBlockCount)
			assert.Equal(t, before[:metadataEnd], after[:metadataEnd], "superblock, FAT and FDT must be unchanged")
		})
	}
}

func TestFs_Insert_CapacityErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrDirectoryFull, ErrCapacityExhausted))
	assert.True(t, errors.Is(ErrFilesystemFull, ErrCapacityExhausted))
	assert.False(t, errors.Is(ErrDirectoryFull, ErrFilesystemFull))
}

func TestFs_Insert_ReadOnly(t *testing.T) {
	image := testImage(t, smallGeometry)
	fs := testingNew(t, readOnly{image})

	_, err := fs.Insert("a.txt", strings.NewReader("abc"), 3)
	assert.True(t, errors.Is(err, ErrReadOnly), "Insert() error = %v", err)
}

// insert returns a preparation step which inserts a file of the given size.
func insert(name string, size int) func(t *testing.T, fs *Fs) {
	return func(t *testing.T, fs *Fs) {
		t.Helper()
		_, err := fs.Insert(name, bytes.NewReader(testContent(size)), int64(size))
		require.NoError(t, err)
	}
}

func imageBytes(t *testing.T, image afero.File) []byte {
	t.Helper()

	info, err := image.Stat()
	require.NoError(t, err)

	data := make([]byte, info.Size())
	_, err = image.ReadAt(data, 0)
	require.NoError(t, err)
	return data
}

func TestFs_Extract(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, image afero.File, sb Superblock)
		file    string
		want    []byte
		wantErr error
	}{
		{
			name: "file spanning three blocks",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRaw(t, image, testContent(1025), sb.BlockOffset(3))
				writeRawFATEntry(t, image, sb, 3, 4)
				writeRawFATEntry(t, image, sb, 4, 5)
				writeRawFATEntry(t, image, sb, 5, fatEnd)
				writeRawDirEntry(t, image, sb, testFile(0, "a.bin", 3, 1025))
			},
			file: "a.bin",
			want: testContent(1025),
		},
		{
			name: "last entry is not checked",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRaw(t, image, testContent(600), sb.BlockOffset(3))
				writeRawFATEntry(t, image, sb, 3, 4)
				writeRawFATEntry(t, image, sb, 4, fatReserved)
				writeRawDirEntry(t, image, sb, testFile(0, "a.bin", 3, 600))
			},
			file: "a.bin",
			want: testContent(600),
		},
		{
			name: "empty file",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRawDirEntry(t, image, sb, testFile(0, "empty", 0, 0))
			},
			file: "empty",
			want: []byte{},
		},
		{
			name: "first of two equal names",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRaw(t, image, []byte("first"), sb.BlockOffset(3))
				writeRaw(t, image, []byte("second"), sb.BlockOffset(4))
				writeRawFATEntry(t, image, sb, 3, fatEnd)
				writeRawFATEntry(t, image, sb, 4, fatEnd)
				writeRawDirEntry(t, image, sb, testFile(2, "twice", 3, 5))
				writeRawDirEntry(t, image, sb, testFile(5, "twice", 4, 6))
			},
			file: "twice",
			want: []byte("first"),
		},
		{
			name: "chain shorter than the size",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRawFATEntry(t, image, sb, 3, fatEnd)
				writeRawDirEntry(t, image, sb, testFile(0, "a.bin", 3, 1025))
			},
			file:    "a.bin",
			wantErr: ErrCorruptChain,
		},
		{
			name: "chain with a cycle",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRawFATEntry(t, image, sb, 3, 4)
				writeRawFATEntry(t, image, sb, 4, 3)
				writeRawDirEntry(t, image, sb, testFile(0, "a.bin", 3, 2048))
			},
			file:    "a.bin",
			wantErr: ErrCorruptChain,
		},
		{
			name: "start block out of range",
			prepare: func(t *testing.T, image afero.File, sb Superblock) {
				writeRawDirEntry(t, image, sb, testFile(0, "a.bin", 1000, 10))
			},
			file:    "a.bin",
			wantErr: ErrCorruptChain,
		},
		{
			name:    "missing",
			file:    "missing",
			wantErr: ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := testImage(t, smallGeometry)
			sb, err := ParseSuperblock(image)
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(t, image, sb)
			}

			fs := testingNew(t, image)

			var out bytes.Buffer
			n, err := fs.Extract(tt.file, &out)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "Extract() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), n)
			assert.Equal(t, tt.want, out.Bytes()[:n])
		})
	}
}

func TestFs_Extract_NotFoundIsNotExist(t *testing.T) {
	fs := testingNew(t, testImage(t, smallGeometry))

	_, err := fs.Extract("missing", io.Discard)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFs_Get(t *testing.T) {
	fs := testingNew(t, testImage(t, smallGeometry))
	insert("a.bin", 1500)(t, fs)

	local := afero.NewMemMapFs()

	t.Run("existing file", func(t *testing.T) {
		require.NoError(t, fs.Get("a.bin", local, "out.bin"))

		got, err := afero.ReadFile(local, "out.bin")
		require.NoError(t, err)
		assert.Equal(t, testContent(1500), got)
	})

	t.Run("overwrites", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(local, "old.bin", testContent(4000), 0644))
		require.NoError(t, fs.Get("a.bin", local, "old.bin"))

		got, err := afero.ReadFile(local, "old.bin")
		require.NoError(t, err)
		assert.Equal(t, testContent(1500), got)
	})

	t.Run("missing file creates nothing", func(t *testing.T) {
		err := fs.Get("missing", local, "missing.bin")
		assert.True(t, errors.Is(err, ErrNotFound))

		exists, err := afero.Exists(local, "missing.bin")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestFs_Get_RemovesBrokenOutput(t *testing.T) {
	image := testImage(t, smallGeometry)
	sb, err := ParseSuperblock(image)
	require.NoError(t, err)
	writeRawFATEntry(t, image, sb, 3, fatEnd)
	writeRawDirEntry(t, image, sb, testFile(0, "a.bin", 3, 2000))

	fs := testingNew(t, image)
	local := afero.NewMemMapFs()

	err = fs.Get("a.bin", local, "out.bin")
	assert.True(t, errors.Is(err, ErrCorruptChain), "Get() error = %v", err)

	exists, err := afero.Exists(local, "out.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFs_Put(t *testing.T) {
	local := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(local, "/home/user/notes.txt", testContent(777), 0644))
	require.NoError(t, local.MkdirAll("/home/user/folder", 0755))

	image := testImage(t, smallGeometry)
	fs := testingNew(t, image)

	t.Run("base name", func(t *testing.T) {
		entry, err := fs.Put(local, "/home/user/notes.txt", "")
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", entry.Name)
		assert.Equal(t, uint32(777), entry.Size)
	})

	t.Run("other name", func(t *testing.T) {
		entry, err := fs.Put(local, "/home/user/notes.txt", "copy.txt")
		require.NoError(t, err)
		assert.Equal(t, "copy.txt", entry.Name)
	})

	t.Run("same name again", func(t *testing.T) {
		_, err := fs.Put(local, "/home/user/notes.txt", "")
		assert.True(t, errors.Is(err, ErrExists), "Put() error = %v", err)
	})

	t.Run("missing local file", func(t *testing.T) {
		_, err := fs.Put(local, "/home/user/missing.txt", "")
		assert.True(t, errors.Is(err, ErrIO), "Put() error = %v", err)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := fs.Put(local, "/home/user/folder", "")
		assert.True(t, errors.Is(err, ErrIO), "Put() error = %v", err)
	})

	t.Run("round trip", func(t *testing.T) {
		parsed := reopen(t, image)
		require.NoError(t, parsed.Get("copy.txt", local, "/back.txt"))

		got, err := afero.ReadFile(local, "/back.txt")
		require.NoError(t, err)
		assert.Equal(t, testContent(777), got)
	})
}

func TestFs_Insert_Logs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	fs := testingNew(t, testImage(t, smallGeometry), WithLogger(logger))
	insert("a.txt", 600)(t, fs)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "inserted file", entry.Message)
	assert.Equal(t, "a.txt", entry.Data["name"])
	assert.Equal(t, int64(2), entry.Data["blocks"])
}

func TestFs_fileBlocks(t *testing.T) {
	fs := testingNew(t, testImage(t, smallGeometry))
	insert("a.txt", 1100)(t, fs)

	f, err := fs.Open("a.txt")
	require.NoError(t, err)

	got, err := io.ReadAll(iotest.OneByteReader(f))
	require.NoError(t, err)
	assert.Equal(t, testContent(1100), got)
	assert.Equal(t, map[uint32][]uint32{3: {3, 4, 5}}, fs.chains, "the chain is walked once and kept")

	// Blocks freed in memory only are not seen while the chain is cached.
	require.NoError(t, fs.fat.Set(4, AvailableEntry))
	_, err = f.ReadAt(make([]byte, 100), 600)
	assert.NoError(t, err)

	insert("b.txt", 10)(t, fs)
	assert.Nil(t, fs.chains, "Insert drops the cache")

	_, err = f.ReadAt(make([]byte, 100), 600)
	assert.True(t, errors.Is(err, ErrCorruptChain), "ReadAt() error = %v", err)
}

func TestFs_Insert_LongName(t *testing.T) {
	image := testImage(t, smallGeometry)
	fs := testingNew(t, image)

	long := "abcdefghijklmnopqrstuvwxyz0123456789abcd"
	require.Len(t, long, 40)
	content := testContent(700)

	entry, err := fs.Insert(long, bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, long[:31], entry.Name)

	got, ok := reopen(t, image).Directory().FindByName(long[:31])
	require.True(t, ok)
	assert.Equal(t, entry, got)

	var out bytes.Buffer
	_, err = fs.Extract(long[:31], &out)
	require.NoError(t, err)
	assert.Equal(t, content, out.Bytes())

	_, ok = fs.Directory().FindByName(long)
	assert.False(t, ok, "only the stored name is found")
}

func TestTruncateName(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "short", file: "a.txt", want: "a.txt"},
		{name: "exactly 31 bytes", file: strings.Repeat("x", 31), want: strings.Repeat("x", 31)},
		{name: "40 bytes", file: strings.Repeat("x", 40), want: strings.Repeat("x", 31)},
		// "ä" is 2 bytes, the 16th one would end at byte 32.
		{name: "multi byte rune at the limit", file: strings.Repeat("ä", 20), want: strings.Repeat("ä", 15)},
		{name: "multi byte rune ending at the limit", file: "x" + strings.Repeat("ä", 20), want: "x" + strings.Repeat("ä", 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateName(tt.file)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), MaxNameLength)
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{name: "simple", file: "a.txt"},
		{name: "31 bytes", file: strings.Repeat("x", 31)},
		{name: "spaces", file: "my file"},
		{name: "empty", file: "", wantErr: true},
		{name: "32 bytes", file: strings.Repeat("x", 32)},
		{name: "NUL", file: "a\x00b", wantErr: true},
		{name: "slash", file: "a/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.file)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateName() error = %v", err)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidName))
			}
		})
	}
}

package flatfs

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestDirEntry_FileInfo(t *testing.T) {
	entry := DirEntry{
		Index:      2,
		Status:     StatusInUse | StatusFile,
		StartBlock: 5,
		BlockCount: 1,
		Size:       9,
		Created:    Timestamp{Year: 2020, Month: 1, Day: 2},
		Modified:   Timestamp{Year: 2021, Month: 3, Day: 4, Hour: 5, Minute: 6, Second: 7},
		Name:       "huhu",
	}

	want := entryFileInfo{entry: entry}
	if got := entry.FileInfo(); !reflect.DeepEqual(got, want) {
		t.Errorf("DirEntry.FileInfo() = %v, want %v", got, want)
	}
}

func Test_entryFileInfo(t *testing.T) {
	tests := []struct {
		name        string
		entry       DirEntry
		wantName    string
		wantSize    int64
		wantMode    os.FileMode
		wantModTime time.Time
		wantIsDir   bool
	}{
		{
			name: "file",
			entry: DirEntry{
				Status:   StatusInUse | StatusFile,
				Size:     1025,
				Modified: Timestamp{Year: 2021, Month: 3, Day: 4, Hour: 5, Minute: 6, Second: 7},
				Name:     "notes.txt",
			},
			wantName:    "notes.txt",
			wantSize:    1025,
			wantMode:    0444,
			wantModTime: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		},
		{
			name: "directory",
			entry: DirEntry{
				Status: StatusInUse,
				Name:   "folder",
			},
			wantName:  "folder",
			wantMode:  os.ModeDir | 0555,
			wantIsDir: true,
		},
		{
			name: "no modification time",
			entry: DirEntry{
				Status: StatusInUse | StatusFile,
				Size:   3,
				Name:   "a",
			},
			wantName: "a",
			wantSize: 3,
			wantMode: 0444,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.entry.FileInfo()
			if got := info.Name(); got != tt.wantName {
				t.Errorf("entryFileInfo.Name() = %v, want %v", got, tt.wantName)
			}
			if got := info.Size(); got != tt.wantSize {
				t.Errorf("entryFileInfo.Size() = %v, want %v", got, tt.wantSize)
			}
			if got := info.Mode(); got != tt.wantMode {
				t.Errorf("entryFileInfo.Mode() = %v, want %v", got, tt.wantMode)
			}
			if got := info.ModTime(); !got.Equal(tt.wantModTime) {
				t.Errorf("entryFileInfo.ModTime() = %v, want %v", got, tt.wantModTime)
			}
			if got := info.IsDir(); got != tt.wantIsDir {
				t.Errorf("entryFileInfo.IsDir() = %v, want %v", got, tt.wantIsDir)
			}
			if got := info.Sys(); !reflect.DeepEqual(got, tt.entry) {
				t.Errorf("entryFileInfo.Sys() = %v, want %v", got, tt.entry)
			}
		})
	}
}

func Test_rootFileInfo(t *testing.T) {
	var info os.FileInfo = rootFileInfo{}
	if info.Name() != "." || !info.IsDir() || info.Mode() != os.ModeDir|0555 || info.Size() != 0 {
		t.Errorf("rootFileInfo = %v %v %v %v", info.Name(), info.IsDir(), info.Mode(), info.Size())
	}
}

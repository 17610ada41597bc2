package ext2

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"time"
)

// FileInfo extends fs.FileInfo with the inode number.
type FileInfo interface {
	fs.FileInfo

	// Inode returns the inode number.
	Inode() uint64
}

// fsPath converts an io/fs rooted path ("a/b", "." for the root) into
// the absolute form the path resolver takes.
func fsPath(name string) string {
	if name == "." {
		return "/"
	}
	return "/" + name
}

// Open implements fs.FS. Directories are returned as fs.ReadDirFile.
func (v *Volume) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	n, ino, err := v.ResolvePath(fsPath(name))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	base := path.Base(name)
	if ino.IsDir() {
		return &dirFile{vol: v, ino: ino, inoNum: n, name: base}, nil
	}
	return &file{vol: v, ino: ino, inoNum: n, name: base}, nil
}

// ReadDir implements fs.ReadDirFS.
func (v *Volume) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := v.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return d.ReadDir(-1)
}

// Stat implements fs.StatFS.
func (v *Volume) Stat(name string) (fs.FileInfo, error) {
	f, err := v.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// file is a regular file handle reading through the block-address
// resolver one span at a time, so large files are never held in
// memory.
type file struct {
	vol    *Volume
	ino    *Inode
	inoNum uint32
	name   string
	offset int64
}

func (f *file) Stat() (fs.FileInfo, error) {
	return &fileInfo{ino: f.ino, inoNum: f.inoNum, name: f.name}, nil
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.vol.ReadFileAt(f.ino, p, f.offset)
	f.offset += int64(n)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt implements io.ReaderAt for positioned reads independent of
// the handle's cursor.
func (f *file) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.vol.ReadFileAt(f.ino, p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *file) Close() error { return nil }

// dirFile is a directory handle implementing fs.ReadDirFile.
type dirFile struct {
	vol     *Volume
	ino     *Inode
	inoNum  uint32
	name    string
	entries []fs.DirEntry
	offset  int
}

func (d *dirFile) Stat() (fs.FileInfo, error) {
	return &fileInfo{ino: d.ino, inoNum: d.inoNum, name: d.name}, nil
}

func (d *dirFile) Read(p []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *dirFile) Close() error {
	d.entries = nil
	return nil
}

func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		var entries []fs.DirEntry
		_, err := d.vol.ForEachDirEntry(d.ino, func(e DirEntry) bool {
			if e.Ino == 0 || e.Name == "." || e.Name == ".." {
				return false
			}
			entries = append(entries, &dirEntry{vol: d.vol, entry: e})
			return false
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})
		d.entries = entries
	}

	if n <= 0 {
		entries := d.entries[d.offset:]
		d.offset = len(d.entries)
		return entries, nil
	}

	if d.offset >= len(d.entries) {
		return nil, io.EOF
	}
	end := d.offset + n
	if end > len(d.entries) {
		end = len(d.entries)
	}
	entries := d.entries[d.offset:end]
	d.offset = end
	return entries, nil
}

// dirEntry implements fs.DirEntry on top of a decoded directory entry.
type dirEntry struct {
	vol   *Volume
	entry DirEntry
}

func (e *dirEntry) Name() string { return e.entry.Name }

func (e *dirEntry) IsDir() bool { return e.entry.Type == FileTypeDir }

func (e *dirEntry) Type() fs.FileMode {
	switch e.entry.Type {
	case FileTypeDir:
		return fs.ModeDir
	case FileTypeSymlink:
		return fs.ModeSymlink
	case FileTypeCharDev:
		return fs.ModeDevice | fs.ModeCharDevice
	case FileTypeBlkDev:
		return fs.ModeDevice
	case FileTypeFIFO:
		return fs.ModeNamedPipe
	case FileTypeSocket:
		return fs.ModeSocket
	default:
		return 0
	}
}

func (e *dirEntry) Info() (fs.FileInfo, error) {
	ino, err := e.vol.ReadInode(e.entry.Ino)
	if err != nil {
		return nil, err
	}
	return &fileInfo{ino: ino, inoNum: e.entry.Ino, name: e.entry.Name}, nil
}

// fileInfo implements fs.FileInfo and FileInfo.
type fileInfo struct {
	ino    *Inode
	inoNum uint32
	name   string
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return int64(i.ino.Size()) }
func (i *fileInfo) Mode() fs.FileMode  { return i.ino.FileMode() }
func (i *fileInfo) ModTime() time.Time { return i.ino.ModTime() }
func (i *fileInfo) IsDir() bool        { return i.ino.IsDir() }
func (i *fileInfo) Sys() any           { return i.ino }
func (i *fileInfo) Inode() uint64      { return uint64(i.inoNum) }

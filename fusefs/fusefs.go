// Package fusefs exposes an ext2.Volume to the kernel through FUSE.
//
// It implements the path-based pathfs.FileSystem interface: every
// callback resolves its path against the volume and delegates to the
// interpreter. All storage and format errors are translated to errno
// values here and nowhere else; the interpreter itself never logs or
// recovers.
package fusefs

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"
	"github.com/sirupsen/logrus"

	"github.com/e2fuse/e2fuse/ext2"
)

// FileSystem is a read-only pathfs.FileSystem backed by an ext2
// volume. Mutating operations fall through to the embedded default
// implementation, which rejects them.
type FileSystem struct {
	pathfs.FileSystem
	vol *ext2.Volume
}

// New returns a FileSystem serving vol.
func New(vol *ext2.Volume) *FileSystem {
	return &FileSystem{FileSystem: pathfs.NewDefaultFileSystem(), vol: vol}
}

func (f *FileSystem) String() string { return "e2fuse" }

// GetAttr implements the metadata query callback.
func (f *FileSystem) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	logrus.Debugf("getattr %q", name)
	n, ino, err := f.vol.ResolvePath("/" + name)
	if err != nil {
		return nil, errStatus(err)
	}
	var attr fuse.Attr
	fillAttr(&attr, n, ino, f.vol.BlockSize())
	return &attr, fuse.OK
}

// OpenDir implements the directory listing callback. Every entry of
// the directory is emitted once, dot entries included; unused slots
// are skipped.
func (f *FileSystem) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	logrus.Debugf("opendir %q", name)
	_, ino, err := f.vol.ResolvePath("/" + name)
	if err != nil {
		return nil, errStatus(err)
	}
	if !ino.IsDir() {
		return nil, fuse.ENOTDIR
	}

	var stream []fuse.DirEntry
	if _, err := f.vol.ForEachDirEntry(ino, func(e ext2.DirEntry) bool {
		if e.Ino != 0 {
			stream = append(stream, fuse.DirEntry{
				Name: e.Name,
				Ino:  uint64(e.Ino),
				Mode: direntMode(e.Type),
			})
		}
		return false
	}); err != nil {
		return nil, errStatus(err)
	}
	return stream, fuse.OK
}

// Open implements the open callback. The volume is read-only, so any
// write intent is refused; directories cannot be opened as files. No
// per-open state is allocated beyond the file handle itself, so
// release is a no-op.
func (f *FileSystem) Open(name string, flags uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	logrus.Debugf("open %q flags=%#x", name, flags)
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, fuse.EACCES
	}
	n, ino, err := f.vol.ResolvePath("/" + name)
	if err != nil {
		return nil, errStatus(err)
	}
	if ino.IsDir() {
		return nil, fuse.Status(syscall.EISDIR)
	}
	return newFile(f.vol, n, ino), fuse.OK
}

// Readlink implements the symlink target callback.
func (f *FileSystem) Readlink(name string, _ *fuse.Context) (string, fuse.Status) {
	logrus.Debugf("readlink %q", name)
	_, ino, err := f.vol.ResolvePath("/" + name)
	if err != nil {
		return "", errStatus(err)
	}
	target, err := f.vol.ReadLink(ino)
	if err != nil {
		return "", errStatus(err)
	}
	return target, fuse.OK
}

// StatFs reports the volume geometry from the superblock. Free counts
// are advisory: the volume never changes under a read-only mount.
func (f *FileSystem) StatFs(name string) *fuse.StatfsOut {
	return &fuse.StatfsOut{
		Blocks:  uint64(f.vol.BlocksCount()),
		Bfree:   uint64(f.vol.FreeBlocksCount()),
		Bavail:  uint64(f.vol.FreeBlocksCount()),
		Files:   uint64(f.vol.InodesCount()),
		Ffree:   uint64(f.vol.FreeInodesCount()),
		Bsize:   f.vol.BlockSize(),
		NameLen: 255,
		Frsize:  f.vol.BlockSize(),
	}
}

// fillAttr populates a fuse.Attr from an inode record. The ext2 mode
// bits coincide with the POSIX stat encoding, so they pass through
// unchanged; block counts are in 512-byte sectors on both sides.
func fillAttr(attr *fuse.Attr, n uint32, ino *ext2.Inode, blockSize uint32) {
	attr.Ino = uint64(n)
	attr.Size = ino.Size()
	attr.Blocks = uint64(ino.Blocks)
	attr.Atime = uint64(ino.Atime)
	attr.Mtime = uint64(ino.Mtime)
	attr.Ctime = uint64(ino.Ctime)
	attr.Mode = uint32(ino.Mode)
	attr.Nlink = uint32(ino.Links)
	attr.Owner = fuse.Owner{Uid: uint32(ino.UID), Gid: uint32(ino.GID)}
	attr.Blksize = blockSize
}

// direntMode maps an ext2 directory entry file type to the S_IF bits
// a fuse.DirEntry carries.
func direntMode(t uint8) uint32 {
	switch t {
	case ext2.FileTypeRegular:
		return syscall.S_IFREG
	case ext2.FileTypeDir:
		return syscall.S_IFDIR
	case ext2.FileTypeSymlink:
		return syscall.S_IFLNK
	case ext2.FileTypeCharDev:
		return syscall.S_IFCHR
	case ext2.FileTypeBlkDev:
		return syscall.S_IFBLK
	case ext2.FileTypeFIFO:
		return syscall.S_IFIFO
	case ext2.FileTypeSocket:
		return syscall.S_IFSOCK
	default:
		return 0
	}
}

// errStatus translates interpreter errors to errno values at the
// bridge boundary.
func errStatus(err error) fuse.Status {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fuse.ENOENT
	case errors.Is(err, fs.ErrInvalid):
		return fuse.EINVAL
	default:
		return fuse.EIO
	}
}

package fusefs

import (
	"fmt"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"

	"github.com/e2fuse/e2fuse/ext2"
)

// file is a read-only file handle. The inode record is captured at
// open time; the volume is immutable so it never goes stale.
type file struct {
	nodefs.File
	vol *ext2.Volume
	ino *ext2.Inode
	num uint32
}

func newFile(vol *ext2.Volume, num uint32, ino *ext2.Inode) nodefs.File {
	return &file{File: nodefs.NewDefaultFile(), vol: vol, ino: ino, num: num}
}

func (f *file) String() string {
	return fmt.Sprintf("e2fuse.file(%d)", f.num)
}

// Read transfers file content at the given offset. Reads at or past
// the end of the file return 0 bytes, never an error.
func (f *file) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, err := f.vol.ReadFileAt(f.ino, dest, off)
	if err != nil {
		return nil, errStatus(err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (f *file) GetAttr(out *fuse.Attr) fuse.Status {
	fillAttr(out, f.num, f.ino, f.vol.BlockSize())
	return fuse.OK
}

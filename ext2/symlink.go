package ext2

import (
	"fmt"
	"io/fs"
)

// inlineLinkMax is the largest symlink target stored directly in the
// inode's block area instead of in data blocks.
const inlineLinkMax = 60

// ReadLink returns the target of a symbolic link inode. Targets
// shorter than 60 bytes are embedded in the inode record itself;
// longer ones are read from the inode's data blocks. Fails with
// fs.ErrInvalid if the inode is not a symlink.
func (v *Volume) ReadLink(ino *Inode) (string, error) {
	if !ino.IsSymlink() {
		return "", fmt.Errorf("not a symlink: %w", fs.ErrInvalid)
	}

	size := ino.Size()
	if size < inlineLinkMax {
		return string(ino.block[:size]), nil
	}

	buf := make([]byte, size)
	n, err := v.ReadFileAt(ino, buf, 0)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

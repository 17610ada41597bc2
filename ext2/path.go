package ext2

import (
	"fmt"
	"io/fs"
	"strings"
)

// ResolvePath walks an absolute path from the root inode and returns
// the inode number and record it resolves to. The path must begin with
// '/'; empty components from doubled or trailing separators are
// skipped, so "/" resolves to the root inode without any directory
// reads. Resolution fails with fs.ErrNotExist on the first missing
// component, or when an intermediate component is not a directory.
func (v *Volume) ResolvePath(path string) (uint32, *Inode, error) {
	if !strings.HasPrefix(path, "/") {
		return 0, nil, fmt.Errorf("%q: not an absolute path: %w", path, fs.ErrInvalid)
	}

	cur := uint32(RootIno)
	ino, err := v.ReadInode(cur)
	if err != nil {
		return 0, nil, err
	}

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		if !ino.IsDir() {
			return 0, nil, fs.ErrNotExist
		}
		n, err := v.FindInDir(ino, name)
		if err != nil {
			return 0, nil, err
		}
		if ino, err = v.ReadInode(n); err != nil {
			return 0, nil, err
		}
		cur = n
	}
	return cur, ino, nil
}

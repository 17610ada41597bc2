package ext2

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"time"
)

// RootIno is the root directory's inode number, fixed by the format.
const RootIno = 2

// File type bits of the inode mode field.
const (
	modeTypeMask = 0xF000
	modeFIFO     = 0x1000
	modeCharDev  = 0x2000
	modeDir      = 0x4000
	modeBlockDev = 0x6000
	modeRegular  = 0x8000
	modeSymlink  = 0xA000
	modeSocket   = 0xC000
)

// Inode is a decoded copy of an on-disk inode record. Inodes are read
// on demand and never written back.
type Inode struct {
	Mode   uint16
	UID    uint16
	GID    uint16
	Links  uint16
	Blocks uint32
	Flags  uint32
	Atime  uint32
	Ctime  uint32
	Mtime  uint32
	Dtime  uint32

	size uint64

	// block holds the 60-byte block area: 12 direct slots, then the
	// single, double and triple indirect block numbers. For fast
	// symlinks it holds the target bytes instead.
	block [60]byte
}

// ReadInode reads inode record n (1-based) from its group's inode
// table.
func (v *Volume) ReadInode(n uint32) (*Inode, error) {
	if n == 0 {
		return nil, fmt.Errorf("inode 0: %w", ErrFormat)
	}
	group := (n - 1) / v.sb.inodesPerGroup
	index := (n - 1) % v.sb.inodesPerGroup
	if group >= v.groupCount {
		return nil, fmt.Errorf("inode %d: group %d out of range: %w", n, group, ErrFormat)
	}

	data := make([]byte, v.sb.inodeSize)
	off := uint32(index) * uint32(v.sb.inodeSize)
	if _, err := v.readBlock(data, v.groups[group].inodeTable, off); err != nil {
		return nil, fmt.Errorf("inode %d: %w", n, err)
	}

	ino := &Inode{
		Mode:   binary.LittleEndian.Uint16(data[0x00:0x02]),
		UID:    binary.LittleEndian.Uint16(data[0x02:0x04]),
		size:   uint64(binary.LittleEndian.Uint32(data[0x04:0x08])),
		Atime:  binary.LittleEndian.Uint32(data[0x08:0x0C]),
		Ctime:  binary.LittleEndian.Uint32(data[0x0C:0x10]),
		Mtime:  binary.LittleEndian.Uint32(data[0x10:0x14]),
		Dtime:  binary.LittleEndian.Uint32(data[0x14:0x18]),
		GID:    binary.LittleEndian.Uint16(data[0x18:0x1A]),
		Links:  binary.LittleEndian.Uint16(data[0x1A:0x1C]),
		Blocks: binary.LittleEndian.Uint32(data[0x1C:0x20]),
		Flags:  binary.LittleEndian.Uint32(data[0x20:0x24]),
	}
	copy(ino.block[:], data[0x28:0x64])

	// Regular files keep the high 32 size bits in the dir_acl slot.
	if ino.IsRegular() {
		ino.size |= uint64(binary.LittleEndian.Uint32(data[0x6C:0x70])) << 32
	}
	return ino, nil
}

// blockPtr returns slot i of the inode's block area. Slots 0-11 are
// direct block numbers, 12-14 the single/double/triple indirect ones.
func (ino *Inode) blockPtr(i int) uint32 {
	return binary.LittleEndian.Uint32(ino.block[i*4 : i*4+4])
}

// Size returns the file size in bytes.
func (ino *Inode) Size() uint64 { return ino.size }

// IsDir reports whether the inode is a directory.
func (ino *Inode) IsDir() bool { return ino.Mode&modeTypeMask == modeDir }

// IsRegular reports whether the inode is a regular file.
func (ino *Inode) IsRegular() bool { return ino.Mode&modeTypeMask == modeRegular }

// IsSymlink reports whether the inode is a symbolic link.
func (ino *Inode) IsSymlink() bool { return ino.Mode&modeTypeMask == modeSymlink }

// ModTime returns the modification time.
func (ino *Inode) ModTime() time.Time { return time.Unix(int64(ino.Mtime), 0) }

// FileMode maps the inode mode to an fs.FileMode.
func (ino *Inode) FileMode() fs.FileMode {
	mode := fs.FileMode(ino.Mode & 0777)
	switch ino.Mode & modeTypeMask {
	case modeDir:
		mode |= fs.ModeDir
	case modeSymlink:
		mode |= fs.ModeSymlink
	case modeBlockDev:
		mode |= fs.ModeDevice
	case modeCharDev:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case modeFIFO:
		mode |= fs.ModeNamedPipe
	case modeSocket:
		mode |= fs.ModeSocket
	}
	return mode
}

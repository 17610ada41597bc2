package ext2

import (
	"encoding/binary"
	"fmt"
	"io/fs"
)

// Directory entry file types stored in the dirent when the filetype
// feature is enabled.
const (
	FileTypeUnknown = 0
	FileTypeRegular = 1
	FileTypeDir     = 2
	FileTypeCharDev = 3
	FileTypeBlkDev  = 4
	FileTypeFIFO    = 5
	FileTypeSocket  = 6
	FileTypeSymlink = 7
)

// direntHeaderSize is the fixed prefix of an on-disk directory entry:
// inode number, record length, name length and file type.
const direntHeaderSize = 8

// DirEntry is a decoded directory entry. An Ino of 0 marks an unused
// slot whose record still occupies space in the entry stream.
type DirEntry struct {
	Ino    uint32
	RecLen uint16
	Type   uint8
	Name   string
}

// ForEachDirEntry walks dir's variable-length entry stream, calling
// visit for every entry, unused slots included. There is no entry
// count on disk: entry N+1 starts at the offset of entry N plus its
// record length, and iteration ends when the accumulated offset
// reaches the directory's declared size. If visit returns true the
// walk stops and the entry's inode number is returned; otherwise the
// walk returns 0 after the last entry.
func (v *Volume) ForEachDirEntry(dir *Inode, visit func(DirEntry) bool) (uint32, error) {
	var hdr [direntHeaderSize]byte
	size := int64(dir.Size())

	for off := int64(0); off < size; {
		if n, err := v.ReadFileAt(dir, hdr[:], off); err != nil {
			return 0, err
		} else if n < direntHeaderSize {
			return 0, fmt.Errorf("directory entry at %d truncated: %w", off, ErrFormat)
		}

		e := DirEntry{
			Ino:    binary.LittleEndian.Uint32(hdr[0:4]),
			RecLen: binary.LittleEndian.Uint16(hdr[4:6]),
			Type:   hdr[7],
		}
		if e.RecLen < direntHeaderSize {
			return 0, fmt.Errorf("directory entry at %d: record length %d: %w", off, e.RecLen, ErrFormat)
		}

		if nameLen := int(hdr[6]); nameLen > 0 {
			name := make([]byte, nameLen)
			if n, err := v.ReadFileAt(dir, name, off+direntHeaderSize); err != nil {
				return 0, err
			} else if n < nameLen {
				return 0, fmt.Errorf("directory entry at %d: name truncated: %w", off, ErrFormat)
			}
			e.Name = string(name)
		}

		if visit(e) {
			return e.Ino, nil
		}
		off += int64(e.RecLen)
	}
	return 0, nil
}

// FindInDir looks name up in dir by exact, case-sensitive comparison.
// Unused entries never match. Returns fs.ErrNotExist when the name is
// absent.
func (v *Volume) FindInDir(dir *Inode, name string) (uint32, error) {
	n, err := v.ForEachDirEntry(dir, func(e DirEntry) bool {
		return e.Ino != 0 && e.Name == name
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fs.ErrNotExist
	}
	return n, nil
}

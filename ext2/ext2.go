// Package ext2 implements read-only access to ext2 volumes.
//
// A Volume interprets a raw block-device image: superblock, block-group
// descriptor table, inode table, direct/indirect block chains and
// directory entries. It exposes both the low-level operations (inode
// lookup, block address resolution, positioned file reads, directory
// iteration, path resolution) and the standard io/fs surface on top of
// them.
package ext2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	superblockOffset = 1024
	superblockSize   = 1024
	ext2Magic        = 0xEF53

	groupDescSize = 32

	// Incompat feature flags. Filetype is the only one this driver
	// understands; everything else changes the on-disk layout.
	featureIncompatFiletype = 0x0002
	featureCompatHasJournal = 0x0004
)

// ErrFormat reports that the image is not a well-formed ext2 volume,
// or uses on-disk features this driver cannot interpret.
var ErrFormat = errors.New("not a valid ext2 volume")

type superblock struct {
	inodesCount     uint32
	blocksCount     uint32
	freeBlocksCount uint32
	freeInodesCount uint32
	firstDataBlock  uint32
	logBlockSize    uint32
	blocksPerGroup  uint32
	inodesPerGroup  uint32
	magic           uint16
	revLevel        uint32
	firstIno        uint32
	inodeSize       uint16
	featureCompat   uint32
	featureIncompat uint32
	featureROCompat uint32
	uuid            [16]byte
	volumeName      [16]byte
}

type groupDesc struct {
	blockBitmap uint32
	inodeBitmap uint32
	inodeTable  uint32
	freeBlocks  uint16
	freeInodes  uint16
	usedDirs    uint16
}

// Volume is an opened ext2 volume. It is immutable after Open and safe
// for concurrent readers; every operation uses its own buffers.
type Volume struct {
	r      io.ReaderAt
	closer io.Closer

	sb         superblock
	groups     []groupDesc
	blockSize  uint32
	groupCount uint32
}

// Open opens the volume image at path.
func Open(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	v, err := OpenReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	v.closer = f
	return v, nil
}

// OpenReader reads the superblock and group descriptor table from r
// and returns a Volume interpreting it. The reader must remain valid
// for the lifetime of the Volume.
func OpenReader(r io.ReaderAt) (*Volume, error) {
	sbData := make([]byte, superblockSize)
	if _, err := r.ReadAt(sbData, superblockOffset); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	v := &Volume{r: r}
	if err := v.parseSuperblock(sbData); err != nil {
		return nil, err
	}
	if err := v.readGroupDescriptors(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Volume) parseSuperblock(data []byte) error {
	v.sb.inodesCount = binary.LittleEndian.Uint32(data[0x00:0x04])
	v.sb.blocksCount = binary.LittleEndian.Uint32(data[0x04:0x08])
	v.sb.freeBlocksCount = binary.LittleEndian.Uint32(data[0x0C:0x10])
	v.sb.freeInodesCount = binary.LittleEndian.Uint32(data[0x10:0x14])
	v.sb.firstDataBlock = binary.LittleEndian.Uint32(data[0x14:0x18])
	v.sb.logBlockSize = binary.LittleEndian.Uint32(data[0x18:0x1C])
	v.sb.blocksPerGroup = binary.LittleEndian.Uint32(data[0x20:0x24])
	v.sb.inodesPerGroup = binary.LittleEndian.Uint32(data[0x28:0x2C])
	v.sb.magic = binary.LittleEndian.Uint16(data[0x38:0x3A])
	v.sb.revLevel = binary.LittleEndian.Uint32(data[0x4C:0x50])
	v.sb.firstIno = binary.LittleEndian.Uint32(data[0x54:0x58])
	v.sb.inodeSize = binary.LittleEndian.Uint16(data[0x58:0x5A])
	v.sb.featureCompat = binary.LittleEndian.Uint32(data[0x5C:0x60])
	v.sb.featureIncompat = binary.LittleEndian.Uint32(data[0x60:0x64])
	v.sb.featureROCompat = binary.LittleEndian.Uint32(data[0x64:0x68])
	copy(v.sb.uuid[:], data[0x68:0x78])
	copy(v.sb.volumeName[:], data[0x78:0x88])

	if v.sb.magic != ext2Magic {
		return fmt.Errorf("bad magic %#04x: %w", v.sb.magic, ErrFormat)
	}
	if unsupported := v.sb.featureIncompat &^ featureIncompatFiletype; unsupported != 0 {
		return fmt.Errorf("unsupported incompat features %#x: %w", unsupported, ErrFormat)
	}
	if v.sb.blocksPerGroup == 0 || v.sb.inodesPerGroup == 0 {
		return fmt.Errorf("zero blocks or inodes per group: %w", ErrFormat)
	}

	v.blockSize = 1024 << v.sb.logBlockSize

	// Revision 0 has a fixed inode record size.
	if v.sb.revLevel == 0 {
		v.sb.inodeSize = 128
	}
	if v.sb.inodeSize < 128 {
		return fmt.Errorf("inode size %d too small: %w", v.sb.inodeSize, ErrFormat)
	}

	v.groupCount = (v.sb.blocksCount + v.sb.blocksPerGroup - 1) / v.sb.blocksPerGroup
	return nil
}

// readGroupDescriptors loads the descriptor table from the block
// following the superblock's block.
func (v *Volume) readGroupDescriptors() error {
	descBlock := v.sb.firstDataBlock + 1
	data := make([]byte, uint64(v.groupCount)*groupDescSize)
	if _, err := v.readBlock(data, descBlock, 0); err != nil {
		return fmt.Errorf("reading group descriptor table: %w", err)
	}

	v.groups = make([]groupDesc, v.groupCount)
	for i := range v.groups {
		d := data[i*groupDescSize:]
		v.groups[i] = groupDesc{
			blockBitmap: binary.LittleEndian.Uint32(d[0x00:0x04]),
			inodeBitmap: binary.LittleEndian.Uint32(d[0x04:0x08]),
			inodeTable:  binary.LittleEndian.Uint32(d[0x08:0x0C]),
			freeBlocks:  binary.LittleEndian.Uint16(d[0x0C:0x0E]),
			freeInodes:  binary.LittleEndian.Uint16(d[0x0E:0x10]),
			usedDirs:    binary.LittleEndian.Uint16(d[0x10:0x12]),
		}
	}
	return nil
}

// Close releases the backing storage. It is idempotent and a no-op for
// volumes opened from a caller-owned reader.
func (v *Volume) Close() error {
	if v.closer == nil {
		return nil
	}
	c := v.closer
	v.closer = nil
	return c.Close()
}

// readBlock reads len(p) bytes at off bytes into block blockNo. The
// offset may exceed the block size; the read is purely positional.
// Block number 0 is not treated specially here: sparse-hole handling
// belongs to the callers that know a 0 means "hole".
func (v *Volume) readBlock(p []byte, blockNo uint32, off uint32) (int, error) {
	pos := int64(blockNo)*int64(v.blockSize) + int64(off)
	n, err := v.r.ReadAt(p, pos)
	if err != nil {
		return n, fmt.Errorf("block %d+%d: %w", blockNo, off, err)
	}
	return n, nil
}

// BlockSize returns the volume's block size in bytes.
func (v *Volume) BlockSize() uint32 { return v.blockSize }

// GroupCount returns the number of block groups.
func (v *Volume) GroupCount() uint32 { return v.groupCount }

// VolumeSize returns the addressable size of the volume in bytes.
func (v *Volume) VolumeSize() int64 {
	return int64(v.sb.blocksCount) * int64(v.blockSize)
}

// BlocksCount returns the total block count from the superblock.
func (v *Volume) BlocksCount() uint32 { return v.sb.blocksCount }

// FreeBlocksCount returns the free block count from the superblock.
func (v *Volume) FreeBlocksCount() uint32 { return v.sb.freeBlocksCount }

// InodesCount returns the total inode count from the superblock.
func (v *Volume) InodesCount() uint32 { return v.sb.inodesCount }

// FreeInodesCount returns the free inode count from the superblock.
func (v *Volume) FreeInodesCount() uint32 { return v.sb.freeInodesCount }

// Label returns the volume name, empty if unset.
func (v *Volume) Label() string {
	s := v.sb.volumeName[:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// UUID returns the volume UUID in canonical form.
func (v *Volume) UUID() string {
	u := v.sb.uuid
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// Type returns "ext3" when the volume carries a journal, "ext2"
// otherwise. Volumes with extent or 64-bit features are rejected at
// Open.
func (v *Volume) Type() string {
	if v.sb.featureCompat&featureCompatHasJournal != 0 {
		return "ext3"
	}
	return "ext2"
}

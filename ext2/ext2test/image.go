// Package ext2test builds synthetic ext2 volume images in memory for
// tests. Only the structures the driver reads are populated: the
// superblock, the group descriptor table, inode tables, directory
// entry streams and data blocks. Block and inode bitmaps are left
// zeroed since a read-only interpreter never consults them.
package ext2test

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	inodeSize     = 128
	groupDescSize = 32
	rootIno       = 2
	firstFreeIno  = 11

	// Mode bits for convenience in tests.
	ModeDir     = 0x4000
	ModeRegular = 0x8000
	ModeSymlink = 0xA000

	// Directory entry file types.
	TypeRegular = 1
	TypeDir     = 2
	TypeSymlink = 7
)

// Image accumulates filesystem content and serializes it with Bytes.
type Image struct {
	blockSize      uint32
	blocksPerGroup uint32
	inodesPerGroup uint32
	groups         uint32

	inodeTableStart  uint32 // first inode table block, group 0
	inodeTableBlocks uint32 // blocks per group's inode table

	nextBlock uint32
	nextIno   uint32
	blocks    map[uint32][]byte
	nodes     map[uint32]*Node

	// Root is the root directory, inode 2, created by New.
	Root *Node
}

// Node is an inode under construction. The exported fields may be set
// freely before Bytes is called.
type Node struct {
	Mode  uint16
	UID   uint16
	GID   uint16
	Links uint16
	Atime uint32
	Ctime uint32
	Mtime uint32

	img  *Image
	num  uint32
	size uint64

	blockMap map[uint64]uint32 // logical index -> physical block
	// blockArea is the inode's 60-byte block area: either the wired
	// block pointers or an inline symlink target.
	blockArea [60]byte
	isInline  bool

	entries []rawEntry // directory entries, serialized by Bytes
}

type rawEntry struct {
	name  string
	ino   uint32
	ftype uint8
}

// New returns an image with a single block group and an empty root
// directory.
func New(blockSize uint32) *Image {
	return NewWithGeometry(blockSize, 64, 1)
}

// NewWithGeometry controls the inode-per-group count and the number of
// block groups, for tests exercising the group arithmetic.
func NewWithGeometry(blockSize, inodesPerGroup, groups uint32) *Image {
	img := &Image{
		blockSize:      blockSize,
		blocksPerGroup: blockSize * 8,
		inodesPerGroup: inodesPerGroup,
		groups:         groups,
		blocks:         map[uint32][]byte{},
		nodes:          map[uint32]*Node{},
		nextIno:        firstFreeIno,
	}

	img.inodeTableBlocks = (inodesPerGroup*inodeSize + blockSize - 1) / blockSize
	descBlock := img.firstDataBlock() + 1
	img.inodeTableStart = descBlock + 1
	img.nextBlock = img.inodeTableStart + groups*img.inodeTableBlocks

	img.Root = img.newNode(rootIno, ModeDir|0755)
	img.Root.Links = 2
	img.Root.addEntry(".", rootIno, TypeDir)
	img.Root.addEntry("..", rootIno, TypeDir)
	return img
}

// BlockSize returns the image's block size.
func (img *Image) BlockSize() uint32 { return img.blockSize }

func (img *Image) firstDataBlock() uint32 {
	if img.blockSize == 1024 {
		return 1
	}
	return 0
}

func (img *Image) newNode(num uint32, mode uint16) *Node {
	n := &Node{
		img:      img,
		num:      num,
		Mode:     mode,
		Links:    1,
		blockMap: map[uint64]uint32{},
	}
	img.nodes[num] = n
	return n
}

// NewInode allocates the next free inode number with the given mode.
func (img *Image) NewInode(mode uint16) *Node {
	n := img.newNode(img.nextIno, mode)
	img.nextIno++
	return n
}

// NewDir allocates a directory inode with "." and ".." entries.
func (img *Image) NewDir(parent *Node) *Node {
	d := img.NewInode(ModeDir | 0755)
	d.Links = 2
	d.addEntry(".", d.num, TypeDir)
	d.addEntry("..", parent.num, TypeDir)
	return d
}

// NewSymlink allocates a symlink inode. Targets shorter than 60 bytes
// are stored inline in the inode's block area, longer ones in data
// blocks.
func (img *Image) NewSymlink(target string) *Node {
	n := img.NewInode(ModeSymlink | 0777)
	if len(target) < 60 {
		copy(n.blockArea[:], target)
		n.isInline = true
		n.size = uint64(len(target))
	} else {
		n.SetContent([]byte(target))
	}
	return n
}

// AddChild links child into dir under name, with the entry file type
// derived from the child's mode.
func (img *Image) AddChild(dir *Node, name string, child *Node) {
	var ftype uint8
	switch child.Mode & 0xF000 {
	case ModeDir:
		ftype = TypeDir
	case ModeSymlink:
		ftype = TypeSymlink
	default:
		ftype = TypeRegular
	}
	dir.addEntry(name, child.num, ftype)
}

// AddEntryRaw appends a directory entry without touching inode links.
// An ino of 0 produces an unused slot that still occupies record
// space.
func (n *Node) AddEntryRaw(name string, ino uint32, ftype uint8) {
	n.addEntry(name, ino, ftype)
}

func (n *Node) addEntry(name string, ino uint32, ftype uint8) {
	n.entries = append(n.entries, rawEntry{name: name, ino: ino, ftype: ftype})
}

// Ino returns the node's inode number.
func (n *Node) Ino() uint32 { return n.num }

// Size returns the node's current declared size.
func (n *Node) Size() uint64 { return n.size }

// SetSize overrides the declared byte size, for sparse files whose
// tail blocks are holes.
func (n *Node) SetSize(size uint64) { n.size = size }

// allocBlock claims the next physical block and stores data in it.
func (img *Image) allocBlock(data []byte) uint32 {
	b := img.nextBlock
	img.nextBlock++
	buf := make([]byte, img.blockSize)
	copy(buf, data)
	img.blocks[b] = buf
	return b
}

// SetContent fills the node with data, allocating one physical block
// per logical block.
func (n *Node) SetContent(data []byte) {
	bs := int(n.img.blockSize)
	for i := 0; i*bs < len(data); i++ {
		end := (i + 1) * bs
		if end > len(data) {
			end = len(data)
		}
		n.blockMap[uint64(i)] = n.img.allocBlock(data[i*bs : end])
	}
	n.size = uint64(len(data))
}

// SetContentAt stores one block of data at the given logical index,
// leaving other indices as holes. The caller sets the size.
func (n *Node) SetContentAt(index uint64, data []byte) {
	n.blockMap[index] = n.img.allocBlock(data)
}

// Bytes serializes the image. All block allocation happens before the
// buffer is sized, so indirect chains land inside the image.
func (img *Image) Bytes() []byte {
	for _, n := range img.nodes {
		if len(n.entries) > 0 {
			img.serializeDir(n)
		}
	}
	for _, n := range img.nodes {
		if !n.isInline {
			img.writeBlockMap(n.blockArea[:], n)
		}
	}

	buf := make([]byte, uint64(img.nextBlock)*uint64(img.blockSize))
	img.writeSuperblock(buf)
	img.writeGroupDescriptors(buf)
	for num, n := range img.nodes {
		img.writeInode(buf, num, n)
	}
	for b, data := range img.blocks {
		copy(buf[uint64(b)*uint64(img.blockSize):], data)
	}
	return buf
}

// serializeDir packs the entry list into data blocks. Entries never
// cross a block boundary; the last entry of each block stretches its
// record length to the block end.
func (img *Image) serializeDir(n *Node) {
	bs := int(img.blockSize)
	block := make([]byte, bs)
	used := 0
	flush := func() {
		if used == 0 {
			return
		}
		idx := uint64(len(n.blockMap))
		n.blockMap[idx] = img.allocBlock(block)
		block = make([]byte, bs)
		used = 0
	}

	for i, e := range n.entries {
		recLen := 8 + (len(e.name)+3)&^3
		if used+recLen > bs {
			flush()
		}
		last := i == len(n.entries)-1
		if last || used+recLen+8+(len(n.entries[i+1].name)+3)&^3 > bs {
			recLen = bs - used
		}
		binary.LittleEndian.PutUint32(block[used:], e.ino)
		binary.LittleEndian.PutUint16(block[used+4:], uint16(recLen))
		block[used+6] = uint8(len(e.name))
		block[used+7] = e.ftype
		copy(block[used+8:], e.name)
		used += recLen
	}
	flush()
	n.size = uint64(len(n.blockMap)) * uint64(img.blockSize)
}

func (img *Image) writeSuperblock(buf []byte) {
	sb := buf[1024:]
	binary.LittleEndian.PutUint32(sb[0x00:], img.groups*img.inodesPerGroup) // inodes count
	binary.LittleEndian.PutUint32(sb[0x04:], img.groups*img.blocksPerGroup) // blocks count
	binary.LittleEndian.PutUint32(sb[0x0C:], 0)                             // free blocks
	binary.LittleEndian.PutUint32(sb[0x10:], img.groups*img.inodesPerGroup-img.nextIno)
	binary.LittleEndian.PutUint32(sb[0x14:], img.firstDataBlock())
	binary.LittleEndian.PutUint32(sb[0x18:], log2(img.blockSize)-10)
	binary.LittleEndian.PutUint32(sb[0x20:], img.blocksPerGroup)
	binary.LittleEndian.PutUint32(sb[0x28:], img.inodesPerGroup)
	binary.LittleEndian.PutUint16(sb[0x38:], 0xEF53)
	binary.LittleEndian.PutUint32(sb[0x4C:], 1) // rev level
	binary.LittleEndian.PutUint32(sb[0x54:], firstFreeIno)
	binary.LittleEndian.PutUint16(sb[0x58:], inodeSize)
	binary.LittleEndian.PutUint32(sb[0x60:], 0x0002) // incompat: filetype
	copy(sb[0x68:0x78], []byte{0xde, 0xad, 0xbe, 0xef, 0, 1, 0, 2, 0, 3, 0, 4, 5, 6, 7, 8})
	copy(sb[0x78:], "e2test")
}

func (img *Image) writeGroupDescriptors(buf []byte) {
	descOff := uint64(img.firstDataBlock()+1) * uint64(img.blockSize)
	for g := uint32(0); g < img.groups; g++ {
		d := buf[descOff+uint64(g)*groupDescSize:]
		binary.LittleEndian.PutUint32(d[0x08:], img.inodeTableStart+g*img.inodeTableBlocks)
	}
}

func (img *Image) writeInode(buf []byte, num uint32, n *Node) {
	group := (num - 1) / img.inodesPerGroup
	index := (num - 1) % img.inodesPerGroup
	table := img.inodeTableStart + group*img.inodeTableBlocks
	off := uint64(table)*uint64(img.blockSize) + uint64(index)*inodeSize
	rec := buf[off : off+inodeSize]

	binary.LittleEndian.PutUint16(rec[0x00:], n.Mode)
	binary.LittleEndian.PutUint16(rec[0x02:], n.UID)
	binary.LittleEndian.PutUint32(rec[0x04:], uint32(n.size))
	binary.LittleEndian.PutUint32(rec[0x08:], n.Atime)
	binary.LittleEndian.PutUint32(rec[0x0C:], n.Ctime)
	binary.LittleEndian.PutUint32(rec[0x10:], n.Mtime)
	binary.LittleEndian.PutUint16(rec[0x18:], n.GID)
	binary.LittleEndian.PutUint16(rec[0x1A:], n.Links)
	binary.LittleEndian.PutUint32(rec[0x1C:], uint32(len(n.blockMap))*(img.blockSize/512))
	if n.Mode&0xF000 == ModeRegular {
		binary.LittleEndian.PutUint32(rec[0x6C:], uint32(n.size>>32))
	}
	copy(rec[0x28:0x64], n.blockArea[:])
}

// writeBlockMap wires the node's logical block map into direct slots
// and single/double/triple indirect chains, allocating indirect blocks
// on demand.
func (img *Image) writeBlockMap(area []byte, n *Node) {
	p := uint64(img.blockSize / 4)

	indices := make([]uint64, 0, len(n.blockMap))
	for i := range n.blockMap {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })

	// Indirect blocks are created lazily, keyed by slot, depth and the
	// path through the chain, so shared levels are reused across
	// indices.
	type chainKey struct {
		slot  int // 12, 13 or 14
		depth int
		path  uint64
	}
	blocks := map[chainKey]uint32{}
	ensure := func(k chainKey) uint32 {
		b, ok := blocks[k]
		if !ok {
			b = img.allocBlock(nil)
			blocks[k] = b
		}
		return b
	}
	setEntry := func(b uint32, idx uint64, val uint32) {
		binary.LittleEndian.PutUint32(img.blocks[b][idx*4:], val)
	}
	setSlot := func(slot int, b uint32) {
		binary.LittleEndian.PutUint32(area[slot*4:], b)
	}

	for _, idx := range indices {
		phys := n.blockMap[idx]
		switch {
		case idx < 12:
			binary.LittleEndian.PutUint32(area[idx*4:], phys)

		case idx < 12+p:
			ind := ensure(chainKey{slot: 12})
			setEntry(ind, idx-12, phys)
			setSlot(12, ind)

		case idx < 12+p+p*p:
			m := idx - 12 - p
			outer := ensure(chainKey{slot: 13})
			inner := ensure(chainKey{slot: 13, depth: 1, path: m / p})
			setEntry(inner, m%p, phys)
			setEntry(outer, m/p, inner)
			setSlot(13, outer)

		default:
			m := idx - 12 - p - p*p
			top := ensure(chainKey{slot: 14})
			mid := ensure(chainKey{slot: 14, depth: 1, path: m / (p * p)})
			inner := ensure(chainKey{slot: 14, depth: 2, path: m / p})
			setEntry(inner, m%p, phys)
			setEntry(mid, m/p%p, inner)
			setEntry(top, m/(p*p), mid)
			setSlot(14, top)
		}
	}
}

func log2(v uint32) uint32 {
	var n uint32
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// Sanity check helper for tests that hand-compute geometry.
func (img *Image) String() string {
	return fmt.Sprintf("ext2test image: bs=%d groups=%d", img.blockSize, img.groups)
}

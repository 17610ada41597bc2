package ext2

import (
	"encoding/binary"
	"errors"
)

// directBlocks is the number of direct slots in an inode.
const directBlocks = 12

// ErrOutOfRange reports a logical block index beyond the triple
// indirect tier. It is distinct from an I/O failure: the index is
// simply not addressable on this volume.
var ErrOutOfRange = errors.New("logical block index out of range")

// BlockAt resolves the logical block index of ino to a physical block
// number, walking the direct, single, double and triple indirect tiers
// as needed. A returned block number of 0 is a sparse hole; the
// corresponding data reads back as zeros. With P entries per indirect
// block (block size / 4), the tiers cover indices [0,12), [12,12+P),
// [12+P,12+P+P²) and [12+P+P²,12+P+P²+P³); anything at or beyond the
// last bound is ErrOutOfRange.
func (v *Volume) BlockAt(ino *Inode, index uint64) (uint32, error) {
	p := uint64(v.blockSize / 4)

	switch {
	case index < directBlocks:
		return ino.blockPtr(int(index)), nil

	case index < directBlocks+p:
		return v.indirectEntry(ino.blockPtr(12), index-directBlocks)

	case index < directBlocks+p+p*p:
		n := index - directBlocks - p
		inner, err := v.indirectEntry(ino.blockPtr(13), n/p)
		if err != nil {
			return 0, err
		}
		return v.indirectEntry(inner, n%p)

	case index < directBlocks+p+p*p+p*p*p:
		n := index - directBlocks - p - p*p
		middle, err := v.indirectEntry(ino.blockPtr(14), n/(p*p))
		if err != nil {
			return 0, err
		}
		inner, err := v.indirectEntry(middle, n/p%p)
		if err != nil {
			return 0, err
		}
		return v.indirectEntry(inner, n%p)

	default:
		return 0, ErrOutOfRange
	}
}

// indirectEntry reads entry i of the indirect block blockNo. A zero
// block number at any tier is a hole, so the lookup short-circuits to
// 0 without touching storage.
func (v *Volume) indirectEntry(blockNo uint32, i uint64) (uint32, error) {
	if blockNo == 0 {
		return 0, nil
	}
	var b [4]byte
	if _, err := v.readBlock(b[:], blockNo, uint32(i*4)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

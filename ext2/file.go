package ext2

// readBlockSpan reads file content starting at byte offset off into p,
// never crossing a block boundary. When the resolved block is a sparse
// hole the span is zero-filled without a storage read. Returns the
// number of bytes transferred.
func (v *Volume) readBlockSpan(ino *Inode, p []byte, off int64) (int, error) {
	bs := int64(v.blockSize)
	index := uint64(off) / uint64(bs)
	blockOff := uint32(off % bs)

	n := len(p)
	if max := int(bs) - int(blockOff); n > max {
		n = max
	}

	phys, err := v.BlockAt(ino, index)
	if err != nil {
		return 0, err
	}
	if phys == 0 {
		clear(p[:n])
		return n, nil
	}
	return v.readBlock(p[:n], phys, blockOff)
}

// ReadFileAt reads file content from ino into p starting at byte
// offset off, crossing blocks as needed; the logical blocks need not
// be contiguous on the volume. The read is clamped to the file size:
// reading at or past the end transfers 0 bytes and is not an error.
func (v *Volume) ReadFileAt(ino *Inode, p []byte, off int64) (int, error) {
	size := int64(ino.Size())
	if off < 0 || off >= size {
		return 0, nil
	}
	if off+int64(len(p)) > size {
		p = p[:size-off]
	}

	total := 0
	for total < len(p) {
		n, err := v.readBlockSpan(ino, p[total:], off+int64(total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

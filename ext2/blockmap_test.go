package ext2

import (
	"errors"
	"testing"

	"github.com/e2fuse/e2fuse/ext2/ext2test"
)

// With a 1024-byte block size each indirect block holds 256 entries,
// so the tiers start at logical indices 12, 268 and 65804.
const (
	p1024       = 256
	singleStart = 12
	doubleStart = 12 + p1024
	tripleStart = 12 + p1024 + p1024*p1024
	mapEnd      = 12 + p1024 + p1024*p1024 + p1024*p1024*p1024
)

func TestBlockAt(t *testing.T) {
	img := ext2test.New(1024)
	f := img.NewInode(ext2test.ModeRegular | 0644)
	for _, idx := range []uint64{0, 5, singleStart, singleStart + 100, doubleStart, doubleStart + 300, tripleStart} {
		f.SetContentAt(idx, []byte{1})
	}
	f.SetSize((tripleStart + 1) * 1024)
	img.AddChild(img.Root, "big", f)

	v, cr := openImage(t, img)
	_, ino, err := v.ResolvePath("/big")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		index     uint64
		wantReads int
	}{
		{"first direct", 0, 0},
		{"mid direct", 5, 0},
		{"first single indirect", singleStart, 1},
		{"mid single indirect", singleStart + 100, 1},
		{"first double indirect", doubleStart, 2},
		{"mid double indirect", doubleStart + 300, 2},
		{"first triple indirect", tripleStart, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cr.reads = 0
			phys, err := v.BlockAt(ino, tc.index)
			if err != nil {
				t.Fatalf("BlockAt(%d): %v", tc.index, err)
			}
			if phys == 0 {
				t.Errorf("BlockAt(%d) = 0, want wired block", tc.index)
			}
			if cr.reads != tc.wantReads {
				t.Errorf("BlockAt(%d): %d storage reads, want %d", tc.index, cr.reads, tc.wantReads)
			}
		})
	}
}

func TestBlockAtOutOfRange(t *testing.T) {
	img := ext2test.New(1024)
	f := img.NewInode(ext2test.ModeRegular | 0644)
	f.SetContent([]byte("x"))
	img.AddChild(img.Root, "f", f)

	v, _ := openImage(t, img)
	_, ino, err := v.ResolvePath("/f")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.BlockAt(ino, mapEnd); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("BlockAt(%d): err = %v, want ErrOutOfRange", uint64(mapEnd), err)
	}
	if _, err := v.BlockAt(ino, mapEnd-1); errors.Is(err, ErrOutOfRange) {
		t.Errorf("BlockAt(%d): unexpected ErrOutOfRange", uint64(mapEnd)-1)
	}
}

// A zero pointer at any tier means a hole; the resolver must not read
// any indirect block to find that out.
func TestBlockAtHole(t *testing.T) {
	img := ext2test.New(1024)
	f := img.NewInode(ext2test.ModeRegular | 0644)
	f.SetContentAt(0, []byte{1})
	f.SetSize(uint64(doubleStart+10) * 1024)
	img.AddChild(img.Root, "sparse", f)

	v, cr := openImage(t, img)
	_, ino, err := v.ResolvePath("/sparse")
	if err != nil {
		t.Fatal(err)
	}

	for _, index := range []uint64{1, 11, singleStart, singleStart + 200, doubleStart + 5} {
		cr.reads = 0
		phys, err := v.BlockAt(ino, index)
		if err != nil {
			t.Fatalf("BlockAt(%d): %v", index, err)
		}
		if phys != 0 {
			t.Errorf("BlockAt(%d) = %d, want hole", index, phys)
		}
		if cr.reads != 0 {
			t.Errorf("BlockAt(%d): %d storage reads resolving a hole, want 0", index, cr.reads)
		}
	}
}

package ext2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/e2fuse/e2fuse/ext2/ext2test"
)

// countingReader counts ReadAt calls so tests can assert how many
// storage accesses an operation performs.
type countingReader struct {
	r     io.ReaderAt
	reads int
}

func (c *countingReader) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	return c.r.ReadAt(p, off)
}

// openImage serializes img and opens it through a counting reader.
func openImage(t *testing.T, img *ext2test.Image) (*Volume, *countingReader) {
	t.Helper()
	cr := &countingReader{r: bytes.NewReader(img.Bytes())}
	v, err := OpenReader(cr)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	return v, cr
}

func TestOpenReader(t *testing.T) {
	img := ext2test.New(1024)
	f := img.NewInode(ext2test.ModeRegular | 0644)
	f.SetContent([]byte("hello"))
	img.AddChild(img.Root, "hello.txt", f)

	v, _ := openImage(t, img)

	if got := v.BlockSize(); got != 1024 {
		t.Errorf("BlockSize() = %d, want 1024", got)
	}
	if got := v.GroupCount(); got != 1 {
		t.Errorf("GroupCount() = %d, want 1", got)
	}
	if got := v.InodesCount(); got != 64 {
		t.Errorf("InodesCount() = %d, want 64", got)
	}
	if got := v.Label(); got != "e2test" {
		t.Errorf("Label() = %q, want %q", got, "e2test")
	}
	if got, want := v.UUID(), "deadbeef-0001-0002-0003-000405060708"; got != want {
		t.Errorf("UUID() = %q, want %q", got, want)
	}
	if got := v.Type(); got != "ext2" {
		t.Errorf("Type() = %q, want %q", got, "ext2")
	}
	if got, want := v.VolumeSize(), int64(v.BlocksCount())*1024; got != want {
		t.Errorf("VolumeSize() = %d, want %d", got, want)
	}
}

func TestOpenReaderBlockSize4096(t *testing.T) {
	img := ext2test.New(4096)
	f := img.NewInode(ext2test.ModeRegular | 0644)
	f.SetContent([]byte("four k"))
	img.AddChild(img.Root, "f", f)

	v, _ := openImage(t, img)
	if got := v.BlockSize(); got != 4096 {
		t.Errorf("BlockSize() = %d, want 4096", got)
	}
	if _, _, err := v.ResolvePath("/f"); err != nil {
		t.Errorf("ResolvePath(/f): %v", err)
	}
}

func TestOpenReaderBadMagic(t *testing.T) {
	data := ext2test.New(1024).Bytes()
	binary.LittleEndian.PutUint16(data[1024+0x38:], 0x1234)

	_, err := OpenReader(bytes.NewReader(data))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("OpenReader with bad magic: err = %v, want ErrFormat", err)
	}
}

func TestOpenReaderUnsupportedFeature(t *testing.T) {
	data := ext2test.New(1024).Bytes()
	// Set the extents incompat flag on top of filetype.
	binary.LittleEndian.PutUint32(data[1024+0x60:], 0x0002|0x0040)

	_, err := OpenReader(bytes.NewReader(data))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("OpenReader with extents flag: err = %v, want ErrFormat", err)
	}
}

func TestOpenReaderTruncated(t *testing.T) {
	if _, err := OpenReader(bytes.NewReader(make([]byte, 512))); err == nil {
		t.Error("OpenReader on truncated image: err = nil")
	}
}

func TestOpenFile(t *testing.T) {
	img := ext2test.New(1024)
	f := img.NewInode(ext2test.ModeRegular | 0644)
	f.SetContent([]byte("on disk"))
	img.AddChild(img.Root, "f", f)

	path := filepath.Join(t.TempDir(), "test.img")
	if err := os.WriteFile(path, img.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := v.ResolvePath("/f"); err != nil {
		t.Errorf("ResolvePath(/f): %v", err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.img")); err == nil {
		t.Error("Open on missing file: err = nil")
	}
}

func TestReadInodeOutOfRange(t *testing.T) {
	v, _ := openImage(t, ext2test.New(1024))

	if _, err := v.ReadInode(0); !errors.Is(err, ErrFormat) {
		t.Errorf("ReadInode(0): err = %v, want ErrFormat", err)
	}
	if _, err := v.ReadInode(1 << 20); !errors.Is(err, ErrFormat) {
		t.Errorf("ReadInode(1<<20): err = %v, want ErrFormat", err)
	}
}

func TestReadInodeMultiGroup(t *testing.T) {
	img := ext2test.NewWithGeometry(1024, 16, 3)
	// Inodes start at 11, so the 7th file lands in the second group.
	var last *ext2test.Node
	for i := 0; i < 10; i++ {
		last = img.NewInode(ext2test.ModeRegular | 0600)
		last.SetContent([]byte{byte('a' + i)})
		img.AddChild(img.Root, string(rune('a'+i)), last)
	}
	if last.Ino() <= 16 {
		t.Fatalf("last inode %d still in group 0", last.Ino())
	}

	v, _ := openImage(t, img)
	ino, err := v.ReadInode(last.Ino())
	if err != nil {
		t.Fatalf("ReadInode(%d): %v", last.Ino(), err)
	}
	if !ino.IsRegular() {
		t.Errorf("inode %d: mode %#x, want regular", last.Ino(), ino.Mode)
	}

	var buf [1]byte
	if n, err := v.ReadFileAt(ino, buf[:], 0); err != nil || n != 1 || buf[0] != 'j' {
		t.Errorf("ReadFileAt = %d, %v, %q; want 1, nil, %q", n, err, buf[:], "j")
	}
}

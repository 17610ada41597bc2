package fusefs

import (
	"bytes"
	"sort"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanwen/go-fuse/fuse"

	"github.com/e2fuse/e2fuse/ext2"
	"github.com/e2fuse/e2fuse/ext2/ext2test"
)

func fixture(t *testing.T) *FileSystem {
	t.Helper()
	img := ext2test.New(1024)

	hello := img.NewInode(ext2test.ModeRegular | 0644)
	hello.SetContent([]byte("hello, world\n"))
	hello.UID = 1000
	hello.GID = 100
	hello.Mtime = 1700000000
	img.AddChild(img.Root, "hello.txt", hello)

	sub := img.NewDir(img.Root)
	img.AddChild(img.Root, "sub", sub)

	img.AddChild(img.Root, "link", img.NewSymlink("hello.txt"))

	vol, err := ext2.OpenReader(bytes.NewReader(img.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	return New(vol)
}

func TestGetAttr(t *testing.T) {
	fsys := fixture(t)

	attr, status := fsys.GetAttr("", nil)
	if status != fuse.OK {
		t.Fatalf("GetAttr(root): %v", status)
	}
	if attr.Ino != ext2.RootIno {
		t.Errorf("root Ino = %d, want %d", attr.Ino, ext2.RootIno)
	}
	if attr.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		t.Errorf("root Mode = %#o, want directory", attr.Mode)
	}

	attr, status = fsys.GetAttr("hello.txt", nil)
	if status != fuse.OK {
		t.Fatalf("GetAttr(hello.txt): %v", status)
	}
	if attr.Mode&syscall.S_IFMT != syscall.S_IFREG {
		t.Errorf("Mode = %#o, want regular", attr.Mode)
	}
	if attr.Mode&0777 != 0644 {
		t.Errorf("permissions = %#o, want 0644", attr.Mode&0777)
	}
	if attr.Size != 13 {
		t.Errorf("Size = %d, want 13", attr.Size)
	}
	if attr.Mtime != 1700000000 {
		t.Errorf("Mtime = %d, want 1700000000", attr.Mtime)
	}
	if attr.Owner.Uid != 1000 || attr.Owner.Gid != 100 {
		t.Errorf("Owner = %d:%d, want 1000:100", attr.Owner.Uid, attr.Owner.Gid)
	}

	if _, status := fsys.GetAttr("missing", nil); status != fuse.ENOENT {
		t.Errorf("GetAttr(missing) = %v, want ENOENT", status)
	}
}

func TestOpenDir(t *testing.T) {
	fsys := fixture(t)

	stream, status := fsys.OpenDir("", nil)
	if status != fuse.OK {
		t.Fatalf("OpenDir(root): %v", status)
	}

	var names []string
	for _, e := range stream {
		names = append(names, e.Name)
		if e.Ino == 0 {
			t.Errorf("entry %q has inode 0", e.Name)
		}
	}
	sort.Strings(names)
	want := []string{".", "..", "hello.txt", "link", "sub"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("directory stream (-want +got):\n%s", diff)
	}

	for _, e := range stream {
		switch e.Name {
		case "hello.txt":
			if e.Mode != syscall.S_IFREG {
				t.Errorf("hello.txt Mode = %#o, want S_IFREG", e.Mode)
			}
		case "link":
			if e.Mode != syscall.S_IFLNK {
				t.Errorf("link Mode = %#o, want S_IFLNK", e.Mode)
			}
		case "sub":
			if e.Mode != syscall.S_IFDIR {
				t.Errorf("sub Mode = %#o, want S_IFDIR", e.Mode)
			}
		}
	}

	if _, status := fsys.OpenDir("hello.txt", nil); status != fuse.ENOTDIR {
		t.Errorf("OpenDir(hello.txt) = %v, want ENOTDIR", status)
	}
	if _, status := fsys.OpenDir("missing", nil); status != fuse.ENOENT {
		t.Errorf("OpenDir(missing) = %v, want ENOENT", status)
	}
}

func TestOpenAndRead(t *testing.T) {
	fsys := fixture(t)

	f, status := fsys.Open("hello.txt", uint32(syscall.O_RDONLY), nil)
	if status != fuse.OK {
		t.Fatalf("Open(hello.txt): %v", status)
	}

	dest := make([]byte, 64)
	res, status := f.Read(dest, 0)
	if status != fuse.OK {
		t.Fatalf("Read: %v", status)
	}
	got, _ := res.Bytes(nil)
	if string(got) != "hello, world\n" {
		t.Errorf("Read = %q", got)
	}

	res, status = f.Read(dest, 7)
	if status != fuse.OK {
		t.Fatalf("Read at 7: %v", status)
	}
	got, _ = res.Bytes(nil)
	if string(got) != "world\n" {
		t.Errorf("Read at 7 = %q", got)
	}

	res, status = f.Read(dest, 1000)
	if status != fuse.OK {
		t.Fatalf("Read past end: %v", status)
	}
	if res.Size() != 0 {
		t.Errorf("Read past end = %d bytes, want 0", res.Size())
	}

	var attr fuse.Attr
	if status := f.GetAttr(&attr); status != fuse.OK || attr.Size != 13 {
		t.Errorf("file GetAttr = %v, Size %d", status, attr.Size)
	}
}

func TestOpenRejectsWrites(t *testing.T) {
	fsys := fixture(t)

	for _, flags := range []uint32{syscall.O_WRONLY, syscall.O_RDWR, syscall.O_RDWR | syscall.O_TRUNC} {
		if _, status := fsys.Open("hello.txt", flags, nil); status != fuse.EACCES {
			t.Errorf("Open(flags=%#x) = %v, want EACCES", flags, status)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	fsys := fixture(t)

	if _, status := fsys.Open("sub", uint32(syscall.O_RDONLY), nil); status != fuse.Status(syscall.EISDIR) {
		t.Errorf("Open(sub) = %v, want EISDIR", status)
	}
	if _, status := fsys.Open("missing", uint32(syscall.O_RDONLY), nil); status != fuse.ENOENT {
		t.Errorf("Open(missing) = %v, want ENOENT", status)
	}
}

func TestReadlink(t *testing.T) {
	fsys := fixture(t)

	target, status := fsys.Readlink("link", nil)
	if status != fuse.OK {
		t.Fatalf("Readlink(link): %v", status)
	}
	if target != "hello.txt" {
		t.Errorf("Readlink(link) = %q, want %q", target, "hello.txt")
	}

	if _, status := fsys.Readlink("hello.txt", nil); status != fuse.EINVAL {
		t.Errorf("Readlink(hello.txt) = %v, want EINVAL", status)
	}
	if _, status := fsys.Readlink("missing", nil); status != fuse.ENOENT {
		t.Errorf("Readlink(missing) = %v, want ENOENT", status)
	}
}

func TestStatFs(t *testing.T) {
	fsys := fixture(t)

	out := fsys.StatFs("")
	if out == nil {
		t.Fatal("StatFs returned nil")
	}
	if out.Bsize != 1024 {
		t.Errorf("Bsize = %d, want 1024", out.Bsize)
	}
	if out.Blocks == 0 {
		t.Error("Blocks = 0")
	}
	if out.NameLen != 255 {
		t.Errorf("NameLen = %d, want 255", out.NameLen)
	}
}

package cmd

import (
	"fmt"
	"io"

	"github.com/docker/go-units"

	"github.com/e2fuse/e2fuse/ext2"
)

// Stat shows detailed information about a file or directory.
func Stat(filesystem FS, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	info, err := filesystem.Stat(fsPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "   File: %s\n", info.Name())
	fmt.Fprintf(out, "   Size: %d\n", info.Size())
	fmt.Fprintf(out, "   Mode: %s\n", info.Mode())
	fmt.Fprintf(out, "ModTime: %s\n", info.ModTime())

	if fi, ok := info.(ext2.FileInfo); ok {
		fmt.Fprintf(out, "  Inode: %d\n", fi.Inode())
	}
	if ino, ok := info.Sys().(*ext2.Inode); ok {
		fmt.Fprintf(out, "  Links: %d\n", ino.Links)
		fmt.Fprintf(out, "  Owner: %d:%d\n", ino.UID, ino.GID)
	}
	return nil
}

// Info prints the volume's superblock summary.
func Info(vol *ext2.Volume, out io.Writer) error {
	fmt.Fprintf(out, "       Type: %s\n", vol.Type())
	if label := vol.Label(); label != "" {
		fmt.Fprintf(out, "      Label: %s\n", label)
	}
	fmt.Fprintf(out, "       UUID: %s\n", vol.UUID())
	fmt.Fprintf(out, " Block size: %d\n", vol.BlockSize())
	fmt.Fprintf(out, "     Blocks: %d (%d free)\n", vol.BlocksCount(), vol.FreeBlocksCount())
	fmt.Fprintf(out, "     Inodes: %d (%d free)\n", vol.InodesCount(), vol.FreeInodesCount())
	fmt.Fprintf(out, "     Groups: %d\n", vol.GroupCount())
	fmt.Fprintf(out, "       Size: %s\n", units.BytesSize(float64(vol.VolumeSize())))
	return nil
}

// Package cmd implements the e2fuse commands.
package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/docker/go-units"

	"github.com/e2fuse/e2fuse/ext2"
)

// FS is the filesystem surface the commands operate on. An
// *ext2.Volume satisfies it.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS
}

// LsOptions controls ls behavior.
type LsOptions struct {
	Long  bool // Long format (-l)
	Human bool // Human-readable sizes (-H)
}

// Ls lists the contents of a path in the filesystem.
// If the path is a file, it shows file information.
// If the path is a directory, it lists its contents.
func Ls(filesystem FS, fsPath string, out io.Writer, opts LsOptions) error {
	fsPath = normalizePath(fsPath)

	info, err := filesystem.Stat(fsPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return listDirectory(filesystem, fsPath, out, opts)
	}
	return showFileInfo(info, out, opts)
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

func listDirectory(filesystem FS, dirPath string, out io.Writer, opts LsOptions) error {
	entries, err := filesystem.ReadDir(dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()

		if opts.Long {
			info, err := entry.Info()
			if err != nil {
				fmt.Fprintf(out, "%-10s %12s %s %s\n", "?????????", "?", "????????????", name)
				continue
			}
			printLongFormat(info, out, opts.Human)
		} else {
			if entry.IsDir() {
				name += "/"
			}
			fmt.Fprintln(out, name)
		}
	}
	return nil
}

func showFileInfo(info fs.FileInfo, out io.Writer, opts LsOptions) error {
	if opts.Long {
		printLongFormat(info, out, opts.Human)
	} else {
		fmt.Fprintln(out, info.Name())
	}
	return nil
}

func printLongFormat(info fs.FileInfo, out io.Writer, human bool) {
	mode := info.Mode()
	modTime := info.ModTime().Format("Jan _2 15:04")
	name := info.Name()

	size := fmt.Sprintf("%12d", info.Size())
	if human {
		size = fmt.Sprintf("%12s", units.BytesSize(float64(info.Size())))
	}

	var inode string
	if fi, ok := info.(ext2.FileInfo); ok {
		inode = fmt.Sprintf("%8d ", fi.Inode())
	}

	fmt.Fprintf(out, "%s%s %s %s %s\n", inode, mode, size, modTime, name)
}

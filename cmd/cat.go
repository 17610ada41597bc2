package cmd

import (
	"fmt"
	"io"
)

// Cat copies the contents of a file to the given writer. When the
// opened file supports positioned reads it streams in fixed-size
// chunks, so large files are never loaded into memory at once.
func Cat(filesystem FS, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	info, err := filesystem.Stat(fsPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", fsPath)
	}

	file, err := filesystem.Open(fsPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if r, ok := file.(io.ReaderAt); ok {
		return streamFromReaderAt(r, info.Size(), out)
	}
	_, err = io.Copy(out, file)
	return err
}

// streamFromReaderAt copies data from a ReaderAt to a Writer in chunks.
func streamFromReaderAt(r io.ReaderAt, size int64, out io.Writer) error {
	const bufSize = 64 * 1024
	buf := make([]byte, bufSize)
	offset := int64(0)

	for offset < size {
		toRead := int64(bufSize)
		if offset+toRead > size {
			toRead = size - offset
		}

		n, err := r.ReadAt(buf[:toRead], offset)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return nil
}

// Package splitter partitions a staged file into bounded-size parts that
// concatenate back to the original byte stream.
package splitter

import (
	"fmt"
	"io"
	"os"
)

// readBufferSize is the fixed I/O buffer, independent of the chunk size.
const readBufferSize = 10 << 20

// Part is one ordered piece of a split file. Seq starts at zero.
type Part struct {
	Seq  int
	Path string
	Size int64
}

// Split partitions the file at path into parts of exactly chunkSize bytes,
// except possibly the last. When the file fits into a single chunk the
// original is returned as the only part, with no copy. Part files are written
// next to the source as "<name>.partNNN".
func Split(path string, chunkSize int64) ([]Part, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("split %s: chunk size must be positive, got %d", path, chunkSize)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}

	if info.Size() <= chunkSize {
		return []Part{{Seq: 0, Path: path, Size: info.Size()}}, nil
	}

	source, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	defer source.Close()

	buf := make([]byte, readBufferSize)

	var parts []Part
	for seq := 0; ; seq++ {
		partPath := fmt.Sprintf("%s.part%03d", path, seq)

		written, err := writePart(source, partPath, chunkSize, buf)
		if err != nil {
			removeParts(parts)
			return nil, fmt.Errorf("split %s: part %d: %w", path, seq, err)
		}

		if written == 0 {
			// Source ended exactly on a chunk boundary.
			_ = os.Remove(partPath)
			break
		}

		parts = append(parts, Part{Seq: seq, Path: partPath, Size: written})
		if written < chunkSize {
			break
		}
	}

	return parts, nil
}

func writePart(source io.Reader, partPath string, chunkSize int64, buf []byte) (int64, error) {
	dest, err := os.Create(partPath)
	if err != nil {
		return 0, err
	}
	defer dest.Close()

	var written int64
	for written < chunkSize {
		readSize := int64(len(buf))
		if remaining := chunkSize - written; remaining < readSize {
			readSize = remaining
		}

		n, err := source.Read(buf[:readSize])
		if n > 0 {
			if _, werr := dest.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
	}

	if err := dest.Close(); err != nil {
		return written, err
	}
	return written, nil
}

func removeParts(parts []Part) {
	for _, p := range parts {
		_ = os.Remove(p.Path)
	}
}

// Package fingerprint reproduces the hashes digiKam stores in its catalog and
// the full-content digest used to prove two files are byte-identical.
//
// Partial must match digiKam's uniqueHashV2 bit for bit: any deviation makes
// every catalog lookup miss without an error.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

const (
	// PartialWindow is the size of the head and tail windows hashed by Partial.
	PartialWindow = 100 * 1024
	// ContentBlockSize is the read size used when streaming whole files.
	ContentBlockSize = 8 * 1024
)

// Partial returns the catalog fingerprint of the file at path: the MD5 of the
// first min(100 KiB, size) bytes followed by the last min(100 KiB, size) bytes.
// The two windows overlap for files smaller than 200 KiB.
func Partial(fsys afero.Fs, path string) (string, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("fingerprint %s: is a directory", path)
	}

	sum, err := PartialReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return sum, nil
}

// PartialReader computes the catalog fingerprint over r, which holds size bytes.
func PartialReader(r io.ReaderAt, size int64) (string, error) {
	if size < 0 {
		return "", fmt.Errorf("invalid size %d", size)
	}
	hash := md5.New()
	window := min(int64(PartialWindow), size)
	if window > 0 {
		if err := copyWindow(hash, r, 0, window); err != nil {
			return "", err
		}
		if err := copyWindow(hash, r, size-window, window); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func copyWindow(dst io.Writer, r io.ReaderAt, offset, length int64) error {
	n, err := io.Copy(dst, io.NewSectionReader(r, offset, length))
	if err != nil {
		return fmt.Errorf("read %d bytes at offset %d: %w", length, offset, err)
	}
	if n != length {
		return fmt.Errorf("read %d bytes at offset %d: %w (got %d)", length, offset, io.ErrUnexpectedEOF, n)
	}
	return nil
}

// Content returns the MD5 of the entire file, read in ContentBlockSize blocks.
func Content(fsys afero.Fs, path string) (string, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	sum, err := ContentReader(file)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}

// ContentReader returns the MD5 of everything remaining in r.
func ContentReader(r io.Reader) (string, error) {
	hash := md5.New()
	buf := make([]byte, ContentBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// SameContent reports whether the files at a and b hash identically.
// The returned digests are useful for logging.
func SameContent(fsys afero.Fs, a, b string) (bool, string, string, error) {
	sumA, err := Content(fsys, a)
	if err != nil {
		return false, "", "", err
	}
	sumB, err := Content(fsys, b)
	if err != nil {
		return false, sumA, "", err
	}
	return sumA == sumB, sumA, sumB, nil
}

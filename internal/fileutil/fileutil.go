package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Reason classifies why a move failed.
type Reason string

const (
	ReasonMissingSource Reason = "missing_source"
	ReasonPermission    Reason = "permission_denied"
	ReasonCrossDevice   Reason = "cross_device"
	ReasonExists        Reason = "destination_exists"
	ReasonOther         Reason = "other"
)

// Hint returns operator guidance for the reason.
func (r Reason) Hint() string {
	switch r {
	case ReasonMissingSource:
		return "file is in the catalog but not on disk; rescan the collection in digiKam"
	case ReasonPermission:
		return "check ownership and permissions of the album and target trees"
	case ReasonCrossDevice:
		return "target_root is on another filesystem; enable resolve.cross_device_copy or pick a target on the same device"
	case ReasonExists:
		return "a file with the same name is already in the target tree; inspect it before rerunning"
	default:
		return "check logs for details"
	}
}

// MoveError describes a failed move.
type MoveError struct {
	Src    string
	Dst    string
	Op     string
	Reason Reason
	Err    error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %s: %v", e.Op, e.Src, e.Dst, e.Reason, e.Err)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// Classify maps a filesystem error to a Reason.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fs.ErrExist):
		return ReasonExists
	case errors.Is(err, unix.EXDEV):
		return ReasonCrossDevice
	case errors.Is(err, fs.ErrNotExist):
		return ReasonMissingSource
	case errors.Is(err, fs.ErrPermission):
		return ReasonPermission
	default:
		return ReasonOther
	}
}

func moveError(op, src, dst string, err error) *MoveError {
	return &MoveError{Src: src, Dst: dst, Op: op, Reason: Classify(err), Err: err}
}

// Move creates the destination's parent directories and renames src to dst.
// An existing dst is never overwritten.
func Move(fsys afero.Fs, src, dst string) error {
	if err := prepareDestination(fsys, src, dst); err != nil {
		return err
	}
	if err := fsys.Rename(src, dst); err != nil {
		return moveError("rename", src, dst, err)
	}
	return nil
}

// MoveAcrossDevices behaves like Move but falls back to a verified copy
// followed by removal of src when the rename crosses filesystems.
func MoveAcrossDevices(fsys afero.Fs, src, dst string) error {
	if err := prepareDestination(fsys, src, dst); err != nil {
		return err
	}
	err := fsys.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EXDEV) {
		return moveError("rename", src, dst, err)
	}
	if err := CopyFileVerified(fsys, src, dst); err != nil {
		return moveError("copy", src, dst, err)
	}
	if err := fsys.Remove(src); err != nil {
		return moveError("remove source", src, dst, err)
	}
	return nil
}

func prepareDestination(fsys afero.Fs, src, dst string) error {
	if _, err := fsys.Stat(dst); err == nil {
		return moveError("rename", src, dst, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return moveError("stat destination", src, dst, err)
	}
	if err := fsys.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return moveError("mkdir", src, dst, err)
	}
	return nil
}

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// Removes dst on mismatch.
func CopyFileVerified(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		_ = fsys.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = fsys.Remove(dst)
		return err
	}

	if written != srcInfo.Size() {
		_ = fsys.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = fsys.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// IsWithin reports whether path equals root or lies beneath it.
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

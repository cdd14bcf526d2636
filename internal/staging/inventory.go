package staging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DirInfo contains metadata about a top-level staging directory.
type DirInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Files   int       `json:"files"`
	Size    int64     `json:"size"`
}

// Summary totals the whole staging tree, including files at its root.
type Summary struct {
	Directories int   `json:"directories"`
	Files       int   `json:"files"`
	Size        int64 `json:"size"`
}

// ListDirectories returns the top-level directories of stagingDir with
// recursive file counts and sizes. A missing staging directory is empty.
func ListDirectories(fsys afero.Fs, stagingDir string) ([]DirInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := afero.ReadDir(fsys, stagingDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(stagingDir, entry.Name())
		files, size := dirUsage(fsys, dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: entry.ModTime(),
			Files:   files,
			Size:    size,
		})
	}
	return dirs, nil
}

// Summarize counts directories, files and bytes below stagingDir.
func Summarize(fsys afero.Fs, stagingDir string) (Summary, error) {
	var summary Summary
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return summary, nil
	}
	err := afero.Walk(fsys, stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == stagingDir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		switch {
		case path == stagingDir:
		case info.IsDir():
			summary.Directories++
		case info.Mode().IsRegular():
			summary.Files++
			summary.Size += info.Size()
		}
		return nil
	})
	if errors.Is(err, filepath.SkipDir) {
		err = nil
	}
	return summary, err
}

// dirUsage totals regular files below path, best effort.
func dirUsage(fsys afero.Fs, path string) (int, int64) {
	var (
		files int
		size  int64
	)
	_ = afero.Walk(fsys, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}

package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"digidup/internal/logging"
)

// PruneResult contains the outcome of a prune operation.
type PruneResult struct {
	Removed []string       `json:"removed"`
	Errors  []CleanupError `json:"errors,omitempty"`
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// PruneEmpty removes directories below stagingDir that contain no files,
// deepest first, so nested empty trees disappear in one pass. stagingDir
// itself is kept. With dryRun nothing is removed but Removed lists what
// would be.
func PruneEmpty(ctx context.Context, fsys afero.Fs, stagingDir string, dryRun bool, logger *slog.Logger) (PruneResult, error) {
	result := PruneResult{}
	logger = logging.NewComponentLogger(logger, "staging")

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result, nil
	}

	var dirs []string
	err := afero.Walk(fsys, stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == stagingDir {
				return err
			}
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err.Error()})
			return nil
		}
		if info.IsDir() && path != stagingDir {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, err
	}

	removed := make(map[string]bool, len(dirs))
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		dir := dirs[i]
		empty, err := isEffectivelyEmpty(fsys, dir, removed)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err.Error()})
			continue
		}
		if !empty {
			continue
		}
		if dryRun {
			removed[dir] = true
			result.Removed = append(result.Removed, dir)
			logger.Info("would remove empty staging directory", logging.String("path", dir))
			continue
		}
		if err := fsys.Remove(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err.Error()})
			logging.WarnWithContext(logger, "failed to remove empty staging directory", "staging_prune_failed",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "empty directory left in place"),
			)
			continue
		}
		removed[dir] = true
		result.Removed = append(result.Removed, dir)
		logger.Info("removed empty staging directory",
			logging.String("path", dir),
			logging.String(logging.FieldEventType, "staging_prune"),
		)
	}
	return result, nil
}

// isEffectivelyEmpty treats subdirectories already pruned (or marked for
// pruning in a dry run) as absent.
func isEffectivelyEmpty(fsys afero.Fs, dir string, removed map[string]bool) (bool, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() || !removed[filepath.Join(dir, entry.Name())] {
			return false, nil
		}
	}
	return true, nil
}

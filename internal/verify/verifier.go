package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"digidup/internal/catalog"
	"digidup/internal/fileutil"
	"digidup/internal/fingerprint"
	"digidup/internal/logging"
)

// errSameFile marks a staging entry that is the catalogued file itself.
var errSameFile = errors.New("staging file is the catalogued original")

// DefaultInclude matches any file with an extension at any depth.
var DefaultInclude = []string{"**/*.*"}

// Lookup finds catalog images by fingerprint.
type Lookup interface {
	LookupByFingerprint(ctx context.Context, fingerprint string) ([]catalog.Image, error)
}

// Config is fixed for the lifetime of a run. Patterns are doublestar globs
// matched against slash-separated paths relative to StagingDir.
type Config struct {
	AlbumRoot  string
	StagingDir string
	Include    []string
	Exclude    []string
	// Delete removes staging files whose content is verified.
	Delete bool
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AlbumRoot) == "" {
		return errors.New("album root is required")
	}
	if strings.TrimSpace(c.StagingDir) == "" {
		return errors.New("staging directory is required")
	}
	if fileutil.IsWithin(filepath.Clean(c.StagingDir), filepath.Clean(c.AlbumRoot)) {
		return fmt.Errorf("staging directory %s must not be inside album root %s", c.StagingDir, c.AlbumRoot)
	}
	if fileutil.IsWithin(filepath.Clean(c.AlbumRoot), filepath.Clean(c.StagingDir)) {
		return fmt.Errorf("album root %s must not be inside staging directory %s", c.AlbumRoot, c.StagingDir)
	}
	for _, pattern := range append(append([]string(nil), c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Files    []FileResult   `json:"files"`
	Counts   map[Status]int `json:"counts"`
	Freed    int64          `json:"freed_bytes"`
	Duration time.Duration  `json:"duration"`
}

// Count returns the number of files with status s.
func (r Report) Count(s Status) int {
	return r.Counts[s]
}

func (r *Report) add(result FileResult) {
	r.Files = append(r.Files, result)
	r.Counts[result.Status]++
}

// Verifier runs one verification pass over a staging tree.
type Verifier struct {
	cfg    Config
	lookup Lookup
	fs     afero.Fs
	logger *slog.Logger
}

// New validates cfg and prepares a run. A nil fs means the OS filesystem.
func New(cfg Config, lookup Lookup, fsys afero.Fs, logger *slog.Logger) (*Verifier, error) {
	if len(cfg.Include) == 0 {
		cfg.Include = DefaultInclude
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if lookup == nil {
		return nil, errors.New("catalog is required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Verifier{
		cfg:    cfg,
		lookup: lookup,
		fs:     fsys,
		logger: logging.NewComponentLogger(logger, "verify"),
	}, nil
}

// Run walks the staging tree in lexical order. Per-file problems are logged
// and recorded in the report; catalog failures abort the run.
func (v *Verifier) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	report := Report{Counts: map[Status]int{}}

	v.logger.Info("verifying staging tree",
		logging.String("staging_dir", v.cfg.StagingDir),
		logging.Bool("delete", v.cfg.Delete),
		logging.String(logging.FieldEventType, "verify_started"),
	)

	err := afero.Walk(v.fs, v.cfg.StagingDir, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == v.cfg.StagingDir {
				return walkErr
			}
			v.failed(&report, FileResult{Path: path}, "cannot read staging entry", walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !v.selected(path) {
			return nil
		}
		if !info.Mode().IsRegular() {
			v.logger.Debug("skipping non-regular file", logging.String("path", path))
			return nil
		}
		result, err := v.checkFile(ctx, path, info.Size())
		if err != nil {
			return err
		}
		report.add(result)
		if result.Status == StatusDeleted {
			report.Freed += info.Size()
		}
		return nil
	})

	report.Duration = time.Since(started)
	if err != nil {
		return report, fmt.Errorf("verify %s: %w", v.cfg.StagingDir, err)
	}

	v.logger.Info("verification finished",
		logging.Int("files", len(report.Files)),
		logging.Int("verified", report.Count(StatusVerified)),
		logging.Int("deleted", report.Count(StatusDeleted)),
		logging.Int("untracked", report.Count(StatusUntracked)),
		logging.Int("ambiguous", report.Count(StatusAmbiguous)),
		logging.Int("mismatch", report.Count(StatusMismatch)),
		logging.Int("failed", report.Count(StatusFailed)),
		logging.Duration("duration", report.Duration),
		logging.String(logging.FieldEventType, "verify_finished"),
	)
	return report, nil
}

func (v *Verifier) selected(path string) bool {
	rel, err := filepath.Rel(v.cfg.StagingDir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if !matchAny(v.cfg.Include, rel) {
		return false
	}
	return !matchAny(v.cfg.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// checkFile returns an error only when the catalog lookup fails.
func (v *Verifier) checkFile(ctx context.Context, path string, size int64) (FileResult, error) {
	result := FileResult{Path: path}

	sum, err := fingerprint.Partial(v.fs, path)
	if err != nil {
		return v.failedResult(result, "cannot fingerprint staging file", err), nil
	}
	result.Fingerprint = sum

	images, err := v.lookup.LookupByFingerprint(ctx, sum)
	if err != nil {
		return result, err
	}
	result.Matches = len(images)

	switch len(images) {
	case 0:
		result.Status = StatusUntracked
		logging.ErrorWithContext(v.logger, "staging file not found in catalog", "verify_untracked",
			logging.String("path", path),
			logging.String(logging.FieldFingerprint, sum),
			logging.String(logging.FieldErrorHint, "the file is not a copy of any catalogued image; review it by hand"),
		)
		return result, nil
	case 1:
	default:
		result.Status = StatusAmbiguous
		logging.WarnWithContext(v.logger, "staging file matches several catalog images", "verify_ambiguous",
			logging.String("path", path),
			logging.String(logging.FieldFingerprint, sum),
			logging.Int("matches", len(images)),
			logging.String(logging.FieldErrorHint, "run digidup resolve first"),
			logging.String(logging.FieldImpact, "staging file kept"),
		)
		return result, nil
	}

	img := images[0]
	result.ImageID = img.ID
	catalogPath, err := img.Path(v.cfg.AlbumRoot)
	if err != nil {
		return v.failedResult(result, "cannot resolve catalog image path", err), nil
	}
	result.CatalogPath = catalogPath
	if v.sameFile(path, catalogPath) {
		return v.failedResult(result, "staging file is the catalogued original", errSameFile), nil
	}

	same, stagingSum, catalogSum, err := fingerprint.SameContent(v.fs, path, catalogPath)
	if err != nil {
		return v.failedResult(result, "cannot compare file contents", err), nil
	}
	if !same {
		result.Status = StatusMismatch
		logging.ErrorWithContext(v.logger, "content hashes differ, possible file corruption", "verify_mismatch",
			logging.String("path", path),
			logging.String("catalog_path", catalogPath),
			logging.String("staging_md5", stagingSum),
			logging.String("catalog_md5", catalogSum),
			logging.String(logging.FieldErrorHint, "compare both files before deleting either"),
		)
		return result, nil
	}

	attrs := []logging.Attr{
		logging.String("path", path),
		logging.String("catalog_path", catalogPath),
		logging.Int64(logging.FieldImageID, img.ID),
		logging.Int64("size", size),
	}
	if !v.cfg.Delete {
		result.Status = StatusVerified
		v.logger.Info("content matches catalog image, would delete", logging.Args(attrs...)...)
		return result, nil
	}
	if err := v.fs.Remove(path); err != nil {
		return v.failedResult(result, "cannot delete verified staging file", err), nil
	}
	result.Status = StatusDeleted
	v.logger.Info("content matches catalog image, deleted", logging.Args(attrs...)...)
	return result, nil
}

// sameFile also catches hard links and symlinked directories that lead back
// into the album tree.
func (v *Verifier) sameFile(stagingPath, catalogPath string) bool {
	if filepath.Clean(stagingPath) == filepath.Clean(catalogPath) {
		return true
	}
	a, err := v.fs.Stat(stagingPath)
	if err != nil {
		return false
	}
	b, err := v.fs.Stat(catalogPath)
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}

func (v *Verifier) failedResult(result FileResult, msg string, err error) FileResult {
	result.Status = StatusFailed
	result.Error = err.Error()
	hint := "check permissions of the staging and album trees"
	switch {
	case errors.Is(err, fs.ErrNotExist):
		hint = "the catalogued file is missing; rescan the collection in digiKam"
	case errors.Is(err, errSameFile):
		hint = "staging_dir reaches into the album tree; point it at a separate folder"
	}
	logging.ErrorWithContext(v.logger, msg, "verify_failed",
		logging.String("path", result.Path),
		logging.String("catalog_path", result.CatalogPath),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
	)
	return result
}

func (v *Verifier) failed(report *Report, result FileResult, msg string, err error) {
	report.add(v.failedResult(result, msg, err))
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Normalize expands paths and fills blank values with defaults. Callers that
// override fields after Load (for example from command-line flags) should
// call Normalize and Validate again.
func (c *Config) Normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeResolve()
	c.normalizeVerify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.AlbumRoot, err = expandPath(strings.TrimSpace(c.Paths.AlbumRoot)); err != nil {
		return fmt.Errorf("paths.album_root: %w", err)
	}
	if c.Paths.TargetRoot, err = expandPath(strings.TrimSpace(c.Paths.TargetRoot)); err != nil {
		return fmt.Errorf("paths.target_root: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(strings.TrimSpace(c.Paths.StagingDir)); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.CatalogPath, err = expandPath(strings.TrimSpace(c.Paths.CatalogPath)); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeResolve() {
	if c.Resolve.BatchThreshold == 0 {
		c.Resolve.BatchThreshold = defaultBatchThreshold
	}
}

func (c *Config) normalizeVerify() {
	c.Verify.Include = cleanPatterns(c.Verify.Include)
	if len(c.Verify.Include) == 0 {
		c.Verify.Include = append([]string(nil), DefaultInclude...)
	}
	c.Verify.Exclude = cleanPatterns(c.Verify.Exclude)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// cleanPatterns trims, converts to forward slashes and de-duplicates glob patterns.
func cleanPatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, 0, len(patterns))
	seen := make(map[string]struct{}, len(patterns))
	for _, pattern := range patterns {
		normalized := filepath.ToSlash(strings.TrimSpace(pattern))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

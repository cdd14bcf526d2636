package config

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"digidup/internal/fileutil"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateResolve(); err != nil {
		return err
	}
	if err := c.validateVerify(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.AlbumRoot == "" {
		return errors.New("paths.album_root must be set")
	}
	if c.Paths.TargetRoot != "" && fileutil.IsWithin(c.Paths.TargetRoot, c.Paths.AlbumRoot) {
		return fmt.Errorf("paths.target_root %q must not be inside paths.album_root %q", c.Paths.TargetRoot, c.Paths.AlbumRoot)
	}
	if c.Paths.StagingDir != "" && fileutil.IsWithin(c.Paths.StagingDir, c.Paths.AlbumRoot) {
		return fmt.Errorf("paths.staging_dir %q must not be inside paths.album_root %q", c.Paths.StagingDir, c.Paths.AlbumRoot)
	}
	if c.Paths.StagingDir != "" && fileutil.IsWithin(c.Paths.AlbumRoot, c.Paths.StagingDir) {
		return fmt.Errorf("paths.album_root %q must not be inside paths.staging_dir %q", c.Paths.AlbumRoot, c.Paths.StagingDir)
	}
	return nil
}

func (c *Config) validateResolve() error {
	if c.Resolve.BatchThreshold < 1 {
		return errors.New("resolve.batch_threshold must be at least 1")
	}
	return nil
}

func (c *Config) validateVerify() error {
	for _, pattern := range c.Verify.Include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("verify.include: invalid pattern %q", pattern)
		}
	}
	for _, pattern := range c.Verify.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("verify.exclude: invalid pattern %q", pattern)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"digidup/internal/catalog"
	"digidup/internal/config"
	"digidup/internal/logging"
	"digidup/internal/preflight"
)

type globalFlags struct {
	config    string
	json      bool
	logFormat string
	logLevel  string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.logFormat != "" {
			cfg.Logging.Format = c.flags.logFormat
		}
		if c.flags.logLevel != "" {
			cfg.Logging.Level = c.flags.logLevel
		}
		if err := reload(cfg); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

// commandConfig returns a copy of the loaded config for a command to apply
// its flag overrides to.
func (c *commandContext) commandConfig() (*config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	clone := *cfg
	clone.Verify.Include = append([]string(nil), cfg.Verify.Include...)
	clone.Verify.Exclude = append([]string(nil), cfg.Verify.Exclude...)
	return &clone, nil
}

// reload normalizes and validates a config after overrides.
func reload(cfg *config.Config) error {
	if err := cfg.Normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *commandContext) JSONMode() bool {
	return c.flags != nil && c.flags.json
}

// newLogger builds the run logger. Records go to the command's stderr and
// to the configured log file.
func (c *commandContext) newLogger(cmd *cobra.Command, cfg *config.Config, verbose bool) (*logging.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	var outputs []string
	if path := cfg.LogFile(); path != "" {
		outputs = append(outputs, path)
	}
	return logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Files:  outputs,
		Writer: cmd.ErrOrStderr(),
	})
}

// openCatalog runs preflight checks and opens the catalog. The caller owns
// the returned store.
func openCatalog(ctx context.Context, cfg *config.Config, checks []preflight.Result, readOnly bool) (*catalog.Store, error) {
	if failed := preflight.Failed(checks); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, r := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return nil, fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
	}
	store, err := catalog.Open(ctx, catalog.Options{
		Path:     cfg.CatalogFile(),
		LockPath: cfg.CatalogLockFile(),
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// CatalogFileName is the file digiKam keeps its image catalog in, relative to the album root.
const CatalogFileName = "digikam4.db"

// Paths contains the directory trees digidup operates on.
type Paths struct {
	AlbumRoot   string `toml:"album_root"`
	TargetRoot  string `toml:"target_root"`
	StagingDir  string `toml:"staging_dir"`
	CatalogPath string `toml:"catalog_path"`
	LogDir      string `toml:"log_dir"`
}

// Resolve contains settings for the duplicate resolution workflow.
type Resolve struct {
	// BatchThreshold is the pending-deletion size that, once exceeded, flushes
	// the batch to the catalog.
	BatchThreshold int `toml:"batch_threshold"`
	// CrossDeviceCopy falls back to copy-then-remove when target_root is on
	// another filesystem instead of reporting the move as failed.
	CrossDeviceCopy bool `toml:"cross_device_copy"`
}

// Verify contains settings for the staging verification workflow.
type Verify struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Logging contains log format and level.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all digidup configuration.
//
// Configuration is organized into sections:
//   - Paths: album root, duplicate target root, staging tree, catalog and log locations
//   - Resolve: pending-deletion batch threshold
//   - Verify: include/exclude patterns for the staging walk
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Resolve Resolve `toml:"resolve"`
	Verify  Verify  `toml:"verify"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/digidup/config.toml")
}

// Load locates, parses, and validates a configuration file. Values come from the
// file when present, then DIGIDUP_* environment variables, then repository defaults.
// The returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	cfg.applyEnv()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("digidup.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// CatalogFile returns the catalog database path. Without an explicit
// catalog_path the catalog is expected inside the album root.
func (c *Config) CatalogFile() string {
	if strings.TrimSpace(c.Paths.CatalogPath) != "" {
		return c.Paths.CatalogPath
	}
	return filepath.Join(c.Paths.AlbumRoot, CatalogFileName)
}

// CatalogLockFile returns the lock file guarding the catalog against
// concurrent digidup runs.
func (c *Config) CatalogLockFile() string {
	return c.CatalogFile() + ".digidup.lock"
}

// LogFile returns the path of the persistent log file, or "" when file logging is disabled.
func (c *Config) LogFile() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "digidup.log")
}

// EnsureDirectories creates directories digidup writes into on its own.
// The album, target and staging trees are never created here.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

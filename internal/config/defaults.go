package config

import (
	"os"
	"strings"
)

const (
	defaultAlbumRoot      = "~/Pictures"
	defaultTargetRoot     = "~/Duplicates"
	defaultStagingDir     = "~/Duplicates"
	defaultLogDir         = "~/.local/share/digidup/logs"
	defaultBatchThreshold = 100
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Environment variables consulted before the configuration file is decoded.
const (
	EnvAlbumRoot  = "DIGIDUP_ALBUM_ROOT"
	EnvTargetRoot = "DIGIDUP_TARGET_ROOT"
	EnvStagingDir = "DIGIDUP_STAGING_DIR"
	EnvCatalog    = "DIGIDUP_CATALOG"
	EnvLogDir     = "DIGIDUP_LOG_DIR"
)

// DefaultInclude matches files with an extension at any depth.
var DefaultInclude = []string{"**/*.*"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AlbumRoot:  defaultAlbumRoot,
			TargetRoot: defaultTargetRoot,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Resolve: Resolve{
			BatchThreshold: defaultBatchThreshold,
		},
		Verify: Verify{
			Include: append([]string(nil), DefaultInclude...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func (c *Config) applyEnv() {
	for env, target := range map[string]*string{
		EnvAlbumRoot:  &c.Paths.AlbumRoot,
		EnvTargetRoot: &c.Paths.TargetRoot,
		EnvStagingDir: &c.Paths.StagingDir,
		EnvCatalog:    &c.Paths.CatalogPath,
		EnvLogDir:     &c.Paths.LogDir,
	} {
		if value, ok := os.LookupEnv(env); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
}

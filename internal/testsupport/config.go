package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"digidup/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The album, target and staging directories exist; the catalog does not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.AlbumRoot = filepath.Join(base, "Pictures")
	cfgVal.Paths.TargetRoot = filepath.Join(base, "Duplicates")
	cfgVal.Paths.StagingDir = filepath.Join(base, "Staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.AlbumRoot, cfgVal.Paths.TargetRoot, cfgVal.Paths.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	return builder.cfg
}

// WithBatchThreshold overrides the pending-deletion flush threshold.
func WithBatchThreshold(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Resolve.BatchThreshold = n
	}
}

// WithoutLogDir disables file logging.
func WithoutLogDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LogDir = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.AlbumRoot)
}

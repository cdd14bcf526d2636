package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"digidup/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	for _, write := range []bool{false, true} {
		result := CheckDirectoryAccess("test", dir, write)
		if !result.Passed {
			t.Fatalf("expected pass for temp dir (write=%v), got: %s", write, result.Detail)
		}
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), false)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f, false); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_Empty(t *testing.T) {
	if result := CheckDirectoryAccess("test", " ", false); result.Passed {
		t.Fatal("expected failure for unset path")
	}
}

func TestCheckCreatable(t *testing.T) {
	base := t.TempDir()
	if r := CheckCreatable("target", filepath.Join(base, "a", "b", "c")); !r.Passed {
		t.Fatalf("expected nested missing dir to be creatable: %s", r.Detail)
	}
	if r := CheckCreatable("target", base); !r.Passed {
		t.Fatalf("expected existing dir to pass: %s", r.Detail)
	}

	file := filepath.Join(base, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckCreatable("target", filepath.Join(file, "sub")); r.Passed {
		t.Fatal("expected failure below a regular file")
	}
}

func TestCheckOptionalDirectory(t *testing.T) {
	if r := CheckOptionalDirectory("staging", filepath.Join(t.TempDir(), "later")); !r.Passed {
		t.Fatalf("missing optional directory should pass: %s", r.Detail)
	}
	if r := CheckOptionalDirectory("staging", ""); !r.Passed {
		t.Fatal("unset optional directory should pass")
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	fixture := testsupport.NewCatalog(t, dir)

	for _, write := range []bool{false, true} {
		if r := CheckCatalog("catalog", fixture.Path, write); !r.Passed {
			t.Fatalf("expected pass (write=%v): %s", write, r.Detail)
		}
	}
	if r := CheckCatalog("catalog", filepath.Join(dir, "missing.db"), false); r.Passed {
		t.Fatal("expected failure for missing catalog")
	}
	if r := CheckCatalog("catalog", dir, false); r.Passed {
		t.Fatal("expected failure for directory")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(nil, false); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.NewCatalog(t, cfg.Paths.AlbumRoot)

	results := RunAll(cfg, true)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_MissingCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	failed := Failed(RunAll(cfg, false))
	if len(failed) != 1 || failed[0].Name != "Catalog" {
		t.Fatalf("expected only the catalog check to fail, got %+v", failed)
	}
}

func TestForResolveAndVerify(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fixture := testsupport.NewCatalog(t, cfg.Paths.AlbumRoot)

	if failed := Failed(ForResolve(cfg.Paths.AlbumRoot, filepath.Join(cfg.Paths.TargetRoot, "new"), fixture.Path, true)); len(failed) != 0 {
		t.Fatalf("resolve checks failed: %+v", failed)
	}
	if got := ForResolve(cfg.Paths.AlbumRoot, cfg.Paths.TargetRoot, fixture.Path, false); len(got) != 2 {
		t.Fatalf("simulate should skip target check, got %d results", len(got))
	}
	failed := Failed(ForVerify(cfg.Paths.AlbumRoot, filepath.Join(cfg.Paths.StagingDir, "missing"), fixture.Path, true))
	if len(failed) != 1 || failed[0].Name != "Staging directory" {
		t.Fatalf("expected staging failure, got %+v", failed)
	}
}

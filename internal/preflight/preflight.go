package preflight

import (
	"digidup/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every check for the given config. With forApply the
// checks also require the write access an applying run needs.
func RunAll(cfg *config.Config, forApply bool) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Album root", cfg.Paths.AlbumRoot, forApply),
		CheckCatalog("Catalog", cfg.CatalogFile(), forApply),
	}
	if forApply {
		results = append(results, CheckCreatable("Target root", cfg.Paths.TargetRoot))
	} else {
		results = append(results, CheckOptionalDirectory("Target root", cfg.Paths.TargetRoot))
	}
	results = append(results, CheckOptionalDirectory("Staging directory", cfg.Paths.StagingDir))
	return results
}

// ForResolve returns the checks a resolution run must pass.
func ForResolve(albumRoot, targetRoot, catalogPath string, apply bool) []Result {
	results := []Result{
		CheckDirectoryAccess("Album root", albumRoot, apply),
		CheckCatalog("Catalog", catalogPath, apply),
	}
	if apply {
		results = append(results, CheckCreatable("Target root", targetRoot))
	}
	return results
}

// ForVerify returns the checks a verification run must pass.
func ForVerify(albumRoot, stagingDir, catalogPath string, deleteFiles bool) []Result {
	return []Result{
		CheckDirectoryAccess("Album root", albumRoot, false),
		CheckDirectoryAccess("Staging directory", stagingDir, deleteFiles),
		CheckCatalog("Catalog", catalogPath, false),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

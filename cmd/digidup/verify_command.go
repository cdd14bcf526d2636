package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"digidup/internal/config"
	"digidup/internal/preflight"
	"digidup/internal/resolve"
	"digidup/internal/verify"
)

type verifyOptions struct {
	album      string
	staging    string
	catalog    string
	include    []string
	exclude    []string
	deleteFile bool
	verbose    bool
	showAll    bool
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check moved duplicates against the catalog before deleting them",
		Long: `Verify walks the staging folder and looks up every file in the catalog by
fingerprint. A file whose single catalog match has identical content is
verified and, with --delete, removed. Untracked, ambiguous and mismatching
files are reported and left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.commandConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}

			logger, err := ctx.newLogger(cmd, cfg, opts.verbose)
			if err != nil {
				return err
			}
			defer logger.Close()

			checks := preflight.ForVerify(cfg.Paths.AlbumRoot, cfg.Paths.StagingDir, cfg.CatalogFile(), opts.deleteFile)
			store, err := openCatalog(cmd.Context(), cfg, checks, true)
			if err != nil {
				return err
			}
			defer store.Close()

			verifier, err := verify.New(verify.Config{
				AlbumRoot:  cfg.Paths.AlbumRoot,
				StagingDir: cfg.Paths.StagingDir,
				Include:    cfg.Verify.Include,
				Exclude:    cfg.Verify.Exclude,
				Delete:     opts.deleteFile,
			}, store, afero.NewOsFs(), logger.Logger)
			if err != nil {
				return err
			}
			report, err := verifier.Run(cmd.Context())
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}
			printVerifyReport(cmd.OutOrStdout(), report, opts.showAll)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.album, "album", "a", "", "digiKam album root (overrides paths.album_root)")
	flags.StringVarP(&opts.staging, "staging", "s", "", "Folder to verify (overrides paths.staging_dir)")
	flags.StringVar(&opts.catalog, "catalog", "", "Catalog database (defaults to <album>/digikam4.db)")
	flags.StringSliceVar(&opts.include, "include", nil, "Glob of staging files to check, relative to the staging folder (repeatable)")
	flags.StringSliceVar(&opts.exclude, "exclude", nil, "Glob of staging files to skip (repeatable)")
	flags.BoolVar(&opts.deleteFile, "delete", false, "Delete staging files whose content is verified")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	flags.BoolVar(&opts.showAll, "all", false, "List every checked file, not only the ones needing attention")
	return cmd
}

func (o verifyOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("album") {
		cfg.Paths.AlbumRoot = o.album
		cfg.Paths.CatalogPath = ""
	}
	if flags.Changed("staging") {
		cfg.Paths.StagingDir = o.staging
	}
	if flags.Changed("catalog") {
		cfg.Paths.CatalogPath = o.catalog
	}
	if flags.Changed("include") {
		cfg.Verify.Include = o.include
	}
	if flags.Changed("exclude") {
		cfg.Verify.Exclude = o.exclude
	}
	if err := reload(cfg); err != nil {
		return fmt.Errorf("%w: %v", resolve.ErrUsage, err)
	}
	return nil
}

func printVerifyReport(out io.Writer, report verify.Report, showAll bool) {
	var rows [][]string
	for _, f := range report.Files {
		if !showAll && (f.Status == verify.StatusVerified || f.Status == verify.StatusDeleted) {
			continue
		}
		detail := f.CatalogPath
		if f.Error != "" {
			detail = f.Error
		} else if f.Status == verify.StatusAmbiguous {
			detail = fmt.Sprintf("%d catalog matches", f.Matches)
		}
		rows = append(rows, []string{string(f.Status), f.Path, detail})
	}
	if len(rows) > 0 {
		fmt.Fprint(out, renderTable([]string{"Status", "File", "Detail"}, rows, nil))
		fmt.Fprintln(out)
	}

	counts := make([][]string, 0, len(verify.Statuses))
	for _, status := range verify.Statuses {
		counts = append(counts, []string{string(status), formatCount(int64(report.Count(status)))})
	}
	fmt.Fprint(out, renderTable([]string{"Outcome", "Files"}, counts, []columnAlignment{alignLeft, alignRight},
		"total", formatCount(int64(len(report.Files)))))
	if report.Freed > 0 {
		fmt.Fprintf(out, "Freed %s in %s\n", formatBytes(report.Freed), formatDuration(report.Duration))
	}
}

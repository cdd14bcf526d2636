package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"digidup/internal/config"
	"digidup/internal/logging"
	"digidup/internal/preflight"
	"digidup/internal/resolve"
)

type resolveOptions struct {
	album           string
	target          string
	catalog         string
	dryRun          bool
	force           bool
	verbose         bool
	batchSize       int
	crossDeviceCopy bool
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Move redundant copies of duplicate images out of the album tree",
		Long: `Resolve groups catalog images by fingerprint. In every group the image with
the shortest name is kept and the others are moved under the target root at
the same album-relative path. Catalog rows of moved images are deleted in
batches.

Exactly one of --dry-run or --force is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolve.ParseMode(opts.dryRun, opts.force)
			if err != nil {
				return err
			}
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

			apply := mode == resolve.ModeApply
			checks := preflight.ForResolve(cfg.Paths.AlbumRoot, cfg.Paths.TargetRoot, cfg.CatalogFile(), apply)
			store, err := openCatalog(cmd.Context(), cfg, checks, !apply)
			if err != nil {
				return err
			}
			defer store.Close()

			logger.Info("starting duplicate resolution",
				logging.String("album_root", cfg.Paths.AlbumRoot),
				logging.String("target_root", cfg.Paths.TargetRoot),
				logging.String("catalog", store.Path()),
				logging.String(logging.FieldMode, mode.String()),
				logging.String(logging.FieldEventType, "resolve_started"),
			)

			resolver, err := resolve.New(resolve.Config{
				AlbumRoot:       cfg.Paths.AlbumRoot,
				TargetRoot:      cfg.Paths.TargetRoot,
				Mode:            mode,
				BatchThreshold:  cfg.Resolve.BatchThreshold,
				CrossDeviceCopy: cfg.Resolve.CrossDeviceCopy,
			}, store, afero.NewOsFs(), logger.Logger)
			if err != nil {
				return err
			}
			report, runErr := resolver.Run(cmd.Context())

			if ctx.JSONMode() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printResolveReport(cmd.OutOrStdout(), report)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.album, "album", "a", "", "digiKam album root (overrides paths.album_root)")
	flags.StringVarP(&opts.target, "target", "t", "", "Folder duplicates are moved into (overrides paths.target_root)")
	flags.StringVar(&opts.catalog, "catalog", "", "Catalog database (defaults to <album>/digikam4.db)")
	flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Report what would happen without changing anything")
	flags.BoolVarP(&opts.force, "force", "f", false, "Move files and delete catalog rows")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	flags.IntVar(&opts.batchSize, "batch-size", 0, "Pending deletions that trigger a catalog flush once exceeded")
	flags.BoolVar(&opts.crossDeviceCopy, "cross-device-copy", false, "Copy and remove when the target is on another filesystem")
	return cmd
}

// apply copies explicitly set flags onto cfg and revalidates it.
func (o resolveOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("album") {
		// A new album root brings its own digikam4.db unless --catalog says otherwise.
		cfg.Paths.AlbumRoot = o.album
		cfg.Paths.CatalogPath = ""
	}
	if flags.Changed("target") {
		cfg.Paths.TargetRoot = o.target
	}
	if flags.Changed("catalog") {
		cfg.Paths.CatalogPath = o.catalog
	}
	if flags.Changed("batch-size") {
		if o.batchSize < 1 {
			return fmt.Errorf("%w: --batch-size must be at least 1", resolve.ErrUsage)
		}
		cfg.Resolve.BatchThreshold = o.batchSize
	}
	if flags.Changed("cross-device-copy") {
		cfg.Resolve.CrossDeviceCopy = o.crossDeviceCopy
	}
	if err := reload(cfg); err != nil {
		return fmt.Errorf("%w: %v", resolve.ErrUsage, err)
	}
	return nil
}

func printResolveReport(out io.Writer, report resolve.Report) {
	movedLabel, deletedLabel := "Moved", "Deleted rows"
	if report.Mode == resolve.ModeSimulate.String() {
		movedLabel, deletedLabel = "Would move", "Would delete rows"
	}

	rows := [][]string{
		{"Duplicate groups", formatCount(int64(report.Groups))},
		{"Kept", formatCount(int64(report.Kept))},
		{movedLabel, formatCount(int64(report.Moved))},
		{"Move failures", formatCount(int64(len(report.MoveFailures)))},
		{deletedLabel, formatCount(report.Deleted)},
		{"Catalog flushes", formatCount(int64(report.Flushes))},
		{"Duration", formatDuration(report.Duration)},
	}
	fmt.Fprintf(out, "Mode: %s\n", report.Mode)
	fmt.Fprint(out, renderTable([]string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(report.MoveFailures) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Images left in place:")
	failures := make([][]string, 0, len(report.MoveFailures))
	for _, f := range report.MoveFailures {
		failures = append(failures, []string{strconv.FormatInt(f.ImageID, 10), f.Src, string(f.Reason)})
	}
	fmt.Fprint(out, renderTable([]string{"Image", "Path", "Reason"}, failures, []columnAlignment{alignRight, alignLeft, alignLeft}))
}

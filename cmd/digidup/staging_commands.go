package main

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"digidup/internal/config"
	"digidup/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	var stagingDir string

	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and tidy the staging folder",
	}
	stagingCmd.PersistentFlags().StringVarP(&stagingDir, "staging", "s", "", "Staging folder (overrides paths.staging_dir)")

	resolveDir := func(cmd *cobra.Command) (string, error) {
		if cmd.Flags().Changed("staging") {
			return config.ExpandPath(strings.TrimSpace(stagingDir))
		}
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return "", err
		}
		return cfg.Paths.StagingDir, nil
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx, resolveDir))
	stagingCmd.AddCommand(newStagingPruneCommand(ctx, resolveDir))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext, resolveDir func(*cobra.Command) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging folders with file counts and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stagingDir, err := resolveDir(cmd)
			if err != nil {
				return err
			}
			fsys := afero.NewOsFs()
			dirs, err := staging.ListDirectories(fsys, stagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}
			summary, err := staging.Summarize(fsys, stagingDir)
			if err != nil {
				return fmt.Errorf("summarize staging directory: %w", err)
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir": stagingDir,
					"directories": dirs,
					"summary":     summary,
				})
			}

			out := cmd.OutOrStdout()
			if summary.Files == 0 && len(dirs) == 0 {
				fmt.Fprintf(out, "Staging directory %s is empty\n", stagingDir)
				return nil
			}
			fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)

			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{dir.Name, formatAge(dir.ModTime), formatCount(int64(dir.Files)), formatBytes(dir.Size)})
			}
			if len(rows) > 0 {
				fmt.Fprint(out, renderTable(
					[]string{"Folder", "Modified", "Files", "Size"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
				))
			}
			fmt.Fprintf(out, "\nTotal: %s files in %d folders, %s\n",
				formatCount(int64(summary.Files)), summary.Directories, formatBytes(summary.Size))
			return nil
		},
	}
}

func newStagingPruneCommand(ctx *commandContext, resolveDir func(*cobra.Command) (string, error)) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove empty folders left behind after verify --delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stagingDir, err := resolveDir(cmd)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cmd, cfg, false)
			if err != nil {
				return err
			}
			defer logger.Close()

			result, err := staging.PruneEmpty(cmd.Context(), afero.NewOsFs(), stagingDir, dryRun, logger.Logger)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if result.Removed == nil {
					result.Removed = []string{}
				}
				return writeJSON(cmd, map[string]any{
					"dry_run": dryRun,
					"removed": result.Removed,
					"errors":  result.Errors,
				})
			}

			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			if len(result.Removed) == 0 && len(result.Errors) == 0 {
				fmt.Fprintln(out, "No empty folders to prune")
				return nil
			}
			for _, path := range result.Removed {
				fmt.Fprintf(out, "  %s\n", path)
			}
			fmt.Fprintf(out, "%s %d empty folders", verb, len(result.Removed))
			if len(result.Errors) > 0 {
				fmt.Fprintf(out, ", %d errors\n", len(result.Errors))
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  Error: %s: %s\n", e.Path, e.Error)
				}
				return fmt.Errorf("prune left %d folders in place", len(result.Errors))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List folders that would be removed")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"digidup/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		runID  string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the persistent digidup log",
		Long: `Logs prints the end of digidup.log from the configured log_dir. Use --run last
to see only the records of the most recent invocation, which is the usual way
to review what a resolve or verify run did.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFile()
			if path == "" {
				return errors.New("file logging is disabled (paths.log_dir is empty)")
			}

			fsys := afero.NewOsFs()
			runID = strings.TrimSpace(runID)
			if runID == "last" {
				runID, err = logs.LastRunID(fsys, path)
				if err != nil {
					return err
				}
				if runID == "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "No runs recorded in %s\n", path)
					return nil
				}
			}

			out := cmd.OutOrStdout()
			return logs.Tail(cmd.Context(), fsys, path, logs.TailOptions{
				Lines:  lines,
				RunID:  runID,
				Follow: follow,
			}, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", `Only show records of this run_id ("last" for the most recent run)`)
	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Keep printing lines as they are appended")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"digidup/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var forApply bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check that the configured folders and catalog are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cfg, forApply)
			failed := preflight.Failed(results)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, map[string]any{
					"config":  ctx.configPath,
					"apply":   forApply,
					"results": results,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Config: %s\n", displayConfigPath(ctx.configPath))
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&forApply, "apply", false, "Also require the write access resolve --force needs")
	return cmd
}

func displayConfigPath(path string) string {
	if path == "" {
		return "(defaults)"
	}
	return path
}

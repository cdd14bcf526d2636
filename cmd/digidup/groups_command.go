package main

import (
	"fmt"
	"path"
	"strconv"

	"github.com/spf13/cobra"

	"digidup/internal/catalog"
	"digidup/internal/preflight"
)

type groupView struct {
	Fingerprint string `json:"fingerprint"`
	Count       int    `json:"count"`
	KeeperID    int64  `json:"keeper_id"`
	Keeper      string `json:"keeper"`
}

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Show duplicate groups and the image each one keeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checks := []preflight.Result{preflight.CheckCatalog("Catalog", cfg.CatalogFile(), false)}
			store, err := openCatalog(cmd.Context(), cfg, checks, true)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			groups, err := store.FindDuplicateGroups(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(groups) > limit {
				groups = groups[:limit]
			}

			views := make([]groupView, 0, len(groups))
			for _, group := range groups {
				members, err := store.ListGroupMembers(cmd.Context(), group.Fingerprint)
				if err != nil {
					return err
				}
				view := groupView{Fingerprint: group.Fingerprint, Count: group.Count}
				if len(members) > 0 {
					view.KeeperID = members[0].ID
					view.Keeper = albumPath(members[0])
				}
				views = append(views, view)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"catalog": store.Path(),
					"stats":   stats,
					"groups":  views,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog: %s\n", store.Path())
			fmt.Fprintf(out, "%s images in %s albums, %s duplicate groups, %s redundant copies\n",
				formatCount(stats.Images), formatCount(stats.Albums),
				formatCount(stats.DuplicateGroups), formatCount(stats.Redundant))
			if len(views) == 0 {
				fmt.Fprintln(out, "No duplicate groups found")
				return nil
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Fingerprint, strconv.Itoa(v.Count), v.Keeper})
			}
			fmt.Fprint(out, renderTable([]string{"Fingerprint", "Copies", "Keeps"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
			if limit > 0 && stats.DuplicateGroups > int64(limit) {
				fmt.Fprintf(out, "Showing %d of %s groups\n", limit, formatCount(stats.DuplicateGroups))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many groups (0 for all)")
	return cmd
}

func albumPath(img catalog.Image) string {
	return path.Join("/", img.RelativePath, img.Name)
}

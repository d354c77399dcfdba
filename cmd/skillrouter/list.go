package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillrouter/pkg/presenter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all skills in the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := newCatalogStore(ctx)
		if err != nil {
			return err
		}
		snap := store.Snapshot()

		if snap.Len() == 0 {
			presenter.Info("No skills found. Add bundles with `skillrouter init <name>` or set catalog.dirs.")
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTOKENS\tREFS\tREF TOKENS\tDESCRIPTION")
			for _, skill := range snap.Skills() {
				desc := skill.Description
				if len(desc) > 60 {
					desc = desc[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
					skill.Name, skill.EstimatedCost, len(skill.References), skill.ReferenceCost(), desc)
			}
			w.Flush()
		}

		for _, perr := range snap.ParseErrors() {
			presenter.Warning(perr.Error())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

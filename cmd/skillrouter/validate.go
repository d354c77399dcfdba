package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillrouter/pkg/presenter"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every skill bundle in the catalog",
	Long: `Parse the whole corpus and report each malformed bundle: missing name or
description, duplicate names, unreadable reference files, non-positive
token costs. Exits non-zero when any bundle fails to parse.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := newCatalogStore(ctx)
		if err != nil {
			return err
		}
		snap := store.Snapshot()

		presenter.Info(fmt.Sprintf("%d skill(s) parsed", snap.Len()))
		if len(snap.ParseErrors()) == 0 {
			presenter.Success("catalog is clean")
			return nil
		}

		for _, perr := range snap.ParseErrors() {
			presenter.Error(perr, "")
		}
		return errors.Errorf("%d malformed skill bundle(s)", len(snap.ParseErrors()))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

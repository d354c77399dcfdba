package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillrouter/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.Get().String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillrouter/pkg/presenter"
)

var explainCmd = &cobra.Command{
	Use:   "explain <query>",
	Short: "Show why each skill was or wasn't selected for a query",
	Long: `Score every catalog entry against the query and print the full candidate
list, including candidates below the relevance threshold and suppressed
near-duplicates. Useful for debugging keyword lists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		core, _, sessions, err := newRouter(ctx)
		if err != nil {
			return err
		}
		defer sessions.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		expl, err := core.Explain(ctx, args[0], sessionID)
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(expl)
		}

		if len(expl.Candidates) == 0 {
			presenter.Info("No skill matched any signal in this query.")
			return nil
		}

		activated := make(map[string]bool, len(expl.Activated))
		for _, name := range expl.Activated {
			activated[name] = true
		}
		suppressed := make(map[string]bool, len(expl.Suppressed))
		for _, name := range expl.Suppressed {
			suppressed[name] = true
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "SKILL\tSCORE\tVERDICT\tMATCHED")
		for _, cand := range expl.Candidates {
			verdict := "below_threshold"
			switch {
			case activated[cand.Skill.Name]:
				verdict = "activated"
			case suppressed[cand.Skill.Name]:
				verdict = "suppressed"
			case cand.Score >= expl.MinScore:
				verdict = "candidate"
			}
			fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\n",
				cand.Skill.Name, cand.Score, verdict, strings.Join(cand.Matched, ", "))
		}
		return w.Flush()
	},
}

func init() {
	explainCmd.Flags().String("session", "", "Session ID for log correlation")
	explainCmd.Flags().Bool("json", false, "Print the explanation as JSON")
	rootCmd.AddCommand(explainCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillrouter/pkg/planner"
	"github.com/jingkaihe/skillrouter/pkg/presenter"
	"github.com/jingkaihe/skillrouter/pkg/session"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>",
	Short: "Resolve a load plan for a query",
	Long: `Run the full pipeline for one query and print the resulting load plan:
which skill documents to load, in what order, at what cost, and which
matched references did not fit the budget.

Examples:
  skillrouter resolve "rate limit exceeded KV"
  skillrouter resolve "deploy a worker" --budget 4000 --session abc123
  skillrouter resolve "parse yaml frontmatter" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		core, _, sessions, err := newRouter(ctx)
		if err != nil {
			return err
		}
		defer sessions.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = session.NewSessionID()
		}
		budget, _ := cmd.Flags().GetInt("budget")
		if budget <= 0 {
			budget = viper.GetInt("planner.default_budget")
		}
		commit, _ := cmd.Flags().GetBool("commit")

		plan, err := core.ResolveLoadPlan(ctx, args[0], sessionID, budget)
		if err != nil {
			return err
		}

		if commit {
			if err := core.CommitLoaded(ctx, plan); err != nil {
				return err
			}
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(plan)
		}
		printPlan(plan)
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("session", "", "Session ID (generated when omitted)")
	resolveCmd.Flags().Int("budget", 0, "Token budget for the plan (defaults to planner.default_budget)")
	resolveCmd.Flags().Bool("commit", false, "Mark the plan's documents as loaded in the session")
	resolveCmd.Flags().Bool("json", false, "Print the plan as JSON")
	rootCmd.AddCommand(resolveCmd)
}

func printPlan(plan *planner.LoadPlan) {
	if plan.NoMatch {
		presenter.Info("No skill cleared the relevance threshold for this query.")
		return
	}

	presenter.Section(fmt.Sprintf("Load plan (session %s)", plan.SessionID))
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tSKILL\tREASON\tCOST")
	for _, item := range plan.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", item.DocID, item.Skill, item.Reason, item.Cost)
	}
	w.Flush()
	presenter.Info(fmt.Sprintf("Total cost: %d / %d tokens", plan.TotalCost, plan.Budget))

	if len(plan.Deferred) > 0 {
		presenter.Section("Deferred (matched but over budget)")
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		for _, item := range plan.Deferred {
			fmt.Fprintf(w, "%s\t%s\t%d\n", item.DocID, item.Skill, item.Cost)
		}
		w.Flush()
	}

	for _, cond := range plan.Conditions {
		if cond.Skill != "" {
			presenter.Warning(fmt.Sprintf("%s (%s): %s", cond.Kind, cond.Skill, cond.Detail))
		} else {
			presenter.Warning(fmt.Sprintf("%s: %s", cond.Kind, cond.Detail))
		}
	}
	if plan.Truncated {
		presenter.Info(strings.TrimSpace(`
The budget was exhausted before every matched document fit. Re-run with a
larger --budget or request the deferred documents explicitly.`))
	}
}

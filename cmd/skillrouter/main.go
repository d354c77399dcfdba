package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillrouter/pkg/logger"
	"github.com/jingkaihe/skillrouter/pkg/matcher"
	"github.com/jingkaihe/skillrouter/pkg/presenter"
	"github.com/jingkaihe/skillrouter/pkg/resolver"
	"github.com/jingkaihe/skillrouter/pkg/router"
	"github.com/jingkaihe/skillrouter/pkg/session"
)

func init() {
	viper.SetEnvPrefix("SKILLROUTER")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillrouter")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()

	matchDefaults := matcher.DefaultConfig()
	resolveDefaults := resolver.DefaultConfig()
	viper.SetDefault("match.min_score", matchDefaults.MinScore)
	viper.SetDefault("match.keyword_weight", matchDefaults.KeywordWeight)
	viper.SetDefault("match.description_weight", matchDefaults.DescriptionWeight)
	viper.SetDefault("match.error_signature_weight", matchDefaults.ErrorSignatureWeight)
	viper.SetDefault("resolver.margin_ratio", resolveDefaults.MarginRatio)
	viper.SetDefault("resolver.activation_cap", resolveDefaults.ActivationCap)
	viper.SetDefault("planner.default_budget", router.DefaultBudget)
	viper.SetDefault("session.window_size", session.DefaultWindowSize)
	viper.SetDefault("session.store", "memory")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("log_format", "text")
}

var rootCmd = &cobra.Command{
	Use:   "skillrouter",
	Short: "Select and budget skill documents for a query",
	Long: `skillrouter decides which skills from a documentation corpus are relevant
to a query, which of their reference documents are worth loading, and in
what order, within a caller-supplied token budget.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.SetLevel(viper.GetString("log_level")); err != nil {
			return err
		}
		logger.SetFormat(viper.GetString("log_format"))
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringSlice("skills-dir", nil, "Skill corpus directories (repeatable)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("catalog.dirs", rootCmd.PersistentFlags().Lookup("skills-dir"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}

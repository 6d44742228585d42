package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unclebandit/survey-escalation/internal/cli"
)

func main() {
	opts := &cli.Options{}

	rootCmd := &cobra.Command{
		Use:   "surveyctl",
		Short: "Operator CLI for the survey escalation server",
		Long: `surveyctl triggers escalation passes, lists pending batches and
participant status, and previews reminder schedules.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("SURVEYCTL_SERVER", "http://localhost:8080"), "Escalation server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.APIKey, "key", os.Getenv("SURVEYCTL_API_KEY"), "Operator API key")

	rootCmd.AddCommand(cli.TriggerCmd(opts))
	rootCmd.AddCommand(cli.SchedulesCmd(opts))
	rootCmd.AddCommand(cli.ParticipantsCmd(opts))
	rootCmd.AddCommand(cli.PlanCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

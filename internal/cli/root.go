package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "genflow",
	Short: "Queue-driven content generation sessions",
	Long: `genflow manages per-session task queues for AI content generation.
Tasks are submitted to a worker service one at a time, their output is
streamed back live, and queue state survives restarts.

Running 'genflow' without a subcommand is equivalent to 'genflow run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(resumeCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to genflow.json config file (default: search up directory tree)")
	rootCmd.PersistentFlags().StringP("session", "s", "default", "Session the command applies to")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

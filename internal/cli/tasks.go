package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dismissCmd = &cobra.Command{
	Use:   "dismiss <task-id>",
	Short: "Remove a failed or pending task from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID, err := app.sessionID(cmd)
		if err != nil {
			return err
		}

		if err := app.Manager.DismissTask(sessionID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %s.\n", args[0])
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Requeue a failed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID, err := app.sessionID(cmd)
		if err != nil {
			return err
		}

		if err := app.Manager.RetryTask(cmd.Context(), sessionID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s. Start it with 'genflow run'.\n", args[0])
		return nil
	},
}

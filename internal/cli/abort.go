package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort the session's running task and halt the queue",
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

		if err := app.Manager.Abort(cmd.Context(), sessionID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s aborted.\n", sessionID)
		return nil
	},
}

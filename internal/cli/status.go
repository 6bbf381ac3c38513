package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pcovell/genflow/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every session's queue state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	sessions := app.Store.All()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}

	for _, sess := range sessions {
		fmt.Fprintf(out, "session %s", sess.ID)
		if sess.IsRunning {
			fmt.Fprint(out, " [running]")
		}
		if sess.AutoStart {
			fmt.Fprint(out, " [auto]")
		}
		if sess.ResumableConversationID != "" {
			fmt.Fprint(out, " [resumable]")
		}
		fmt.Fprintf(out, "  completed=%d\n", sess.CompletedCount)

		if sess.CurrentExecutionID != "" {
			fmt.Fprintf(out, "  execution %s (task %s)\n", sess.CurrentExecutionID, sess.CurrentTaskID)
		}

		for _, task := range sess.Queue {
			fmt.Fprintf(out, "  %s %-9s %s\n", statusMark(task.Status), task.Status, task.Label)
		}
	}
	return nil
}

func statusMark(s session.TaskStatus) string {
	switch s {
	case session.TaskRunning:
		return ">"
	case session.TaskCompleted:
		return "+"
	case session.TaskFailed:
		return "x"
	default:
		return "-"
	}
}

func countFailed(sess *session.Session) int {
	n := 0
	for _, task := range sess.Queue {
		if task.Status == session.TaskFailed {
			n++
		}
	}
	return n
}

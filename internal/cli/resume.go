package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pcovell/genflow/internal/batch"
	"github.com/pcovell/genflow/internal/protocol"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Reconcile sessions after a restart and follow in-flight work",
	Long: `Reconcile every session against the worker service. Executions that
finished while genflow was down are finalized, executions still running
are re-attached through status polling, and interrupted queues with
auto-start resume. Streams cannot be re-opened across a restart, so
re-attached work reports progress at the polling interval.`,
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()

	buffer := batch.NewBuffer(app.Config.LogCoalesceInterval(), func(entries []protocol.LogEntry) {
		for i := range entries {
			fmt.Fprintln(out, app.Formatter.FormatEntry(&entries[i]))
		}
	})
	defer buffer.Close()

	app.Controller.SetLogHandler(func(sid string, entry protocol.LogEntry) {
		buffer.Append(entry)
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	app.Manager.Recover(ctx)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for app.Manager.Recovering() || anySessionBusy(app) {
		select {
		case <-ticker.C:
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, stopping.\n", sig)
			cancel()
			app.Manager.Wait()
			return nil
		case <-ctx.Done():
			app.Manager.Wait()
			return nil
		}
	}

	app.Manager.Wait()
	buffer.Flush()

	for _, sess := range app.Store.All() {
		fmt.Fprintf(out, "session %s: %d completed, %d pending", sess.ID, sess.CompletedCount, sess.PendingCount())
		if failed := countFailed(sess); failed > 0 {
			fmt.Fprintf(out, ", %d failed", failed)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// anySessionBusy reports whether any session still has a live transport
// or a running task.
func anySessionBusy(app *App) bool {
	for _, sess := range app.Store.All() {
		if _, ok := app.Manager.ActiveTransport(sess.ID); ok {
			return true
		}
		if sess.RunningTask() != nil {
			return true
		}
		// Auto-start chains have a short gap between tasks.
		if sess.AutoStart && sess.PendingCount() > 0 {
			return true
		}
	}
	return false
}

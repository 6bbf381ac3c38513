package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pcovell/genflow/internal/batch"
	"github.com/pcovell/genflow/internal/protocol"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Work through the session's queue, streaming output",
	Long: `Start the session's queue. Pending tasks run one at a time until the
queue drains or a task is left failed for inspection. Output from the
worker is streamed to the console as it arrives.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	sessionID, err := app.sessionID(cmd)
	if err != nil {
		return err
	}

	if err := app.Store.Init(sessionID, app.WorkspaceRoot, ""); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	out := cmd.OutOrStdout()

	// Coalesce streamed entries so bursts render as one batch.
	buffer := batch.NewBuffer(app.Config.LogCoalesceInterval(), func(entries []protocol.LogEntry) {
		for i := range entries {
			fmt.Fprintln(out, app.Formatter.FormatEntry(&entries[i]))
		}
	})
	defer buffer.Close()

	app.Controller.SetLogHandler(func(sid string, entry protocol.LogEntry) {
		if sid == sessionID {
			buffer.Append(entry)
		}
	})

	done := make(chan struct{})
	var doneOnce sync.Once
	app.Manager.OnQueueEmpty = func(sid string) {
		if sid == sessionID {
			doneOnce.Do(func() { close(done) })
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Reconcile anything left over from a previous process first.
	app.Manager.Recover(ctx)

	sess := app.Store.Get(sessionID)
	if sess.PendingCount() == 0 && sess.RunningTask() == nil {
		fmt.Fprintln(out, "Nothing queued. Add tasks with 'genflow add'.")
		return nil
	}

	if err := app.Manager.StartAuto(ctx, sessionID); err != nil {
		return err
	}

	select {
	case <-done:
	case sig := <-sigCh:
		fmt.Fprintf(out, "\nReceived %s, aborting...\n", sig)
		if err := app.Manager.Abort(context.Background(), sessionID); err != nil {
			app.Logger.Error("abort on shutdown failed", "error", err)
		}
	case <-ctx.Done():
	}

	app.Manager.Wait()
	buffer.Flush()

	final := app.Store.Get(sessionID)
	if final != nil {
		fmt.Fprintf(out, "Session %s: %d completed", sessionID, final.CompletedCount)
		if failed := countFailed(final); failed > 0 {
			fmt.Fprintf(out, ", %d failed (inspect with 'genflow status', clear with 'genflow dismiss')", failed)
		}
		fmt.Fprintln(out)
	}
	return nil
}

package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pcovell/genflow/internal/session"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue a task in the session",
	Long: `Queue a task. A task is either a skill invocation (--skill with
--param key=value arguments) or a free-form prompt (--prompt). The task
waits in the queue until 'genflow run' works through it.`,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().String("skill", "", "Skill id from the catalog")
	addCmd.Flags().StringArray("param", nil, "Skill context parameter as key=value (repeatable)")
	addCmd.Flags().String("prompt", "", "Free-form prompt (mutually exclusive with --skill)")
	addCmd.Flags().String("label", "", "Display label for the task")
	addCmd.Flags().String("id", "", "Explicit task id (defaults to a generated one)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	sessionID, err := app.sessionID(cmd)
	if err != nil {
		return err
	}

	skillID, _ := cmd.Flags().GetString("skill")
	prompt, _ := cmd.Flags().GetString("prompt")
	label, _ := cmd.Flags().GetString("label")
	taskID, _ := cmd.Flags().GetString("id")
	rawParams, _ := cmd.Flags().GetStringArray("param")

	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}

	if taskID == "" {
		taskID = "task-" + uuid.New().String()[:8]
	}
	if label == "" {
		if skillID != "" {
			label = skillID
		} else {
			label = truncateLabel(prompt)
		}
	}

	if err := app.Store.Init(sessionID, app.WorkspaceRoot, ""); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	added, err := app.Manager.Enqueue(sessionID, []*session.Task{{
		ID:            taskID,
		SkillID:       skillID,
		DirectPrompt:  prompt,
		Label:         label,
		ContextParams: params,
	}})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if added == 0 {
		fmt.Fprintf(out, "Task %s already queued.\n", taskID)
		return nil
	}

	sess := app.Store.Get(sessionID)
	fmt.Fprintf(out, "Queued %s (%d pending in session %s).\n", taskID, sess.PendingCount(), sessionID)
	return nil
}

// parseParams turns repeated key=value flags into a map.
func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		params[key] = value
	}
	return params, nil
}

func truncateLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

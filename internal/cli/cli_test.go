package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcovell/genflow/internal/config"
)

// resetFlags restores every flag on the shared rootCmd tree to its
// default so one execute call cannot leak flag state into the next.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.GenerateDefault()
	cfg.WorkspaceRoot = "."
	path := filepath.Join(dir, config.DefaultFileName)
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestAddThenStatus(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "add",
		"--config", cfgPath,
		"--session", "assets",
		"--prompt", "sketch three keeps",
		"--id", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued task-1")
	assert.Contains(t, out, "1 pending")

	// Same id again is a no-op.
	out, err = execute(t, "add",
		"--config", cfgPath,
		"--session", "assets",
		"--prompt", "sketch three keeps",
		"--id", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "already queued")

	out, err = execute(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "session assets")
	assert.Contains(t, out, "pending")
}

func TestAddRejectsSkillAndPromptTogether(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := execute(t, "add",
		"--config", cfgPath,
		"--session", "assets",
		"--skill", "asset-batch",
		"--prompt", "also a prompt",
		"--id", "task-2")
	require.Error(t, err)
}

func TestDismissQueuedTask(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := execute(t, "add",
		"--config", cfgPath,
		"--session", "assets",
		"--prompt", "disposable",
		"--id", "task-3")
	require.NoError(t, err)

	out, err := execute(t, "dismiss", "task-3", "--config", cfgPath, "--session", "assets")
	require.NoError(t, err)
	assert.Contains(t, out, "Dismissed task-3")

	out, err = execute(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "task-3")
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"faction=Orcs", "tone=grim"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"faction": "Orcs", "tone": "grim"}, params)

	_, err = parseParams([]string{"no-equals"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=value"})
	assert.Error(t, err)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestTruncateLabel(t *testing.T) {
	assert.Equal(t, "short", truncateLabel("  short "))
	long := "a very long prompt that keeps going and going and going"
	got := truncateLabel(long)
	assert.Len(t, got, 43)
	assert.Contains(t, got, "...")
}

func TestDetermineWorkspaceRoot(t *testing.T) {
	cfg := config.GenerateDefault()
	cfg.WorkspaceRoot = "."
	assert.Equal(t, "/proj", determineWorkspaceRoot(cfg, "/proj/genflow.json"))

	cfg.WorkspaceRoot = "content"
	assert.Equal(t, "/proj/content", determineWorkspaceRoot(cfg, "/proj/genflow.json"))

	cfg.WorkspaceRoot = "/elsewhere"
	assert.Equal(t, "/elsewhere", determineWorkspaceRoot(cfg, "/proj/genflow.json"))
}

func TestRootHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "add", "status", "abort", "dismiss", "retry", "resume"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

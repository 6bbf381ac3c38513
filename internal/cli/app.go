package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pcovell/genflow/internal/config"
	"github.com/pcovell/genflow/internal/controller"
	"github.com/pcovell/genflow/internal/eventlog"
	"github.com/pcovell/genflow/internal/manager"
	"github.com/pcovell/genflow/internal/session"
	"github.com/pcovell/genflow/internal/skills"
	"github.com/pcovell/genflow/internal/transcript"
	"github.com/pcovell/genflow/internal/worker"
)

// App wires the long-lived pieces every subcommand needs: config, the
// persistent session store, the event log, and the queue engine.
type App struct {
	Config        *config.Config
	ConfigPath    string
	WorkspaceRoot string

	Store      *session.Store
	Controller *controller.Controller
	Manager    *manager.Manager
	EventLog   *eventlog.Log
	Formatter  *transcript.Formatter
	Logger     *slog.Logger
}

func newApp(cmd *cobra.Command) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workspaceRoot := determineWorkspaceRoot(cfg, cfgPath)

	storePath := resolveAgainst(workspaceRoot, cfg.Paths.SessionStore)
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	store, err := session.NewStore(storePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	client := worker.NewClient(cfg.Server.URL, logger)
	ctrl := controller.New(store, client, logger)

	var evtLog *eventlog.Log
	if cfg.Paths.EventLog != "" {
		logPath := resolveAgainst(workspaceRoot, cfg.Paths.EventLog)
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
		evtLog, err = eventlog.New(logPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		ctrl.SetRecorder(evtLog)
	}

	var catalog skills.Catalog
	if cfg.Paths.SkillCatalog != "" {
		catalogPath := resolveAgainst(workspaceRoot, cfg.Paths.SkillCatalog)
		if _, statErr := os.Stat(catalogPath); statErr == nil {
			catalog, err = skills.LoadCatalog(catalogPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load skill catalog: %w", err)
			}
		}
	}

	mgr := manager.New(store, ctrl, client, catalog, nil, cfg.ManagerConfig(), logger)

	return &App{
		Config:        cfg,
		ConfigPath:    cfgPath,
		WorkspaceRoot: workspaceRoot,
		Store:         store,
		Controller:    ctrl,
		Manager:       mgr,
		EventLog:      evtLog,
		Formatter:     transcript.NewFormatter(),
		Logger:        logger,
	}, nil
}

// Close releases the app's resources. Safe after partial construction.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Shutdown()
	}
	if a.EventLog != nil {
		a.EventLog.Close()
	}
}

func (a *App) sessionID(cmd *cobra.Command) (string, error) {
	id, err := cmd.Flags().GetString("session")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("session id must not be empty")
	}
	return id, nil
}

// loadOrCreateConfig resolves the config: explicit path, then a search
// up the directory tree, then a generated default in the cwd.
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	foundPath, err := findConfigInTree()
	if err != nil {
		return nil, "", err
	}

	if foundPath != "" {
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	defaultPath := filepath.Join(cwd, config.DefaultFileName)
	logger.Info("no config found, creating default", "path", defaultPath)

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}

	return cfg, defaultPath, nil
}

// findConfigInTree searches the current directory and its ancestors.
func findConfigInTree() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, config.DefaultFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// determineWorkspaceRoot resolves the workspace root relative to the
// directory containing the config file.
func determineWorkspaceRoot(cfg *config.Config, configPath string) string {
	configDir := filepath.Dir(configPath)
	if cfg.WorkspaceRoot == "." || cfg.WorkspaceRoot == "" {
		return configDir
	}
	if filepath.IsAbs(cfg.WorkspaceRoot) {
		return cfg.WorkspaceRoot
	}
	return filepath.Join(configDir, cfg.WorkspaceRoot)
}

func resolveAgainst(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

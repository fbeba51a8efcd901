package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kylegalloway/trellm/internal/agent"
	"github.com/kylegalloway/trellm/internal/board"
	"github.com/kylegalloway/trellm/internal/config"
	"github.com/kylegalloway/trellm/internal/locks"
	"github.com/kylegalloway/trellm/internal/metrics"
	"github.com/kylegalloway/trellm/internal/orchestrator"
	"github.com/kylegalloway/trellm/internal/state"
	"github.com/kylegalloway/trellm/internal/ui"
)

var version = "dev"

var (
	configPath string
	verbosity  int
	once       bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trellm",
	Short: "Work a Trello board with Claude, one session per project",
	Long: `trellm polls a Trello TODO list and hands each card to the claude CLI,
resuming one conversation per project. Overflowing sessions are compacted,
rate limits are waited out, and every ticket's cost is recorded.

Use -v to stream the agent conversation and -vv for debug logs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbosity > 1 {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the board and process tasks until interrupted",
	RunE:  runPoller,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print accumulated usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		st := openState(cfg)
		fmt.Print(ui.LedgerReport(st.Stats(), time.Now()))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Kill orphaned agent processes and remove stale locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dir := stateDir(cfg)
		lock, result, err := orchestrator.StartupCleanup(dir, agent.NewRegistry(registryPath(dir), logger), logger)
		if errors.Is(err, locks.ErrLocked) {
			return fmt.Errorf("trellm is running against %s, stop it before cleaning up", dir)
		}
		if lock != nil {
			defer lock.Release()
		}
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Println(orchestrator.FormatCleanupResult(result))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trellm %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "stream agent output (-v) and debug logs (-vv)")
	runCmd.Flags().BoolVar(&once, "once", false, "poll once, wait for dispatched tasks, then exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func stateDir(cfg *config.Config) string {
	return filepath.Dir(config.ExpandHome(cfg.State.File))
}

func registryPath(dir string) string {
	return filepath.Join(dir, "agents.json")
}

func openState(cfg *config.Config) *state.Manager {
	return state.Open(config.ExpandHome(cfg.State.File), state.Options{
		HistoryLimit: cfg.Stats.HistoryLimit,
		MinDiskMB:    cfg.Stats.MinDiskMB,
	}, logger)
}

func runPoller(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateBoard(cfg); err != nil {
		return err
	}

	dir := stateDir(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	registry := agent.NewRegistry(registryPath(dir), logger)
	lock, cleanup, err := orchestrator.StartupCleanup(dir, registry, logger)
	if lock == nil {
		if errors.Is(err, locks.ErrLocked) {
			return fmt.Errorf("another trellm is already running against %s", dir)
		}
		return err
	}
	defer lock.Release()
	if err != nil {
		logger.Warn("startup cleanup", zap.Error(err))
	} else {
		logger.Info("startup cleanup", zap.String("result", orchestrator.FormatCleanupResult(cleanup)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		m, err = metrics.New(reg)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, reg, logger); err != nil {
				logger.Error("metrics endpoint", zap.Error(err))
			}
		}()
	}

	st := openState(cfg)
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Board:    board.NewTrello(cfg.Board, logger),
		State:    st,
		Executor: &agent.ProcessExecutor{Registry: registry},
		Registry: registry,
		Metrics:  m,
		Stream:   verbosity > 0,
		Logger:   logger,
	})

	logger.Info("trellm starting",
		zap.String("version", version),
		zap.String("state", st.Path()),
		zap.Strings("projects", cfg.ProjectNames()),
		zap.Int("max_concurrent", agent.EffectiveConcurrency(cfg.Claude, logger)),
	)

	if once {
		if _, err := orch.RunOnce(ctx); err != nil {
			return err
		}
	} else if err := orch.Run(ctx); err != nil {
		return err
	}

	fmt.Print(ui.FormatRunSummary(orch.Summary()))
	return nil
}

// Package daemonrun wires the daemon process runtime: logger, queue store,
// workflow stages, IPC server, and signal handling. Both the storyforged
// binary and the CLI's foreground daemon command share this entrypoint.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"storyforge/internal/assetgen"
	"storyforge/internal/compositing"
	"storyforge/internal/config"
	"storyforge/internal/daemon"
	"storyforge/internal/ipc"
	"storyforge/internal/logging"
	"storyforge/internal/planning"
	"storyforge/internal/queue"
	"storyforge/internal/scripting"
	"storyforge/internal/synthesis"
	"storyforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the storyforge daemon runtime loop and blocks until the context
// is cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	workflowManager := workflow.NewManager(cfg, store, logger)
	if err := configureStages(workflowManager, cfg, store, logger); err != nil {
		return fmt.Errorf("configure stages: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, workflowManager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"))
	}

	<-signalCtx.Done()
	logger.Info("storyforge daemon shutting down")
	return nil
}

func configureStages(manager *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger) error {
	compositor, err := compositing.NewCompositor(cfg, store, logger)
	if err != nil {
		return err
	}
	manager.ConfigureStages(workflow.StageSet{
		ScriptGenerator:  scripting.NewGenerator(cfg, store, logger),
		ScenePlanner:     planning.NewPlanner(cfg, store, logger),
		AssetGenerator:   assetgen.NewGenerator(cfg, store, logger),
		VideoSynthesizer: synthesis.NewSynthesizer(cfg, store, logger),
		Compositor:       compositor,
	})
	return nil
}

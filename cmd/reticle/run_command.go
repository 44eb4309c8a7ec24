package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reticle/internal/daemon"
	"reticle/internal/logging"
	"reticle/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reticle daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reticle-%s.log", runID))
	logHub := logging.NewStreamHub(4096)
	logger, err := logging.NewFromConfig(cfg, logPath, logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reticle.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reticle-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LockDir, "reticle.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for _, res := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", res.Name),
			logging.String("detail", res.Detail),
			logging.String(logging.FieldErrorHint, "run `reticle preflight` for details"),
			logging.String(logging.FieldImpact, "the affected feature may not work"),
		)
	}

	d, err := daemon.New(cfg, logger, logHub)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return err
	}

	<-signalCtx.Done()
	logger.Info("reticle daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "reticle.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

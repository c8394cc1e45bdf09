package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"watchpost/internal/capture"
	"watchpost/internal/clock"
	"watchpost/internal/config"
	"watchpost/internal/daemon"
	"watchpost/internal/deps"
	"watchpost/internal/delivery"
	"watchpost/internal/logging"
	"watchpost/internal/notifications"
	"watchpost/internal/spool"
	"watchpost/internal/timesource"
	"watchpost/internal/workflow"
)

// PIDFileName is written to the state directory while the daemon runs.
const PIDFileName = "watchpost.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// CaptureFile replaces the capture command with a fixed JPEG file.
	CaptureFile string
}

// Run starts the watchpost daemon and blocks until SIGINT/SIGTERM or
// cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// The instance lock guards the spool and log pointer, so it is taken
	// before either is touched.
	lock, err := daemon.AcquireLock(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("watchpost-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("session_id", uuid.NewString()))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.PruneExpired(logger, time.Now(), cfg.Logging.RetentionDays,
		logging.RetentionTarget{Kind: "log", Dir: cfg.Paths.LogDir, Pattern: "watchpost-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Kind: "index", Dir: cfg.Paths.StateDir, Pattern: spool.IndexFileName + ".corrupt-*"},
	)
	logStartupSnapshot(logger, cfg, opts)

	pidPath := filepath.Join(cfg.Paths.StateDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := spool.OpenFromConfig(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open capture spool", logging.Error(err))
		return err
	}

	clk := clock.Real()
	times := timesource.New(clk, timesource.KernelChecker{})
	source, err := newCaptureSource(cfg, opts, times)
	if err != nil {
		_ = store.Close()
		return err
	}

	notifier := notifications.NewService(cfg)
	client := delivery.NewHTTPClient(cfg, clk, delivery.WithLogger(logger))
	manager := workflow.NewManager(cfg, workflow.Dependencies{
		Source:      source,
		Client:      client,
		Spool:       store,
		Times:       times,
		Notifier:    notifier,
		Reconnector: workflow.NewCommandReconnector(cfg.Network.ReconnectCommand, 0),
		Clock:       clk,
		Logger:      logger,
	})

	d, err := daemon.New(cfg, store, logger, manager, daemon.WithHeldLock(lock))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and the api_bind address"),
			logging.String(logging.FieldImpact, "captures are not taken"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("watchpost daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func newCaptureSource(cfg *config.Config, opts Options, times *timesource.Source) (capture.Source, error) {
	if file := strings.TrimSpace(opts.CaptureFile); file != "" {
		return capture.FileSource{Path: file, Clock: times}, nil
	}
	source, err := capture.NewCommandSource(
		cfg.Capture.Command,
		time.Duration(cfg.Capture.Timeout)*time.Second,
		int64(cfg.Capture.MaxBytes),
		times,
	)
	if err != nil {
		return nil, fmt.Errorf("configure capture: %w", err)
	}
	return source, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
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

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config, opts Options) {
	if logger == nil || cfg == nil {
		return
	}
	binary := ""
	if len(cfg.Capture.Command) > 0 {
		binary = cfg.Capture.Command[0]
	}
	captureOverride := opts.CaptureFile != ""
	missing := deps.Missing(deps.CheckBinaries(deps.Requirements(cfg, captureOverride)))
	logger.Info("startup snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("device_id", cfg.Device.ID),
		logging.String("base_url", cfg.Backend.BaseURL),
		logging.Bool("api_key_present", strings.TrimSpace(cfg.Backend.APIKey) != ""),
		logging.String("capture_binary", binary),
		logging.Bool("capture_available", len(missing) == 0),
		logging.String("network_interface", cfg.Network.Interface),
		logging.Bool("intrusion_enabled", cfg.Intrusion.Enabled),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("spool_dir", cfg.Paths.SpoolDir),
		logging.Int("queue_max_records", cfg.Queue.MaxRecords),
	)
	for _, dep := range missing {
		logging.WarnWithContext(logger, "required program unavailable", "dependency_missing",
			logging.String("dependency", dep.Name),
			logging.String("command", dep.Command),
			logging.String("detail", dep.Detail),
			logging.String(logging.FieldImpact, "every capture will fail and no event will be delivered"),
		)
	}
}

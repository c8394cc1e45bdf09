package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"watchpost/internal/config"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
	"watchpost/internal/trigger"
	"watchpost/internal/workflow"
)

// LockFileName is the single-instance lock created in the state directory.
const LockFileName = "watchpost.lock"

// ErrAlreadyRunning means another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another watchpost daemon instance is already running")

// Daemon coordinates the control loop, local API, and trigger sources and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *spool.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	api     *apiServer
	netlink *netlinkMonitor

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	SpoolDir     string
	LockFilePath string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHeldLock hands the daemon an instance lock the caller already
// acquired with AcquireLock. Start then skips its own lock attempt.
func WithHeldLock(lock *flock.Flock) Option {
	return func(d *Daemon) {
		if lock != nil {
			d.lock = lock
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *spool.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.netlink = newNetlinkMonitor(cfg, logger, d.netlinkTrigger)
	return d, nil
}

// AcquireLock takes the instance lock for cfg, returning ErrAlreadyRunning
// when another daemon holds it. Callers take it before touching the spool.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(LockPath(cfg))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// LockPath returns the instance lock location for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, LockFileName)
}

// IsRunning reports whether a daemon currently holds the instance lock.
func IsRunning(cfg *config.Config) (bool, error) {
	lock := flock.New(LockPath(cfg))
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("check daemon lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	_ = lock.Unlock()
	return false, nil
}

// Start acquires the daemon lock, then launches the control loop, the local
// API, and the netlink trigger source.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if !d.lock.Locked() {
		ok, err := d.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return ErrAlreadyRunning
		}
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.workflow.Stop()
		d.abortStart()
		return fmt.Errorf("configure api: %w", err)
	}
	if err := server.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}
	d.api = server

	if err := d.netlink.Start(d.ctx); err != nil {
		d.logger.Warn("netlink trigger source failed to start", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("watchpost daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.netlink.Stop()
	d.api.stop()
	d.api = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("watchpost daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the bound API address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// ListQueue returns spooled records, oldest first.
func (d *Daemon) ListQueue(ctx context.Context) ([]spool.Record, error) {
	return d.store.List(ctx)
}

// Trigger offers a remote camera trigger and reports whether it became the
// pending event.
func (d *Daemon) Trigger(channel string) (bool, trigger.State) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "api"
	}
	accepted := d.workflow.Trigger(trigger.SourceRemote, channel)
	return accepted, d.workflow.CameraState()
}

// Sensor records a PIR pulse and returns the channels pending corroboration.
func (d *Daemon) Sensor(channel string) ([]string, error) {
	if err := d.workflow.Sensor(channel); err != nil {
		return nil, err
	}
	return d.workflow.PendingSensors(), nil
}

// RequestSweep asks the control loop to drain the spool.
func (d *Daemon) RequestSweep() {
	d.workflow.RequestSweep()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     summary,
		QueueDBPath:  filepath.Join(d.cfg.Paths.StateDir, spool.IndexFileName),
		SpoolDir:     d.store.Dir(),
		LockFilePath: d.lockPath,
	}
}

func (d *Daemon) netlinkTrigger(channel string) bool {
	return d.workflow.Trigger(trigger.SourceLocal, channel)
}

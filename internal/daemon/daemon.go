package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/notifications"
	"podforge/internal/rss"
	"podforge/internal/runner"
	"podforge/internal/storage"
	"podforge/internal/task"
)

// Daemon wires the worker pool, feed poller, and HTTP API together and
// enforces single-instance execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *task.Store
	files  *storage.Store
	pool   *runner.Runner
	poller *rss.Poller
	tasks  *api.TaskService
	server *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon around an opened task store.
func New(cfg *config.Config, store *task.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and task store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	files := storage.NewStore(cfg)
	notifier := notifications.NewService(cfg)
	pool := runner.New(cfg, store, logger, notifier, newProcessFunc(cfg, store, files, logger))
	poller := rss.NewPoller(cfg, store, logger, func(record *task.Record) error {
		_, err := pool.Submit(record)
		return err
	})
	tasks := api.NewTaskService(store, files, pool)

	lockPath := filepath.Join(cfg.Paths.DataDir, "podforged.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		files:    files,
		pool:     pool,
		poller:   poller,
		tasks:    tasks,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, reconciles tasks orphaned by a crash,
// and launches the worker pool, feed poller, and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("prepare lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another podforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if _, err := d.pool.CheckIncompleteTasks(runCtx); err != nil {
		d.releaseStart()
		return err
	}
	if err := d.pool.Start(runCtx); err != nil {
		d.releaseStart()
		return err
	}
	if err := d.poller.Start(runCtx); err != nil {
		d.pool.Stop()
		d.releaseStart()
		return err
	}
	if err := d.server.start(runCtx); err != nil {
		d.poller.Stop()
		d.pool.Stop()
		d.releaseStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("podforge daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// Stop shuts the services down in dependency order and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.poller.Stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("podforge daemon stopped")
}

// Close stops the daemon and closes the task store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Tasks exposes the task service for in-process callers.
func (d *Daemon) Tasks() *api.TaskService {
	return d.tasks
}

// APIAddr returns the bound API address, empty before Start.
func (d *Daemon) APIAddr() string {
	return d.server.addr()
}

// Status summarizes the daemon's runtime state.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	status := api.StatusResponse{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		DBPath:   d.store.Path(),
		LockPath: d.lockPath,
	}
	if stats, err := d.tasks.Stats(ctx); err == nil {
		status.Tasks = stats
	}
	return status
}

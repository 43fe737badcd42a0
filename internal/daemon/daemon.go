package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"planproc/internal/config"
	"planproc/internal/coordinator"
	"planproc/internal/deadline"
	"planproc/internal/events"
	"planproc/internal/logging"
	"planproc/internal/metrics"
	"planproc/internal/notifications"
	"planproc/internal/plan"
	"planproc/internal/planstore"
)

// Daemon owns the plan coordinator and its supporting services and
// enforces single-instance execution via a lock file.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *planstore.Store
	coordinator *coordinator.Coordinator
	handler     *events.Handler
	supervisor  *deadline.Supervisor
	notifier    notifications.Service
	logPath     string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	api *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PhaseCounts  map[plan.Phase]int
	PlanDBPath   string
	LockFilePath string
}

// New constructs a daemon with its full dependency graph: plan store,
// deadline supervisor, metrics, notifier, and coordinator.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	store, err := planstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open plan store: %w", err)
	}

	collector := metrics.NewCollector()
	notifier := notifications.NewService(cfg)
	supervisor := deadline.NewSupervisor(store, logger)

	dispatcher := events.Multi(
		events.NewLogDispatcher(logger),
		newNotifyDispatcher(notifier, store),
	)

	coord := coordinator.New(store, dispatcher, logger,
		coordinator.WithSupervisor(supervisor),
		coordinator.WithPlanDeadline(time.Duration(cfg.Workflow.PlanDeadline)*time.Second),
		coordinator.WithMetrics(collector),
	)

	supervisor.SetHandler(func(ctx context.Context, planID string) {
		if _, err := coord.MarkFailed(ctx, planID, plan.TimeoutReason); err != nil {
			logger.Error("deadline failure could not be recorded",
				logging.String(logging.FieldPlanID, planID),
				logging.Error(err))
			_ = notifier.NotifyError(ctx, err, "deadline enforcement")
		}
	})

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		coordinator: coord,
		handler:     events.NewHandler(coord, logger),
		supervisor:  supervisor,
		notifier:    notifier,
		logPath:     filepath.Join(cfg.Paths.LogDir, "planproc.log"),
		lockPath:    filepath.Join(cfg.Paths.LogDir, "planprocd.lock"),
	}
	d.lock = flock.New(d.lockPath)

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the daemon lock, resyncs persisted deadlines, and brings
// up the API server and deadline sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another planproc daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.supervisor.Resync(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("resync deadlines: %w", err)
	}

	interval := time.Duration(d.cfg.Workflow.DeadlineResyncInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.supervisor.RunSweeper(runCtx, interval)
	}()

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			d.wg.Wait()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("planproc daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.supervisor.Stop()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("planproc daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Handler exposes the event handler for transports that feed the daemon
// directly, such as an embedded queue consumer.
func (d *Daemon) Handler() *events.Handler {
	return d.handler
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	counts, err := d.store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PhaseCounts:  counts,
		PlanDBPath:   d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"reticle/internal/camera"
	"reticle/internal/config"
	"reticle/internal/engine"
	"reticle/internal/logging"
	"reticle/internal/notifications"
	"reticle/internal/search"
	"reticle/internal/services"
	"reticle/internal/workflow"
)

// Daemon owns the camera session, the HTTP API and hotplug monitoring, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	hub      *logging.StreamHub
	notifier notifications.Service
	machine  *workflow.StateMachine
	logPath  string

	lockPath string
	lock     *flock.Flock

	openDetector DetectorFactory
	backend      search.Backend
	cache        *search.CachingBackend
	rdb          *redis.Client
	hotplug      *camera.HotplugMonitor
	api          *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu             sync.Mutex
	session        *session
	frameSeq       atomic.Uint64
	frameSeqSource atomic.Int32
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                  `json:"running"`
	PID          int                   `json:"pid"`
	LockFilePath string                `json:"lock_file"`
	LogPath      string                `json:"log_path"`
	Device       string                `json:"device"`
	DeviceLock   string                `json:"device_lock,omitempty"`
	Backend      string                `json:"backend"`
	Hotplug      bool                  `json:"hotplug"`
	Cache        bool                  `json:"cache"`
	Workflow     workflow.Snapshot     `json:"workflow"`
	Session      *engine.StatusSummary `json:"session,omitempty"`
	Source       *camera.SourceStats   `json:"source,omitempty"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithDetectorFactory replaces the detector opened for each session.
func WithDetectorFactory(f DetectorFactory) Option {
	return func(d *Daemon) {
		if f != nil {
			d.openDetector = f
		}
	}
}

// WithBackend replaces the configured search backend.
func WithBackend(b search.Backend) Option {
	return func(d *Daemon) {
		if b != nil {
			d.backend = b
		}
	}
}

// WithNotifier replaces the ntfy service built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// New constructs a daemon. hub may be nil when log streaming is not wanted.
func New(cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LockDir, "reticled.lock")
	d := &Daemon{
		cfg:          cfg,
		base:         logger,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		hub:          hub,
		notifier:     notifications.NewService(cfg),
		machine:      workflow.New(logger),
		logPath:      filepath.Join(cfg.Paths.LogDir, "reticle.log"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		openDetector: OpenDetector,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, opens the camera session when the camera
// is available and starts the API server and hotplug monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.LockDir, 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reticle daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.backend == nil {
		d.backend = d.buildBackend(d.ctx)
	}

	if err := d.openSession(d.ctx); err != nil {
		if services.IsFatal(err) {
			d.abortStart()
			return fmt.Errorf("open camera session: %w", err)
		}
		logging.WarnWithContext(d.logger, "camera session not started", "session_unavailable",
			logging.Error(err),
			logging.String("device", d.device()),
			logging.String(logging.FieldErrorHint, "connect the camera or check camera.device"),
			logging.String(logging.FieldImpact, "detection starts when the camera is attached"),
		)
	}

	if d.cfg.Camera.Hotplug {
		d.hotplug = camera.NewHotplugMonitor(d.cfg.Camera.Device, d, d.base)
		if err := d.hotplug.Start(d.ctx); err != nil {
			d.logger.Warn("hotplug monitor unavailable", logging.Error(err))
		}
	}

	api, err := newAPIServer(d.cfg, d, d.base)
	if err != nil {
		d.abortStart()
		return err
	}
	if err := api.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	d.api = api

	d.running.Store(true)
	d.logger.Info("reticle daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("backend", d.cfg.Detection.Backend),
		logging.String("mode", d.cfg.Detection.Mode),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.hotplug.Stop()
	d.hotplug = nil
	d.closeSession("daemon start aborted")
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx, d.cancel = nil, nil
	_ = d.lock.Unlock()
}

// Stop ends the session and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	d.hotplug.Stop()
	d.hotplug = nil
	d.closeSession("daemon stopped")
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reticle daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.rdb != nil {
		err := d.rdb.Close()
		d.rdb = nil
		return err
	}
	return nil
}

// Machine returns the workflow state machine shared by every session.
func (d *Daemon) Machine() *workflow.StateMachine { return d.machine }

// LogStream exposes the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub { return d.hub }

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status reports daemon and session diagnostics.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Device:       d.device(),
		Backend:      d.cfg.Detection.Backend,
		Hotplug:      d.hotplug.Running(),
		Cache:        d.cache != nil,
		Workflow:     d.machine.Snapshot(),
	}
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s != nil {
		summary := s.engine.Status()
		status.Session = &summary
		status.DeviceLock = s.lock.Path()
		if s.source != nil {
			stats := s.source.Stats()
			status.Source = &stats
		}
	}
	return status
}

// TestNotification sends a test push notification.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.Publish(ctx, notifications.EventTest, nil)
}

func (d *Daemon) device() string {
	return d.cfg.Camera.Device
}

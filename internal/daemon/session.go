package daemon

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"reticle/internal/camera"
	"reticle/internal/config"
	"reticle/internal/detection"
	"reticle/internal/detector/replay"
	"reticle/internal/detector/visionapi"
	"reticle/internal/engine"
	"reticle/internal/logging"
	"reticle/internal/notifications"
	"reticle/internal/preflight"
	"reticle/internal/services"
)

// DetectorFactory opens the detector for a new session. A non-nil script
// drives the session with frames at its tick.
type DetectorFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (detection.Detector, *replay.Script, error)

// OpenDetector builds the configured detector backend.
func OpenDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (detection.Detector, *replay.Script, error) {
	switch cfg.Detection.Backend {
	case config.BackendCloudVision:
		det, err := visionapi.New(ctx, cfg.Vision, logger)
		if err != nil {
			return nil, nil, err
		}
		return det, nil, nil
	default:
		path := strings.TrimSpace(cfg.Detection.ReplayScript)
		if path == "" {
			return nil, nil, services.Wrap(services.ErrConfiguration, "daemon", "open detector", "detection.replay_script is required for the replay backend", nil)
		}
		script, err := replay.Load(path)
		if err != nil {
			return nil, nil, err
		}
		return replay.New(script), script, nil
	}
}

type session struct {
	engine *engine.Engine
	lock   *camera.DeviceLock
	source *camera.ScriptSource
	cancel context.CancelFunc
	done   chan struct{}
}

// openSession starts a session for the configured camera. It is a no-op when
// a session is already running.
func (d *Daemon) openSession(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return nil
	}

	device := d.device()
	if d.cfg.Detection.Backend == config.BackendCloudVision {
		if res := preflight.CheckDevice(device); !res.Passed {
			return services.Wrap(services.ErrTransient, "daemon", "open session", res.Detail, nil)
		}
	}

	lock, err := camera.AcquireDeviceLock(d.cfg.Paths.LockDir, device)
	if err != nil {
		return services.Wrap(services.ErrTransient, "daemon", "open session", "camera busy", err)
	}

	detector, script, err := d.openDetector(ctx, d.cfg, d.base)
	if err != nil {
		_ = lock.Release()
		return err
	}
	opts, err := engine.OptionsFromConfig(d.cfg)
	if err != nil {
		_ = detector.Close()
		_ = lock.Release()
		return err
	}
	eng, err := engine.New(detector, d.backend, opts, d.base,
		engine.WithMachine(d.machine),
		engine.WithNotifier(d.notifier),
	)
	if err != nil {
		_ = detector.Close()
		_ = lock.Release()
		return err
	}
	if err := eng.Start(ctx); err != nil {
		eng.Stop()
		_ = lock.Release()
		return err
	}

	s := &session{engine: eng, lock: lock, done: make(chan struct{})}
	if script != nil {
		srcCtx, cancel := context.WithCancel(ctx)
		s.source = camera.NewScriptSource(script)
		s.cancel = cancel
		go func() {
			defer close(s.done)
			if err := s.source.Run(srcCtx, eng); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("frame source stopped", logging.Error(err))
			}
		}()
	} else {
		close(s.done)
	}

	d.session = s
	d.frameSeq.Store(0)
	d.frameSeqSource.Store(seqSourceUnset)
	d.logger.Info("camera session opened",
		logging.String(logging.FieldEventType, "session_opened"),
		logging.String(logging.FieldSessionID, eng.SessionID()),
		logging.String("device", device),
		logging.String("device_lock", lock.Path()),
	)
	return nil
}

// closeSession stops the running session, if any, and releases its camera.
func (d *Daemon) closeSession(reason string) {
	d.mu.Lock()
	s := d.session
	d.session = nil
	d.mu.Unlock()
	if s == nil {
		return
	}

	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.engine.Stop()
	if err := s.lock.Release(); err != nil {
		d.logger.Warn("failed to release camera lock", logging.Error(err))
	}
	d.logger.Info("camera session closed",
		logging.String(logging.FieldEventType, "session_closed"),
		logging.String(logging.FieldSessionID, s.engine.SessionID()),
		logging.String("reason", reason),
	)
}

// CameraAttached implements camera.HotplugHandler.
func (d *Daemon) CameraAttached(ctx context.Context, device string) {
	if err := d.openSession(ctx); err != nil {
		logging.WarnWithContext(d.logger, "camera attached but session failed", "session_open_failed",
			logging.String("device", device),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check camera permissions and detector configuration"),
			logging.String(logging.FieldImpact, "no detection until the camera is reattached"),
		)
		return
	}
	d.publish(notifications.EventCameraAttached, notifications.Payload{"device": device})
}

// CameraDetached implements camera.HotplugHandler.
func (d *Daemon) CameraDetached(_ context.Context, device string) {
	d.closeSession("camera detached")
	d.publish(notifications.EventCameraDetached, notifications.Payload{"device": device})
}

func (d *Daemon) publish(event notifications.Event, payload notifications.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func (d *Daemon) current(op string) (*session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, services.Wrap(services.ErrInvalidOperation, "daemon", op, "no active camera session", nil)
	}
	return d.session, nil
}

// SubmitFrame offers a pushed frame to the running session. The bool is
// false when the pipeline was busy and the frame was dropped.
func (d *Daemon) SubmitFrame(frame *detection.Frame) (bool, error) {
	s, err := d.current("submit frame")
	if err != nil {
		return false, err
	}
	if err := frame.Validate(); err != nil {
		return false, services.Wrap(services.ErrInvalidOperation, "daemon", "submit frame", "invalid frame", err)
	}
	return s.engine.Submit(frame), nil
}

const (
	seqSourceUnset int32 = iota
	seqSourceDaemon
	seqSourceClient
)

// FrameSeq resolves the sequence number of a pushed frame. A zero client
// sequence asks the daemon to allocate one. The first frame of a session fixes
// the source; mixing the two afterwards is rejected.
func (d *Daemon) FrameSeq(client uint64) (uint64, error) {
	want := seqSourceDaemon
	if client > 0 {
		want = seqSourceClient
	}
	if !d.frameSeqSource.CompareAndSwap(seqSourceUnset, want) && d.frameSeqSource.Load() != want {
		return 0, services.Wrap(services.ErrInvalidOperation, "daemon", "submit frame",
			"frame sequence source cannot change within a camera session", nil)
	}
	if client > 0 {
		return client, nil
	}
	return d.frameSeq.Add(1), nil
}

// RequestSearch triggers the lookup for the confirmed candidate.
func (d *Daemon) RequestSearch(ctx context.Context) error {
	s, err := d.current("search")
	if err != nil {
		return err
	}
	return s.engine.RequestSearch(ctx)
}

// Dismiss closes the displayed result.
func (d *Daemon) Dismiss(ctx context.Context) error {
	s, err := d.current("dismiss")
	if err != nil {
		return err
	}
	return s.engine.Dismiss(ctx)
}

// Resume returns the session to DETECTING.
func (d *Daemon) Resume(ctx context.Context) error {
	s, err := d.current("resume")
	if err != nil {
		return err
	}
	return s.engine.Resume(ctx)
}

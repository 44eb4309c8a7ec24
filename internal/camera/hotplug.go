package camera

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"reticle/internal/logging"
)

// HotplugHandler receives attach and detach events for the watched device.
type HotplugHandler interface {
	CameraAttached(ctx context.Context, device string)
	CameraDetached(ctx context.Context, device string)
}

// HotplugMonitor listens for udev netlink events on the video4linux subsystem
// and reports when the configured camera appears or disappears.
type HotplugMonitor struct {
	logger  *slog.Logger
	handler HotplugHandler
	device  string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewHotplugMonitor returns nil when device is empty.
func NewHotplugMonitor(device string, handler HotplugHandler, logger *slog.Logger) *HotplugMonitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	return &HotplugMonitor{
		logger:  logging.NewComponentLogger(logger, "hotplug"),
		handler: handler,
		device:  device,
	}
}

// Start begins listening. A netlink connection failure is logged and
// tolerated; the daemon then only sees the camera present at startup.
func (m *HotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; camera hotplug disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "camera sessions will not follow device attach/detach"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.String("device", m.device),
	)
	return nil
}

// Stop shuts down the monitor. Safe on a nil or stopped monitor.
func (m *HotplugMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *HotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *HotplugMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera hotplug may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION=add|remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *HotplugMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := deviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	if devname != m.device {
		m.logger.Debug("ignoring event for non-configured device",
			logging.String("device", devname),
			logging.String("configured_device", m.device),
		)
		return
	}
	if m.handler == nil {
		return
	}

	switch uevent.Action {
	case netlink.ADD:
		m.logger.Info("camera attached",
			logging.String(logging.FieldEventType, "camera_attached"),
			logging.String("device", devname),
		)
		m.handler.CameraAttached(ctx, devname)
	case netlink.REMOVE:
		m.logger.Info("camera detached",
			logging.String(logging.FieldEventType, "camera_detached"),
			logging.String("device", devname),
		)
		m.handler.CameraDetached(ctx, devname)
	}
}

// deviceName gets the device path from a uevent.
func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}

package daemon

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"watchpost/internal/config"
	"watchpost/internal/logging"
)

// netlinkChannel names triggers whose uevent carries no device name.
const netlinkChannel = "netlink"

// netlinkMonitor listens for kernel uevents and turns matching ones into
// local camera triggers, so a GPIO or USB sensor exposed through udev needs
// no helper process.
type netlinkMonitor struct {
	logger    *slog.Logger
	handler   func(channel string) bool
	subsystem string
	action    string
	devpath   string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newNetlinkMonitor returns nil when no subsystem filter is configured.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler func(channel string) bool) *netlinkMonitor {
	if cfg == nil {
		return nil
	}
	subsystem := strings.TrimSpace(cfg.Triggers.NetlinkSubsystem)
	if subsystem == "" {
		return nil
	}
	action := strings.TrimSpace(cfg.Triggers.NetlinkAction)
	if action == "" {
		action = "change"
	}

	return &netlinkMonitor{
		logger:    logging.NewComponentLogger(logger, "netlink-monitor"),
		handler:   handler,
		subsystem: subsystem,
		action:    action,
		devpath:   strings.TrimSpace(cfg.Triggers.NetlinkDevpath),
	}
}

// Start begins listening for kernel uevents. Failing to open the socket is
// logged and otherwise ignored.
func (m *netlinkMonitor) Start(ctx context.Context) error {
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
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; local triggers limited to the API", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "uevent trigger source unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.String("subsystem", m.subsystem),
		logging.String("action", m.action),
	)
	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
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

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "uevent triggers may be missed"),
			)
		}
	}
}

// buildMatcher matches the configured subsystem and action. The action is a
// regular expression, so "change|add" is accepted.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := m.action
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": m.subsystem,
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		devpath = uevent.KObj
	}
	if m.devpath != "" && !strings.Contains(devpath, m.devpath) {
		m.logger.Debug("ignoring uevent for other device",
			logging.String("devpath", devpath),
			logging.String("configured_devpath", m.devpath),
		)
		return
	}

	channel := extractChannel(uevent)
	if m.handler == nil {
		return
	}
	accepted := m.handler(channel)
	m.logger.Debug("uevent trigger offered",
		logging.String(logging.FieldSource, "netlink"),
		logging.String(logging.FieldChannel, channel),
		logging.String("action", string(uevent.Action)),
		logging.Bool("accepted", accepted),
	)
}

// extractChannel names the trigger after the device that raised it.
func extractChannel(uevent netlink.UEvent) string {
	if devname := strings.TrimSpace(uevent.Env["DEVNAME"]); devname != "" {
		return path.Base(devname)
	}
	devpath := strings.TrimSpace(uevent.Env["DEVPATH"])
	if devpath == "" {
		devpath = strings.TrimSpace(uevent.KObj)
	}
	if devpath == "" {
		return netlinkChannel
	}
	return path.Base(devpath)
}

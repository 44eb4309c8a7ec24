package testsupport

import (
	"path/filepath"
	"testing"

	"reticle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LockDir = filepath.Join(base, "run")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Camera.Device = filepath.Join(base, "dev", "video0")
	cfgVal.Camera.Hotplug = false
	cfgVal.Camera.OverlayWidth = 1000
	cfgVal.Camera.OverlayHeight = 1000
	cfgVal.Detection.Backend = config.BackendReplay
	cfgVal.Detection.BarcodeResultDelayMs = 0
	cfgVal.Confirmation.WindowMs = 200
	cfgVal.Search.Endpoint = ""
	cfgVal.Cache.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithReplayScript writes script to the test directory and points the replay
// backend at it.
func WithReplayScript(script string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "session.toml")
		WriteText(b.t, path, script)
		b.cfg.Detection.Backend = config.BackendReplay
		b.cfg.Detection.ReplayScript = path
	}
}

// WithMode sets the detection mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detection.Mode = mode
	}
}

// WithManualSearch requires an explicit search request after confirmation.
func WithManualSearch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Search.Mode = config.SearchModeManual
	}
}

// WithSearchEndpoint points the HTTP lookup backend at url.
func WithSearchEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Search.Endpoint = url
	}
}

// WithAPIToken requires bearer authentication on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}

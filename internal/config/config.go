package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	LockDir  string `toml:"lock_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Camera describes the capture device and the overlay the UI renders on.
type Camera struct {
	Device        string `toml:"device"`
	OverlayWidth  int    `toml:"overlay_width"`
	OverlayHeight int    `toml:"overlay_height"`
	FrameRate     int    `toml:"frame_rate"`
	Hotplug       bool   `toml:"hotplug"`
}

// Detection contains detector backend and candidate selection settings.
type Detection struct {
	// Mode is one of multi_object, prominent_object, barcode.
	Mode string `toml:"mode"`
	// Backend is one of replay, cloud_vision.
	Backend                string  `toml:"backend"`
	ReplayScript           string  `toml:"replay_script"`
	ClassificationEnabled  bool    `toml:"classification_enabled"`
	SelectionDistancePx    float64 `toml:"selection_distance_px"`
	BarcodeMinWidthPercent float64 `toml:"barcode_min_width_percent"`
	BarcodeResultDelayMs   int     `toml:"barcode_result_delay_ms"`
}

// Confirmation tunes how long a candidate must stay selected.
type Confirmation struct {
	WindowMs int `toml:"window_ms"`
	// GraceFrames is the number of consecutive frames without a selection that
	// are tolerated before confirmation restarts. Zero restarts on any gap.
	GraceFrames int `toml:"grace_frames"`
}

// Search contains the product lookup configuration.
type Search struct {
	// Mode is auto (search on confirmation) or manual (explicit trigger).
	Mode               string `toml:"mode"`
	Endpoint           string `toml:"endpoint"`
	APIKey             string `toml:"api_key"`
	RequestTimeout     int    `toml:"request_timeout"`
	PlaceholderResults int    `toml:"placeholder_results"`
}

// Cache contains the Redis-backed lookup cache settings.
type Cache struct {
	Enabled       bool   `toml:"enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
	Namespace     string `toml:"namespace"`
}

// Vision contains Google Cloud Vision detector settings. Credentials come from
// Application Default Credentials unless CredentialsFile is set.
type Vision struct {
	CredentialsFile string  `toml:"credentials_file"`
	MaxResults      int     `toml:"max_results"`
	MinScore        float64 `toml:"min_score"`
	RequestTimeout  int     `toml:"request_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Confirmed      bool   `toml:"confirmed"`
	Searched       bool   `toml:"searched"`
	Camera         bool   `toml:"camera"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Reticle.
//
// Configuration sections by subsystem:
//   - Paths: log/lock directories and API bind address
//   - Camera: capture device, overlay geometry, hotplug
//   - Detection: mode, detector backend, selection thresholds
//   - Confirmation: confirmation window and gap tolerance
//   - Search: lookup backend, auto/manual mode, fallback results
//   - Cache: Redis lookup cache
//   - Vision: Cloud Vision detector backend
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Camera        Camera        `toml:"camera"`
	Detection     Detection     `toml:"detection"`
	Confirmation  Confirmation  `toml:"confirmation"`
	Search        Search        `toml:"search"`
	Cache         Cache         `toml:"cache"`
	Vision        Vision        `toml:"vision"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reticle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reticle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.LockDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ConfirmationWindow returns the sustained-selection time required to confirm.
func (c *Config) ConfirmationWindow() time.Duration {
	return time.Duration(c.Confirmation.WindowMs) * time.Millisecond
}

// BarcodeResultDelay returns how long a barcode lookup is held in SEARCHING.
func (c *Config) BarcodeResultDelay() time.Duration {
	return time.Duration(c.Detection.BarcodeResultDelayMs) * time.Millisecond
}

// FrameInterval returns the camera tick derived from the frame rate.
func (c *Config) FrameInterval() time.Duration {
	if c.Camera.FrameRate <= 0 {
		return time.Second / defaultFrameRate
	}
	return time.Second / time.Duration(c.Camera.FrameRate)
}

// SearchTimeout returns the per-request lookup timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.RequestTimeout) * time.Second
}

// CacheTTL returns the lookup cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// AutoSearch reports whether a confirmed entity is searched without an explicit trigger.
// Barcode sessions always resolve automatically.
func (c *Config) AutoSearch() bool {
	return c.Search.Mode == SearchModeAuto || c.Detection.Mode == ModeBarcode
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
